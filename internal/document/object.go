package document

import (
	"bytes"
	"strconv"

	"nespdf/pkg/contract"
)

// Kind 为实体种类标签（仅用于日志与校验）。
type Kind string

const (
	KindCatalog Kind = "catalog"
	KindPages   Kind = "pages"
	KindPage    Kind = "page"
	KindFont    Kind = "font"
	KindScript  Kind = "script"
	KindField   Kind = "field"
	KindButton  Kind = "button"
)

// Object 为一个编号实体：字典体 + 可选流内容。
// Stream 非 nil 时字典只写 /Length，长度按转义后的字节数计算。
type Object struct {
	ID     contract.ObjectID
	Kind   Kind
	Dict   Dict
	Stream *string
}

// NewScript 构造脚本流对象。
func NewScript(id contract.ObjectID, body string) Object {
	s := EscapeStream(body)
	return Object{ID: id, Kind: KindScript, Stream: &s}
}

// Refs 返回对象体引用的全部编号。
func (o Object) Refs() []contract.ObjectID { return Refs(o.Dict) }

// Encode 输出 "N 0 obj ... endobj\n"。
func (o Object) Encode() []byte {
	var b bytes.Buffer
	o.encodeTo(&b)
	return b.Bytes()
}

func (o Object) encodeTo(b *bytes.Buffer) {
	b.WriteString(strconv.Itoa(int(o.ID)))
	b.WriteString(" 0 obj\n")
	if o.Stream != nil {
		Dict{{"Length", Int(len(*o.Stream))}}.encode(b)
		b.WriteString("\nstream\n")
		b.WriteString(*o.Stream)
		b.WriteString("\nendstream\n")
	} else {
		o.Dict.encodeBlock(b)
		b.WriteByte('\n')
	}
	b.WriteString("endobj\n")
}
