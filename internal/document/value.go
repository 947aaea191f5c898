// Package document 将逻辑实体序列化为文档对象，计算字节偏移并生成交叉引用表与尾部。
//
// 仅支持单一文档形状：一页、一个启动脚本、若干文本字段与按钮。
// 不支持增量更新、加密与多页。
package document

import (
	"bytes"
	"strconv"

	"nespdf/pkg/contract"
)

// Value 为对象体内可序列化的值。
type Value interface {
	encode(b *bytes.Buffer)
}

// Name: /Name
type Name string

// Ref: N 0 R
type Ref contract.ObjectID

// Str: (literal)，序列化时转义。
type Str string

// Int: 整数。
type Int int

// Real: 一位小数的实数。
type Real float64

// Array: [ a b c ]
type Array []Value

// Entry 为有序字典的一项。
type Entry struct {
	Key string
	Val Value
}

// Dict 为有序字典；嵌套时单行输出，作为对象体时每项一行。
type Dict []Entry

func (n Name) encode(b *bytes.Buffer) { b.WriteByte('/'); b.WriteString(string(n)) }

func (r Ref) encode(b *bytes.Buffer) {
	b.WriteString(strconv.Itoa(int(r)))
	b.WriteString(" 0 R")
}

func (s Str) encode(b *bytes.Buffer) {
	b.WriteByte('(')
	b.WriteString(EscapeString(string(s)))
	b.WriteByte(')')
}

func (i Int) encode(b *bytes.Buffer) { b.WriteString(strconv.Itoa(int(i))) }

func (r Real) encode(b *bytes.Buffer) { b.WriteString(strconv.FormatFloat(float64(r), 'f', 1, 64)) }

func (a Array) encode(b *bytes.Buffer) {
	b.WriteByte('[')
	for _, v := range a {
		b.WriteByte(' ')
		v.encode(b)
	}
	b.WriteString(" ]")
}

func (d Dict) encode(b *bytes.Buffer) {
	if len(d) == 0 {
		b.WriteString("<<>>")
		return
	}
	b.WriteString("<<")
	for _, e := range d {
		b.WriteString(" /")
		b.WriteString(e.Key)
		b.WriteByte(' ')
		e.Val.encode(b)
	}
	b.WriteString(" >>")
}

// encodeBlock 以对象体形式输出：每项一行。
func (d Dict) encodeBlock(b *bytes.Buffer) {
	b.WriteString("<<\n")
	for _, e := range d {
		b.WriteByte('/')
		b.WriteString(e.Key)
		b.WriteByte(' ')
		e.Val.encode(b)
		b.WriteByte('\n')
	}
	b.WriteString(">>")
}

// Get 按键查找（线性）。
func (d Dict) Get(key string) (Value, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Val, true
		}
	}
	return nil, false
}

// Refs 递归收集值中的全部对象引用（保持出现顺序）。
func Refs(v Value) []contract.ObjectID {
	var out []contract.ObjectID
	walkRefs(v, func(id contract.ObjectID) { out = append(out, id) })
	return out
}

func walkRefs(v Value, fn func(contract.ObjectID)) {
	switch x := v.(type) {
	case Ref:
		fn(contract.ObjectID(x))
	case Array:
		for _, e := range x {
			walkRefs(e, fn)
		}
	case Dict:
		for _, e := range x {
			walkRefs(e.Val, fn)
		}
	}
}

// RefArray 由编号列表构造引用数组。
func RefArray(ids []contract.ObjectID) Array {
	a := make(Array, 0, len(ids))
	for _, id := range ids {
		a = append(a, Ref(id))
	}
	return a
}
