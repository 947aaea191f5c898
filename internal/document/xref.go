package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nespdf/pkg/contract"
)

// Header 为文件头：版本行加一个空行。
const Header = "%PDF-1.6\n\n"

// entryLen 为交叉引用表每条记录的固定字节数（含行尾）。
const entryLen = 20

// idSpace 为文档 /ID 的命名空间：同样的对象流得到同样的 /ID。
var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nespdf:document-id"))

// XrefEntry 为交叉引用表的一项。
// 空闲项的 Offset 字段为下一个空闲编号（链表，末尾回到 0）。
type XrefEntry struct {
	Offset int64
	Gen    int
	InUse  bool
}

// Table 构造大小为 max+1 的交叉引用表：0 号为空闲链表头（生成号 65535），
// 未出现在 offs 中的编号一律标记为空闲，不省略。
func Table(offs Offsets) []XrefEntry {
	size := int(offs.Max()) + 1
	t := make([]XrefEntry, size)
	t[0] = XrefEntry{Gen: 65535}
	prev := 0
	for i := 1; i < size; i++ {
		if off, ok := offs[contract.ObjectID(i)]; ok {
			t[i] = XrefEntry{Offset: off, InUse: true}
			continue
		}
		t[prev].Offset = int64(i)
		prev = i
	}
	return t
}

// encodeEntry 输出 "oooooooooo ggggg n \n"（20 字节）。
func encodeEntry(b *bytes.Buffer, e XrefEntry) {
	kind := byte('f')
	if e.InUse {
		kind = 'n'
	}
	fmt.Fprintf(b, "%010d %05d %c \n", e.Offset, e.Gen, kind)
}

// DocumentID 由对象流字节确定性派生（32 位十六进制）。
func DocumentID(body []byte) string {
	u := uuid.NewSHA1(idSpace, body)
	return strings.ReplaceAll(u.String(), "-", "")
}

// Link 由对象流与偏移生成完整文件：文件头 + 对象流 + 交叉引用表 + 尾部。
// startxref 为交叉引用段的起始偏移，只有在文件头与对象流全部确定后才可计算。
func Link(body []byte, offs Offsets, root contract.ObjectID) ([]byte, error) {
	if len(offs) == 0 {
		return nil, fmt.Errorf("%w: no objects", contract.ErrXrefInvalid)
	}
	if _, ok := offs[root]; !ok {
		return nil, fmt.Errorf("%w: root %d", contract.ErrDanglingRef, root)
	}
	table := Table(offs)
	startxref := len(Header) + len(body)
	id := DocumentID(body)

	var b bytes.Buffer
	b.Grow(startxref + len(table)*entryLen + 256)
	b.WriteString(Header)
	b.Write(body)
	fmt.Fprintf(&b, "xref\n0 %d\n", len(table))
	for _, e := range table {
		encodeEntry(&b, e)
	}
	fmt.Fprintf(&b, "trailer\n<<\n/ID [<%s> <%s>]\n/Root %d 0 R\n/Size %d\n>>\nstartxref\n%d\n%%%%EOF\n",
		id, id, root, len(table), startxref)
	return b.Bytes(), nil
}
