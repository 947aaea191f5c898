package document

import (
	"bytes"
	"fmt"
	"strconv"

	"nespdf/pkg/contract"
)

// Parsed 为重新解析文件得到的结构视图。
type Parsed struct {
	StartXref int64
	Entries   []XrefEntry
	Root      contract.ObjectID
	Size      int
	ID        string
	// Objects: 对象流顺序扫描得到的偏移。
	Objects Offsets
}

// InUse 返回在用编号数量。
func (p *Parsed) InUse() int {
	n := 0
	for _, e := range p.Entries {
		if e.InUse {
			n++
		}
	}
	return n
}

// Parse 从文件尾读取 startxref，解析交叉引用表与尾部，并顺序扫描对象流。
func Parse(file []byte) (*Parsed, error) {
	if !bytes.HasPrefix(file, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing header", contract.ErrXrefInvalid)
	}
	sx, err := readStartXref(file)
	if err != nil {
		return nil, err
	}
	if sx <= 0 || sx >= int64(len(file)) {
		return nil, fmt.Errorf("%w: startxref %d out of range", contract.ErrXrefInvalid, sx)
	}
	p := &Parsed{StartXref: sx}

	rest := file[sx:]
	if !bytes.HasPrefix(rest, []byte("xref\n")) {
		return nil, fmt.Errorf("%w: startxref does not point at xref", contract.ErrXrefInvalid)
	}
	rest = rest[len("xref\n"):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: truncated subsection header", contract.ErrXrefInvalid)
	}
	hdr := bytes.Fields(rest[:nl])
	if len(hdr) != 2 || string(hdr[0]) != "0" {
		return nil, fmt.Errorf("%w: subsection header %q", contract.ErrXrefInvalid, rest[:nl])
	}
	count, err := strconv.Atoi(string(hdr[1]))
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("%w: subsection count %q", contract.ErrXrefInvalid, hdr[1])
	}
	rest = rest[nl+1:]
	if len(rest) < count*entryLen {
		return nil, fmt.Errorf("%w: table truncated", contract.ErrXrefInvalid)
	}
	for i := 0; i < count; i++ {
		e, err := parseEntry(rest[i*entryLen : (i+1)*entryLen])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", contract.ErrXrefInvalid, i, err)
		}
		p.Entries = append(p.Entries, e)
	}
	if err := p.parseTrailer(rest[count*entryLen:]); err != nil {
		return nil, err
	}

	hdrEnd := bytes.Index(file, []byte("\n\n"))
	if hdrEnd < 0 || hdrEnd+2 > int(sx) {
		return nil, fmt.Errorf("%w: header not terminated", contract.ErrXrefInvalid)
	}
	objs, err := Index(file[hdrEnd+2:sx], hdrEnd+2)
	if err != nil {
		return nil, err
	}
	p.Objects = objs
	return p, nil
}

func parseEntry(b []byte) (XrefEntry, error) {
	if len(b) != entryLen || b[10] != ' ' || b[16] != ' ' || b[18] != ' ' || b[19] != '\n' {
		return XrefEntry{}, fmt.Errorf("malformed %q", b)
	}
	off, err := strconv.ParseInt(string(b[:10]), 10, 64)
	if err != nil {
		return XrefEntry{}, err
	}
	gen, err := strconv.Atoi(string(b[11:16]))
	if err != nil {
		return XrefEntry{}, err
	}
	switch b[17] {
	case 'n':
		return XrefEntry{Offset: off, Gen: gen, InUse: true}, nil
	case 'f':
		return XrefEntry{Offset: off, Gen: gen}, nil
	default:
		return XrefEntry{}, fmt.Errorf("kind %q", b[17])
	}
}

func (p *Parsed) parseTrailer(b []byte) error {
	if !bytes.HasPrefix(b, []byte("trailer\n<<")) {
		return fmt.Errorf("%w: missing trailer", contract.ErrXrefInvalid)
	}
	end := bytes.Index(b, []byte(">>"))
	if end < 0 {
		return fmt.Errorf("%w: unterminated trailer", contract.ErrXrefInvalid)
	}
	dict := b[:end]
	size, ok := intAfter(dict, "/Size ")
	if !ok {
		return fmt.Errorf("%w: trailer without /Size", contract.ErrXrefInvalid)
	}
	root, ok := intAfter(dict, "/Root ")
	if !ok {
		return fmt.Errorf("%w: trailer without /Root", contract.ErrXrefInvalid)
	}
	p.Size = size
	p.Root = contract.ObjectID(root)
	if i := bytes.Index(dict, []byte("/ID [<")); i >= 0 {
		s := dict[i+len("/ID [<"):]
		if j := bytes.IndexByte(s, '>'); j >= 0 {
			p.ID = string(s[:j])
		}
	}
	return nil
}

func intAfter(b []byte, key string) (int, bool) {
	i := bytes.Index(b, []byte(key))
	if i < 0 {
		return 0, false
	}
	j := i + len(key)
	k := j
	for k < len(b) && b[k] >= '0' && b[k] <= '9' {
		k++
	}
	n, err := strconv.Atoi(string(b[j:k]))
	return n, err == nil
}

func readStartXref(file []byte) (int64, error) {
	tail := bytes.TrimRight(file, "\r\n")
	if !bytes.HasSuffix(tail, []byte("%%EOF")) {
		return 0, fmt.Errorf("%w: missing %%%%EOF", contract.ErrXrefInvalid)
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("%w: missing startxref", contract.ErrXrefInvalid)
	}
	num := bytes.TrimSpace(tail[i+len("startxref") : len(tail)-len("%%EOF")])
	return strconv.ParseInt(string(num), 10, 64)
}

// Verify 校验文件自洽：
// - 表大小 = 最大编号 + 1，且等于尾部 /Size；
// - 每个在用项的偏移恰好指向同号对象起始记号；
// - 对象流中的每个对象都是在用项，其余编号为空闲项；
// - 空闲链表从 0 号出发按升序覆盖全部空闲项并以 0 结束；
// - /Root 为在用项。
func Verify(file []byte) (*Parsed, error) {
	p, err := Parse(file)
	if err != nil {
		return nil, err
	}
	if len(p.Entries) != p.Size {
		return nil, fmt.Errorf("%w: table has %d entries, trailer /Size %d", contract.ErrXrefInvalid, len(p.Entries), p.Size)
	}
	if want := int(p.Objects.Max()) + 1; p.Size != want {
		return nil, fmt.Errorf("%w: /Size %d, max object %d", contract.ErrXrefInvalid, p.Size, want-1)
	}
	if p.Entries[0].InUse || p.Entries[0].Gen != 65535 {
		return nil, fmt.Errorf("%w: slot 0 must be the free-list head", contract.ErrXrefInvalid)
	}
	var free []int
	for i := 1; i < len(p.Entries); i++ {
		e := p.Entries[i]
		off, present := p.Objects[contract.ObjectID(i)]
		switch {
		case e.InUse && !present:
			return nil, fmt.Errorf("%w: entry %d in use but object absent", contract.ErrXrefInvalid, i)
		case !e.InUse && present:
			return nil, fmt.Errorf("%w: object %d present but marked free", contract.ErrXrefInvalid, i)
		case e.InUse && e.Offset != off:
			return nil, fmt.Errorf("%w: entry %d offset %d, object at %d", contract.ErrXrefInvalid, i, e.Offset, off)
		case !e.InUse:
			free = append(free, i)
		}
		if e.InUse {
			prefix := strconv.Itoa(i) + " 0 obj"
			if !bytes.HasPrefix(file[e.Offset:], []byte(prefix)) {
				return nil, fmt.Errorf("%w: entry %d does not point at its marker", contract.ErrXrefInvalid, i)
			}
		}
	}
	next := p.Entries[0].Offset
	for _, f := range free {
		if next != int64(f) {
			return nil, fmt.Errorf("%w: free list expected %d, got %d", contract.ErrXrefInvalid, f, next)
		}
		next = p.Entries[f].Offset
	}
	if next != 0 {
		return nil, fmt.Errorf("%w: free list does not terminate", contract.ErrXrefInvalid)
	}
	if int(p.Root) <= 0 || int(p.Root) >= len(p.Entries) || !p.Entries[p.Root].InUse {
		return nil, fmt.Errorf("%w: root %d", contract.ErrDanglingRef, p.Root)
	}
	return p, nil
}
