package document

import (
	"bytes"
	"fmt"
	"strconv"

	"nespdf/pkg/contract"
)

// Offsets: 对象编号 → 对象起始记号的绝对字节偏移。
type Offsets map[contract.ObjectID]int64

// Max 返回最大编号（空表为 0）。
func (o Offsets) Max() contract.ObjectID {
	var m contract.ObjectID
	for id := range o {
		if id > m {
			m = id
		}
	}
	return m
}

var (
	kwObj       = []byte(" obj")
	kwEndobj    = []byte("endobj")
	kwStream    = []byte("\nstream\n")
	kwEndstream = []byte("\nendstream\n")
	kwLength    = []byte("/Length ")
)

// Index 顺序扫描对象流，记录每个对象起始偏移（加上 headerLen）。
// 扫描是结构化的：流内容按 /Length 整段跳过，因此脚本文本中出现的 "N 0 obj" 不会被误识别。
func Index(body []byte, headerLen int) (Offsets, error) {
	offs := Offsets{}
	pos := 0
	for {
		pos = skipSpace(body, pos)
		if pos >= len(body) {
			return offs, nil
		}
		id, next, err := objHeader(body, pos)
		if err != nil {
			return nil, err
		}
		if _, dup := offs[id]; dup {
			return nil, fmt.Errorf("%w: object %d appears twice", contract.ErrIDCollision, id)
		}
		offs[id] = int64(headerLen + pos)
		end, err := objEnd(body, next, id)
		if err != nil {
			return nil, err
		}
		pos = end
	}
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	return i
}

// objHeader 解析 "N G obj"，返回编号与其后的位置。
func objHeader(b []byte, pos int) (contract.ObjectID, int, error) {
	lineEnd := bytes.IndexByte(b[pos:], '\n')
	if lineEnd < 0 {
		return 0, 0, fmt.Errorf("%w: truncated object header at %d", contract.ErrXrefInvalid, pos)
	}
	line := b[pos : pos+lineEnd]
	if !bytes.HasSuffix(line, kwObj) {
		return 0, 0, fmt.Errorf("%w: expected object header at %d", contract.ErrXrefInvalid, pos)
	}
	f := bytes.Fields(line[:len(line)-len(kwObj)])
	if len(f) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed object header at %d", contract.ErrXrefInvalid, pos)
	}
	n, err := strconv.Atoi(string(f[0]))
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("%w: bad object number %q at %d", contract.ErrXrefInvalid, f[0], pos)
	}
	if _, err := strconv.Atoi(string(f[1])); err != nil {
		return 0, 0, fmt.Errorf("%w: bad generation %q at %d", contract.ErrXrefInvalid, f[1], pos)
	}
	return contract.ObjectID(n), pos + lineEnd + 1, nil
}

// objEnd 返回 endobj 之后的位置；带流的对象按 /Length 跳过流内容。
func objEnd(b []byte, pos int, id contract.ObjectID) (int, error) {
	rest := b[pos:]
	eo := bytes.Index(rest, kwEndobj)
	if eo < 0 {
		return 0, fmt.Errorf("%w: object %d has no endobj", contract.ErrXrefInvalid, id)
	}
	st := bytes.Index(rest, kwStream)
	if st < 0 || st > eo {
		return pos + eo + len(kwEndobj), nil
	}
	n, err := streamLength(rest[:st])
	if err != nil {
		return 0, fmt.Errorf("%w: object %d: %v", contract.ErrXrefInvalid, id, err)
	}
	start := pos + st + len(kwStream)
	if n < 0 || n > len(b)-start {
		return 0, fmt.Errorf("%w: object %d stream length %d exceeds file", contract.ErrXrefInvalid, id, n)
	}
	stop := start + n
	if !bytes.HasPrefix(b[stop:], kwEndstream) {
		return 0, fmt.Errorf("%w: object %d stream length %d does not reach endstream", contract.ErrXrefInvalid, id, n)
	}
	after := skipSpace(b, stop+len(kwEndstream))
	if !bytes.HasPrefix(b[after:], kwEndobj) {
		return 0, fmt.Errorf("%w: object %d missing endobj after stream", contract.ErrXrefInvalid, id)
	}
	return after + len(kwEndobj), nil
}

func streamLength(dict []byte) (int, error) {
	i := bytes.Index(dict, kwLength)
	if i < 0 {
		return 0, fmt.Errorf("stream without /Length")
	}
	j := i + len(kwLength)
	k := j
	for k < len(dict) && dict[k] >= '0' && dict[k] <= '9' {
		k++
	}
	if k == j {
		return 0, fmt.Errorf("non-numeric /Length")
	}
	return strconv.Atoi(string(dict[j:k]))
}
