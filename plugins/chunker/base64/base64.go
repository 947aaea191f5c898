// Package base64 实现载荷分片器：标准 64 符号编码（'=' 填充），按固定长度切片，
// 每片生成一条独立成行的拼接语句，避免宿主脚本解析器的单行长度上限。
package base64

import (
	"context"
	b64 "encoding/base64"
	"fmt"
	"regexp"

	"nespdf/pkg/contract"
)

// Options 为分片器配置。
type Options struct {
	// FragmentSize: 每片字符数。0 表示默认 2048。
	FragmentSize int `json:"fragment_size"`
	// LineLimit: 宿主单行长度上限（字节）。0 表示默认 4096。
	LineLimit int `json:"line_limit"`
	// Accumulator: 拼接变量名。为空时默认 "romBase64"。
	Accumulator string `json:"accumulator"`
}

const (
	defaultFragment = 2048
	defaultLine     = 4096
	defaultAcc      = "romBase64"
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Chunker 实现 contract.Chunker。
type Chunker struct {
	frag int
	acc  string
}

// New 校验选项并计算有效片长。
func New(opts *Options) (*Chunker, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.FragmentSize < 0 || o.LineLimit < 0 {
		return nil, fmt.Errorf("base64 chunker: negative size")
	}
	if o.Accumulator == "" {
		o.Accumulator = defaultAcc
	}
	if !identRe.MatchString(o.Accumulator) {
		return nil, fmt.Errorf("base64 chunker: accumulator %q is not an identifier", o.Accumulator)
	}
	eff, overhead := EffectiveFragmentSize(o)
	if eff < 4 {
		return nil, fmt.Errorf("base64 chunker: line_limit %d leaves no room for fragments (overhead %d)", o.LineLimit, overhead)
	}
	return &Chunker{frag: eff, acc: o.Accumulator}, nil
}

// EffectiveFragmentSize 计算预扣语句固定开销后的有效片长（向下取整到 4 的倍数）。
// 返回 (effective, overhead)。
func EffectiveFragmentSize(o Options) (int, int) {
	frag := o.FragmentSize
	if frag <= 0 {
		frag = defaultFragment
	}
	line := o.LineLimit
	if line <= 0 {
		line = defaultLine
	}
	acc := o.Accumulator
	if acc == "" {
		acc = defaultAcc
	}
	overhead := len(statement(acc, ""))
	if room := line - overhead; frag > room {
		frag = room
	}
	return frag - frag%4, overhead
}

func statement(acc, frag string) string { return acc + ` += "` + frag + `";` }

// FragmentSize 返回有效片长。
func (c *Chunker) FragmentSize() int { return c.frag }

// Accumulator 返回拼接变量名。
func (c *Chunker) Accumulator() string { return c.acc }

// Chunk 编码并切片；空载荷得到零个片段。
func (c *Chunker) Chunk(ctx context.Context, payload []byte) (contract.Chunked, error) {
	select {
	case <-ctx.Done():
		return contract.Chunked{}, ctx.Err()
	default:
	}
	enc := b64.StdEncoding.EncodeToString(payload)
	out := contract.Chunked{Accumulator: c.acc, Encoded: enc}
	for i := 0; i < len(enc); i += c.frag {
		end := i + c.frag
		if end > len(enc) {
			end = len(enc)
		}
		f := enc[i:end]
		out.Fragments = append(out.Fragments, f)
		out.Statements = append(out.Statements, statement(c.acc, f))
	}
	return out, nil
}

var _ contract.Chunker = (*Chunker)(nil)
