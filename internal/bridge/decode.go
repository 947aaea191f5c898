package bridge

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Alphabet 为 64 符号文本编码表（'=' 填充）。
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// TableDecoder 为自带符号表的解码器，与沙箱内程序逐步一致：
// 每 4 个符号一组，遇到首个非法符号即停止；'=' 表示该位置无输出。
type TableDecoder struct{}

func (TableDecoder) Name() string    { return "table" }
func (TableDecoder) Available() bool { return true }

func (TableDecoder) Decode(s string) (string, error) {
	at := func(i int) int {
		if i >= len(s) {
			return -1
		}
		return strings.IndexByte(Alphabet, s[i])
	}
	pad := func(i int) int {
		if i < len(s) && s[i] == '=' {
			return -1
		}
		return at(i)
	}
	out := make([]rune, 0, len(s)/4*3)
	for i := 0; i < len(s); i += 4 {
		n1, n2, n3, n4 := at(i), at(i+1), pad(i+2), pad(i+3)
		if n1 < 0 || n2 < 0 {
			break
		}
		out = append(out, rune(n1<<2|n2>>4))
		if n3 >= 0 {
			out = append(out, rune((n2&15)<<4|n3>>2))
		}
		if n4 >= 0 {
			out = append(out, rune((n3&3)<<6|n4))
		}
	}
	return string(out), nil
}

// NativeDecoder 模拟宿主自带的解码函数（严格按标准填充规则）。
type NativeDecoder struct {
	Label   string
	Present bool
}

func (d NativeDecoder) Name() string    { return d.Label }
func (d NativeDecoder) Available() bool { return d.Present }

func (d NativeDecoder) Decode(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return bytesToHost(b), nil
}

// FuncDecoder 把任意函数包装为解码候选（宿主工具函数）。
type FuncDecoder struct {
	Label string
	Fn    func(string) (string, error)
}

func (d FuncDecoder) Name() string    { return d.Label }
func (d FuncDecoder) Available() bool { return d.Fn != nil }

func (d FuncDecoder) Decode(s string) (string, error) { return d.Fn(s) }

// bytesToHost: 每字节一个字符。
func bytesToHost(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// normalize 把宿主字符串规整为字节：每个字符只保留低 8 位。
func normalize(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r&0xff))
	}
	return out
}

// decodeChain 依次尝试可用解码器；首个无错且非空的结果胜出。
func decodeChain(decs []Decoder, s string) ([]byte, string, error) {
	var errs []string
	for _, d := range available(decs) {
		out, err := d.Decode(s)
		if err != nil {
			errs = append(errs, d.Name()+": "+err.Error())
			continue
		}
		if out != "" {
			return normalize(out), d.Name(), nil
		}
	}
	if len(errs) > 0 {
		return nil, "", fmt.Errorf("%w: %s", ErrNoDecoder, strings.Join(errs, "; "))
	}
	return nil, "", ErrNoDecoder
}
