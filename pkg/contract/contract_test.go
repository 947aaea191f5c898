package contract

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	wpath := filepath.Join("roms", "mario.nes")
	if got := NormalizeFileID(wpath); got != "roms/mario.nes" {
		t.Fatalf("基础测试 %s -> %s", wpath, got)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Windows路径", "C:\\games\\mario.nes", "C:/games/mario.nes"},
		{"清理多余斜杠", "engine//jsnes.min.js", "engine/jsnes.min.js"},
		{"清理当前目录", "./out/./nespdf.pdf", "out/nespdf.pdf"},
		{"处理父目录", "a/b/../c.nes", "a/c.nes"},
		{"空串", "", "."},
		{"混合分隔符", "roms\\nes/mario.nes", "roms/nes/mario.nes"},
		{"空格路径", "My Roms\\Super Mario.nes", "My Roms/Super Mario.nes"},
		{"Unix绝对路径", "/home/user/../roms/a.nes", "/home/roms/a.nes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFileID(tt.input); string(got) != tt.expected {
				t.Errorf("NormalizeFileID(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// BenchmarkNormalizeFileID 性能基准测试
func BenchmarkNormalizeFileID(b *testing.B) {
	paths := []string{
		"C:\\Users\\test\\roms\\mario.nes",
		"engine/../engine/jsnes.min.js",
		"out//to///many////slashes/nespdf.pdf",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, p := range paths {
			NormalizeFileID(p)
		}
	}
}

// TestSentinelsDistinct 各哨兵错误互不等价，且包装后仍可 errors.Is 识别。
func TestSentinelsDistinct(t *testing.T) {
	all := []error{
		ErrInputMissing, ErrPayloadInvalid, ErrIDCollision, ErrDanglingRef,
		ErrXrefInvalid, ErrPathInvalid, ErrInvariantViolation,
	}
	for i, a := range all {
		wrapped := fmt.Errorf("stage: %w", a)
		for j, b := range all {
			if got := errors.Is(wrapped, b); got != (i == j) {
				t.Fatalf("errors.Is(%v, %v) = %v", wrapped, b, got)
			}
		}
	}
}
