package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nespdf/pkg/contract"
)

func noTemps(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "tmp file not cleaned: %s", e.Name())
	}
}

// UT-WR-01: 原子写入并替换已存在目标
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "nes.pdf", bytes.NewBufferString("v1")))
	require.NoError(t, w.Write(context.Background(), "nes.pdf", bytes.NewBufferString("v2")))
	b, err := os.ReadFile(filepath.Join(dir, "nes.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	noTemps(t, dir)
}

// UT-WR-02: 路径越界与扩展名
func TestWritePathInvalid(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	bad := []string{"../bad.pdf", "..", ".", "", "out.txt"}
	if runtime.GOOS == "windows" {
		bad = append(bad, `C:\abs.pdf`)
	} else {
		bad = append(bad, "/abs.pdf")
	}
	for _, id := range bad {
		err := w.Write(context.Background(), contract.ArtifactID(id), bytes.NewBufferString("x"))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "id %q", id)
	}
	p, err := w.Path("sub/../nes.PDF")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nes.PDF"), p)
}

// 显式空扩展名表示不限制；非原子写入创建子目录
func TestWriteNonAtomicAnyExt(t *testing.T) {
	dir := t.TempDir()
	off := false
	w, err := New(&Options{OutputDir: dir, Atomic: &off, Exts: []string{}})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "sub/out.txt", bytes.NewBufferString("v")))
	b, err := os.ReadFile(filepath.Join(dir, "sub", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}

func TestNoClobber(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nes.pdf"), []byte("old"), 0o644))
	w, err := New(&Options{OutputDir: dir, NoClobber: true})
	require.NoError(t, err)
	err = w.Write(context.Background(), "nes.pdf", bytes.NewBufferString("new"))
	assert.ErrorIs(t, err, ErrExists)
	b, _ := os.ReadFile(filepath.Join(dir, "nes.pdf"))
	assert.Equal(t, "old", string(b))
}

func TestWriteCtxCancel(t *testing.T) {
	w, err := New(&Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "a.pdf", strings.NewReader("data")), context.Canceled)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, os.ErrInvalid)
	_, err = New(&Options{OutputDir: "  "})
	assert.ErrorIs(t, err, os.ErrInvalid)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// 拷贝失败：不留下目标与临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	assert.Error(t, w.Write(context.Background(), "a.pdf", errReader{}))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	_, err := r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
