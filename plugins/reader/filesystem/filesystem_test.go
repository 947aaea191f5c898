package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nespdf/pkg/contract"
)

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	eng := filepath.Join(dir, "jsnes.min.js")
	rom := filepath.Join(dir, "game.nes")
	require.NoError(t, os.WriteFile(eng, []byte("var jsnes = {};"), 0o644))
	require.NoError(t, os.WriteFile(rom, append([]byte("NES\x1a"), 0, 1, 2, 0xff), 0o644))
	return eng, rom
}

// UT-RD-01: 读取引擎与载荷
func TestLoad(t *testing.T) {
	eng, rom := writeInputs(t)
	in, err := New(nil).Load(context.Background(), contract.InputPaths{Engine: eng, Payload: rom})
	require.NoError(t, err)
	assert.Equal(t, "var jsnes = {};", in.Engine)
	assert.Equal(t, []byte("NES\x1a\x00\x01\x02\xff"), in.Payload)
	assert.Equal(t, contract.NormalizeFileID(eng), in.EngineID)
	assert.Equal(t, contract.NormalizeFileID(rom), in.PayloadID)
}

// UT-RD-02: 缺失输入返回 ErrInputMissing，且保留底层 fs.ErrNotExist
func TestLoadMissing(t *testing.T) {
	eng, rom := writeInputs(t)
	r := New(nil)

	_, err := r.Load(context.Background(), contract.InputPaths{Engine: eng + ".nope", Payload: rom})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrInputMissing))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "engine")

	_, err = r.Load(context.Background(), contract.InputPaths{Engine: eng, Payload: filepath.Join(filepath.Dir(rom), "missing.nes")})
	assert.ErrorIs(t, err, contract.ErrInputMissing)
	assert.Contains(t, err.Error(), "missing.nes")

	_, err = r.Load(context.Background(), contract.InputPaths{Engine: "", Payload: rom})
	assert.ErrorIs(t, err, contract.ErrInputMissing)

	_, err = r.Load(context.Background(), contract.InputPaths{Engine: "-", Payload: rom})
	assert.ErrorIs(t, err, contract.ErrInputMissing)
}

// 目录不是常规文件
func TestLoadDirectory(t *testing.T) {
	eng, _ := writeInputs(t)
	_, err := New(nil).Load(context.Background(), contract.InputPaths{Engine: eng, Payload: t.TempDir()})
	assert.ErrorIs(t, err, contract.ErrInputMissing)
}

// 超过大小上限
func TestLoadTooLarge(t *testing.T) {
	eng, rom := writeInputs(t)
	_, err := New(&Options{MaxPayloadBytes: 4}).Load(context.Background(), contract.InputPaths{Engine: eng, Payload: rom})
	require.Error(t, err)
	assert.False(t, errors.Is(err, contract.ErrInputMissing))
}

// 引擎文本非法 UTF-8 被替换
func TestLoadInvalidUTF8(t *testing.T) {
	eng, rom := writeInputs(t)
	require.NoError(t, os.WriteFile(eng, []byte("a\xffb"), 0o644))
	in, err := New(&Options{BufSize: 16}).Load(context.Background(), contract.InputPaths{Engine: eng, Payload: rom})
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", in.Engine)
}

func TestLoadCanceled(t *testing.T) {
	eng, rom := writeInputs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Load(ctx, contract.InputPaths{Engine: eng, Payload: rom})
	assert.ErrorIs(t, err, context.Canceled)
}
