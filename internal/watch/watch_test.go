package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startRun(t *testing.T, files []string, build BuildFunc, opts Options) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, files, build, opts) }()
	return cancel, done
}

func TestRebuildOnChangeDebounced(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "game.nes")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(rom, []byte("v0"), 0o644))

	var builds atomic.Int32
	var results atomic.Int32
	cancel, done := startRun(t, []string{rom, "-"}, func(ctx context.Context) error {
		builds.Add(1)
		return nil
	}, Options{Debounce: 100 * time.Millisecond, OnResult: func(error) { results.Add(1) }})

	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// 无关文件不触发
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	// 连续写入合并为一次
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(rom, []byte{byte(i)}, 0o644))
	}
	require.Eventually(t, func() bool { return builds.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(2), builds.Load())
	assert.Equal(t, int32(2), results.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBuildErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	eng := filepath.Join(dir, "engine.js")
	require.NoError(t, os.WriteFile(eng, []byte("var a;"), 0o644))

	var builds atomic.Int32
	cancel, done := startRun(t, []string{eng}, func(ctx context.Context) error {
		builds.Add(1)
		return errors.New("broken")
	}, Options{Debounce: 50 * time.Millisecond})
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return builds.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(eng, []byte("var b;"), 0o644))
	require.Eventually(t, func() bool { return builds.Load() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestNoFiles(t *testing.T) {
	err := Run(context.Background(), []string{"-", ""}, func(context.Context) error { return nil }, Options{})
	assert.Error(t, err)
}
