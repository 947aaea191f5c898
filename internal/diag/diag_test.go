package diag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"nespdf/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	n, err := w.Write([]byte("first line that is very long\n"))
	require.NoError(t, err)
	assert.Equal(t, 29, n)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2, "应存在轮转文件")
}

// 当前文件名与时间戳文件均存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("xxxxxxxxxxxxxxxxxx\n"))
		require.NoError(t, err)
	}
	_ = w.Close()
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == "nespdf-current.txt" {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "nespdf-") && strings.HasSuffix(e.Name(), ".txt") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	assert.True(t, hasCurrent, "current")
	assert.True(t, hasRotated, "rotated")
}

// 惰性创建：未写入时不落盘
func TestRotatingFileLazy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w := NewRotatingFile(dir, 0)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	_, err := os.Stat(dir)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

// f==nil 时 rotate 直接打开
func TestRotatingFileRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 1024)
	require.NoError(t, w.rotate())
	require.NotNil(t, w.f)
	_ = w.Close()
}

// UT-DIAG-02: 指标计数
func TestMetricsCounters(t *testing.T) {
	ResetMetrics()
	t.Cleanup(ResetMetrics)
	IncOp("assembler", "assemble", "success")
	IncOp("assembler", "assemble", "success")
	IncError("reader", "input")
	ObserveDuration("assembler", "assemble", 7)
	ObserveDuration("assembler", "assemble", 3)

	assert.EqualValues(t, 2, OpCount("assembler", "assemble", "success"))
	assert.EqualValues(t, 1, ErrorCount("reader", "input"))
	assert.Equal(t, []string{
		"error_total{reader,input}=1",
		"op_duration_ms{assembler,assemble}=10",
		"op_total{assembler,assemble,success}=2",
	}, Snapshot())

	ResetMetrics()
	assert.Empty(t, Snapshot())
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"cancel", context.Canceled, CodeCancel},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{"missing", fmt.Errorf("engine: %w", contract.ErrInputMissing), CodeInput},
		{"missing+path", fmt.Errorf("%w: %w", contract.ErrInputMissing, &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}), CodeInput},
		{"payload", contract.ErrPayloadInvalid, CodePayload},
		{"collision", contract.ErrIDCollision, CodeInvariant},
		{"dangling", contract.ErrDanglingRef, CodeInvariant},
		{"xref", contract.ErrXrefInvalid, CodeInvariant},
		{"path", &fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{"other", errors.New("other"), CodeUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Classify(c.err))
		})
	}
}

// Logger 事件字段稳定（observer 注入）
func TestLoggerEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerWithCore("corr", core)

	timer := l.StartWith("reader", "load", "rom.nes")
	timer.Finish("loaded", 40976)
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("writer", "io", "write failed", &start, "out.pdf", map[string]string{"path": "out.pdf"})
	l.Warn("script", "engine patch not applied", nil)
	l.DebugStart("layout", "plan", "", map[string]string{"rows": "120"})

	entries := logs.All()
	require.Len(t, entries, 5)

	first := entries[0].ContextMap()
	assert.Equal(t, "corr", first["corr_id"])
	assert.Equal(t, "reader", first["comp"])
	assert.Equal(t, "start", first["stage"])
	assert.Equal(t, "rom.nes", first["file_id"])

	fin := entries[1].ContextMap()
	assert.Equal(t, "finish", fin["stage"])
	assert.EqualValues(t, 40976, fin["count"])

	errEv := entries[2]
	assert.Equal(t, zapcore.ErrorLevel, errEv.Level)
	m := errEv.ContextMap()
	assert.Equal(t, "io", m["code"])
	assert.GreaterOrEqual(t, m["dur_ms"], int64(5))
	assert.Equal(t, map[string]interface{}{"path": "out.pdf"}, m["kv"])

	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[4].Level)
}

// 级别过滤：info 级别下 Debug 不输出
func TestLoggerLevelFilter(t *testing.T) {
	core, logs := observer.New(parseLevel("info"))
	l := NewLoggerWithCore("c", core)
	l.DebugStart("comp", "msg", "f", nil)
	l.InfoFinish("comp", "done", time.Now(), 1)
	assert.Equal(t, 1, logs.Len())

	assert.Equal(t, Warn, parseLevel("WARN"))
	assert.Equal(t, Error, parseLevel("error"))
	assert.Equal(t, Debug, parseLevel("debug"))
	assert.Equal(t, Info, parseLevel("bogus"))
}

// nil 接收者与空计时器安全
func TestLoggerNilSafe(t *testing.T) {
	var l *Logger
	l.Start("c", "m").Finish("x", 0)
	l.Error("c", "code", "m", nil)
	assert.NoError(t, l.Sync())
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
}

// 文件 sink 写入成功路径
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	require.NoError(t, l.Sync())
	b, err := os.ReadFile(filepath.Join(dir, "logs", "nespdf-current.txt"))
	require.NoError(t, err)
	line := strings.SplitN(string(b), "\n", 2)[0]
	assert.Contains(t, line, `"level":"info"`)
	assert.Contains(t, line, `"comp":"comp"`)
	assert.Contains(t, line, `"corr_id":"corr"`)
}

func TestNowUTC(t *testing.T) {
	s := NowUTC()
	_, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(s, "Z"))
}

// UT-DIAG-03: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	tm := NewTerminal(&sb, true)
	require.False(t, tm.isTTY)
	tm.RunStart("dist/nes.pdf")
	tm.StageStart("chunk")
	tm.StageFinish(true, "fragments=21")
	tm.StageStart("index")
	tm.StageFinish(true, "")
	tm.RunFinish(true, 1300*time.Millisecond)

	out := sb.String()
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, "[build] nes.pdf\n")
	assert.Contains(t, out, "[stage] chunk ok | ")
	assert.Contains(t, out, "| fragments=21\n")
	assert.Contains(t, out, "[ok] nes.pdf | 阶段 2 | 总用时 1.3s")
}

// UT-DIAG-04: 终端（TTY）阶段内覆盖与失败换行
func TestTerminalTTYInlineAndFail(t *testing.T) {
	var sb strings.Builder
	tm := NewTerminal(&sb, true)
	tm.isTTY = true
	tm.RunStart("out.pdf")
	tm.StageStart("assemble")
	assert.Contains(t, sb.String(), "\r[stage] assemble")
	tm.StageFinish(false, "dangling ref 999")

	final := sb.String()
	idx := strings.LastIndex(final, "[stage] assemble fail")
	require.GreaterOrEqual(t, idx, 0, final)
	// 失败行前应先清尾（回车 + 空格）
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	require.GreaterOrEqual(t, cr, 0)
	assert.Contains(t, seg[cr+1:], " ")
	assert.True(t, strings.HasSuffix(final, "\n"))
}

// UT-DIAG-05: 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	tm := NewTerminal(fw, true)
	tm.RunStart("x")
	assert.False(t, tm.enabled)
	// 后续调用为 no-op
	tm.StageStart("read")
	tm.StageFinish(true, "")
	tm.RunFinish(true, 0)
}

func TestTerminalInlineWriteError(t *testing.T) {
	tm := NewTerminal(&flakyWriter{fail: true}, true)
	tm.isTTY = true
	tm.StageStart("read")
	assert.False(t, tm.enabled)
}

func TestTerminalNilReceiverNoop(t *testing.T) {
	var tn *Terminal
	tn.RunStart("x")
	tn.StageStart("a")
	tn.StageFinish(true, "")
	tn.RunFinish(true, 0)
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	tm := NewTerminal(os.Stderr, true)
	assert.False(t, tm.isTTY)
}

// UT-DIAG-06: 工具函数
func TestHelpers(t *testing.T) {
	assert.Equal(t, 10, visLen(shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.pdf", 10)))
	assert.Equal(t, "", shortenBase("x", 0))
	assert.Equal(t, "", shortenBase("", 10))
	assert.Equal(t, "a b c", safe("a\nb\rc"))
	assert.Equal(t, "0ms", formatDur(0))
	assert.Equal(t, "1.5s", formatDur(1500*time.Millisecond))

	SetTerminal(nil)
	assert.Nil(t, GetTerminal())
	t1 := NewTerminal(os.Stderr, false)
	SetTerminal(t1)
	assert.Same(t, t1, GetTerminal())
	SetTerminal(nil)
}
