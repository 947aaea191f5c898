package script

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nespdf/internal/bridge"
	"nespdf/internal/layout"
	"nespdf/pkg/contract"
	cb64 "nespdf/plugins/chunker/base64"
)

// 宿主桩：按名创建字段（可注入写失败），记录写入次数。
const fieldsPrelude = `
var failing = {}, fieldWrites = 0, fields = {}, alerts = [];
function mkField(name) {
  var v = "", f = {};
  Object.defineProperty(f, "value", {
    get: function () { return v; },
    set: function (x) { if (failing[name]) throw new Error("locked"); v = String(x); fieldWrites++; },
    enumerable: true
  });
  return f;
}
function getField(name) { if (!fields[name]) fields[name] = mkField(name); return fields[name]; }
function val(name) { return fields[name] ? fields[name].value : null; }
`

const ambientTimers = `
var intervals = [], timeouts = [];
function setInterval(fn, ms) { intervals.push({ fn: fn, ms: ms }); return intervals.length; }
function setTimeout(fn, ms) { timeouts.push({ fn: fn, ms: ms }); return timeouts.length; }
`

const appTimers = `
var appIntervals = [], appTimeouts = [];
var app = {
  setInterval: function (code, ms) { appIntervals.push({ code: code, ms: ms }); return {}; },
  setTimeout: function (code, ms) { appTimeouts.push({ code: code, ms: ms }); return {}; },
  alert: function (m) { alerts.push(String(m)); }
};
`

// 引擎桩：帧为单色，颜色由 shade 决定；记录输入事件。
func fakeEngine(fbLen int) string {
	return fmt.Sprintf(`
var jsnes = { Controller: { BUTTON_A: 0, BUTTON_B: 1, BUTTON_SELECT: 2, BUTTON_START: 3, BUTTON_UP: 4, BUTTON_DOWN: 5, BUTTON_LEFT: 6, BUTTON_RIGHT: 7 }, last: null, events: [], badROM: false };
jsnes.NES = function (opts) { this.opts = opts; this.rom = null; this.shade = 0; this.frames = 0; jsnes.last = this; };
jsnes.NES.prototype.loadROM = function (s) { if (jsnes.badROM) throw new Error("bad rom"); this.rom = s; };
jsnes.NES.prototype.frame = function () {
  var fb = [];
  for (var i = 0; i < %d; i++) fb.push(this.shade);
  this.frames++;
  this.opts.onFrame(fb);
};
jsnes.NES.prototype.buttonDown = function (p, b) { jsnes.events.push("down:" + b); };
jsnes.NES.prototype.buttonUp = function (p, b) { jsnes.events.push("up:" + b); };
`, fbLen)
}

func smallConfig() bridge.Config {
	c := bridge.DefaultConfig()
	c.Rows, c.Cols, c.SrcWidth, c.SrcHeight = 12, 16, 32, 24
	c.Buttons = map[string]string{"btn_Up": layout.ChanUp, "btn_A": layout.ChanA}
	return c
}

func romBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, "NES\x1a")
	for i := 4; i < n; i++ {
		b[i] = byte(i * 37)
	}
	return b
}

func hostString(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

func chunk(t *testing.T, payload []byte) contract.Chunked {
	t.Helper()
	c, err := cb64.New(&cb64.Options{FragmentSize: 8})
	require.NoError(t, err)
	out, err := c.Chunk(context.Background(), payload)
	require.NoError(t, err)
	return out
}

type rig struct {
	t   *testing.T
	vm  *goja.Runtime
	cfg bridge.Config
}

func (r rig) run(src string) goja.Value {
	r.t.Helper()
	v, err := r.vm.RunString(src)
	require.NoError(r.t, err, src)
	return v
}

func (r rig) str(src string) string { return r.run(src).String() }
func (r rig) num(src string) int64  { return r.run(src).ToInteger() }

// boot 渲染并执行主程序。preludes 决定宿主具备哪些能力。
func boot(t *testing.T, cfg bridge.Config, payload []byte, preludes ...string) (rig, Program) {
	t.Helper()
	prog, err := Render(cfg, fakeEngine(cfg.SrcWidth*cfg.SrcHeight), chunk(t, payload), "")
	require.NoError(t, err)
	r := rig{t: t, vm: goja.New(), cfg: cfg}
	r.run(fieldsPrelude)
	for _, p := range preludes {
		r.run(p)
	}
	r.run(prog.Main)
	return r, prog
}

func TestBootDrawsPatternWithoutTimers(t *testing.T) {
	cfg := smallConfig()
	r, _ := boot(t, cfg, romBytes(32))

	pattern := cfg.TestPattern()
	for i := range pattern {
		assert.Equal(t, pattern[i], r.str(fmt.Sprintf("val(%q)", cfg.CellPrefix+fmt.Sprint(i))), "row %d", i)
	}
	assert.Equal(t, "engine ok", r.str(`val("debug_0")`))
	assert.Equal(t, "test drawn", r.str(`val("debug_4")`))
	// 无一次性定时器时立即激活；无周期定时器时报告且不再重试
	assert.Equal(t, "no timer", r.str(`val("debug_1")`))
	assert.Equal(t, "idle", r.str(`nespdf.state()`))
	r.run(`nespdf.press("btn_Run")`)
	assert.Equal(t, "run clicked", r.str(`val("debug_1")`))
	assert.Zero(t, r.num(`jsnes.last.frames`))
}

func TestDecodeRoundTripAndActivation(t *testing.T) {
	cfg := smallConfig()
	payload := romBytes(301)
	r, _ := boot(t, cfg, payload, ambientTimers)

	assert.Equal(t, int64(350), r.num(`timeouts[0].ms`))
	assert.Equal(t, "idle", r.str(`nespdf.state()`))
	r.run(`timeouts[0].fn()`)

	assert.Equal(t, "running", r.str(`nespdf.state()`))
	assert.Equal(t, "setInterval", r.str(`nespdf.scheduler()`))
	assert.Equal(t, "timer setInterval", r.str(`val("debug_1")`))
	assert.Equal(t, int64(33), r.num(`intervals[0].ms`))
	assert.Equal(t, int64(5), r.num(`jsnes.last.frames`))
	assert.Equal(t, "frames:5", r.str(`val("debug_2")`))

	// 沙箱内解码结果与 Go 侧解码器逐字节一致
	rom := r.str(`jsnes.last.rom`)
	assert.Equal(t, hostString(payload), rom)
	enc := chunk(t, payload).Encoded
	goSide, err := bridge.TableDecoder{}.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, goSide, rom)

	r.run(`intervals[0].fn()`)
	assert.Equal(t, int64(6), r.num(`jsnes.last.frames`))
}

// 桥接自身的解码例程：含截断尾组的短长度
func TestSandboxDecodeShortLengths(t *testing.T) {
	cfg := smallConfig()
	r, _ := boot(t, cfg, romBytes(32), ambientTimers)
	for _, n := range []int{0, 1, 2, 3} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(0xfe - i*71)
		}
		enc := chunk(t, b).Encoded
		got := r.str(fmt.Sprintf("nespdf.decode(%q)", enc))
		assert.Equal(t, hostString(b), got, "len %d (%q)", n, enc)
	}
}

func TestMagicCheck(t *testing.T) {
	cfg := smallConfig()
	bad := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	r, _ := boot(t, cfg, bad, ambientTimers)

	assert.Equal(t, "invalid", r.str(`nespdf.state()`))
	assert.Equal(t, "rom bad len=20 h=1,2,3,4", r.str(`val("debug_4")`))
	assert.True(t, r.run(`jsnes.last === null`).ToBoolean(), "引擎不应被构造")
	r.run(`nespdf.press("btn_Run")`)
	assert.Equal(t, "rom invalid", r.str(`val("debug_1")`))

	short, _ := boot(t, cfg, []byte("NES\x1a"), ambientTimers)
	assert.Equal(t, "rom bad len=4 h=78,69,83,26", short.str(`val("debug_4")`))
}

func TestToggleInput(t *testing.T) {
	cfg := smallConfig()
	r, _ := boot(t, cfg, romBytes(32), ambientTimers)
	r.run(`timeouts[0].fn()`)

	r.run(`nespdf.press("btn_Up")`)
	assert.True(t, r.run(`nespdf.held("BUTTON_UP")`).ToBoolean())
	assert.Equal(t, "btn_Up", r.str(`val("debug_3")`))
	r.run(`nespdf.press("btn_Up")`)
	assert.False(t, r.run(`nespdf.held("BUTTON_UP")`).ToBoolean())
	r.run(`nespdf.press("btn_A"); nespdf.press("btn_Nope")`)
	assert.Equal(t, "down:4,up:4,down:0", r.str(`jsnes.events.join(",")`))
}

func TestPulseInput(t *testing.T) {
	cfg := smallConfig()
	cfg.Mode = bridge.ModePulse
	r, _ := boot(t, cfg, romBytes(32), ambientTimers)
	r.run(`timeouts[0].fn()`)

	r.run(`nespdf.press("btn_A")`)
	assert.Equal(t, "down:0", r.str(`jsnes.events.join(",")`))
	assert.Equal(t, int64(150), r.num(`timeouts[1].ms`))
	r.run(`timeouts[1].fn()`)
	assert.Equal(t, "down:0,up:0", r.str(`jsnes.events.join(",")`))
	assert.False(t, r.run(`nespdf.held("BUTTON_A")`).ToBoolean())
}

func TestWriteOnChange(t *testing.T) {
	cfg := smallConfig()
	r, _ := boot(t, cfg, romBytes(32), ambientTimers)
	rows := int64(cfg.Rows)
	// 测试图案写满全部行
	assert.Equal(t, rows, r.num(`nespdf.writes()`))

	r.run(`timeouts[0].fn()`)
	// 预热首帧（全黑）重写除边框外的全部行，其余帧无变化
	base := 2*rows - 2
	assert.Equal(t, base, r.num(`nespdf.writes()`))
	frame := make([]uint32, cfg.SrcWidth*cfg.SrcHeight)
	want := cfg.Downsample(frame)
	for i := range want {
		assert.Equal(t, want[i], r.str(fmt.Sprintf(`val("field_%d")`, i)))
	}

	r.run(`intervals[0].fn()`)
	assert.Equal(t, base, r.num(`nespdf.writes()`))

	// 写失败的行不进入缓存，下一帧重试
	r.run(`failing["field_3"] = true; jsnes.last.shade = 0xffffff; intervals[0].fn()`)
	assert.Equal(t, base+rows-1, r.num(`nespdf.writes()`))
	r.run(`failing["field_3"] = false; intervals[0].fn()`)
	assert.Equal(t, base+rows, r.num(`nespdf.writes()`))
	assert.Equal(t, strings.Repeat("_", cfg.Cols), r.str(`val("field_3")`))
}

func TestHostTimers(t *testing.T) {
	cfg := smallConfig()
	r, _ := boot(t, cfg, romBytes(32), appTimers)

	code := r.str(`appTimeouts[0].code`)
	assert.Equal(t, "app.nespdf.fire(1)", code)
	r.run(code)
	assert.Equal(t, "app.setInterval", r.str(`nespdf.scheduler()`))
	tick := r.str(`appIntervals[0].code`)
	assert.Equal(t, "app.nespdf.tick()", tick)
	r.run(tick)
	assert.Equal(t, int64(6), r.num(`jsnes.last.frames`))
}

func TestRearmScheduler(t *testing.T) {
	cfg := smallConfig()
	hostOneShot := `var appTimeouts = []; var app = { setTimeout: function (code, ms) { appTimeouts.push(code); } };`
	r, _ := boot(t, cfg, romBytes(32), hostOneShot)

	r.run(`app.nespdf.fire(1)`)
	assert.Equal(t, "app.setTimeout/rearm", r.str(`nespdf.scheduler()`))
	assert.Equal(t, "app.nespdf.rearm()", r.str(`appTimeouts[1]`))
	r.run(`app.nespdf.rearm()`)
	assert.Equal(t, int64(6), r.num(`jsnes.last.frames`))
	assert.Equal(t, int64(3), r.num(`appTimeouts.length`))

	// 重新注册抛错：本帧照常推进，循环停止并报告
	r.run(`app.setTimeout = function () { throw new Error("quota"); }`)
	r.run(`app.nespdf.rearm()`)
	assert.Equal(t, int64(7), r.num(`jsnes.last.frames`))
	assert.Equal(t, "timer stopped", r.str(`val("debug_1")`))
}

func TestDoubleInitGuard(t *testing.T) {
	cfg := smallConfig()
	r, prog := boot(t, cfg, romBytes(32), ambientTimers)
	r.run(`var first = nespdf; var firstEngine = jsnes.last;`)
	r.run(prog.Main)
	assert.True(t, r.run(`nespdf === first`).ToBoolean())
	assert.Equal(t, int64(1), r.num(`timeouts.length`))
}

// 同一查看器中关闭后重新打开：app 仍挂着旧会话，新文档必须重新初始化
func TestReopenInSameViewer(t *testing.T) {
	cfg := smallConfig()
	r, prog := boot(t, cfg, romBytes(32), appTimers)
	r.run(`var first = app.nespdf;`)
	assert.Equal(t, "engine ok", r.str(`val("debug_0")`))

	r.run(`fields = {}; delete globalThis.nespdf;`)
	r.run(prog.Main)
	pattern := cfg.TestPattern()
	assert.Equal(t, pattern[1], r.str(`val("field_1")`))
	assert.Equal(t, "engine ok", r.str(`val("debug_0")`))
	assert.True(t, r.run(`app.nespdf === nespdf && app.nespdf !== first`).ToBoolean())

	r.run(prog.Buttons["btn_Run"])
	assert.Equal(t, "running", r.str(`nespdf.state()`))
	assert.Equal(t, "idle", r.str(`first.state()`))
}

func TestFatalAlert(t *testing.T) {
	cfg := smallConfig()
	ch := contract.Chunked{Accumulator: "acc", Statements: []string{`acc += missingThing;`}}
	prog, err := Render(cfg, fakeEngine(4), ch, "")
	require.NoError(t, err)
	r := rig{t: t, vm: goja.New(), cfg: cfg}
	r.run(fieldsPrelude)
	r.run(appTimers)
	r.run(prog.Main)
	assert.Equal(t, int64(1), r.num(`alerts.length`))
	assert.Contains(t, r.str(`alerts[0]`), "Error: ")
}

func TestButtonScripts(t *testing.T) {
	cfg := smallConfig()
	r, prog := boot(t, cfg, romBytes(32), ambientTimers)
	assert.Equal(t, []string{"btn_A", "btn_Run", "btn_Up"}, prog.ButtonNames())

	r.run(prog.Buttons["btn_Run"])
	assert.Equal(t, "running", r.str(`nespdf.state()`))
	r.run(prog.Buttons["btn_Up"])
	assert.True(t, r.run(`nespdf.held("BUTTON_UP")`).ToBoolean())

	// 未安装桥接时按钮脚本为空操作
	_, err := goja.New().RunString(ButtonScript("btn_A"))
	assert.NoError(t, err)
}

func TestPatchEngine(t *testing.T) {
	src := `a.indexOf("NES` + "\x1a" + `")==0; b.indexOf("NES` + "\x1a" + `")`
	out, ok := PatchEngine(src, "NES\x1a")
	require.True(t, ok)
	want := `a.indexOf(String.fromCharCode(78,69,83,26))==0; b.indexOf("NES` + "\x1a" + `")`
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("patch mismatch (-want +got):\n%s", diff)
	}
	same, ok := PatchEngine("var x = 1;", "NES\x1a")
	assert.False(t, ok)
	assert.Equal(t, "var x = 1;", same)
}

func TestRenderRejects(t *testing.T) {
	cfg := smallConfig()
	good := contract.Chunked{Accumulator: "acc"}
	_, err := Render(cfg, "", good, "1bad")
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	_, err = Render(cfg, "", contract.Chunked{Accumulator: "a-b"}, "")
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	_, err = Render(cfg, "", contract.Chunked{Accumulator: "acc", Statements: []string{"acc += \"x\";\nboom"}}, "")
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	cfg.Rows = 0
	_, err = Render(cfg, "", good, "")
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
}

func TestMainStartsWithPatchedEngine(t *testing.T) {
	cfg := smallConfig()
	engine := `var jsnes = {}; x.indexOf("NES` + "\x1a" + `");`
	prog, err := Render(cfg, engine, chunk(t, romBytes(16)), "")
	require.NoError(t, err)
	assert.True(t, prog.Patched)
	assert.True(t, strings.HasPrefix(prog.Main, `var jsnes = {}; x.indexOf(String.fromCharCode(78,69,83,26));`+"\n"))
	assert.NotContains(t, prog.Main, "\x1a")
	for _, line := range strings.Split(prog.Main, "\n") {
		assert.NotEqual(t, "endstream", strings.TrimSpace(line))
	}
}
