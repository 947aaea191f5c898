// Package script 渲染嵌入文档的沙箱内程序：主程序（引擎 + 载荷语句 + 桥接）与按钮脚本。
// 程序常量全部来自 bridge.Config，与 Go 侧模型共用同一来源。
package script

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"nespdf/internal/bridge"
	"nespdf/pkg/contract"
)

//go:embed bridge.js.tmpl
var bridgeSrc string

var bridgeTmpl = template.Must(template.New("bridge").Parse(bridgeSrc))

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// DefaultEngineNS 为引擎脚本导出的全局命名空间。
const DefaultEngineNS = "jsnes"

// Program 为渲染结果。
type Program struct {
	// Main: 引擎脚本 + 换行 + 桥接程序（含载荷语句）。
	Main string
	// Buttons: 按钮名 → 激活脚本。
	Buttons map[string]string
	// Patched: 引擎中的签名字面量是否被替换。
	Patched bool
}

// params 为模板参数；字符串均已是 JS 字面量。
type params struct {
	Acc, Statements                 string
	Rows, Cols, SrcWidth, Block     int
	Ramp, Thresholds, MagicCodes    string
	MinPayload                      int
	PeriodMS, StartDelayMS, PulseMS int64
	Warmup, StatusEvery, DiagSlots  int
	CellPrefix, DiagPrefix, Mode    string
	RunButton, Buttons, Banner      string
	EngineNS, EngineName            string
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Render 渲染主程序与全部按钮脚本。engineNS 为空时使用 DefaultEngineNS。
func Render(cfg bridge.Config, engine string, ch contract.Chunked, engineNS string) (Program, error) {
	if err := cfg.Validate(); err != nil {
		return Program{}, err
	}
	if engineNS == "" {
		engineNS = DefaultEngineNS
	}
	if !identRe.MatchString(engineNS) {
		return Program{}, fmt.Errorf("%w: engine namespace %q is not an identifier", contract.ErrInvariantViolation, engineNS)
	}
	if !identRe.MatchString(ch.Accumulator) {
		return Program{}, fmt.Errorf("%w: accumulator %q is not an identifier", contract.ErrInvariantViolation, ch.Accumulator)
	}
	for _, st := range ch.Statements {
		if strings.ContainsAny(st, "\r\n") {
			return Program{}, fmt.Errorf("%w: multi-line payload statement", contract.ErrInvariantViolation)
		}
	}
	body, err := renderBridge(cfg, ch, engineNS)
	if err != nil {
		return Program{}, err
	}
	patched, ok := PatchEngine(engine, cfg.Magic)
	p := Program{Main: patched + "\n" + body, Buttons: map[string]string{}, Patched: ok}
	p.Buttons[cfg.RunButton] = ButtonScript(cfg.RunButton)
	for name := range cfg.Buttons {
		p.Buttons[name] = ButtonScript(name)
	}
	return p, nil
}

func renderBridge(cfg bridge.Config, ch contract.Chunked, engineNS string) (string, error) {
	th := make([]string, len(cfg.Thresholds))
	for i, v := range cfg.Thresholds {
		th[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	codes := make([]string, len(cfg.Magic))
	for i := 0; i < len(cfg.Magic); i++ {
		codes[i] = strconv.Itoa(int(cfg.Magic[i]))
	}
	buttons, err := json.Marshal(cfg.Buttons)
	if err != nil {
		return "", err
	}
	p := params{
		Acc:          ch.Accumulator,
		Statements:   strings.Join(ch.Statements, "\n"),
		Rows:         cfg.Rows,
		Cols:         cfg.Cols,
		SrcWidth:     cfg.SrcWidth,
		Block:        cfg.Block,
		Ramp:         quote(cfg.Ramp),
		Thresholds:   "[" + strings.Join(th, ", ") + "]",
		MagicCodes:   strings.Join(codes, ","),
		MinPayload:   cfg.MinPayload,
		PeriodMS:     cfg.Period.Milliseconds(),
		StartDelayMS: cfg.StartDelay.Milliseconds(),
		PulseMS:      cfg.PulseHold.Milliseconds(),
		Warmup:       cfg.Warmup,
		StatusEvery:  cfg.StatusEvery,
		DiagSlots:    cfg.DiagSlots,
		CellPrefix:   quote(cfg.CellPrefix),
		DiagPrefix:   quote(cfg.DiagPrefix),
		Mode:         quote(string(cfg.Mode)),
		RunButton:    quote(cfg.RunButton),
		Buttons:      string(buttons),
		Banner:       quote(bridge.BannerTitle),
		EngineNS:     engineNS,
		EngineName:   quote(engineNS),
	}
	var buf bytes.Buffer
	if err := bridgeTmpl.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ButtonScript 返回按钮激活脚本：优先本文档安装的桥接对象，其次全局与 app 上的绑定；
// 桥接未安装时为空操作。
func ButtonScript(name string) string {
	return `try { var S=(this&&this.nespdf)||(typeof globalThis!=="undefined"&&globalThis.nespdf)||(typeof app!=="undefined"&&app.nespdf)||null; if(S) S.press(` +
		quote(name) + `); } catch (e) {}`
}

// PatchEngine 把引擎中首个 `.indexOf("<magic>")` 字面量改为运行时构造，返回是否替换。
// 未找到字面量不是错误。
func PatchEngine(engine, magic string) (string, bool) {
	literal := `.indexOf("` + magic + `")`
	if !strings.Contains(engine, literal) {
		return engine, false
	}
	codes := make([]string, len(magic))
	for i := 0; i < len(magic); i++ {
		codes[i] = strconv.Itoa(int(magic[i]))
	}
	runtime := `.indexOf(String.fromCharCode(` + strings.Join(codes, ",") + `))`
	return strings.Replace(engine, literal, runtime, 1), true
}

// ButtonNames 返回程序中全部按钮名（排序）。
func (p Program) ButtonNames() []string {
	out := make([]string, 0, len(p.Buttons))
	for k := range p.Buttons {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
