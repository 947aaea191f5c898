package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"nespdf/internal/bridge"
	"nespdf/internal/document"
	"nespdf/internal/layout"
	"nespdf/internal/pipeline"
	"nespdf/pkg/contract"
	"nespdf/pkg/registry"
)

// ErrInvalid: 配置非法（解析、校验或装配失败）。
var ErrInvalid = errors.New("config invalid")

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Inputs.Engine) == "" {
		return invalid("inputs.engine is empty")
	}
	if strings.TrimSpace(cfg.Inputs.Engine) == "-" {
		return invalid("inputs.engine cannot be '-' (only the payload may come from STDIN)")
	}
	if strings.TrimSpace(cfg.Inputs.Payload) == "" {
		return invalid("inputs.payload is empty")
	}
	out := strings.TrimSpace(cfg.Output)
	if out == "" {
		return invalid("output is empty")
	}
	if !strings.EqualFold(filepath.Ext(out), ".pdf") {
		return invalid("output %q must end with .pdf", out)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("logging.level %q", cfg.Logging.Level)
	}
	switch bridge.Mode(strings.ToLower(cfg.Bridge.InputMode)) {
	case "", bridge.ModeToggle, bridge.ModePulse:
	default:
		return invalid("bridge.input_mode %q (toggle|pulse)", cfg.Bridge.InputMode)
	}
	b := cfg.Bridge
	if b.FrameMS < 0 || b.StartDelayMS < 0 || b.StatusEvery < 0 || b.PulseMS < 0 {
		return invalid("bridge timings must be >= 0")
	}
	if b.WarmupFrames != nil && *b.WarmupFrames < 0 {
		return invalid("bridge.warmup_frames must be >= 0")
	}
	if _, err := fontOf(cfg); err != nil {
		return invalid("%v", err)
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return invalid("reader %q not registered (have %v)", name, registry.Names(registry.Reader))
	}
	if name := effName(cfg.Components.Chunker, d.Components.Chunker); registry.Chunker[name] == nil {
		return invalid("chunker %q not registered (have %v)", name, registry.Names(registry.Chunker))
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return invalid("writer %q not registered (have %v)", name, registry.Names(registry.Writer))
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// fs writer 未显式给出 output_dir 时，以 output 的父目录为根、文件名为产物标识。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	cn := effName(cfg.Components.Chunker, d.Components.Chunker)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, invalid("options.reader: %v", err)
	}
	c, err := registry.Chunker[cn](cfg.Options.Chunker)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, invalid("options.chunker: %v", err)
	}
	wopts, id, err := writerTarget(wn, cfg.Options.Writer, strings.TrimSpace(cfg.Output))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	w, err := registry.Writer[wn](wopts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, invalid("options.writer: %v", err)
	}

	font, _ := fontOf(cfg)
	set := pipeline.Settings{
		Inputs:        contract.InputPaths{Engine: strings.TrimSpace(cfg.Inputs.Engine), Payload: strings.TrimSpace(cfg.Inputs.Payload)},
		Output:        id,
		Layout:        layout.Default(),
		Font:          font,
		Bridge:        BridgeConfig(cfg.Bridge),
		EngineNS:      cfg.Bridge.EngineNS,
		StrictPayload: cfg.StrictPayload == nil || *cfg.StrictPayload,
	}
	return pipeline.Components{Reader: r, Chunker: c, Writer: w}, set, nil
}

// BridgeConfig 把配置中的桥接参数叠加到默认常量上。
func BridgeConfig(b Bridge) bridge.Config {
	c := bridge.DefaultConfig()
	if m := strings.ToLower(strings.TrimSpace(b.InputMode)); m != "" {
		c.Mode = bridge.Mode(m)
	}
	if b.FrameMS > 0 {
		c.Period = time.Duration(b.FrameMS) * time.Millisecond
	}
	if b.StartDelayMS > 0 {
		c.StartDelay = time.Duration(b.StartDelayMS) * time.Millisecond
	}
	if b.WarmupFrames != nil {
		c.Warmup = *b.WarmupFrames
	}
	if b.StatusEvery > 0 {
		c.StatusEvery = b.StatusEvery
	}
	if b.PulseMS > 0 {
		c.PulseHold = time.Duration(b.PulseMS) * time.Millisecond
	}
	return c
}

// writerTarget 计算 writer 选项与产物标识。
func writerTarget(name string, raw json.RawMessage, output string) (json.RawMessage, contract.ArtifactID, error) {
	if name != "fs" {
		return raw, contract.ArtifactID(output), nil
	}
	opts := map[string]json.RawMessage{}
	if len(raw) > 0 && strings.TrimSpace(string(raw)) != "null" {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, "", invalid("options.writer: %v", err)
		}
	}
	if dir, ok := opts["output_dir"]; ok && strings.Trim(string(dir), `" `) != "" {
		return raw, contract.ArtifactID(filepath.ToSlash(output)), nil
	}
	dir, err := json.Marshal(filepath.Dir(output))
	if err != nil {
		return nil, "", err
	}
	opts["output_dir"] = dir
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, "", err
	}
	return b, contract.ArtifactID(filepath.Base(output)), nil
}

func fontOf(cfg Config) (document.Font, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Layout.Font))
	if name == "" {
		name = Defaults().Layout.Font
	}
	return document.FontByName(name)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
