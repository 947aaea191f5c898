package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "NESPDF_"

// DiscoverNames: 未显式指定配置文件时，工作目录下按序查找的文件名。
var DiscoverNames = []string{"nespdf.json", "nespdf.yaml", "nespdf.yml"}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：载荷路径不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Inputs:     Inputs{Engine: "jsnes.min.js"},
		Output:     "nes.pdf",
		Logging:    Logging{Level: "info"},
		Components: Components{Reader: "fs", Chunker: "base64", Writer: "fs"},
		Bridge:     Bridge{InputMode: "toggle"},
		Layout:     Layout{Font: "courier"},
	}
}

// Discover 返回 dir 下首个存在的默认配置文件；没有则返回空串。
func Discover(dir string) string {
	for _, n := range DiscoverNames {
		p := filepath.Join(dir, n)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	default:
		return LoadJSON("", raw)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// LoadYAML 先把 YAML 转为等价 JSON，再走同一严格解码（未知键同样失败）。
func LoadYAML(raw []byte) (Config, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return Config{}, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	if v == nil {
		return Config{}, nil
	}
	j, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	return LoadJSON("", j)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.Inputs.Engine); s != "" {
		out.Inputs.Engine = s
	}
	if s := strings.TrimSpace(over.Inputs.Payload); s != "" {
		out.Inputs.Payload = s
	}
	if s := strings.TrimSpace(over.Output); s != "" {
		out.Output = s
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Chunker != "" {
		out.Components.Chunker = over.Components.Chunker
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// 桥接参数（0 不覆盖；WarmupFrames 以 nil 表示未覆盖）
	if s := strings.TrimSpace(over.Bridge.InputMode); s != "" {
		out.Bridge.InputMode = s
	}
	if over.Bridge.FrameMS != 0 {
		out.Bridge.FrameMS = over.Bridge.FrameMS
	}
	if over.Bridge.StartDelayMS != 0 {
		out.Bridge.StartDelayMS = over.Bridge.StartDelayMS
	}
	if over.Bridge.WarmupFrames != nil {
		v := *over.Bridge.WarmupFrames
		out.Bridge.WarmupFrames = &v
	}
	if over.Bridge.StatusEvery != 0 {
		out.Bridge.StatusEvery = over.Bridge.StatusEvery
	}
	if over.Bridge.PulseMS != 0 {
		out.Bridge.PulseMS = over.Bridge.PulseMS
	}
	if s := strings.TrimSpace(over.Bridge.EngineNS); s != "" {
		out.Bridge.EngineNS = s
	}
	if s := strings.TrimSpace(over.Layout.Font); s != "" {
		out.Layout.Font = s
	}
	if over.StrictPayload != nil {
		v := *over.StrictPayload
		out.StrictPayload = &v
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Chunker) > 0 {
		out.Options.Chunker = cloneRaw(over.Options.Chunker)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 NESPDF_；集合之外的键忽略；数值/布尔无法解析时报错。
// 支持：ENGINE, PAYLOAD, OUTPUT, LOG_LEVEL, INPUT_MODE, FRAME_MS, START_DELAY_MS, WARMUP_FRAMES,
// STATUS_EVERY, PULSE_MS, ENGINE_NS, FONT, STRICT_PAYLOAD, COMPONENTS_*, OPTIONS_*_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	var errs []error
	num := func(key, val string, dst *int) {
		v, err := atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = v
	}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		if strings.TrimSpace(val) == "" {
			// 空值视为未设置
			continue
		}
		switch nk {
		case "ENGINE":
			over.Inputs.Engine = strings.TrimSpace(val)
		case "PAYLOAD":
			over.Inputs.Payload = strings.TrimSpace(val)
		case "OUTPUT":
			over.Output = strings.TrimSpace(val)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "INPUT_MODE":
			over.Bridge.InputMode = strings.TrimSpace(val)
		case "FRAME_MS":
			num(nk, val, &over.Bridge.FrameMS)
		case "START_DELAY_MS":
			num(nk, val, &over.Bridge.StartDelayMS)
		case "WARMUP_FRAMES":
			var v int
			num(nk, val, &v)
			over.Bridge.WarmupFrames = &v
		case "STATUS_EVERY":
			num(nk, val, &over.Bridge.StatusEvery)
		case "PULSE_MS":
			num(nk, val, &over.Bridge.PulseMS)
		case "ENGINE_NS":
			over.Bridge.EngineNS = strings.TrimSpace(val)
		case "FONT":
			over.Layout.Font = strings.TrimSpace(val)
		case "STRICT_PAYLOAD":
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, nk, err))
				continue
			}
			over.StrictPayload = &b
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_CHUNKER":
			over.Components.Chunker = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_CHUNKER_JSON":
			over.Options.Chunker = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		default:
			// 非本集合的键忽略（例如 NESPDF_CONFIG_FILE 由 CLI 处理）。
		}
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return over, nil
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func atoi(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }
