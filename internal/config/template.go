package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 引擎与载荷为工作目录下的本地文件；
// - 组件名采用仓库内置实现；
// - 选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	warm := 5
	strict := true
	cfg := Config{
		Inputs:     Inputs{Engine: "jsnes.min.js", Payload: "game.nes"},
		Output:     "out/nes.pdf",
		Logging:    d.Logging,
		Components: d.Components,
		Bridge: Bridge{
			InputMode:    "toggle",
			FrameMS:      33,
			StartDelayMS: 350,
			WarmupFrames: &warm,
			StatusEvery:  5,
			PulseMS:      150,
			EngineNS:     "jsnes",
		},
		Layout:        Layout{Font: "courier"},
		StrictPayload: &strict,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "max_engine_bytes": 0,
  "max_payload_bytes": 0
}`)
	cfg.Options.Chunker = json.RawMessage(`{
  "fragment_size": 2048,
  "line_limit": 4096,
  "accumulator": "romBase64"
}`)
	// output_dir 为空：由 output 的父目录推导
	cfg.Options.Writer = json.RawMessage(`{
  "atomic": true,
  "no_clobber": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}

// Encode 按扩展名序列化配置：.yaml/.yml 输出 YAML，其余输出缩进 JSON。
func Encode(c Config, path string) ([]byte, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return yaml.Marshal(v)
	default:
		return append(b, '\n'), nil
	}
}
