package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs Inputs `json:"inputs"`
	// Output: 产物路径（.pdf）。
	Output  string  `json:"output"`
	Logging Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	Bridge Bridge `json:"bridge"`
	Layout Layout `json:"layout"`

	// StrictPayload: 构建期校验载荷签名；nil 表示未设置（默认 true）。
	StrictPayload *bool `json:"strict_payload,omitempty"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Inputs: 引擎脚本与载荷的本地路径。载荷可为 "-"（STDIN）。
type Inputs struct {
	Engine  string `json:"engine"`
	Payload string `json:"payload"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader  string `json:"reader"`
	Chunker string `json:"chunker"`
	Writer  string `json:"writer"`
}

// Bridge: 沙箱内桥接参数。0 表示使用默认值；WarmupFrames 的 0 有语义，故用指针。
type Bridge struct {
	InputMode    string `json:"input_mode"`
	FrameMS      int    `json:"frame_ms"`
	StartDelayMS int    `json:"start_delay_ms"`
	WarmupFrames *int   `json:"warmup_frames,omitempty"`
	StatusEvery  int    `json:"status_every"`
	PulseMS      int    `json:"pulse_ms"`
	// EngineNS: 引擎脚本导出的全局名（默认 jsnes）。
	EngineNS string `json:"engine_ns"`
}

// Layout: 表单版式选择。
type Layout struct {
	// Font: courier（默认，等宽）或 helvetica。
	Font string `json:"font"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader  json.RawMessage `json:"reader"`
	Chunker json.RawMessage `json:"chunker"`
	Writer  json.RawMessage `json:"writer"`
}
