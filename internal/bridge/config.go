// Package bridge 是查看器沙箱内显示/输入桥的 Go 参考模型。
//
// 沙箱内程序（见 internal/script）与本模型共享同一组常量；终端预览直接驱动本模型。
// 宿主能力（字段查找、定时器、解码器）均以排序后的候选提供者表示，初始化时探测一次并绑定首个可用者。
// 所有可能失败的操作返回 error，由调用方写入诊断通道后继续，不中断单线程协作循环。
package bridge

import (
	"fmt"
	"time"

	"nespdf/internal/layout"
	"nespdf/pkg/contract"
)

// Mode 为输入模型。
type Mode string

const (
	// ModeToggle: 单击按下并保持，再次单击释放。
	ModeToggle Mode = "toggle"
	// ModePulse: 单击按下，一次性定时器在 PulseHold 后释放。
	ModePulse Mode = "pulse"
)

// 诊断字段槽位。
const (
	DiagStatus  = 0 // 主程序状态
	DiagRun     = 1 // 运行/载荷加载
	DiagFrames  = 2 // 帧计数
	DiagInput   = 3 // 最近一次按钮
	DiagPayload = 4 // 载荷校验与测试图案
)

// Config 为桥接常量的唯一来源。
type Config struct {
	Rows, Cols int
	// 源帧分辨率与下采样块边长（每个字符覆盖 Block×Block 像素）。
	SrcWidth, SrcHeight, Block int

	// Ramp 由亮到暗；Thresholds 严格递减，len(Ramp) == len(Thresholds)+1。
	Ramp       string
	Thresholds []float64

	Magic      string
	MinPayload int

	Period      time.Duration
	StartDelay  time.Duration
	Warmup      int
	StatusEvery int

	CellPrefix string
	DiagPrefix string
	DiagSlots  int

	Mode      Mode
	PulseHold time.Duration

	// RunButton 触发运行；Buttons 为其余按钮名 → 输入通道。
	RunButton string
	Buttons   map[string]string
}

// DefaultConfig 返回标准桥接常量（不含按钮表，见 FromPlan）。
func DefaultConfig() Config {
	return Config{
		Rows:        120,
		Cols:        128,
		SrcWidth:    256,
		SrcHeight:   240,
		Block:       2,
		Ramp:        "_:?/b#",
		Thresholds:  []float64{200, 150, 100, 50, 25},
		Magic:       "NES\x1a",
		MinPayload:  16,
		Period:      33 * time.Millisecond,
		StartDelay:  350 * time.Millisecond,
		Warmup:      5,
		StatusEvery: 5,
		CellPrefix:  "field_",
		DiagPrefix:  "debug_",
		DiagSlots:   5,
		Mode:        ModeToggle,
		PulseHold:   150 * time.Millisecond,
		RunButton:   layout.RunButton,
		Buttons:     map[string]string{},
	}
}

// FromPlan 以规划结果覆盖行列、字段前缀与按钮表。
func FromPlan(c Config, p *layout.Plan) Config {
	s := p.Spec()
	c.Rows, c.Cols = s.Rows, s.Cols
	c.CellPrefix, c.DiagPrefix = s.CellPrefix, s.DiagPrefix
	c.DiagSlots = len(s.DiagIDs)
	c.Buttons = map[string]string{}
	for _, b := range p.Buttons() {
		if b.Activate {
			c.RunButton = b.Name
			continue
		}
		c.Buttons[b.Name] = b.Channel
	}
	return c
}

// Validate 校验常量之间的关系。
func (c Config) Validate() error {
	bad := func(format string, a ...any) error {
		return fmt.Errorf("%w: bridge: %s", contract.ErrInvariantViolation, fmt.Sprintf(format, a...))
	}
	switch {
	case c.Rows <= 0 || c.Cols <= 0 || c.Block <= 0:
		return bad("rows/cols/block must be > 0")
	case c.Cols*c.Block > c.SrcWidth || c.Rows*c.Block > c.SrcHeight:
		return bad("grid %dx%d with block %d exceeds source %dx%d", c.Cols, c.Rows, c.Block, c.SrcWidth, c.SrcHeight)
	case len(c.Ramp) != len(c.Thresholds)+1:
		return bad("ramp has %d glyphs for %d thresholds", len(c.Ramp), len(c.Thresholds))
	case len(c.Magic) != 4:
		return bad("magic must be 4 bytes")
	case c.Period <= 0:
		return bad("period must be > 0")
	case c.StatusEvery <= 0:
		return bad("status_every must be > 0")
	case c.Mode != ModeToggle && c.Mode != ModePulse:
		return bad("unknown input mode %q", c.Mode)
	case c.DiagSlots <= DiagPayload:
		return bad("need at least %d diagnostic slots", DiagPayload+1)
	}
	for i := 1; i < len(c.Thresholds); i++ {
		if c.Thresholds[i] >= c.Thresholds[i-1] {
			return bad("thresholds must be strictly descending")
		}
	}
	return nil
}
