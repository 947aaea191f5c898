package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// 能力缺失。
var (
	ErrNoTimer   = errors.New("no timer")
	ErrNoFields  = errors.New("no field lookup")
	ErrNoDecoder = errors.New("no decoder")
	ErrNoEngine  = errors.New("engine not constructed")
	ErrState     = errors.New("invalid bridge state")
	ErrEngine    = errors.New("engine failure")
)

// capability: 可探测的宿主能力。
type capability interface {
	Name() string
	Available() bool
}

// Field 为一个已解析的文本字段。
type Field interface {
	Set(value string) error
}

// FieldProvider 按名称查找字段。
type FieldProvider interface {
	capability
	Lookup(name string) (Field, error)
}

// Scheduler 为周期定时器：注册一次，反复触发。
type Scheduler interface {
	capability
	Every(period time.Duration, fn func()) error
}

// OneShot 为一次性定时器。
type OneShot interface {
	capability
	After(d time.Duration, fn func()) error
}

// Decoder 将 64 符号文本解码为“每字符一字节”的宿主字符串。
type Decoder interface {
	capability
	Decode(s string) (string, error)
}

// Host 为排序后的候选能力；探测时绑定首个可用者。
type Host struct {
	Fields     []FieldProvider
	Schedulers []Scheduler
	Timers     []OneShot
	Decoders   []Decoder
	// Alert 为致命错误的宿主提示（可为空）。
	Alert func(msg string)
}

// probe 返回首个可用候选。
func probe[T capability](cands []T) (T, bool) {
	for _, c := range cands {
		if c.Available() {
			return c, true
		}
	}
	var zero T
	return zero, false
}

// available 返回全部可用候选（保持顺序）。
func available[T capability](cands []T) []T {
	var out []T
	for _, c := range cands {
		if c.Available() {
			out = append(out, c)
		}
	}
	return out
}

// Rearm 把一次性定时器包装为周期定时器：每次触发后重新注册。
// 重新注册失败后循环停止，失败经 stopped 回调报告一次（由会话绑定到诊断通道）。
func Rearm(o OneShot) Scheduler { return rearm{o: o} }

type rearm struct {
	o       OneShot
	stopped func(error)
}

func (r rearm) Name() string    { return r.o.Name() + "/rearm" }
func (r rearm) Available() bool { return r.o.Available() }

// onStop 返回绑定了停止回调的副本。
func (r rearm) onStop(fn func(error)) Scheduler { r.stopped = fn; return r }

func (r rearm) Every(period time.Duration, fn func()) error {
	var tick func()
	tick = func() {
		fn()
		if err := r.o.After(period, tick); err != nil && r.stopped != nil {
			r.stopped(err)
		}
	}
	return r.o.After(period, tick)
}

// stopReporter 为可能在运行中自行停止的调度器。
type stopReporter interface {
	onStop(fn func(error)) Scheduler
}

// MemFields 为内存字段提供者（预览与测试使用）。
type MemFields struct {
	mu     sync.Mutex
	fields map[string]*MemField
	name   string
}

// MemField 记录当前值与写入次数。
type MemField struct {
	mu     sync.Mutex
	value  string
	writes int
	// Fail 为 true 时写入返回错误。
	Fail bool
}

// NewMemFields 预先创建给定名称的字段；未创建的名称查找失败。
func NewMemFields(name string, names ...string) *MemFields {
	m := &MemFields{fields: map[string]*MemField{}, name: name}
	for _, n := range names {
		m.fields[n] = &MemField{}
	}
	return m
}

func (m *MemFields) Name() string    { return m.name }
func (m *MemFields) Available() bool { return m != nil }

func (m *MemFields) Lookup(name string) (Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fields[name]
	if !ok {
		return nil, fmt.Errorf("field %q not found", name)
	}
	return f, nil
}

// Get 返回字段（不存在为 nil）。
func (m *MemFields) Get(name string) *MemField {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields[name]
}

// Names 返回全部字段名（升序）。
func (m *MemFields) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.fields))
	for n := range m.fields {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (f *MemField) Set(v string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return errors.New("field write failed")
	}
	f.value = v
	f.writes++
	return nil
}

// Value 返回当前值。
func (f *MemField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Writes 返回累计写入次数。
func (f *MemField) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
