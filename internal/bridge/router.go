package bridge

import (
	"fmt"
	"time"
)

// Signaler 为引擎的离散输入面。
type Signaler interface {
	SignalOn(ch string) error
	SignalOff(ch string) error
}

// Router 把按钮激活翻译为输入信号。
// toggle：false→true 发出 on，true→false 发出 off，每次激活恰好一次调用；
// pulse：发出 on，并由一次性定时器在 hold 后发出 off（无定时器时立即释放）。
// toggle 状态无论信号是否成功都会翻转，保证奇偶一致；pulse 按下失败时不保持。
type Router struct {
	mode   Mode
	hold   time.Duration
	timers []OneShot
	held   map[string]bool
}

// NewRouter 构造输入路由；timers 仅 pulse 模式使用。
func NewRouter(mode Mode, hold time.Duration, timers []OneShot) *Router {
	return &Router{mode: mode, hold: hold, timers: timers, held: map[string]bool{}}
}

// Held 返回通道当前是否处于按下状态。
func (r *Router) Held(ch string) bool { return r.held[ch] }

// Press 处理一次激活。
func (r *Router) Press(sig Signaler, ch string) error {
	if sig == nil {
		return ErrNoEngine
	}
	if r.mode == ModePulse {
		return r.pulse(sig, ch)
	}
	if !r.held[ch] {
		r.held[ch] = true
		return guard(func() error { return sig.SignalOn(ch) })
	}
	r.held[ch] = false
	return guard(func() error { return sig.SignalOff(ch) })
}

func (r *Router) pulse(sig Signaler, ch string) error {
	r.held[ch] = true
	if err := guard(func() error { return sig.SignalOn(ch) }); err != nil {
		r.held[ch] = false
		return err
	}
	release := func() {
		r.held[ch] = false
		_ = guard(func() error { return sig.SignalOff(ch) })
	}
	if t, ok := probe(r.timers); ok {
		if err := t.After(r.hold, release); err == nil {
			return nil
		}
	}
	release()
	return nil
}

// guard 在调用边界回收引擎 panic，转为 ErrEngine。
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrEngine, rec)
		}
	}()
	return fn()
}
