package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nespdf/internal/diag"
	"nespdf/pkg/contract"
)

// State 为桥接状态机。
type State int

const (
	Uninitialized State = iota
	FieldsResolved
	PayloadVerified
	Idle
	Running
	// Invalid: 载荷校验失败后的终态。
	Invalid
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case FieldsResolved:
		return "fields-resolved"
	case PayloadVerified:
		return "payload-verified"
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Invalid:
		return "invalid"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Engine 为外部计算引擎。Advance 在返回前同步调用帧回调。
type Engine interface {
	Signaler
	Load(payload []byte) error
	Advance() error
}

// EngineFactory 以帧回调与音频回调构造引擎。
type EngineFactory func(onFrame func(frame []uint32), onAudio func(l, r float64)) (Engine, error)

// Session 持有沙箱内全部进程级状态：字段句柄、行缓存、输入状态与引擎句柄。
// 单线程协作：所有方法应在同一逻辑线程上调用，不加锁。
type Session struct {
	cfg  Config
	host Host
	log  *diag.Logger

	state State
	cells []Field
	diag  []Field

	payload []byte
	engine  Engine
	router  *Router

	cache  []string
	frames int
	writes int

	noTimer   bool
	scheduler string
	booted    bool
}

// NewSession 构造会话；log 可为 nil。
func NewSession(cfg Config, host Host, log *diag.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:    cfg,
		host:   host,
		log:    log,
		cache:  make([]string, cfg.Rows),
		router: NewRouter(cfg.Mode, cfg.PulseHold, host.Timers),
	}, nil
}

// State 返回当前状态。
func (s *Session) State() State { return s.state }

// Writes 返回显示行累计写入次数。
func (s *Session) Writes() int { return s.writes }

// Frames 返回已绘制帧数。
func (s *Session) Frames() int { return s.frames }

// Scheduler 返回已绑定的定时器名（未运行为空）。
func (s *Session) Scheduler() string { return s.scheduler }

// Held 返回输入通道状态。
func (s *Session) Held(ch string) bool { return s.router.Held(ch) }

// Report 尽力写入诊断字段；任何失败都被吞掉。
func (s *Session) Report(slot int, msg string) {
	if slot < 0 || slot >= len(s.diag) || s.diag[slot] == nil {
		return
	}
	_ = guard(func() error { return s.diag[slot].Set(msg) })
}

// ResolveFields 通过探测得到的字段提供者解析全部显示行与诊断字段。
// 无法解析的字段记为 nil，不中断；之后绘制测试图案。
func (s *Session) ResolveFields() error {
	if s.state != Uninitialized {
		return fmt.Errorf("%w: resolve in %s", ErrState, s.state)
	}
	s.cells = make([]Field, s.cfg.Rows)
	s.diag = make([]Field, s.cfg.DiagSlots)
	s.state = FieldsResolved

	fp, ok := probe(s.host.Fields)
	if !ok {
		s.debug("fields", "no provider")
		return ErrNoFields
	}
	lookup := func(name string) Field {
		var f Field
		err := guard(func() error {
			var err error
			f, err = fp.Lookup(name)
			return err
		})
		if err != nil {
			return nil
		}
		return f
	}
	missing := 0
	for i := range s.cells {
		if s.cells[i] = lookup(s.cfg.CellPrefix + strconv.Itoa(i)); s.cells[i] == nil {
			missing++
		}
	}
	for i := range s.diag {
		s.diag[i] = lookup(s.cfg.DiagPrefix + strconv.Itoa(i))
	}
	s.Report(DiagStatus, "script start")
	s.debug("fields", fp.Name(), "missing", strconv.Itoa(missing))
	s.drawRows(s.cfg.TestPattern())
	s.Report(DiagPayload, "test drawn")
	return nil
}

// VerifyPayload 经解码链解码载荷并校验 4 字节签名与最小长度。
// 失败进入 Invalid 终态并报告，返回 ErrPayloadInvalid。
func (s *Session) VerifyPayload(encoded string) error {
	if s.state != FieldsResolved {
		return fmt.Errorf("%w: verify in %s", ErrState, s.state)
	}
	b, via, err := decodeChain(s.host.Decoders, encoded)
	if err == nil && len(b) >= s.cfg.MinPayload && strings.HasPrefix(string(b), s.cfg.Magic) {
		s.payload = b
		s.state = PayloadVerified
		s.debug("payload", via, "len", strconv.Itoa(len(b)))
		return nil
	}
	s.state = Invalid
	head := "?"
	if len(b) >= 4 {
		head = fmt.Sprintf("%d,%d,%d,%d", b[0], b[1], b[2], b[3])
	}
	s.Report(DiagPayload, fmt.Sprintf("rom bad len=%d h=%s", len(b), head))
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrPayloadInvalid, err)
	}
	return fmt.Errorf("%w: len=%d head=%s", contract.ErrPayloadInvalid, len(b), head)
}

// Construct 构造引擎并绑定绘制回调。
func (s *Session) Construct(factory EngineFactory) error {
	if s.state != PayloadVerified {
		return fmt.Errorf("%w: construct in %s", ErrState, s.state)
	}
	var eng Engine
	err := guard(func() error {
		var err error
		eng, err = factory(func(frame []uint32) { s.Draw(frame) }, func(float64, float64) {})
		return err
	})
	if err != nil {
		s.Report(DiagStatus, "engine err:"+err.Error())
		return err
	}
	s.engine = eng
	s.state = Idle
	s.Report(DiagStatus, "engine ok")
	return nil
}

// Activate 执行 idle → running：探测定时器、加载载荷、预热若干帧，再注册周期回调。
// 加载失败保持 idle 并原样报告错误文本；无定时器只报告一次，之后的激活不再重试。
func (s *Session) Activate() error {
	s.Report(DiagRun, "run clicked")
	switch s.state {
	case Running:
		return nil
	case Invalid:
		s.Report(DiagRun, "rom invalid")
		return contract.ErrPayloadInvalid
	case Idle:
	default:
		return fmt.Errorf("%w: activate in %s", ErrState, s.state)
	}
	if s.noTimer {
		return ErrNoTimer
	}
	scheds := available(s.host.Schedulers)
	if len(scheds) == 0 {
		s.noTimer = true
		s.Report(DiagRun, "no timer")
		return ErrNoTimer
	}
	if err := guard(func() error { return s.engine.Load(s.payload) }); err != nil {
		s.Report(DiagRun, "rom err:"+err.Error())
		return err
	}
	s.Report(DiagRun, "rom ok")
	for i := 0; i < s.cfg.Warmup; i++ {
		s.step()
	}
	// 先置为 running：部分定时器会在注册时同步触发一次
	s.state = Running
	for _, sc := range scheds {
		if sr, ok := sc.(stopReporter); ok {
			sc = sr.onStop(s.timerStopped)
		}
		if err := sc.Every(s.cfg.Period, s.Tick); err == nil {
			s.scheduler = sc.Name()
			s.Report(DiagRun, "timer "+sc.Name())
			s.debug("activate", sc.Name())
			return nil
		}
	}
	s.state = Idle
	s.noTimer = true
	s.Report(DiagRun, "no timer")
	return ErrNoTimer
}

// timerStopped 报告运行中的调度器停止（重新注册失败）。
func (s *Session) timerStopped(err error) {
	s.Report(DiagRun, "timer stopped:"+err.Error())
	s.debug("timer stopped", err.Error())
}

// Tick 为周期回调：推进一帧。失败只报告，不停止循环。
func (s *Session) Tick() {
	if s.state != Running {
		return
	}
	s.step()
}

func (s *Session) step() {
	if err := guard(s.engine.Advance); err != nil {
		s.Report(DiagStatus, "frame err:"+err.Error())
	}
}

// Draw 为帧回调：下采样并只写入内容变化的行，返回本次写入行数。
// 每 StatusEvery 帧更新一次帧计数诊断。
func (s *Session) Draw(frame []uint32) int {
	s.frames++
	if s.frames%s.cfg.StatusEvery == 0 {
		s.Report(DiagFrames, "frames:"+strconv.Itoa(s.frames))
	}
	return s.drawRows(s.cfg.Downsample(frame))
}

func (s *Session) drawRows(rows []string) int {
	n := 0
	for i, line := range rows {
		if i >= len(s.cache) || line == s.cache[i] {
			continue
		}
		var f Field
		if i < len(s.cells) {
			f = s.cells[i]
		}
		if f == nil {
			// 未解析的行只更新缓存
			s.cache[i] = line
			continue
		}
		if err := guard(func() error { return f.Set(line) }); err != nil {
			continue
		}
		s.cache[i] = line
		n++
	}
	s.writes += n
	return n
}

// Press 处理按钮激活：激活按钮触发运行，其余按钮经输入路由发出信号。
func (s *Session) Press(button string) error {
	s.Report(DiagInput, button)
	if button == s.cfg.RunButton {
		return s.Activate()
	}
	ch, ok := s.cfg.Buttons[button]
	if !ok {
		return fmt.Errorf("%w: unknown button %q", ErrState, button)
	}
	if s.engine == nil {
		return ErrNoEngine
	}
	if err := s.router.Press(s.engine, ch); err != nil {
		s.Report(DiagStatus, "input err:"+err.Error())
		return err
	}
	return nil
}

// Boot 为打开文档时的完整初始化：解析字段 → 校验载荷 → 构造引擎 → 延迟自动激活。
// 重复调用无效果。返回的错误仅供记录；失败已写入诊断通道。
func (s *Session) Boot(encoded string, factory EngineFactory) error {
	if s.booted {
		return nil
	}
	s.booted = true
	if err := s.ResolveFields(); err != nil && !errors.Is(err, ErrNoFields) {
		return err
	}
	if err := s.VerifyPayload(encoded); err != nil {
		return err
	}
	if err := s.Construct(factory); err != nil {
		return err
	}
	activate := func() {
		if err := s.Activate(); err != nil {
			s.debug("activate", err.Error())
		}
	}
	if t, ok := probe(s.host.Timers); ok {
		if err := t.After(s.cfg.StartDelay, activate); err == nil {
			return nil
		}
	}
	activate()
	return nil
}

// Fatal 通过宿主提示报告致命错误（仅一次由调用方保证）。
func (s *Session) Fatal(err error) {
	if s.host.Alert != nil && err != nil {
		s.host.Alert("Error: " + err.Error())
	}
}

func (s *Session) debug(msg string, kv ...string) {
	if s.log == nil {
		return
	}
	m := map[string]string{"state": s.state.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		m["detail"] = kv[len(kv)-1]
	}
	s.log.DebugStart("bridge", msg, "", m)
}
