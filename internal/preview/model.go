// Package preview 在终端里驱动桥接模型：显示行与诊断字段为内存字段，
// 周期定时器为 bubbletea tick，按键映射为文档中的同名按钮。
package preview

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nespdf/internal/bridge"
	"nespdf/internal/diag"
	"nespdf/internal/layout"
)

// 按键 → 输入通道。
var keyChannels = map[string]string{
	"up":    layout.ChanUp,
	"down":  layout.ChanDown,
	"left":  layout.ChanLeft,
	"right": layout.ChanRight,
	"z":     layout.ChanB,
	"x":     layout.ChanA,
	"enter": layout.ChanStart,
	"tab":   layout.ChanSelect,
}

const runKey = "r"

// Options 为预览参数。
type Options struct {
	Config bridge.Config
	// Encoded 为分片前的完整编码载荷（与文档内拼接结果一致）。
	Encoded string
	Factory bridge.EngineFactory
	Log     *diag.Logger
}

type tickMsg struct{}

type fireMsg struct{ id int }

// clock 以 bubbletea 命令实现周期与一次性定时器；注册产生的命令在 Update 末尾统一发出。
type clock struct {
	period  time.Duration
	every   func()
	seq     int
	pending map[int]func()
	cmds    []tea.Cmd
}

func newClock() *clock { return &clock{pending: map[int]func(){}} }

func (c *clock) Name() string    { return "tea.tick" }
func (c *clock) Available() bool { return true }

func (c *clock) Every(period time.Duration, fn func()) error {
	if c.every != nil {
		return errors.New("tick already armed")
	}
	c.period, c.every = period, fn
	c.cmds = append(c.cmds, c.tick())
	return nil
}

func (c *clock) After(d time.Duration, fn func()) error {
	c.seq++
	id := c.seq
	c.pending[id] = fn
	c.cmds = append(c.cmds, tea.Tick(d, func(time.Time) tea.Msg { return fireMsg{id: id} }))
	return nil
}

func (c *clock) tick() tea.Cmd {
	return tea.Tick(c.period, func(time.Time) tea.Msg { return tickMsg{} })
}

func (c *clock) drain() tea.Cmd {
	cmds := c.cmds
	c.cmds = nil
	return tea.Batch(cmds...)
}

type styles struct {
	title  lipgloss.Style
	screen lipgloss.Style
	diag   lipgloss.Style
	status lipgloss.Style
	help   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		screen: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		diag:   lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		status: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		help:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// Model 为 bubbletea 模型。所有会话调用都发生在 Update 中（单线程）。
type Model struct {
	cfg     bridge.Config
	sess    *bridge.Session
	fields  *bridge.MemFields
	clock   *clock
	buttons map[string]string // 按键 → 按钮名
	bootErr error
	lastErr error
	st      styles
}

// New 构造模型并完成启动（解析字段、校验载荷、构造引擎、排队自动激活）。
// 启动失败不返回错误：与查看器一致，失败写入诊断字段并显示。
func New(opts Options) (*Model, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Factory == nil {
		return nil, errors.New("preview: engine factory required")
	}
	names := make([]string, 0, cfg.Rows+cfg.DiagSlots)
	for i := 0; i < cfg.Rows; i++ {
		names = append(names, cfg.CellPrefix+strconv.Itoa(i))
	}
	for i := 0; i < cfg.DiagSlots; i++ {
		names = append(names, cfg.DiagPrefix+strconv.Itoa(i))
	}
	m := &Model{
		cfg:     cfg,
		fields:  bridge.NewMemFields("terminal", names...),
		clock:   newClock(),
		buttons: map[string]string{runKey: cfg.RunButton},
		st:      defaultStyles(),
	}
	byChannel := map[string]string{}
	for name, ch := range cfg.Buttons {
		byChannel[ch] = name
	}
	for key, ch := range keyChannels {
		if name, ok := byChannel[ch]; ok {
			m.buttons[key] = name
		}
	}
	host := bridge.Host{
		Fields:     []bridge.FieldProvider{m.fields},
		Schedulers: []bridge.Scheduler{m.clock},
		Timers:     []bridge.OneShot{m.clock},
		Decoders: []bridge.Decoder{
			bridge.TableDecoder{},
			bridge.NativeDecoder{Label: "atob", Present: true},
		},
	}
	sess, err := bridge.NewSession(cfg, host, opts.Log)
	if err != nil {
		return nil, err
	}
	m.sess = sess
	m.bootErr = sess.Boot(opts.Encoded, opts.Factory)
	return m, nil
}

// Session 返回底层会话。
func (m *Model) Session() *bridge.Session { return m.sess }

// Fields 返回内存字段。
func (m *Model) Fields() *bridge.MemFields { return m.fields }

// BootErr 返回启动阶段的错误（可为 nil）。
func (m *Model) BootErr() error { return m.bootErr }

func (m *Model) Init() tea.Cmd { return m.clock.drain() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.sess.Tick()
		return m, tea.Batch(m.clock.tick(), m.clock.drain())
	case fireMsg:
		if fn, ok := m.clock.pending[msg.id]; ok {
			delete(m.clock.pending, msg.id)
			fn()
		}
	case tea.KeyMsg:
		switch k := msg.String(); k {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		default:
			if name, ok := m.buttons[k]; ok {
				m.lastErr = m.sess.Press(name)
			}
		}
	}
	return m, m.clock.drain()
}

func (m *Model) View() string {
	blank := strings.Repeat(" ", m.cfg.Cols)
	rows := make([]string, m.cfg.Rows)
	for i := range rows {
		rows[i] = blank
		if f := m.fields.Get(m.cfg.CellPrefix + strconv.Itoa(i)); f != nil && f.Value() != "" {
			rows[i] = f.Value()
		}
	}
	diagLines := make([]string, m.cfg.DiagSlots)
	for i := range diagLines {
		name := m.cfg.DiagPrefix + strconv.Itoa(i)
		v := ""
		if f := m.fields.Get(name); f != nil {
			v = f.Value()
		}
		diagLines[i] = fmt.Sprintf("%s %s", name, v)
	}
	var held []string
	for _, ch := range layout.Channels() {
		if m.sess.Held(ch) {
			held = append(held, strings.TrimPrefix(ch, "BUTTON_"))
		}
	}
	status := fmt.Sprintf("state=%s timer=%s frames=%d writes=%d held=[%s]",
		m.sess.State(), m.sess.Scheduler(), m.sess.Frames(), m.sess.Writes(), strings.Join(held, " "))
	if m.lastErr != nil {
		status += " err=" + m.lastErr.Error()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.st.title.Render("nespdf preview"),
		m.st.screen.Render(strings.Join(rows, "\n")),
		m.st.diag.Render(strings.Join(diagLines, "\n")),
		m.st.status.Render(status),
		m.st.help.Render("arrows move  z/x B/A  enter start  tab select  r run  q quit"),
	)
}

// Run 启动终端程序直到退出；ctx 取消视为正常退出。
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
