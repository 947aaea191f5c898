// Package layout 计算文档中所有可寻址单元（显示行、按钮、诊断字段）的对象编号与几何位置。
//
// 坐标系与查看器一致：原点左下，y 向上；第 0 行位于最上方。
// 规划在构造期完成并校验编号区间互不重叠，之后只读。
package layout

import (
	"fmt"
	"sort"

	"nespdf/pkg/contract"
)

// Rect 为左下角 (X,Y) 与宽高；序列化为 [x y x+w y+h]。
type Rect struct {
	X, Y, W, H float64
}

// X2 / Y2 返回右上角坐标。
func (r Rect) X2() float64 { return r.X + r.W }
func (r Rect) Y2() float64 { return r.Y + r.H }

// ButtonSpec 描述一个按钮的静态配置。
// Channel 为空表示该按钮不参与输入路由（激活按钮）。
type ButtonSpec struct {
	Name    string
	Label   string
	Channel string
	X, Y    float64
	// Activate: 该按钮同时绑定鼠标抬起动作，并触发运行而非输入信号。
	Activate bool
}

// Spec 为规划输入：固定对象编号、区间基址与少量几何参数。
type Spec struct {
	CatalogID    contract.ObjectID
	PagesID      contract.ObjectID
	FontID       contract.ObjectID
	PageID       contract.ObjectID
	MainScriptID contract.ObjectID

	Rows    int
	Cols    int
	RowBase contract.ObjectID

	Buttons          []ButtonSpec
	ButtonBase       contract.ObjectID
	ButtonScriptBase contract.ObjectID

	// DiagIDs: 诊断字段编号（显式列表，不要求连续）。
	DiagIDs []contract.ObjectID

	PageW, PageH float64

	ScreenX   float64
	ScreenTop float64
	RowHeight float64
	CharWidth float64
	// RowPad: 行矩形额外高度，消除相邻行之间的缝隙。
	RowPad float64

	ButtonSize float64

	DiagX, DiagTop, DiagStep, DiagW, DiagH float64

	CellPrefix string
	DiagPrefix string
}

// 引擎输入通道（8 个离散通道）。
const (
	ChanA      = "BUTTON_A"
	ChanB      = "BUTTON_B"
	ChanSelect = "BUTTON_SELECT"
	ChanStart  = "BUTTON_START"
	ChanUp     = "BUTTON_UP"
	ChanDown   = "BUTTON_DOWN"
	ChanLeft   = "BUTTON_LEFT"
	ChanRight  = "BUTTON_RIGHT"
)

// Channels 返回全部输入通道（稳定顺序）。
func Channels() []string {
	return []string{ChanA, ChanB, ChanSelect, ChanStart, ChanUp, ChanDown, ChanLeft, ChanRight}
}

// RunButton 为激活按钮的名称。
const RunButton = "btn_Run"

// Default 返回标准文档形状：120 行 × 128 列显示、9 个按钮、5 个诊断字段。
func Default() Spec {
	return Spec{
		CatalogID:    1,
		PagesID:      2,
		FontID:       10,
		PageID:       16,
		MainScriptID: 42,

		Rows:    120,
		Cols:    128,
		RowBase: 50,

		Buttons: []ButtonSpec{
			{Name: RunButton, Label: "Run", X: 218, Y: 328, Activate: true},
			{Name: "btn_Up", Label: "U", Channel: ChanUp, X: 76, Y: 284},
			{Name: "btn_Down", Label: "D", Channel: ChanDown, X: 76, Y: 228},
			{Name: "btn_Left", Label: "L", Channel: ChanLeft, X: 62, Y: 256},
			{Name: "btn_Right", Label: "R", Channel: ChanRight, X: 90, Y: 256},
			{Name: "btn_Select", Label: "Se", Channel: ChanSelect, X: 165, Y: 242},
			{Name: "btn_Start", Label: "St", Channel: ChanStart, X: 215, Y: 242},
			{Name: "btn_B", Label: "B", Channel: ChanB, X: 280, Y: 242},
			{Name: "btn_A", Label: "A", Channel: ChanA, X: 328, Y: 242},
		},
		ButtonBase:       170,
		ButtonScriptBase: 179,

		DiagIDs: []contract.ObjectID{188, 189, 190, 191, 192},

		PageW: 612,
		PageH: 792,

		ScreenX:   50,
		ScreenTop: 752,
		RowHeight: 1.8,
		CharWidth: 1.6,
		RowPad:    0.2,

		ButtonSize: 28,

		DiagX:    380,
		DiagTop:  755,
		DiagStep: 12,
		DiagW:    200,
		DiagH:    10,

		CellPrefix: "field_",
		DiagPrefix: "debug_",
	}
}

// Cell 为一个文本字段（显示行或诊断字段）。
type Cell struct {
	Index   int
	Name    string
	ID      contract.ObjectID
	Rect    Rect
	Default string
	// Borderless: 显示行无边框（/BS << /W 0 >>）。
	Borderless bool
}

// Button 为一个已规划的按钮：按钮对象与其激活脚本对象编号之差固定。
type Button struct {
	ButtonSpec
	Index    int
	ID       contract.ObjectID
	ScriptID contract.ObjectID
	Rect     Rect
}

// Plan 为不可变的规划结果。
type Plan struct {
	spec    Spec
	rows    []Cell
	buttons []Button
	diag    []Cell
	byName  map[string]contract.ObjectID
	maxID   contract.ObjectID
}

// New 校验编号区间并生成规划。
// 任意两个编号重叠（包括固定对象）时返回 ErrIDCollision；参数非法时返回 ErrInvariantViolation。
func New(s Spec) (*Plan, error) {
	if s.Rows <= 0 || s.Cols <= 0 {
		return nil, fmt.Errorf("%w: rows=%d cols=%d", contract.ErrInvariantViolation, s.Rows, s.Cols)
	}
	if s.RowHeight <= 0 || s.CharWidth <= 0 {
		return nil, fmt.Errorf("%w: row_height/char_width must be > 0", contract.ErrInvariantViolation)
	}
	if err := checkIDs(s); err != nil {
		return nil, err
	}

	s = s.clone()
	p := &Plan{spec: s, byName: map[string]contract.ObjectID{}}
	for i := 0; i < s.Rows; i++ {
		c := Cell{
			Index: i,
			Name:  fmt.Sprintf("%s%d", s.CellPrefix, i),
			ID:    s.RowBase + contract.ObjectID(i),
			Rect: Rect{
				X: s.ScreenX,
				Y: s.ScreenTop - float64(i+1)*s.RowHeight,
				W: float64(s.Cols) * s.CharWidth,
				H: s.RowHeight + s.RowPad,
			},
			Borderless: true,
		}
		p.rows = append(p.rows, c)
	}
	for i, b := range s.Buttons {
		btn := Button{
			ButtonSpec: b,
			Index:      i,
			ID:         s.ButtonBase + contract.ObjectID(i),
			ScriptID:   s.ButtonScriptBase + contract.ObjectID(i),
			Rect:       Rect{X: b.X, Y: b.Y, W: s.ButtonSize, H: s.ButtonSize},
		}
		p.buttons = append(p.buttons, btn)
	}
	for i, id := range s.DiagIDs {
		c := Cell{
			Index:   i,
			Name:    fmt.Sprintf("%s%d", s.DiagPrefix, i),
			ID:      id,
			Rect:    Rect{X: s.DiagX, Y: s.DiagTop - float64(i)*s.DiagStep, W: s.DiagW, H: s.DiagH},
			Default: fmt.Sprintf("[debug %d]", i),
		}
		p.diag = append(p.diag, c)
	}

	for _, c := range p.rows {
		if err := p.bind(c.Name, c.ID); err != nil {
			return nil, err
		}
	}
	for _, b := range p.buttons {
		if err := p.bind(b.Name, b.ID); err != nil {
			return nil, err
		}
	}
	for _, c := range p.diag {
		if err := p.bind(c.Name, c.ID); err != nil {
			return nil, err
		}
	}
	p.maxID = maxOf(allIDs(s))
	return p, nil
}

func (p *Plan) bind(name string, id contract.ObjectID) error {
	if _, dup := p.byName[name]; dup {
		return fmt.Errorf("%w: duplicate field name %q", contract.ErrIDCollision, name)
	}
	p.byName[name] = id
	return nil
}

// checkIDs: 全部编号须为正且唯一。
func checkIDs(s Spec) error {
	seen := map[contract.ObjectID]string{}
	add := func(id contract.ObjectID, what string) error {
		if id <= 0 {
			return fmt.Errorf("%w: %s has non-positive id %d", contract.ErrInvariantViolation, what, id)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: id %d used by %s and %s", contract.ErrIDCollision, id, prev, what)
		}
		seen[id] = what
		return nil
	}
	fixed := []struct {
		id   contract.ObjectID
		what string
	}{
		{s.CatalogID, "catalog"}, {s.PagesID, "pages"}, {s.FontID, "font"},
		{s.PageID, "page"}, {s.MainScriptID, "main script"},
	}
	for _, f := range fixed {
		if err := add(f.id, f.what); err != nil {
			return err
		}
	}
	for i := 0; i < s.Rows; i++ {
		if err := add(s.RowBase+contract.ObjectID(i), fmt.Sprintf("row %d", i)); err != nil {
			return err
		}
	}
	for i := range s.Buttons {
		if err := add(s.ButtonBase+contract.ObjectID(i), fmt.Sprintf("button %d", i)); err != nil {
			return err
		}
		if err := add(s.ButtonScriptBase+contract.ObjectID(i), fmt.Sprintf("button script %d", i)); err != nil {
			return err
		}
	}
	for i, id := range s.DiagIDs {
		if err := add(id, fmt.Sprintf("diag %d", i)); err != nil {
			return err
		}
	}
	return nil
}

func allIDs(s Spec) []contract.ObjectID {
	ids := []contract.ObjectID{s.CatalogID, s.PagesID, s.FontID, s.PageID, s.MainScriptID}
	for i := 0; i < s.Rows; i++ {
		ids = append(ids, s.RowBase+contract.ObjectID(i))
	}
	for i := range s.Buttons {
		ids = append(ids, s.ButtonBase+contract.ObjectID(i), s.ButtonScriptBase+contract.ObjectID(i))
	}
	return append(ids, s.DiagIDs...)
}

func maxOf(ids []contract.ObjectID) contract.ObjectID {
	var m contract.ObjectID
	for _, id := range ids {
		if id > m {
			m = id
		}
	}
	return m
}

// Spec 返回规划输入的副本（切片字段同样复制）。
func (p *Plan) Spec() Spec { return p.spec.clone() }

func (s Spec) clone() Spec {
	s.Buttons = append([]ButtonSpec(nil), s.Buttons...)
	s.DiagIDs = append([]contract.ObjectID(nil), s.DiagIDs...)
	return s
}

// Rows 返回显示行（第 0 行在最上）。
func (p *Plan) Rows() []Cell { return append([]Cell(nil), p.rows...) }

// Buttons 返回按钮（激活按钮在首位）。
func (p *Plan) Buttons() []Button { return append([]Button(nil), p.buttons...) }

// Diag 返回诊断字段。
func (p *Plan) Diag() []Cell { return append([]Cell(nil), p.diag...) }

// ID 按逻辑名查找对象编号。
func (p *Plan) ID(name string) (contract.ObjectID, bool) {
	id, ok := p.byName[name]
	return id, ok
}

// MaxID 为规划内最大对象编号；交叉引用表大小为 MaxID()+1。
func (p *Plan) MaxID() contract.ObjectID { return p.maxID }

// IDs 返回规划占用的全部编号（升序）。
func (p *Plan) IDs() []contract.ObjectID {
	ids := allIDs(p.spec)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fields 返回表单字段编号，顺序为：显示行、按钮、诊断字段。
func (p *Plan) Fields() []contract.ObjectID {
	out := make([]contract.ObjectID, 0, len(p.rows)+len(p.buttons)+len(p.diag))
	for _, c := range p.rows {
		out = append(out, c.ID)
	}
	for _, b := range p.buttons {
		out = append(out, b.ID)
	}
	for _, c := range p.diag {
		out = append(out, c.ID)
	}
	return out
}

// Button 按名称查找按钮。
func (p *Plan) Button(name string) (Button, bool) {
	for _, b := range p.buttons {
		if b.Name == name {
			return b, true
		}
	}
	return Button{}, false
}
