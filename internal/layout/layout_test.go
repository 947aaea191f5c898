package layout

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nespdf/pkg/contract"
)

// UT-LAY-01: 标准形状的编号分配
func TestDefaultPlanIDs(t *testing.T) {
	p, err := New(Default())
	require.NoError(t, err)

	rows := p.Rows()
	require.Len(t, rows, 120)
	assert.Equal(t, contract.ObjectID(50), rows[0].ID)
	assert.Equal(t, contract.ObjectID(169), rows[119].ID)
	assert.Equal(t, "field_119", rows[119].Name)

	btns := p.Buttons()
	require.Len(t, btns, 9)
	for i, b := range btns {
		assert.Equal(t, contract.ObjectID(170+i), b.ID, b.Name)
		assert.Equal(t, contract.ObjectID(179+i), b.ScriptID, b.Name)
		// 按钮与脚本编号差固定
		assert.Equal(t, contract.ObjectID(9), b.ScriptID-b.ID)
	}
	assert.True(t, btns[0].Activate)
	assert.Empty(t, btns[0].Channel)

	diag := p.Diag()
	require.Len(t, diag, 5)
	assert.Equal(t, "debug_4", diag[4].Name)
	assert.Equal(t, contract.ObjectID(192), diag[4].ID)
	assert.Equal(t, "[debug 4]", diag[4].Default)

	assert.Equal(t, contract.ObjectID(192), p.MaxID())
	assert.Len(t, p.Fields(), 120+9+5)
	assert.Len(t, p.IDs(), 5+120+9+9+5)

	id, ok := p.ID("btn_A")
	require.True(t, ok)
	assert.Equal(t, contract.ObjectID(178), id)
	_, ok = p.ID("nope")
	assert.False(t, ok)
}

// UT-LAY-02: 几何：第 0 行最上，行 i 的 y = top-(i+1)*h
func TestRowGeometry(t *testing.T) {
	p, err := New(Default())
	require.NoError(t, err)
	rows := p.Rows()
	assert.InDelta(t, 750.2, rows[0].Rect.Y, 1e-9)
	assert.InDelta(t, 752-120*1.8, rows[119].Rect.Y, 1e-9)
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i].Rect.Y, rows[i-1].Rect.Y)
	}
	assert.InDelta(t, 128*1.6, rows[0].Rect.W, 1e-9)
	assert.InDelta(t, 2.0, rows[0].Rect.H, 1e-9)
	assert.True(t, rows[0].Borderless)

	run, ok := p.Button(RunButton)
	require.True(t, ok)
	assert.Equal(t, Rect{X: 218, Y: 328, W: 28, H: 28}, run.Rect)
	assert.InDelta(t, 246, run.Rect.X2(), 1e-9)

	d := p.Diag()
	assert.InDelta(t, 755-12*3, d[3].Rect.Y, 1e-9)
}

// UT-LAY-03: 区间重叠在构造期拒绝
func TestCollisions(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Spec)
	}{
		{"rows over buttons", func(s *Spec) { s.Rows = 121 }},
		{"scripts over diag", func(s *Spec) { s.ButtonScriptBase = 180 }},
		{"row over main script", func(s *Spec) { s.RowBase = 40 }},
		{"diag duplicate", func(s *Spec) { s.DiagIDs = []contract.ObjectID{188, 188} }},
		{"font equals page", func(s *Spec) { s.FontID = 16 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := Default()
			c.mut(&s)
			_, err := New(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contract.ErrIDCollision), err.Error())
		})
	}
}

func TestInvalidSpec(t *testing.T) {
	s := Default()
	s.Rows = 0
	_, err := New(s)
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)

	s = Default()
	s.DiagIDs = []contract.ObjectID{0}
	_, err = New(s)
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)

	s = Default()
	s.Buttons = append(s.Buttons, ButtonSpec{Name: "btn_A"})
	s.ButtonScriptBase = 300
	_, err = New(s)
	assert.ErrorIs(t, err, contract.ErrIDCollision)
}

// 规划结果只读：返回副本
func TestPlanImmutable(t *testing.T) {
	p, err := New(Default())
	require.NoError(t, err)
	rows := p.Rows()
	rows[0].Name = "x"
	assert.Equal(t, "field_0", p.Rows()[0].Name)

	sp := p.Spec()
	sp.Buttons[0].Name = "btn_X"
	sp.DiagIDs[0] = 999
	assert.Equal(t, Default().Buttons[0].Name, p.Spec().Buttons[0].Name)
	assert.Equal(t, Default().DiagIDs[0], p.Spec().DiagIDs[0])

	// 构造后修改调用方的输入同样不影响规划
	in := Default()
	q, err := New(in)
	require.NoError(t, err)
	in.Buttons[0].Name = "btn_Y"
	assert.Equal(t, Default().Buttons[0].Name, q.Spec().Buttons[0].Name)

	a, _ := New(Default())
	b, _ := New(Default())
	if diff := cmp.Diff(a.Fields(), b.Fields()); diff != "" {
		t.Fatalf("规划不确定 (-a +b):\n%s", diff)
	}
}

func TestChannels(t *testing.T) {
	chans := Channels()
	assert.Len(t, chans, 8)
	seen := map[string]bool{}
	for _, b := range Default().Buttons {
		if b.Channel != "" {
			assert.Contains(t, chans, b.Channel)
			assert.False(t, seen[b.Channel], "channel bound twice")
			seen[b.Channel] = true
		}
	}
	assert.Len(t, seen, 8)
}
