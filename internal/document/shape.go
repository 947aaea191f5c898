package document

import (
	"fmt"
	"strings"

	"nespdf/internal/layout"
)

// Font 为表单默认字体资源。
type Font struct {
	// Resource: 资源名（/DR 与 /DA 中使用）。
	Resource string
	// Base: 标准 14 字体名。
	Base string
}

var (
	// Courier: 等宽，每个字符宽度一致，适合字符行屏幕。
	Courier = Font{Resource: "Cour", Base: "Courier"}
	// Helvetica: 比例字体（早期布局）。
	Helvetica = Font{Resource: "Helv", Base: "Helvetica"}
)

// FontByName 解析配置中的字体名（courier|helvetica）。
func FontByName(name string) (Font, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "courier":
		return Courier, nil
	case "helvetica":
		return Helvetica, nil
	default:
		return Font{}, fmt.Errorf("unknown font %q", name)
	}
}

// Scripts 为需要嵌入的脚本正文。
type Scripts struct {
	// Main: 打开文档时执行的主程序（引擎 + 桥接）。
	Main string
	// Buttons: 按钮名 → 点击脚本。
	Buttons map[string]string
}

// Shape 根据规划生成全部对象，顺序固定：
// 目录、页面树、字体、页面、主脚本、显示行、（按钮脚本, 按钮）成对、诊断字段。
func Shape(p *layout.Plan, sc Scripts, font Font) ([]Object, error) {
	s := p.Spec()
	fields := RefArray(p.Fields())
	fontRes := Dict{{font.Resource, Ref(s.FontID)}}
	js := func(id Ref) Dict { return Dict{{"JS", id}, {"S", Name("JavaScript")}} }

	objs := make([]Object, 0, 5+len(fields)+len(p.Buttons()))
	objs = append(objs,
		Object{ID: s.CatalogID, Kind: KindCatalog, Dict: Dict{
			{"AcroForm", Dict{
				{"Fields", fields},
				{"DR", Dict{{"Font", fontRes}}},
				{"DA", Str(fmt.Sprintf("/%s 8 Tf 0 g", font.Resource))},
			}},
			{"OpenAction", js(Ref(s.MainScriptID))},
			{"Pages", Ref(s.PagesID)},
			{"Type", Name("Catalog")},
		}},
		Object{ID: s.PagesID, Kind: KindPages, Dict: Dict{
			{"Count", Int(1)},
			{"Kids", Array{Ref(s.PageID)}},
			{"Type", Name("Pages")},
		}},
		Object{ID: s.FontID, Kind: KindFont, Dict: Dict{
			{"BaseFont", Name(font.Base)},
			{"Subtype", Name("Type1")},
			{"Type", Name("Font")},
		}},
		Object{ID: s.PageID, Kind: KindPage, Dict: Dict{
			{"AA", Dict{{"O", js(Ref(s.MainScriptID))}}},
			{"Annots", fields},
			{"MediaBox", Array{Int(0), Int(0), Int(int(s.PageW)), Int(int(s.PageH))}},
			{"Parent", Ref(s.PagesID)},
			{"Resources", Dict{{"Font", fontRes}}},
			{"Type", Name("Page")},
		}},
		NewScript(s.MainScriptID, sc.Main),
	)

	for _, c := range p.Rows() {
		objs = append(objs, textField(c, s))
	}
	for _, b := range p.Buttons() {
		body, ok := sc.Buttons[b.Name]
		if !ok {
			return nil, fmt.Errorf("missing script for button %q", b.Name)
		}
		objs = append(objs, NewScript(b.ScriptID, body), button(b, s))
	}
	for _, c := range p.Diag() {
		objs = append(objs, textField(c, s))
	}
	return objs, nil
}

func rect(r layout.Rect) Array {
	return Array{Real(r.X), Real(r.Y), Real(r.X2()), Real(r.Y2())}
}

func textField(c layout.Cell, s layout.Spec) Object {
	d := Dict{}
	if c.Borderless {
		d = append(d, Entry{"BS", Dict{{"W", Int(0)}}})
	}
	d = append(d,
		Entry{"F", Int(4)},
		Entry{"FT", Name("Tx")},
		Entry{"Ff", Int(2)},
		Entry{"MaxLen", Int(256)},
		Entry{"MK", Dict{}},
		Entry{"P", Ref(s.PageID)},
		Entry{"Q", Int(0)},
		Entry{"Rect", rect(c.Rect)},
		Entry{"Subtype", Name("Widget")},
		Entry{"T", Str(c.Name)},
		Entry{"Type", Name("Annot")},
		Entry{"V", Str(c.Default)},
	)
	return Object{ID: c.ID, Kind: KindField, Dict: d}
}

func button(b layout.Button, s layout.Spec) Object {
	action := Dict{{"JS", Ref(b.ScriptID)}, {"S", Name("JavaScript")}}
	d := Dict{{"A", action}}
	if b.Activate {
		d = append(d, Entry{"AA", Dict{{"U", action}}})
	}
	d = append(d,
		Entry{"F", Int(4)},
		Entry{"FT", Name("Btn")},
		Entry{"Ff", Int(65536)},
		Entry{"MK", Dict{
			{"BG", Array{Real(0.9), Real(0.9), Real(0.9)}},
			{"CA", Str(b.Label)},
		}},
		Entry{"P", Ref(s.PageID)},
		Entry{"Rect", rect(b.Rect)},
		Entry{"Subtype", Name("Widget")},
		Entry{"T", Str(b.Name)},
		Entry{"Type", Name("Annot")},
	)
	return Object{ID: b.ID, Kind: KindButton, Dict: d}
}
