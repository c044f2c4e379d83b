package htmldom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

var (
	_ dom.Form  = (*Form)(nil)
	_ dom.Field = (*Field)(nil)
)

const controlSelector = "select[name], input[name], textarea[name]"

// Form 是 <form> 的包装。
type Form struct {
	*Element
}

func (f *Form) controls() []*Field {
	s := f.sel.Find(controlSelector)
	out := make([]*Field, 0, s.Length())
	s.Each(func(_ int, one *goquery.Selection) {
		out = append(out, f.doc.wrapField(one))
	})
	return out
}

// Entries 与 FormData 一致：跳过 disabled 控件、按钮类 input、未勾选的 checkbox/radio、
// 以及没有选中项的 select。
func (f *Form) Entries() []domain.Param {
	fields := f.controls()
	out := make([]domain.Param, 0, len(fields))
	for _, c := range fields {
		if v, ok := c.entry(); ok {
			out = append(out, domain.Param{Key: c.Name(), Value: v})
		}
	}
	return out
}

// Field 返回第一个 name 匹配的控件。
func (f *Form) Field(name string) (dom.Field, bool) {
	for _, c := range f.controls() {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Reset 先派发 reset 事件（此时控件仍是旧值），再恢复全部控件的初始值。
func (f *Form) Reset() {
	f.DispatchEvent(dom.Event{Type: dom.EventReset, Target: f})
	for _, c := range f.controls() {
		c.restore()
	}
}

// Change 模拟用户修改控件：设置值后在控件上派发 change，并冒泡到表单。
// name 不存在时返回 false。
func (f *Form) Change(name, value string) bool {
	fl, ok := f.Field(name)
	if !ok {
		return false
	}
	fl.SetValue(value)
	ev := dom.Event{Type: dom.EventChange, Target: fl}
	fl.DispatchEvent(ev)
	f.DispatchEvent(ev)
	return true
}

// Field 是表单控件的包装；与同节点的 Element 共享监听器。
type Field struct {
	*Element

	tag string
	typ string

	// none 表示 select 被赋了一个不存在的值，此时没有任何选中项。
	none bool
	def  fieldDefault
}

type fieldDefault struct {
	selected []bool

	value    string
	hasValue bool
	checked  bool
	text     string
}

func newField(e *Element) *Field {
	f := &Field{Element: e, tag: e.Tag()}
	if f.tag == "input" {
		t, _ := e.Attr("type")
		f.typ = strings.ToLower(strings.TrimSpace(t))
		if f.typ == "" {
			f.typ = "text"
		}
	}
	f.def = f.snapshot()
	return f
}

func (f *Field) Name() string {
	v, _ := f.Attr("name")
	return v
}

func (f *Field) Value() string {
	switch f.tag {
	case "select":
		if f.none {
			return ""
		}
		chosen := f.selectedOption()
		if chosen.Length() == 0 {
			return ""
		}
		return optionValue(chosen)
	case "textarea":
		return f.Text()
	default:
		v, ok := f.Attr("value")
		if !ok && (f.typ == "checkbox" || f.typ == "radio") {
			return "on"
		}
		return v
	}
}

func (f *Field) SetValue(v string) {
	switch f.tag {
	case "select":
		matched := false
		f.sel.Find("option").Each(func(_ int, o *goquery.Selection) {
			if !matched && optionValue(o) == v {
				o.SetAttr("selected", "")
				matched = true
				return
			}
			o.RemoveAttr("selected")
		})
		f.none = !matched
	case "textarea":
		f.SetText(v)
	default:
		f.SetAttr("value", v)
	}
}

func (f *Field) Options() []string {
	if f.tag != "select" {
		return nil
	}
	opts := f.sel.Find("option")
	out := make([]string, 0, opts.Length())
	opts.Each(func(_ int, o *goquery.Selection) {
		out = append(out, optionValue(o))
	})
	return out
}

func (f *Field) entry() (string, bool) {
	if _, disabled := f.Attr("disabled"); disabled {
		return "", false
	}
	switch f.tag {
	case "select":
		if f.none || f.selectedOption().Length() == 0 {
			return "", false
		}
	case "input":
		switch f.typ {
		case "submit", "button", "reset", "image", "file":
			return "", false
		case "checkbox", "radio":
			if _, checked := f.Attr("checked"); !checked {
				return "", false
			}
		}
	}
	return f.Value(), true
}

// selectedOption 选中规则与单选 select 一致：多个 selected 取最后一个；都没有则取第一个 option。
func (f *Field) selectedOption() *goquery.Selection {
	opts := f.sel.Find("option")
	chosen := opts.Filter("[selected]").Last()
	if chosen.Length() == 0 {
		chosen = opts.First()
	}
	return chosen
}

func (f *Field) snapshot() fieldDefault {
	var d fieldDefault
	switch f.tag {
	case "select":
		f.sel.Find("option").Each(func(_ int, o *goquery.Selection) {
			_, sel := o.Attr("selected")
			d.selected = append(d.selected, sel)
		})
	case "textarea":
		d.text = f.Text()
	default:
		d.value, d.hasValue = f.Attr("value")
		_, d.checked = f.Attr("checked")
	}
	return d
}

func (f *Field) restore() {
	switch f.tag {
	case "select":
		f.none = false
		f.sel.Find("option").Each(func(i int, o *goquery.Selection) {
			if i < len(f.def.selected) && f.def.selected[i] {
				o.SetAttr("selected", "")
				return
			}
			o.RemoveAttr("selected")
		})
	case "textarea":
		f.SetText(f.def.text)
	default:
		if f.def.hasValue {
			f.SetAttr("value", f.def.value)
		} else {
			f.RemoveAttr("value")
		}
		if f.def.checked {
			f.SetAttr("checked", "")
		} else {
			f.RemoveAttr("checked")
		}
	}
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return collapseSpace(o.Text())
}
