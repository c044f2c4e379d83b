// Package dom 定义筛选引擎与事件上报依赖的最小页面模型。
//
// 这里只描述“页面能做什么”，不关心页面从哪来：htmldom 用 goquery 解析静态 HTML
// 实现这些接口；测试可以直接提供内存实现。
package dom

import "github.com/bestmoney-nz/bmcompare/internal/domain"

// 事件类型。
const (
	EventDOMContentLoaded = "DOMContentLoaded"
	EventChange           = "change"
	EventReset            = "reset"
	EventClick            = "click"
)

// Event 是一次派发的事件；Target 是最初触发事件的元素（文档级事件为 nil）。
type Event struct {
	Type   string
	Target Element
}

type Listener func(ev Event)

type EventTarget interface {
	AddEventListener(typ string, fn Listener)
	DispatchEvent(ev Event)
}

// Element 是页面元素。
type Element interface {
	EventTarget

	Attr(name string) (string, bool)
	SetAttr(name, value string)
	RemoveAttr(name string)

	Text() string
	SetText(text string)

	HasClass(class string) bool
	// ToggleClass 切换 class，返回切换后是否存在。
	ToggleClass(class string) bool
}

// Field 是带 name 的表单控件。
type Field interface {
	Element

	Name() string
	Value() string
	// SetValue 只改变值，不派发事件（与脚本赋值 el.value 一致）。
	SetValue(v string)
	// Options 返回 select 的全部 option 值；非 select 返回 nil。
	Options() []string
}

// Form 是筛选表单。
type Form interface {
	Element

	// Entries 按文档顺序返回表单条目（FormData 语义）。
	Entries() []domain.Param
	Field(name string) (Field, bool)
	// Reset 先派发 reset 事件，再把控件恢复为初始值。
	Reset()
}

// Document 是一张页面。
type Document interface {
	EventTarget

	ElementByID(id string) (Element, bool)
	FormByID(id string) (Form, bool)
	QueryAll(selector string) []Element
	QueryFirst(selector string) (Element, bool)

	Title() string
	Referrer() string
}

// Location 是页面 URL 的读写入口。
//
// 约束：ReplaceState 只替换当前历史记录，不导航、不新增历史条目。
type Location interface {
	Pathname() string
	Search() string
	Hostname() string
	ReplaceState(url string)
}
