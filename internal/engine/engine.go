// Package engine 实现比较页的卡片筛选组件。
//
// Engine 在页面挂载时构造一次，DOM 入口通过 Elements 传入；
// 所有操作都不返回错误：缺少元素时组件保持惰性，数据问题降级为“卡片不满足”。
package engine

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
	"github.com/bestmoney-nz/bmcompare/internal/eventloop"
	"github.com/bestmoney-nz/bmcompare/internal/filter"
	"github.com/bestmoney-nz/bmcompare/internal/urlstate"
)

// 页面上的固定标识。
const (
	FormID               = "comparison-filters"
	CardSelector         = ".lender-card"
	ResultsCountID       = "results-count"
	MobileToggleSelector = ".filter-toggle-mobile"

	openClass = "is-open"
)

// Elements 是引擎用到的 DOM 入口；Form 为 nil 或 Cards 为空时引擎惰性。
type Elements struct {
	Form         dom.Form
	Cards        []dom.Element
	ResultsCount dom.Element // 可选
	MobileToggle dom.Element // 可选
}

// Locate 按固定标识在 doc 中查找 Elements。
func Locate(doc dom.Document) Elements {
	var el Elements
	if f, ok := doc.FormByID(FormID); ok {
		el.Form = f
	}
	el.Cards = doc.QueryAll(CardSelector)
	if c, ok := doc.ElementByID(ResultsCountID); ok {
		el.ResultsCount = c
	}
	if t, ok := doc.QueryFirst(MobileToggleSelector); ok {
		el.MobileToggle = t
	}
	return el
}

// Options 是可选依赖；零值可用。
type Options struct {
	Location dom.Location
	Loop     *eventloop.Loop
	Logger   *zap.Logger
	// OnApply 在每次评估结束后调用。
	OnApply func(Result)
}

// Result 是一次评估的结果。
type Result struct {
	Selection domain.Selection
	Visible   []bool // 与 Elements.Cards 一一对应
	Count     int
}

// Engine 是筛选组件。
type Engine struct {
	el      Elements
	loc     dom.Location
	loop    *eventloop.Loop
	log     *zap.Logger
	onApply func(Result)

	mounted bool
}

func New(el Elements, opts Options) *Engine {
	e := &Engine{
		el:      el,
		loc:     opts.Location,
		loop:    opts.Loop,
		log:     opts.Logger,
		onApply: opts.OnApply,
	}
	if e.loop == nil {
		e.loop = eventloop.New()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Loop 返回引擎使用的事件循环（reset 的延迟评估投递在这里）。
func (e *Engine) Loop() *eventloop.Loop { return e.loop }

// Mounted 表示 Mount 是否成功绑定了事件。
func (e *Engine) Mounted() bool { return e.mounted }

// Mount 绑定事件并从 URL 恢复筛选状态。
// 缺少表单或卡片时什么也不做并返回 false。重复调用不会重复绑定。
func (e *Engine) Mount() bool {
	if e.mounted {
		return true
	}
	e.log.Debug("filter engine init",
		zap.Bool("form", e.el.Form != nil),
		zap.Int("cards", len(e.el.Cards)),
		zap.Bool("results_count", e.el.ResultsCount != nil),
	)
	if e.el.Form == nil || len(e.el.Cards) == 0 {
		e.log.Debug("filter engine: missing elements, staying inert")
		return false
	}

	e.el.Form.AddEventListener(dom.EventChange, func(dom.Event) { e.ApplyFilters() })
	e.el.Form.AddEventListener(dom.EventReset, func(dom.Event) { e.loop.Post(e.afterReset) })
	if e.el.MobileToggle != nil {
		e.el.MobileToggle.AddEventListener(dom.EventClick, func(dom.Event) { e.ToggleMobile() })
	}
	e.mounted = true

	e.restoreFromURL()
	return true
}

// restoreFromURL 把与表单字段同名的查询参数写入表单；至少写入一个时执行一次评估。
// 与字段不对应的参数忽略。
func (e *Engine) restoreFromURL() {
	if e.loc == nil {
		return
	}
	applied := 0
	for _, p := range urlstate.Decode(e.loc.Search()) {
		f, ok := e.el.Form.Field(p.Key)
		if !ok {
			continue
		}
		f.SetValue(p.Value)
		applied++
	}
	if applied > 0 {
		e.ApplyFilters()
	}
}

// Selection 从表单当前值构造筛选选择（空值丢弃）。
func (e *Engine) Selection() domain.Selection {
	if e.el.Form == nil {
		return domain.Selection{}
	}
	return domain.NewSelection(e.el.Form.Entries())
}

// ApplyFilters 执行一次评估：计算每张卡片的可见性、更新计数、把选择写回 URL。
func (e *Engine) ApplyFilters() Result {
	sel := e.Selection()
	res := Result{
		Selection: sel,
		Visible:   make([]bool, len(e.el.Cards)),
	}

	if ce := e.log.Check(zap.DebugLevel, "applying filters"); ce != nil {
		ce.Write(zap.Any("filters", sel.Params()))
	}

	for i, card := range e.el.Cards {
		ok := filter.Matches(card, sel)
		res.Visible[i] = ok
		if ok {
			card.RemoveAttr("hidden")
			res.Count++
		} else {
			card.SetAttr("hidden", "")
		}
		e.log.Debug("card", zap.String("id", domain.CardID(card)), zap.Bool("visible", ok))
	}
	e.log.Debug("visible count", zap.Int("count", res.Count))

	if e.el.ResultsCount != nil {
		e.el.ResultsCount.SetText(strconv.Itoa(res.Count))
	}
	urlstate.Write(e.loc, sel)

	if e.onApply != nil {
		e.onApply(res)
	}
	return res
}

// afterReset 在 reset 之后的下一轮事件循环执行：此时表单已恢复初始值。
func (e *Engine) afterReset() {
	e.ApplyFilters()
	urlstate.Clear(e.loc)
}

// ToggleMobile 切换移动端筛选面板的展开状态；不影响筛选结果。
func (e *Engine) ToggleMobile() {
	t := e.el.MobileToggle
	if t == nil {
		return
	}
	v, _ := t.Attr("aria-expanded")
	t.SetAttr("aria-expanded", strconv.FormatBool(v != "true"))
	if e.el.Form != nil {
		e.el.Form.ToggleClass(openClass)
	}
}
