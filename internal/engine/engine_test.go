package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/dom/htmldom"
)

const formHTML = `<form id="comparison-filters">
  <select name="coverage">
    <option value="">Any</option>
    <option value="comprehensive">Comprehensive</option>
    <option value="third-party">Third party</option>
  </select>
  <select name="credit">
    <option value="">Any</option>
    <option value="poor">Poor</option>
    <option value="fair">Fair</option>
    <option value="good">Good</option>
    <option value="excellent">Excellent</option>
  </select>
  <select name="amount">
    <option value="">Any</option>
    <option value="0-5000">0-5000</option>
    <option value="5000-10000">5000-10000</option>
    <option value="10000-25000">10000-25000</option>
    <option value="25000-50000">25000-50000</option>
    <option value="50000+">50000+</option>
  </select>
  <select name="income">
    <option value="">Any</option>
    <option value="0-30000">0-30000</option>
    <option value="100000+">100000+</option>
  </select>
</form>`

type fixture struct {
	doc *htmldom.Document
	loc *dom.MemoryLocation
	eng *Engine
}

func pageWith(cards ...string) string {
	return `<!DOCTYPE html><html><head><title>Compare</title></head><body>
<button class="filter-toggle-mobile" aria-expanded="false">Filters</button>
` + formHTML + `
<p><span id="results-count">` + fmt.Sprint(len(cards)) + `</span> results</p>
` + strings.Join(cards, "\n") + `
</body></html>`
}

func card(id string, attrs string) string {
	return `<article class="lender-card" data-lender-id="` + id + `" ` + attrs + `>` + id + `</article>`
}

func mount(t *testing.T, src, rawURL string) fixture {
	t.Helper()
	doc, err := htmldom.ParseBytes([]byte(src))
	require.NoError(t, err)
	loc, err := dom.NewLocation(rawURL)
	require.NoError(t, err)

	eng := New(Locate(doc), Options{Location: loc, Logger: zaptest.NewLogger(t)})
	eng.Mount()
	return fixture{doc: doc, loc: loc, eng: eng}
}

func (f fixture) form(t *testing.T) *htmldom.Form {
	t.Helper()
	fm, ok := f.doc.FormByID(FormID)
	require.True(t, ok)
	return fm.(*htmldom.Form)
}

func (f fixture) visibleIDs() []string {
	var out []string
	for _, c := range f.doc.QueryAll(CardSelector) {
		if _, hidden := c.Attr("hidden"); hidden {
			continue
		}
		id, _ := c.Attr("data-lender-id")
		out = append(out, id)
	}
	return out
}

func (f fixture) count(t *testing.T) string {
	t.Helper()
	el, ok := f.doc.ElementByID(ResultsCountID)
	require.True(t, ok)
	return el.Text()
}

var loanCards = []string{
	card("a", `data-loan-amount-min="5000" data-loan-amount-max="10000" data-credit-score="fair" data-min-income="20000"`),
	card("b", `data-loan-amount-min="15000" data-loan-amount-max="20000" data-credit-score="good" data-min-income="40000"`),
	card("c", `data-loan-amount-min="30000" data-loan-amount-max="60000" data-credit-score="excellent" data-min-income="30000"`),
}

func TestMount_InertWithoutFormOrCards(t *testing.T) {
	doc, err := htmldom.ParseBytes([]byte(`<html><body>` + card("a", "") + `</body></html>`))
	require.NoError(t, err)
	loc, _ := dom.NewLocation("/loans/?amount=0-5000")
	e := New(Locate(doc), Options{Location: loc})
	assert.False(t, e.Mount())
	assert.False(t, e.Mounted())
	assert.Equal(t, 0, loc.Replacements(), "惰性组件不应改写 URL")

	doc, err = htmldom.ParseBytes([]byte(pageWith()))
	require.NoError(t, err)
	e = New(Locate(doc), Options{Location: loc})
	assert.False(t, e.Mount())
}

func TestApplyFilters_AmountOverlapBoundaryInclusive(t *testing.T) {
	f := mount(t, pageWith(loanCards...), "https://bestmoney.co.nz/personal-loans/")

	require.True(t, f.form(t).Change("amount", "10000-25000"))

	assert.Equal(t, []string{"a", "b"}, f.visibleIDs())
	assert.Equal(t, "2", f.count(t))
	assert.Equal(t, "?amount=10000-25000", f.loc.Search())
}

func TestApplyFilters_ResultMirrorsDOM(t *testing.T) {
	var seen []Result
	doc, err := htmldom.ParseBytes([]byte(pageWith(loanCards...)))
	require.NoError(t, err)
	loc, _ := dom.NewLocation("/personal-loans/")
	e := New(Locate(doc), Options{Location: loc, OnApply: func(r Result) { seen = append(seen, r) }})
	require.True(t, e.Mount())
	require.Empty(t, seen, "无查询参数时挂载不应评估")

	fm, _ := doc.FormByID(FormID)
	fl, _ := fm.Field("credit")
	fl.SetValue("fair")
	r := e.ApplyFilters()

	assert.Equal(t, []bool{true, false, false}, r.Visible)
	assert.Equal(t, 1, r.Count)
	require.Len(t, seen, 1)
	v, _ := r.Selection.Get("credit")
	assert.Equal(t, "fair", v)
}

func TestApplyFilters_FailClosedOnMissingAttributes(t *testing.T) {
	f := mount(t, pageWith(
		card("full", `data-coverage-types="comprehensive, third-party"`),
		card("bare", ``),
	), "/car-insurance/")

	f.form(t).Change("coverage", "third-party")
	assert.Equal(t, []string{"full"}, f.visibleIDs())

	f.form(t).Change("coverage", "")
	assert.Equal(t, []string{"full", "bare"}, f.visibleIDs(), "清空选择后全部可见")
	assert.Equal(t, "", f.loc.Search())
}

func TestURLRoundTrip_RestoresSameVisibleSet(t *testing.T) {
	cards := []string{
		card("x", `data-coverage-types="comprehensive" data-credit-score="good"`),
		card("y", `data-coverage-types="comprehensive" data-credit-score="excellent"`),
		card("z", `data-coverage-types="third-party" data-credit-score="poor"`),
	}
	first := mount(t, pageWith(cards...), "https://bestmoney.co.nz/car-insurance/")
	first.form(t).Change("coverage", "comprehensive")
	first.form(t).Change("credit", "good")

	assert.Equal(t, "?coverage=comprehensive&credit=good", first.loc.Search())
	want := first.visibleIDs()
	assert.Equal(t, []string{"x"}, want)

	second := mount(t, pageWith(cards...), first.loc.Href())
	assert.Equal(t, want, second.visibleIDs())

	cov, _ := second.form(t).Field("coverage")
	assert.Equal(t, "comprehensive", cov.Value())
	assert.Equal(t, first.loc.Search(), second.loc.Search())
	assert.Equal(t, 1, second.loc.HistoryLength())
}

func TestRestoreFromURL_IgnoresUnknownParams(t *testing.T) {
	f := mount(t, pageWith(loanCards...), "/personal-loans/?utm_source=news")

	assert.Equal(t, 0, f.loc.Replacements(), "没有写入任何字段时不评估")
	assert.Equal(t, "?utm_source=news", f.loc.Search())
	assert.Equal(t, []string{"a", "b", "c"}, f.visibleIDs())
}

func TestReset_DeferredToNextTick(t *testing.T) {
	f := mount(t, pageWith(loanCards...), "/personal-loans/?credit=poor")
	assert.Empty(t, f.visibleIDs())

	f.form(t).Reset()
	assert.Empty(t, f.visibleIDs(), "reset 之后、下一轮事件循环之前不应重新评估")
	assert.Equal(t, "?credit=poor", f.loc.Search())
	assert.Equal(t, 1, f.eng.Loop().Len())

	f.eng.Loop().RunPending()
	assert.Equal(t, []string{"a", "b", "c"}, f.visibleIDs())
	assert.Equal(t, "", f.loc.Search())
	assert.Equal(t, "3", f.count(t))
}

func TestReset_Idempotent(t *testing.T) {
	once := mount(t, pageWith(loanCards...), "/personal-loans/?amount=0-5000&income=0-30000")
	once.form(t).Reset()
	once.eng.Loop().RunPending()

	twice := mount(t, pageWith(loanCards...), "/personal-loans/?amount=0-5000&income=0-30000")
	twice.form(t).Reset()
	twice.form(t).Reset()
	twice.eng.Loop().RunPending()

	assert.Equal(t, once.visibleIDs(), twice.visibleIDs())
	assert.Equal(t, once.loc.Search(), twice.loc.Search())
	assert.Equal(t, once.count(t), twice.count(t))
	assert.Equal(t, []string{"a", "b", "c"}, twice.visibleIDs())
	assert.Equal(t, "", twice.loc.Search())
}

func TestToggleMobile_FlipsAriaAndClass(t *testing.T) {
	f := mount(t, pageWith(loanCards...), "/personal-loans/")
	toggle, ok := f.doc.QueryFirst(MobileToggleSelector)
	require.True(t, ok)
	fm := f.form(t)

	htmldom.Click(toggle)
	v, _ := toggle.Attr("aria-expanded")
	assert.Equal(t, "true", v)
	assert.True(t, fm.HasClass("is-open"))

	htmldom.Click(toggle)
	v, _ = toggle.Attr("aria-expanded")
	assert.Equal(t, "false", v)
	assert.False(t, fm.HasClass("is-open"))

	assert.Equal(t, 0, f.loc.Replacements(), "展开/收起不影响筛选")
}

func TestMount_Idempotent(t *testing.T) {
	var n int
	doc, err := htmldom.ParseBytes([]byte(pageWith(loanCards...)))
	require.NoError(t, err)
	loc, _ := dom.NewLocation("/personal-loans/")
	e := New(Locate(doc), Options{Location: loc, OnApply: func(Result) { n++ }})
	require.True(t, e.Mount())
	require.True(t, e.Mount())

	fm, _ := doc.FormByID(FormID)
	fm.(*htmldom.Form).Change("credit", "good")
	assert.Equal(t, 1, n, "重复 Mount 不应重复绑定 change 监听器")
}
