package htmldom

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
)

var _ dom.Element = (*Element)(nil)

// Element 包装单个节点。
type Element struct {
	dom.Listeners

	doc *Document
	sel *goquery.Selection
}

func (e *Element) DispatchEvent(ev dom.Event) { e.Fire(ev) }

func (e *Element) Attr(name string) (string, bool) { return e.sel.Attr(name) }

func (e *Element) SetAttr(name, value string) { e.sel.SetAttr(name, value) }

func (e *Element) RemoveAttr(name string) { e.sel.RemoveAttr(name) }

func (e *Element) Text() string { return e.sel.Text() }

func (e *Element) SetText(text string) { e.sel.SetText(text) }

func (e *Element) HasClass(class string) bool { return e.sel.HasClass(class) }

func (e *Element) ToggleClass(class string) bool {
	e.sel.ToggleClass(class)
	return e.sel.HasClass(class)
}

// Tag 返回小写标签名。
func (e *Element) Tag() string { return goquery.NodeName(e.sel) }
