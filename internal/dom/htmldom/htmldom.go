// Package htmldom 用 goquery 把静态 HTML 页面实现为 dom.Document。
//
// 约束：
// - 同一个节点总是得到同一个包装对象（监听器挂在包装对象上）
// - 所有状态变化（hidden/selected/value/class/文本）都写回节点，Render 即可得到最终页面
// - 不执行页面脚本
package htmldom

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
)

var _ dom.Document = (*Document)(nil)

// Document 是一张已解析的页面。
type Document struct {
	dom.Listeners

	doc      *goquery.Document
	referrer string

	elems  map[*html.Node]*Element
	fields map[*html.Node]*Field
	forms  map[*html.Node]*Form
}

// Parse 从 r 读取并解析 HTML。
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{
		doc:    doc,
		elems:  make(map[*html.Node]*Element, 64),
		fields: make(map[*html.Node]*Field, 8),
		forms:  make(map[*html.Node]*Form, 1),
	}, nil
}

func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

// SetReferrer 设置 document.referrer（服务端渲染时来自请求头）。
func (d *Document) SetReferrer(ref string) { d.referrer = ref }

func (d *Document) Referrer() string { return d.referrer }

// Title 与 document.title 一致：折叠空白。
func (d *Document) Title() string {
	return collapseSpace(d.doc.Find("title").First().Text())
}

// Ready 派发 DOMContentLoaded。
func (d *Document) Ready() {
	d.DispatchEvent(dom.Event{Type: dom.EventDOMContentLoaded})
}

func (d *Document) DispatchEvent(ev dom.Event) { d.Fire(ev) }

func (d *Document) ElementByID(id string) (dom.Element, bool) {
	s := d.byID(id)
	if s.Length() == 0 {
		return nil, false
	}
	return d.wrap(s), true
}

// FormByID 只接受 <form> 元素。
func (d *Document) FormByID(id string) (dom.Form, bool) {
	s := d.byID(id)
	if s.Length() == 0 || goquery.NodeName(s) != "form" {
		return nil, false
	}
	return d.wrapForm(s), true
}

// QueryAll 按文档顺序返回匹配 selector 的元素；非法 selector 返回空。
func (d *Document) QueryAll(selector string) []dom.Element {
	s := d.doc.Find(selector)
	out := make([]dom.Element, 0, s.Length())
	s.Each(func(_ int, one *goquery.Selection) {
		out = append(out, d.wrap(one))
	})
	return out
}

func (d *Document) QueryFirst(selector string) (dom.Element, bool) {
	s := d.doc.Find(selector).First()
	if s.Length() == 0 {
		return nil, false
	}
	return d.wrap(s), true
}

// Render 把当前节点树（含 doctype）序列化为 HTML。
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) byID(id string) *goquery.Selection {
	return d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}

func (d *Document) wrap(s *goquery.Selection) *Element {
	n := s.Nodes[0]
	if e, ok := d.elems[n]; ok {
		return e
	}
	e := &Element{doc: d, sel: s.First()}
	d.elems[n] = e
	return e
}

func (d *Document) wrapForm(s *goquery.Selection) *Form {
	n := s.Nodes[0]
	if f, ok := d.forms[n]; ok {
		return f
	}
	f := &Form{Element: d.wrap(s)}
	d.forms[n] = f
	return f
}

func (d *Document) wrapField(s *goquery.Selection) *Field {
	n := s.Nodes[0]
	if f, ok := d.fields[n]; ok {
		return f
	}
	f := newField(d.wrap(s))
	d.fields[n] = f
	return f
}

// Click 在 el 上派发 click 事件。
func Click(el dom.Element) {
	el.DispatchEvent(dom.Event{Type: dom.EventClick, Target: el})
}

func collapseSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
