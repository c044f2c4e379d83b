// Package page 把一张静态页面挂载为“浏览器中的页面”：解析 HTML、在 DOMContentLoaded
// 时挂载筛选引擎与事件上报、排空事件循环，然后读取最终状态。
package page

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/analytics"
	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/dom/htmldom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
	"github.com/bestmoney-nz/bmcompare/internal/engine"
	"github.com/bestmoney-nz/bmcompare/internal/eventloop"
	"github.com/bestmoney-nz/bmcompare/internal/urlstate"
)

// Options 控制一次挂载。
type Options struct {
	// URL 是页面地址（绝对 URL 或 "/path?query"），查询串即要恢复的筛选选择。
	URL      string
	Referrer string

	// Track=true 时挂载事件上报（page_view 会立即上报到 Sink）。
	Track    bool
	Sink     analytics.Sink
	DevHosts []string

	// Render=true 时在结果中附带最终 HTML。
	Render bool

	Context context.Context
	Logger  *zap.Logger
	OnApply func(engine.Result)
}

// Card 是一张卡片的最终状态。
type Card struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

// Result 是页面挂载后的最终状态。
type Result struct {
	Page     string         `json:"page"`
	Title    string         `json:"title"`
	Mounted  bool           `json:"mounted"`
	Filters  []domain.Param `json:"-"`
	Query    string         `json:"query"`
	Location string         `json:"location"`
	Total    int            `json:"total"`
	Visible  int            `json:"visible"`
	Cards    []Card         `json:"cards"`
	// Count 是 results-count 元素的最终文本；页面没有该元素时为空。
	Count string `json:"count,omitempty"`

	// Buckets 是表单为每个维度提供的非空选项值（按维度固定顺序，缺少的维度不出现）。
	Buckets []DimensionOptions `json:"-"`

	HTML []byte `json:"-"`
}

// DimensionOptions 是一个维度字段的可选值。
type DimensionOptions struct {
	Dimension domain.Dimension
	Values    []string
}

// ParseError 表示页面无法解析为 HTML。
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return fmt.Sprintf("parse html: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Mount 解析 body 并按 opts 挂载页面。筛选过程本身不会失败；
// 只有 HTML 解析、URL 解析与渲染输出可能返回错误。
func Mount(body []byte, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	raw := opts.URL
	if raw == "" {
		raw = "/"
	}
	loc, err := dom.NewLocation(raw)
	if err != nil {
		return Result{}, fmt.Errorf("page url %q: %w", raw, err)
	}

	doc, err := htmldom.ParseBytes(body)
	if err != nil {
		return Result{}, &ParseError{Err: err}
	}
	doc.SetReferrer(opts.Referrer)

	loop := eventloop.New()
	els := engine.Locate(doc)
	eng := engine.New(els, engine.Options{
		Location: loc,
		Loop:     loop,
		Logger:   log,
		OnApply:  opts.OnApply,
	})

	var rep *analytics.Reporter
	if opts.Track {
		rep = analytics.NewReporter(opts.Sink, loc, analytics.Options{
			Context:  opts.Context,
			DevHosts: opts.DevHosts,
			Logger:   log,
		})
	}

	doc.AddEventListener(dom.EventDOMContentLoaded, func(dom.Event) {
		eng.Mount()
		if rep != nil {
			rep.Mount(doc)
		}
	})
	doc.Ready()
	loop.RunPending()

	res := collect(doc, loc, els, eng)
	if opts.Render {
		var buf bytes.Buffer
		if err := doc.Render(&buf); err != nil {
			return Result{}, fmt.Errorf("render html: %w", err)
		}
		res.HTML = buf.Bytes()
	}
	return res, nil
}

func collect(doc *htmldom.Document, loc *dom.MemoryLocation, els engine.Elements, eng *engine.Engine) Result {
	sel := eng.Selection()
	res := Result{
		Page:     loc.Pathname(),
		Title:    doc.Title(),
		Mounted:  eng.Mounted(),
		Filters:  sel.Params(),
		Query:    urlstate.Encode(sel),
		Location: loc.Href(),
		Total:    len(els.Cards),
		Cards:    make([]Card, 0, len(els.Cards)),
	}
	for _, c := range els.Cards {
		_, hidden := c.Attr("hidden")
		res.Cards = append(res.Cards, Card{ID: domain.CardID(c), Visible: !hidden})
		if !hidden {
			res.Visible++
		}
	}
	if els.ResultsCount != nil {
		res.Count = els.ResultsCount.Text()
	}
	if els.Form != nil {
		for _, d := range domain.Dimensions {
			f, ok := els.Form.Field(string(d))
			if !ok {
				continue
			}
			var vals []string
			for _, v := range f.Options() {
				if v != "" {
					vals = append(vals, v)
				}
			}
			if len(vals) > 0 {
				res.Buckets = append(res.Buckets, DimensionOptions{Dimension: d, Values: vals})
			}
		}
	}
	return res
}

// Query 返回“只选中 dim=value”时的查询 URL（用于审计单个桶）。
func Query(pagePath string, dim domain.Dimension, value string) string {
	sel := domain.NewSelection([]domain.Param{{Key: string(dim), Value: value}})
	q := urlstate.Encode(sel)
	if q == "" {
		return pagePath
	}
	return pagePath + "?" + q
}

// CanonicalQuery 从原始查询串中只保留维度参数（空值丢弃、重复 key 取最后一个值），
// 并按 URL 编码规则重新序列化。
func CanonicalQuery(rawQuery string) string {
	var kept []domain.Param
	for _, p := range urlstate.Decode(rawQuery) {
		for _, d := range domain.Dimensions {
			if p.Key == string(d) {
				kept = append(kept, p)
				break
			}
		}
	}
	return urlstate.Encode(domain.NewSelection(kept))
}
