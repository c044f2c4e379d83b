// Package analytics 上报页面交互事件（页面浏览、CTA 点击、筛选使用）。
//
// Reporter 没有内部状态：每次 Report 直接转发给 sink，sink 缺失或失败时跳过。
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// TrackClickAttr 标记需要上报点击的元素；属性值即 provider_id。
const (
	TrackClickAttr     = "data-track-click"
	TrackClickSelector = "[" + TrackClickAttr + "]"
	FilterFormID       = "comparison-filters"
)

// DefaultDevHosts 是默认的本地开发主机名：在这些主机上事件同时写入本地日志。
var DefaultDevHosts = []string{"localhost", "127.0.0.1"}

// Sink 接收规范化的事件记录。
type Sink interface {
	Send(ctx context.Context, ev domain.Event) error
}

// Options 是可选依赖；零值可用。
type Options struct {
	// Context 用于 sink 调用；默认 context.Background()。
	Context context.Context
	// DevHosts 为 nil 时使用 DefaultDevHosts。
	DevHosts []string
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

// Reporter 是事件上报组件，页面挂载时构造一次。
type Reporter struct {
	sink Sink
	loc  dom.Location

	ctx      context.Context
	devHosts []string
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewReporter 构造 Reporter；sink 为 nil 表示没有外部分析服务。
func NewReporter(sink Sink, loc dom.Location, opts Options) *Reporter {
	r := &Reporter{
		sink:     sink,
		loc:      loc,
		ctx:      opts.Context,
		devHosts: opts.DevHosts,
		log:      opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if r.ctx == nil {
		r.ctx = context.Background()
	}
	if r.devHosts == nil {
		r.devHosts = DefaultDevHosts
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Report 转发一个事件。sink 存在时转发（失败只记 warn）；在本地开发主机上
// 无论 sink 是否存在都写一条 Info 日志。
func (r *Reporter) Report(name string, attrs map[string]string) {
	r.Emit(name, attrs)
}

// Emit 与 Report 相同，但返回打上 ID 与时间戳的事件记录。
func (r *Reporter) Emit(name string, attrs map[string]string) domain.Event {
	ev := domain.Event{
		ID:         r.newID(),
		Name:       name,
		Attributes: copyAttrs(attrs),
		At:         r.now().UTC(),
	}
	if r.sink != nil {
		if err := r.sink.Send(r.ctx, ev); err != nil {
			r.log.Warn("analytics sink failed", zap.String("event", name), zap.Error(err))
		}
	}
	if r.isDevHost() {
		r.log.Info("Analytics Event", zap.String("event", name), zap.Any("data", attrs))
	}
	return ev
}

func (r *Reporter) isDevHost() bool {
	if r.loc == nil {
		return false
	}
	host := strings.ToLower(r.loc.Hostname())
	for _, h := range r.devHosts {
		if host == strings.ToLower(h) {
			return true
		}
	}
	return false
}

// Mount 绑定 CTA 点击与筛选变化，并上报一次 page_view。
func (r *Reporter) Mount(doc dom.Document) {
	for _, el := range doc.QueryAll(TrackClickSelector) {
		el := el
		el.AddEventListener(dom.EventClick, func(dom.Event) {
			id, _ := el.Attr(TrackClickAttr)
			r.Report(domain.EventCTAClick, map[string]string{
				domain.EventAttrProviderID: id,
				domain.EventAttrPage:       r.page(),
				domain.EventAttrButtonText: strings.TrimSpace(el.Text()),
			})
		})
	}

	if form, ok := doc.FormByID(FilterFormID); ok {
		form.AddEventListener(dom.EventChange, func(ev dom.Event) {
			name, value := targetNameValue(ev.Target)
			r.Report(domain.EventFilterUsed, map[string]string{
				domain.EventAttrFilterName:  name,
				domain.EventAttrFilterValue: value,
				domain.EventAttrPage:        r.page(),
			})
		})
	}

	r.Report(domain.EventPageView, map[string]string{
		domain.EventAttrPage:     r.page(),
		domain.EventAttrTitle:    doc.Title(),
		domain.EventAttrReferrer: doc.Referrer(),
	})
}

func (r *Reporter) page() string {
	if r.loc == nil {
		return ""
	}
	return r.loc.Pathname()
}

func targetNameValue(t dom.Element) (string, string) {
	if t == nil {
		return "", ""
	}
	if f, ok := t.(dom.Field); ok {
		return f.Name(), f.Value()
	}
	name, _ := t.Attr("name")
	value, _ := t.Attr("value")
	return name, value
}

func copyAttrs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
