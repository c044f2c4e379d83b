package domain

import "time"

// 事件名与属性名对外稳定（下游分析报表依赖这些字符串）。
const (
	EventPageView   = "page_view"
	EventCTAClick   = "cta_click"
	EventFilterUsed = "filter_used"
)

const (
	EventAttrPage        = "page"
	EventAttrTitle       = "title"
	EventAttrReferrer    = "referrer"
	EventAttrProviderID  = "provider_id"
	EventAttrButtonText  = "button_text"
	EventAttrFilterName  = "filter_name"
	EventAttrFilterValue = "filter_value"
)

// Event 是转发给分析 sink 的规范化事件记录。
type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	At         time.Time         `json:"at"`
}
