package dom

import (
	"net/url"
	"strings"
)

// MemoryLocation 是 Location 的内存实现：当前 URL + 历史条目计数。
type MemoryLocation struct {
	u        *url.URL
	entries  int
	replaced int
}

// NewLocation 以 raw 作为当前页面 URL（可以是绝对 URL，也可以是 "/path?query"）。
func NewLocation(raw string) (*MemoryLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &MemoryLocation{u: u, entries: 1}, nil
}

func (l *MemoryLocation) Pathname() string { return l.u.EscapedPath() }

// Search 返回带前导 '?' 的查询串；无查询时返回空串。
func (l *MemoryLocation) Search() string {
	if l.u.RawQuery == "" {
		return ""
	}
	return "?" + l.u.RawQuery
}

func (l *MemoryLocation) Hostname() string { return l.u.Hostname() }

func (l *MemoryLocation) Href() string { return l.u.String() }

// ReplaceState 以当前 URL 为基准解析 rel 并替换；解析失败时保持不变。
// 片段（#...）不随替换保留。
func (l *MemoryLocation) ReplaceState(rel string) {
	ru, err := url.Parse(strings.TrimSpace(rel))
	if err != nil {
		return
	}
	next := l.u.ResolveReference(ru)
	next.Fragment = ""
	next.RawFragment = ""
	l.u = next
	l.replaced++
}

// HistoryLength 是历史条目数；ReplaceState 不会改变它。
func (l *MemoryLocation) HistoryLength() int { return l.entries }

// Replacements 返回 ReplaceState 被调用的次数。
func (l *MemoryLocation) Replacements() int { return l.replaced }
