// Package urlstate 负责筛选选择与页面查询串之间的双向同步。
package urlstate

import (
	"net/url"
	"strings"

	"github.com/bestmoney-nz/bmcompare/internal/dom"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// Encode 按 application/x-www-form-urlencoded（与 URLSearchParams 相同的字符集）序列化，
// 保持 sel 的顺序；不带前导 '?'。
func Encode(sel domain.Selection) string {
	var b strings.Builder
	for i, p := range sel.Params() {
		if i > 0 {
			b.WriteByte('&')
		}
		writeComponent(&b, p.Key)
		b.WriteByte('=')
		writeComponent(&b, p.Value)
	}
	return b.String()
}

// Decode 解析查询串（可带前导 '?'），保持顺序与重复项。
// 非法的百分号转义按原样保留，不报错。
func Decode(search string) []domain.Param {
	search = strings.TrimPrefix(search, "?")
	if search == "" {
		return nil
	}
	out := make([]domain.Param, 0, 4)
	for _, part := range strings.Split(search, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out = append(out, domain.Param{Key: unescape(k), Value: unescape(v)})
	}
	return out
}

// Write 把 sel 写回 loc：pathname + ("?" + query，非空时)，只替换当前历史记录。
func Write(loc dom.Location, sel domain.Selection) {
	if loc == nil {
		return
	}
	target := loc.Pathname()
	if q := Encode(sel); q != "" {
		target += "?" + q
	}
	loc.ReplaceState(target)
}

// Clear 清空查询串。
func Clear(loc dom.Location) {
	Write(loc, domain.Selection{})
}

const hexUpper = "0123456789ABCDEF"

func writeComponent(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case isFormSafe(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexUpper[c>>4])
			b.WriteByte(hexUpper[c&15])
		}
	}
}

func isFormSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '*', c == '-', c == '.', c == '_':
		return true
	}
	return false
}

func unescape(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return v
}
