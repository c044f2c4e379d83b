package filter

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// 与浏览器 parseFloat 一致：跳过前导空白，取最长的合法数字前缀。
var numberPrefixRE = regexp.MustCompile(`^[+-]?(?:Infinity|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)`)

// parseNumber 解析卡片上的数值属性。
// 无法解析出数字时 ok=false（调用方按“不满足”处理）。
func parseNumber(raw string) (float64, bool) {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	m := numberPrefixRE.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// 超出 float64 范围时 ParseFloat 返回 ±Inf 与 ErrRange，语义上仍是数字。
		if errors.Is(err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// cardNumber 读取数值属性；属性缺失、为空或不可解析都视为缺失。
func cardNumber(c domain.Card, name string) (float64, bool) {
	raw, ok := c.Attr(name)
	if !ok || raw == "" {
		return 0, false
	}
	return parseNumber(raw)
}

// cardString 读取字符串属性并规范化为 trim + 小写；缺失时返回空串。
func cardString(c domain.Card, name string) string {
	raw, ok := c.Attr(name)
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
