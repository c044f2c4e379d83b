// Package filter 实现卡片筛选的匹配谓词。
//
// 所有函数都是纯函数，且从不返回错误：属性缺失、数字不可解析、未知桶标签
// 分别降级为“不满足”或“无界区间”。
package filter

import (
	"strings"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// Matches 判断卡片是否满足 sel 中所有已激活的维度（短路与）。
// sel 中没有的维度不参与筛选。
func Matches(card domain.Card, sel domain.Selection) bool {
	if v, ok := sel.Dimension(domain.DimCoverage); ok && !CoverageMatches(card, v) {
		return false
	}
	if v, ok := sel.Dimension(domain.DimCredit); ok && !CreditMatches(card, v) {
		return false
	}
	if v, ok := sel.Dimension(domain.DimAmount); ok && !AmountMatches(card, v) {
		return false
	}
	if v, ok := sel.Dimension(domain.DimIncome); ok && !IncomeMatches(card, v) {
		return false
	}
	return true
}

// CoverageMatches：卡片的保障类型集合（逗号分隔，trim + 小写）必须非空且精确包含 want。
func CoverageMatches(card domain.Card, want string) bool {
	raw := cardString(card, domain.AttrCoverageTypes)
	found := false
	n := 0
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n++
		if part == want {
			found = true
		}
	}
	return n > 0 && found
}

// CreditMatches：卡片的最低信用要求不高于用户所选信用等级时满足。
// 卡片等级缺失/无法识别，或所选等级无法识别，都视为不满足。
func CreditMatches(card domain.Card, want string) bool {
	cardTier := cardString(card, domain.AttrCreditScore)
	if cardTier == "" {
		return false
	}
	ci, ok := domain.CreditIndex(cardTier)
	if !ok {
		return false
	}
	wi, ok := domain.CreditIndex(want)
	if !ok {
		return false
	}
	return ci <= wi
}

// AmountMatches：卡片的 [min,max] 与所选桶区间相交（两端闭）时满足。
func AmountMatches(card domain.Card, bucket string) bool {
	cardMin, ok := cardNumber(card, domain.AttrLoanAmountMin)
	if !ok {
		return false
	}
	cardMax, ok := cardNumber(card, domain.AttrLoanAmountMax)
	if !ok {
		return false
	}
	r := domain.AmountBuckets.Lookup(bucket)
	return cardMin <= r.Max && cardMax >= r.Min
}

// IncomeMatches：只检查桶的上界（cardMinIncome <= bucketMax），桶下界不参与判断。
func IncomeMatches(card domain.Card, bucket string) bool {
	minIncome, ok := cardNumber(card, domain.AttrMinIncome)
	if !ok {
		return false
	}
	r := domain.IncomeBuckets.Lookup(bucket)
	return minIncome <= r.Max
}
