package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

func sel(kv ...string) domain.Selection {
	ps := make([]domain.Param, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ps = append(ps, domain.Param{Key: kv[i], Value: kv[i+1]})
	}
	return domain.NewSelection(ps)
}

func TestMatches_EmptySelectionMatchesEverything(t *testing.T) {
	assert.True(t, Matches(domain.CardData{}, sel()))
	assert.True(t, Matches(domain.CardData{domain.AttrCreditScore: "junk"}, sel("unrelated", "x")))
}

func TestMatches_FailClosedOnMissingAttribute(t *testing.T) {
	empty := domain.CardData{}
	cases := []domain.Selection{
		sel("coverage", "comprehensive"),
		sel("credit", "excellent"),
		sel("amount", "0-5000"),
		sel("income", "100000+"),
	}
	for _, s := range cases {
		assert.False(t, Matches(empty, s), "%+v", s.Params())
	}

	// 数值属性为空串 / 不可解析同样视为缺失。
	assert.False(t, Matches(domain.CardData{domain.AttrMinIncome: ""}, sel("income", "100000+")))
	assert.False(t, Matches(domain.CardData{domain.AttrMinIncome: "n/a"}, sel("income", "100000+")))
	assert.False(t, Matches(domain.CardData{domain.AttrLoanAmountMin: "1000"}, sel("amount", "0-5000")))
}

func TestCoverageMatches(t *testing.T) {
	card := domain.CardData{domain.AttrCoverageTypes: " Comprehensive , Third-Party,,fire-theft "}
	assert.True(t, CoverageMatches(card, "comprehensive"))
	assert.True(t, CoverageMatches(card, "third-party"))
	assert.True(t, CoverageMatches(card, "fire-theft"))
	assert.False(t, CoverageMatches(card, "Comprehensive"), "所选值不做大小写归一")
	assert.False(t, CoverageMatches(card, "third"))
	assert.False(t, CoverageMatches(domain.CardData{domain.AttrCoverageTypes: " , "}, ""))
}

func TestCreditMatches_MonotonicInSelectedTier(t *testing.T) {
	tiers := []string{"poor", "fair", "good", "excellent"}
	for ci, cardTier := range tiers {
		card := domain.CardData{domain.AttrCreditScore: cardTier}
		prev := false
		for ui, userTier := range tiers {
			got := CreditMatches(card, userTier)
			assert.Equal(t, ci <= ui, got, "card=%s user=%s", cardTier, userTier)
			if prev {
				assert.True(t, got, "随用户等级升高不应从满足变为不满足")
			}
			prev = got
		}
	}
}

func TestCreditMatches_UnknownTiers(t *testing.T) {
	assert.False(t, CreditMatches(domain.CardData{domain.AttrCreditScore: "platinum"}, "excellent"))
	assert.False(t, CreditMatches(domain.CardData{domain.AttrCreditScore: "fair"}, "superb"))
	assert.True(t, CreditMatches(domain.CardData{domain.AttrCreditScore: " FAIR "}, "good"), "卡片值 trim + 小写")
}

func TestAmountMatches_WideCardMatchesEveryBucket(t *testing.T) {
	card := domain.CardData{domain.AttrLoanAmountMin: "0", domain.AttrLoanAmountMax: "100000"}
	for _, b := range domain.AmountBuckets.Labels() {
		assert.True(t, AmountMatches(card, b), b)
	}
}

func TestAmountMatches_BoundaryInclusiveOverlap(t *testing.T) {
	cases := []struct {
		min, max string
		want     bool
	}{
		{"5000", "10000", true}, // 10000 >= 10000
		{"15000", "20000", true},
		{"30000", "60000", false},
		{"25000", "30000", true}, // 25000 <= 25000
		{"0", "9999", false},
	}
	for _, c := range cases {
		card := domain.CardData{domain.AttrLoanAmountMin: c.min, domain.AttrLoanAmountMax: c.max}
		assert.Equal(t, c.want, AmountMatches(card, "10000-25000"), "%s-%s", c.min, c.max)
	}
}

func TestAmountMatches_UnknownBucketIsUnbounded(t *testing.T) {
	card := domain.CardData{domain.AttrLoanAmountMin: "1", domain.AttrLoanAmountMax: "2"}
	assert.True(t, AmountMatches(card, "bogus"))
}

func TestIncomeMatches_UpperBoundOnly(t *testing.T) {
	card := func(v string) domain.CardData { return domain.CardData{domain.AttrMinIncome: v} }

	assert.False(t, IncomeMatches(card("40000"), "0-30000"))
	assert.True(t, IncomeMatches(card("30000"), "0-30000"))
	// 桶下界不参与：要求 10000 的卡片在 75000-100000 桶里仍可见。
	assert.True(t, IncomeMatches(card("10000"), "75000-100000"))
	assert.True(t, IncomeMatches(card("500000"), "100000+"))
	assert.True(t, IncomeMatches(card("500000"), "unknown"))
}

func TestMatches_ShortCircuitAcrossDimensions(t *testing.T) {
	card := domain.CardData{
		domain.AttrCoverageTypes: "comprehensive",
		domain.AttrCreditScore:   "fair",
	}
	assert.True(t, Matches(card, sel("coverage", "comprehensive", "credit", "good")))
	assert.False(t, Matches(card, sel("coverage", "comprehensive", "credit", "poor")))
	assert.False(t, Matches(card, sel("coverage", "comprehensive", "amount", "0-5000")))
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5000", 5000, true},
		{"  42.5", 42.5, true},
		{"5000abc", 5000, true},
		{"1e3", 1000, true},
		{"1e", 1, true},
		{".5", 0.5, true},
		{"-7", -7, true},
		{"abc", 0, false},
		{"   ", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumber(c.in)
		require.Equal(t, c.ok, ok, "%q", c.in)
		if ok {
			assert.Equal(t, c.want, got, "%q", c.in)
		}
	}

	got, ok := parseNumber("Infinity")
	require.True(t, ok)
	assert.True(t, math.IsInf(got, 1))
}
