package domain

// 卡片上的 data-* 属性名（完整属性名，含 "data-" 前缀）。
const (
	AttrCoverageTypes = "data-coverage-types"
	AttrCreditScore   = "data-credit-score"
	AttrLoanAmountMin = "data-loan-amount-min"
	AttrLoanAmountMax = "data-loan-amount-max"
	AttrMinIncome     = "data-min-income"

	AttrLenderID   = "data-lender-id"
	AttrProviderID = "data-provider-id"
)

// Card 是一张产品卡片的只读属性视图。
//
// 约束：
// - 卡片由站点生成流程产出，本系统只读；唯一允许的写入是可见性标记（hidden）
// - Attr 的第二个返回值区分“属性不存在”与“属性为空串”
type Card interface {
	Attr(name string) (string, bool)
}

// CardData 是不依赖 DOM 的 Card 实现（测试与离线计算使用）。
type CardData map[string]string

func (c CardData) Attr(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}

// CardID 返回卡片的展示用标识（lender-id 优先，其次 provider-id）。
func CardID(c Card) string {
	if v, ok := c.Attr(AttrLenderID); ok && v != "" {
		return v
	}
	if v, ok := c.Attr(AttrProviderID); ok && v != "" {
		return v
	}
	return ""
}
