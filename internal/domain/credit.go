package domain

// CreditTier 是信用等级。
type CreditTier string

const (
	CreditPoor      CreditTier = "poor"
	CreditFair      CreditTier = "fair"
	CreditGood      CreditTier = "good"
	CreditExcellent CreditTier = "excellent"
)

// CreditScale 从低到高排列。
var CreditScale = []CreditTier{CreditPoor, CreditFair, CreditGood, CreditExcellent}

// CreditIndex 返回 s 在 CreditScale 中的位置；只接受精确匹配（小写）。
func CreditIndex(s string) (int, bool) {
	for i, t := range CreditScale {
		if string(t) == s {
			return i, true
		}
	}
	return -1, false
}
