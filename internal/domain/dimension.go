package domain

// Dimension 是一个可筛选维度；取值同时是表单字段名与 URL 查询参数名。
type Dimension string

const (
	DimCoverage Dimension = "coverage"
	DimCredit   Dimension = "credit"
	DimAmount   Dimension = "amount"
	DimIncome   Dimension = "income"
)

// Dimensions 是固定的四个维度，顺序即匹配时的短路顺序。
var Dimensions = []Dimension{DimCoverage, DimCredit, DimAmount, DimIncome}
