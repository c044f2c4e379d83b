package domain

import "math"

// Range 是闭区间 [Min, Max]；Max 可以是 +Inf（无上界）。
type Range struct {
	Min float64
	Max float64
}

// Unbounded 是未知桶标签的回退区间 [0, +Inf)。
var Unbounded = Range{Min: 0, Max: math.Inf(1)}

type bucket struct {
	Label string
	Range Range
}

// RangeTable 是固定的“桶标签 -> 数值区间”表。
type RangeTable struct {
	buckets []bucket
}

func newRangeTable(bs ...bucket) RangeTable {
	return RangeTable{buckets: bs}
}

// Lookup 返回 label 对应的区间；未知 label 回退为 Unbounded。
func (t RangeTable) Lookup(label string) Range {
	for _, b := range t.buckets {
		if b.Label == label {
			return b.Range
		}
	}
	return Unbounded
}

// Labels 按表内顺序返回全部桶标签。
func (t RangeTable) Labels() []string {
	out := make([]string, 0, len(t.buckets))
	for _, b := range t.buckets {
		out = append(out, b.Label)
	}
	return out
}

// 以下两张表需要与站点模板中的 <option value> 逐字一致。
var (
	AmountBuckets = newRangeTable(
		bucket{"0-5000", Range{0, 5000}},
		bucket{"5000-10000", Range{5000, 10000}},
		bucket{"10000-25000", Range{10000, 25000}},
		bucket{"25000-50000", Range{25000, 50000}},
		bucket{"50000+", Range{50000, math.Inf(1)}},
	)

	IncomeBuckets = newRangeTable(
		bucket{"0-30000", Range{0, 30000}},
		bucket{"30000-50000", Range{30000, 50000}},
		bucket{"50000-75000", Range{50000, 75000}},
		bucket{"75000-100000", Range{75000, 100000}},
		bucket{"100000+", Range{100000, math.Inf(1)}},
	)
)
