package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusFilterable = "filterable"
	StatusInert      = "inert"
	StatusFailed     = "failed"
)

const (
	ErrCodeReadFailed        = "read_failed"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodeFetchFailed       = "fetch_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// AuditReport 是 audit 的对外稳定输出（cache/audit.json / stdout JSON）。
type AuditReport struct {
	Path string `json:"path"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary AuditSummary `json:"summary"`
	Items   []PageResult `json:"items"`
}

type AuditSummary struct {
	Filterable   int `json:"filterable"`
	Inert        int `json:"inert"`
	Failed       int `json:"failed"`
	EmptyBuckets int `json:"empty_buckets"`
}

// PageResult 是单个页面的审计结果。
type PageResult struct {
	Page   string `json:"page"` // 相对站点根目录的路径；合成条目为空
	Status string `json:"status"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Cards   int            `json:"cards"`
	Buckets []BucketResult `json:"buckets"`
}

// BucketResult 记录“只选中这一个桶”时可见的卡片数。
type BucketResult struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
	Visible   int    `json:"visible"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 稳定排序：按 page 字典序；page=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *AuditReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Page
		b := r.Items[j].Page
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s AuditSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusFilterable:
			s.Filterable++
			for _, b := range it.Buckets {
				if b.Visible == 0 {
					s.EmptyBuckets++
				}
			}
		case StatusInert:
			s.Inert++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 保证 nil 切片输出为 []，下游不必区分 null。
func (r AuditReport) MarshalJSON() ([]byte, error) {
	type Alias AuditReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []PageResult{}
	}
	for i := range a.Items {
		if a.Items[i].Buckets == nil {
			a.Items[i].Buckets = []BucketResult{}
		}
	}
	return json.Marshal(a)
}
