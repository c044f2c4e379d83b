package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bestmoney-nz/bmcompare/internal/app/audit"
	"github.com/bestmoney-nz/bmcompare/internal/config"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

var _ audit.Observer = (*progressUI)(nil)

// progressUI 是 audit 的交互终端进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：audit 层只发事件，CLI 决定如何展示
// - keepalive：长时间无页面完成时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	inert   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "read-only"
	modeHint := " (不写入缓存/报告)"
	if eff.Write {
		mode = "write"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] bmcompare audit (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 cache/\n", formatStringListJSON(eff.ExcludeDirs))
	fmt.Fprintf(p.w, "  log: %s/%s\n", eff.LogLevel, eff.LogFormat)
	if eff.Write {
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  pages: %s\n", filepath.Join(eff.Path, "cache", "pages"))
		fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(eff.Path, "cache", auditReportName))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: pages=%d (%s)\n", intField(fields, "pages"), formatShortDuration(dur))
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, pagePath string, res domain.PageResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusFilterable:
		p.ok++
		empty := emptyBuckets(res.Buckets)
		note := ""
		if len(empty) > 0 {
			note = " empty=" + truncate(strings.Join(empty, ","), 120)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s OK cards=%d buckets=%d%s (%s)\n",
			idx, total, pagePath, res.Cards, len(res.Buckets), note, formatShortDuration(dur),
		)
	case domain.StatusInert:
		p.inert++
		fmt.Fprintf(p.w, "[%d/%d] %s INERT (无筛选表单或卡片) (%s)\n",
			idx, total, pagePath, formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, pagePath, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, inert, active int, activePages []string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printProgressLocked(done, total, ok, fail, inert, active, elapsed)
	if len(activePages) > 0 {
		fmt.Fprintf(p.w, "  active: %s\n", truncate(strings.Join(activePages, ", "), 160))
	}
}

func (p *progressUI) printProgressLocked(done, total, ok, fail, inert, active int, elapsed time.Duration) {
	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d inert=%d active=%d elapsed=%s\n",
		done, total, ok, fail, inert, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					p.printProgressLocked(p.done, p.total, p.ok, p.fail, p.inert, active, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// emptyBuckets 返回没有任何可见卡片的桶（dimension=value）。
func emptyBuckets(bs []domain.BucketResult) []string {
	var out []string
	for _, b := range bs {
		if b.Visible == 0 {
			out = append(out, b.Dimension+"="+b.Value)
		}
	}
	return out
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
