// Package audit 逐页评估站点上的筛选表单：对每个页面、每个维度的每个选项单独应用筛选，
// 记录可见卡片数，找出“选了就什么都看不到”的空桶。
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bestmoney-nz/bmcompare/internal/app/page"
	"github.com/bestmoney-nz/bmcompare/internal/config"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
	"github.com/bestmoney-nz/bmcompare/internal/infra/cache"
	"github.com/bestmoney-nz/bmcompare/internal/scan"
	"github.com/bestmoney-nz/bmcompare/internal/source"
)

// Execute 执行一次 audit，并返回对外稳定的 AuditReport。
// 单个页面的失败降级为 item 级失败，不影响其他页面。
func Execute(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger) domain.AuditReport {
	return ExecuteWithObserver(ctx, eff, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer) domain.AuditReport {
	if log == nil {
		log = zap.NewNop()
	}
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(eff)
	}

	ar := domain.AuditReport{
		Path:      eff.Path,
		StartedAt: started,
		Items:     make([]domain.PageResult, 0, 64),
	}

	// write=false 时缓存只读：audit 不落盘。
	store := cache.New(eff.Path, !eff.Write)

	scanStarted := time.Now()
	pages, err := scan.ScanPages(eff.Path, eff.ExcludeDirs)
	if err != nil {
		ar.Items = append(ar.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		ar.FinishedAt = time.Now().UTC()
		ar.Finalize()
		return ar
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"pages": len(pages)}, time.Since(scanStarted))
	}

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(pages),
		}, 0)
	}

	type execResult struct {
		page string
		res  domain.PageResult
		dur  time.Duration
	}

	jobs := make(chan domain.PageFile)
	results := make(chan execResult, len(pages))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				oneStarted := time.Now()
				r := auditOne(ctx, p, store, log)
				results <- execResult{page: p.RelPath, res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, p := range pages {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		ar.Items = append(ar.Items, it.res)
		if obs != nil {
			obs.OnItemDone(done, len(pages), it.page, it.res, it.dur)
		}
	}

	ar.FinishedAt = time.Now().UTC()
	ar.Finalize()
	return ar
}

func auditOne(ctx context.Context, p domain.PageFile, store cache.Store, log *zap.Logger) domain.PageResult {
	out := domain.PageResult{Page: p.RelPath}

	if err := ctx.Err(); err != nil {
		return failed(out, domain.ErrCodeIOFailed, fmt.Sprintf("已取消：%v", err))
	}

	src, err := source.ReadFile(p.AbsPath)
	if err != nil {
		return failed(out, domain.ErrCodeReadFailed, fmt.Sprintf("读取页面失败：%v", err))
	}

	base, err := page.Mount(src.Body, page.Options{URL: p.URLPath, Logger: log})
	if err != nil {
		return failed(out, codeFor(err), err.Error())
	}
	out.Cards = base.Total
	if !base.Mounted {
		out.Status = domain.StatusInert
		return out
	}

	out.Status = domain.StatusFilterable
	for _, dim := range base.Buckets {
		for _, v := range dim.Values {
			if err := ctx.Err(); err != nil {
				return failed(out, domain.ErrCodeIOFailed, fmt.Sprintf("已取消：%v", err))
			}
			res, err := page.Mount(src.Body, page.Options{
				URL:    page.Query(p.URLPath, dim.Dimension, v),
				Logger: log,
				Render: !store.ReadOnly,
			})
			if err != nil {
				return failed(out, codeFor(err), err.Error())
			}
			out.Buckets = append(out.Buckets, domain.BucketResult{
				Dimension: string(dim.Dimension),
				Value:     v,
				Visible:   res.Visible,
			})

			if store.ReadOnly {
				continue
			}
			key := cache.PageKey{Page: p.URLPath, Query: res.Query, ModUnix: p.ModUnix, Size: p.Size}
			if err := store.WritePage(key, res.HTML); err != nil {
				return failed(out, domain.ErrCodeIOFailed, fmt.Sprintf("写入渲染缓存失败：%v", err))
			}
		}
	}

	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("page audited", zap.String("page", p.RelPath), zap.Int("cards", out.Cards), zap.Int("buckets", len(out.Buckets)))
	}
	return out
}

func codeFor(err error) string {
	var pe *page.ParseError
	if errors.As(err, &pe) {
		return domain.ErrCodeParseFailed
	}
	return domain.ErrCodeReadFailed
}

func failed(r domain.PageResult, code, msg string) domain.PageResult {
	r.Status = domain.StatusFailed
	r.ErrorCode = code
	r.ErrorMsg = msg
	r.Buckets = nil
	return r
}

func syntheticFailed(code, msg string) domain.PageResult {
	return domain.PageResult{
		Page:      "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}
