package audit

import (
	"time"

	"github.com/bestmoney-nz/bmcompare/internal/config"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// Observer 用于把“运行进度/阶段/页面结果”从核心执行流程中解耦出来。
//
// 约束：
// - audit 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个页面审计完成时调用。
	OnItemDone(idx, total int, page string, res domain.PageResult, dur time.Duration)
	// OnProgress 用于 keepalive（由 CLI 自己 ticker 触发；audit 层不调用）。
	OnProgress(done, total, ok, fail, inert, active int, activePages []string, elapsed time.Duration)
}
