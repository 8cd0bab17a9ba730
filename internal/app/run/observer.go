package run

import (
	"time"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在工作开始前调用一次。
	OnStart(rc domain.RunConfig, services []string, total, workers int)
	// OnItemDone 在某个条目处理完成时调用（done 按完成顺序递增）。
	OnItemDone(done, total int, res domain.ItemResult, dur time.Duration)
}
