package run

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/inkbatch/internal/app/planner"
	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/infra/logx"
	"github.com/John-Robertt/inkbatch/internal/service"
)

// Job 是分配给 worker 的一个条目及其预先确定的输出 base 名。
type Job struct {
	Item domain.WorkItem
	Base string
}

// Processor 处理单个条目（加载图片、调用各 service、写产物）。
//
// 约束：
// - 必须把所有失败折叠进返回的 ItemResult，而不是 panic/返回 error
// - sink 只属于这一个条目；最终失败的 warning 由 Manager 统一输出
type Processor interface {
	Process(ctx context.Context, job Job, sink Sink) domain.ItemResult
}

// Recorder 是 Manager 需要的指标接口（metrics.Recorder 满足它）。
type Recorder interface {
	SetWorkers(n int)
	ItemDone(status string)
}

// Manager 是批处理的编排核心。
type Manager struct {
	Processor Processor
	Sink      Sink

	// 以下均可选。
	Observer Observer
	Metrics  Recorder
	Log      *logx.Logger
	RunID    string
}

// Run 以 workers 个并发 worker 处理 list，并返回最终报告。
//
// 规则（硬约束）：
// - list 为空：返回 no_work，且不做任何 service 调用
// - 单个条目的任何失败（含 panic）只体现在 ItemResult 中，不中断 batch
// - 每个条目的输出先缓存，完成后由收集 goroutine 整块写入 Sink
// - 多条目且非 quiet 时，每个条目块之前、以及全部结束后各输出一条分隔线
func (m *Manager) Run(ctx context.Context, list domain.WorkList, sel service.Selection, workers int, rc domain.RunConfig) (domain.BatchReport, error) {
	if len(list) == 0 {
		return domain.BatchReport{}, domain.NoWork("没有可处理的目标")
	}
	if m.Processor == nil {
		return domain.BatchReport{}, domain.ConfigErr("未配置 Processor", nil)
	}
	if workers < 1 {
		workers = 1
	}

	sink := m.Sink
	if sink == nil {
		sink = DiscardSink{}
	}
	log := m.Log
	if log == nil {
		log = logx.Nop()
	}
	runID := m.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.WithRunID(runID).WithComponent("run")

	names := sel.Names()
	rep := domain.BatchReport{
		RunID:     runID,
		Services:  names,
		Workers:   workers,
		Extended:  rc.Extended,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, len(list)),
	}

	sink.Info(startSummary(names, len(list), workers, rc.Extended))
	if m.Observer != nil {
		m.Observer.OnStart(rc, names, len(list), workers)
	}
	if m.Metrics != nil {
		m.Metrics.SetWorkers(workers)
	}
	log.Debug("batch start", "items", len(list), "workers", workers, "services", strings.Join(names, ","))

	quiet := sink.BeQuiet()
	separate := len(list) > 1 && !quiet
	bases := planner.AssignBases(list, rc.BaseName, strings.TrimSpace(rc.OutputDir) != "")

	type result struct {
		res domain.ItemResult
		buf *itemSink
		dur time.Duration
	}

	jobs := make(chan Job)
	results := make(chan result, len(list))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				started := time.Now()
				buf := newItemSink(quiet)
				r := m.processOne(ctx, j, buf, log)
				results <- result{res: r, buf: buf, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for i, it := range list {
			jobs <- Job{Item: it, Base: bases[i]}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		if separate {
			sink.Msg(Separator, StyleDark)
		}
		r.buf.flush(sink)
		if r.res.Failed() {
			sink.Warn(fmt.Sprintf("%s 处理失败：%s", r.res.Target, r.res.ErrorMsg))
		}

		rep.Items = append(rep.Items, r.res)
		if m.Metrics != nil {
			m.Metrics.ItemDone(r.res.Status)
		}
		if m.Observer != nil {
			m.Observer.OnItemDone(done, len(list), r.res, r.dur)
		}
		log.Debug("item done", "index", r.res.Index, "status", r.res.Status, "error_code", r.res.ErrorCode, "dur", r.dur)
	}
	if separate {
		sink.Msg(Separator, StyleDark)
	}

	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	log.Debug("batch done", "succeeded", rep.Summary.Succeeded, "failed", rep.Summary.Failed)
	return rep, nil
}

func (m *Manager) processOne(ctx context.Context, j Job, buf *itemSink, log *logx.Logger) (res domain.ItemResult) {
	base := domain.ItemResult{
		Index:    j.Item.Index,
		Target:   j.Item.Target,
		Kind:     j.Item.Kind,
		Services: []domain.ServiceResult{},
	}

	if err := ctx.Err(); err != nil {
		base.Status = domain.StatusFailed
		base.ErrorCode = domain.ErrCodeCanceled
		base.ErrorMsg = "运行已取消"
		return base
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("item panic", "index", j.Item.Index, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			res = base
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodePanic
			res.ErrorMsg = fmt.Sprintf("内部错误：%v", p)
		}
	}()

	res = m.Processor.Process(ctx, j, buf)
	// 条目身份以 WorkItem 为准，Processor 不负责回填。
	res.Index, res.Target, res.Kind = j.Item.Index, j.Item.Target, j.Item.Kind
	if res.Status == "" {
		res.Status = domain.StatusOK
	}
	if res.Services == nil {
		res.Services = []domain.ServiceResult{}
	}
	return res
}

func startSummary(services []string, total, workers int, extended bool) string {
	ext := ""
	if extended {
		ext = "，并输出原始响应（extended）"
	}
	return fmt.Sprintf("将使用 %s 处理 %d 个目标（%d 个 worker）%s", strings.Join(services, ", "), total, workers, ext)
}
