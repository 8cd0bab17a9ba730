package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/inkbatch/internal/app/run"
	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/infra/cache"
	"github.com/John-Robertt/inkbatch/internal/infra/imgx"
	"github.com/John-Robertt/inkbatch/internal/infra/logx"
	"github.com/John-Robertt/inkbatch/internal/infra/metrics"
	"github.com/John-Robertt/inkbatch/internal/infra/output"
	"github.com/John-Robertt/inkbatch/internal/service"
)

const (
	contentText  = "text/plain; charset=utf-8"
	contentJPEG  = "image/jpeg"
	contentJSON  = "application/json"
	stagePrepare = "prepare"
)

// Recorder 是单次 service 调用的指标接口（metrics.Recorder 满足它）。
type Recorder interface {
	ServiceCall(service, outcome string, d time.Duration)
}

type Options struct {
	Services []service.Service
	Output   output.Sink
	Extended bool

	// 以下可选。
	Client  *http.Client // URL 目标必需
	Cache   cache.Store
	Metrics Recorder
	Log     *logx.Logger
}

// Processor 实现 run.Processor：加载一个条目，并把它交给所有选中的 service。
type Processor struct {
	opts Options
	log  *logx.Logger
}

var _ run.Processor = (*Processor)(nil)

func New(opts Options) *Processor {
	log := opts.Log
	if log == nil {
		log = logx.Nop()
	}
	return &Processor{opts: opts, log: log.WithComponent("process")}
}

// Process 处理单个条目。
//
// 规则：
// - 加载失败：条目失败（load_failed），不调用任何 service
// - 各 service 并发执行，彼此不取消；写入路径按 service 区分，互不冲突
// - 任一 service 失败则条目失败；成功 service 的产物保留
func (p *Processor) Process(ctx context.Context, j run.Job, sink run.Sink) domain.ItemResult {
	res := domain.ItemResult{
		Index:    j.Item.Index,
		Target:   j.Item.Target,
		Kind:     j.Item.Kind,
		Status:   domain.StatusOK,
		Services: make([]domain.ServiceResult, len(p.opts.Services)),
	}

	src, err := loadItem(ctx, p.opts.Client, j.Item)
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeLoadFailed
		res.ErrorMsg = fmt.Sprintf("无法读取 %s：%s", j.Item.Target, loadMessage(err))
		res.Services = []domain.ServiceResult{}
		return res
	}

	if j.Item.Kind == domain.KindURL {
		name := j.Base + "." + src.Ext
		loc, err := p.opts.Output.Put(ctx, output.Object{Dir: src.Dir, Name: name, Data: src.Data, ContentType: src.ContentType})
		if err != nil {
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeWriteFailed
			res.ErrorMsg = fmt.Sprintf("保存下载的图片失败：%v", err)
			res.Services = []domain.ServiceResult{}
			return res
		}
		sink.Info(fmt.Sprintf("已下载 %s（%s）→ %s", j.Item.Target, humanize.Bytes(uint64(len(src.Data))), loc))
	}

	// 不使用 errgroup.WithContext：一个 service 失败不应取消其它 service。
	var g errgroup.Group
	for i, s := range p.opts.Services {
		i, s := i, s
		g.Go(func() error {
			res.Services[i] = p.runService(ctx, s, j, src, sink)
			return nil
		})
	}
	_ = g.Wait()

	var msgs []string
	for _, sr := range res.Services {
		if sr.Status == domain.StatusFailed {
			if res.ErrorCode == "" {
				res.ErrorCode = sr.ErrorCode
			}
			msgs = append(msgs, sr.ErrorMsg)
		}
	}
	if len(msgs) > 0 {
		res.Status = domain.StatusFailed
		res.ErrorMsg = strings.Join(msgs, "；")
	}
	return res
}

func (p *Processor) runService(ctx context.Context, s service.Service, j run.Job, src source, sink run.Sink) domain.ServiceResult {
	name := strings.ToLower(s.Name())
	sr := domain.ServiceResult{Service: name, Status: domain.StatusOK, Outputs: []string{}}
	log := p.log.With("index", j.Item.Index, "service", name)

	lim := s.Limits()
	img, err := imgx.Normalize(j.Base, src.Data, imgx.Limits{MaxBytes: lim.MaxBytes, MaxDimension: lim.MaxDimension})
	if err != nil {
		err = &service.Error{Service: name, Stage: stagePrepare, Err: err}
		return failed(sr, domain.ErrCodeLoadFailed, service.Humanize(err))
	}

	key := cache.Key(img.Data)
	rec, hit := p.cached(ctx, name, key, log)
	if hit {
		sr.Cached = true
		p.record(name, metrics.OutcomeCached, 0)
	} else {
		started := time.Now()
		rec, err = service.Recognize(ctx, s, img)
		if err != nil {
			p.record(name, metrics.OutcomeFailed, time.Since(started))
			log.Debug("recognize failed", "err", err)
			return failed(sr, domain.ErrCodeServiceFailed, service.Humanize(err))
		}
		p.record(name, metrics.OutcomeOK, time.Since(started))
	}
	sr.Confidence = rec.Confidence

	objs := []output.Object{
		{Dir: src.Dir, Name: j.Base + "." + name + ".txt", Data: []byte(rec.Text), ContentType: contentText},
		{Dir: src.Dir, Name: j.Base + "." + name + ".jpg", Data: img.Data, ContentType: contentJPEG},
	}
	if p.opts.Extended {
		raw, err := rawJSON(rec)
		if err != nil {
			return failed(sr, domain.ErrCodeWriteFailed, fmt.Sprintf("%s 原始响应无法序列化：%v", name, err))
		}
		objs = append(objs, output.Object{Dir: src.Dir, Name: j.Base + "." + name + ".json", Data: raw, ContentType: contentJSON})
	}
	for _, o := range objs {
		loc, err := p.opts.Output.Put(ctx, o)
		if err != nil {
			return failed(sr, domain.ErrCodeWriteFailed, fmt.Sprintf("写入 %s 失败：%v", o.Name, err))
		}
		sr.Outputs = append(sr.Outputs, loc)
	}

	if !hit && p.opts.Cache != nil {
		if err := p.opts.Cache.Put(ctx, name, key, rec); err != nil && !errors.Is(err, cache.ErrReadOnly) {
			log.Warn("cache put failed", "err", err)
		}
	}

	note := ""
	if hit {
		note = "（缓存）"
	}
	sink.Info(fmt.Sprintf("%s%s：%s → %s", name, note, j.Item.Target, filepath.Base(sr.Outputs[0])))
	return sr
}

func (p *Processor) cached(ctx context.Context, name, key string, log *logx.Logger) (domain.Recognition, bool) {
	if p.opts.Cache == nil {
		return domain.Recognition{}, false
	}
	rec, ok, err := p.opts.Cache.Get(ctx, name, key)
	if err != nil {
		// 缓存不可用不影响识别。
		log.Warn("cache get failed", "err", err)
		return domain.Recognition{}, false
	}
	return rec, ok
}

func (p *Processor) record(name, outcome string, d time.Duration) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.ServiceCall(name, outcome, d)
	}
}

func failed(sr domain.ServiceResult, code, msg string) domain.ServiceResult {
	sr.Status = domain.StatusFailed
	sr.ErrorCode = code
	sr.ErrorMsg = msg
	return sr
}

// rawJSON 优先使用 service 的原始响应；没有原始响应时输出归一化结果。
func rawJSON(rec domain.Recognition) ([]byte, error) {
	if len(rec.Raw) > 0 && json.Valid(rec.Raw) {
		return rec.Raw, nil
	}
	return json.MarshalIndent(rec, "", "  ")
}

func loadMessage(err error) string {
	var hs *service.HTTPStatusError
	if errors.As(err, &hs) {
		return fmt.Sprintf("HTTP %d", hs.StatusCode)
	}
	return err.Error()
}
