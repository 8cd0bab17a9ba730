package precheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/infra/fsx"
	"github.com/John-Robertt/inkbatch/internal/infra/logx"
	"github.com/John-Robertt/inkbatch/internal/infra/output"
)

// Prober 探测网络是否可用（httpx.NetworkAvailable 的函数形式）。
type Prober func(ctx context.Context) bool

// Pinger 是开始工作前必须可达的外部依赖（例如 Redis 缓存）。
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// Network 为 nil 表示跳过网络探测（例如只使用本地 service）。
	Network      Prober
	ManifestPath string
	Output       output.Sink
	Cache        Pinger

	// Info 接收“已创建输出目录”之类的提示；nil 表示丢弃。
	Info func(msg string)
	Log  *logx.Logger
}

// Run 在任何工作开始前执行一次；任何失败都是 precondition_failed。
//
// 除了创建缺失的输出目录（或 bucket），不产生其它副作用。
func Run(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = logx.Nop()
	}
	log = log.WithComponent("precheck")

	if opts.Network != nil && !opts.Network(ctx) {
		return domain.Precondition("网络不可用，请检查网络连接或代理设置", nil)
	}

	if p := strings.TrimSpace(opts.ManifestPath); p != "" {
		if err := fsx.Readable(p); err != nil {
			return domain.Precondition(fmt.Sprintf("清单文件不存在或不可读：%s", p), err)
		}
	}

	if opts.Output != nil {
		created, err := opts.Output.Prepare(ctx)
		if err != nil {
			return domain.Precondition(fmt.Sprintf("输出位置不可写：%s", opts.Output.Location()), err)
		}
		if created {
			log.Info("output created", "location", opts.Output.Location())
			if opts.Info != nil {
				opts.Info(fmt.Sprintf("已创建输出位置：%s", opts.Output.Location()))
			}
		}
	}

	if opts.Cache != nil {
		if err := opts.Cache.Ping(ctx); err != nil {
			return domain.Precondition("结果缓存不可达", err)
		}
	}
	return nil
}
