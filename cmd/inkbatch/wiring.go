package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/inkbatch/internal/app/planner"
	"github.com/John-Robertt/inkbatch/internal/app/precheck"
	"github.com/John-Robertt/inkbatch/internal/app/process"
	"github.com/John-Robertt/inkbatch/internal/app/run"
	"github.com/John-Robertt/inkbatch/internal/config"
	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/infra/cache"
	"github.com/John-Robertt/inkbatch/internal/infra/httpx"
	"github.com/John-Robertt/inkbatch/internal/infra/logx"
	"github.com/John-Robertt/inkbatch/internal/infra/metrics"
	"github.com/John-Robertt/inkbatch/internal/infra/output"
	"github.com/John-Robertt/inkbatch/internal/scan"
	"github.com/John-Robertt/inkbatch/internal/service"
	"github.com/John-Robertt/inkbatch/internal/service/google"
	"github.com/John-Robertt/inkbatch/internal/service/microsoft"
	"github.com/John-Robertt/inkbatch/internal/service/tesseract"
)

// execute 按固定顺序组装一次 run：
// config -> registry/selection -> planner -> precheck -> scan -> run。
// 返回 error 的情况都发生在任何条目开始之前。
func (a *app) execute(ctx context.Context, ra runArgs) (domain.BatchReport, error) {
	eff, err := a.loadConfig(ra)
	if err != nil {
		return domain.BatchReport{}, err
	}

	log := logx.New(logx.Config{Level: eff.LogLevel, Format: eff.LogFormat, Output: a.stderr})
	con := newConsole(a.stderr, eff.Quiet, isTTY(a.stderr))
	con.proxyURL = eff.ProxyURL
	defer con.Close()

	client, err := httpx.NewClient(httpx.Options{ProxyURL: eff.ProxyURL, Timeout: eff.Timeout})
	if err != nil {
		return domain.BatchReport{}, domain.ConfigErr("proxy 配置无效", err)
	}

	reg, err := buildRegistry(ctx, eff, client)
	if err != nil {
		return domain.BatchReport{}, err
	}
	sel, err := service.NewSelection(reg, eff.Services)
	if err != nil {
		return domain.BatchReport{}, err
	}
	if err := requireAvailable(sel); err != nil {
		return domain.BatchReport{}, err
	}

	workers, err := planner.Plan(eff.Run.Threads)
	if err != nil {
		return domain.BatchReport{}, err
	}

	out, err := output.New(eff.Run.OutputDir, output.S3Options{
		Endpoint:  eff.S3.Endpoint,
		AccessKey: eff.S3.AccessKey,
		SecretKey: eff.S3.SecretKey,
		Region:    eff.S3.Region,
		UseSSL:    eff.S3.UseSSL,
	})
	if err != nil {
		return domain.BatchReport{}, domain.ConfigErr("输出位置无效", err)
	}

	store, pinger, closeCache, err := openCache(eff)
	if err != nil {
		return domain.BatchReport{}, err
	}
	defer closeCache()

	pre := precheck.Options{
		ManifestPath: eff.Run.FromFile,
		Output:       out,
		Cache:        pinger,
		Info:         con.Info,
		Log:          log,
	}
	if needsNetwork(sel) {
		pre.Network = func(ctx context.Context) bool {
			return httpx.NetworkAvailable(ctx, client, eff.ProbeURL)
		}
	}
	if err := precheck.Run(ctx, pre); err != nil {
		return domain.BatchReport{}, err
	}

	resolver := scan.Resolver{
		Formats:       service.AcceptedFormats,
		KnownServices: reg.Names(),
		Recursive:     eff.Recursive,
		Warn:          con.Warn,
	}
	list, err := resolver.Resolve(ra.Targets, eff.Run.FromFile)
	if err != nil {
		return domain.BatchReport{}, err
	}

	popts := process.Options{
		Services: sel.Services(),
		Output:   out,
		Extended: eff.Run.Extended,
		Client:   client,
		Cache:    store,
		Log:      log,
	}
	mgr := &run.Manager{Sink: con, Log: log}
	var rec *metrics.Recorder
	if eff.MetricsFile != "" {
		rec = metrics.New()
		popts.Metrics = rec
		mgr.Metrics = rec
	}
	mgr.Processor = process.New(popts)
	if con.interactive && !eff.Quiet {
		mgr.Observer = con
	}

	rep, err := mgr.Run(ctx, list, sel, workers, eff.Run)
	if err != nil {
		return domain.BatchReport{}, err
	}
	if rec != nil {
		if err := rec.WriteTextfile(eff.MetricsFile); err != nil {
			con.Warn(fmt.Sprintf("写入指标文件失败：%v", err))
		}
	}
	return rep, nil
}

func (a *app) loadConfig(ra runArgs) (config.EffectiveConfig, error) {
	env, err := config.LoadEnv(a.cwd)
	if err != nil {
		return config.EffectiveConfig{}, err
	}
	return config.LoadEffective(a.cwd, config.CLIArgs{
		ConfigPath:   ra.ConfigPath,
		Services:     ra.Services,
		BaseName:     ra.BaseName,
		FromFile:     ra.FromFile,
		Output:       ra.Output,
		Threads:      ra.Threads,
		Extended:     ra.Extended,
		ExtendedSet:  ra.ExtendedSet,
		Recursive:    ra.Recursive,
		RecursiveSet: ra.RecursiveSet,
		Quiet:        ra.Quiet,
		Debug:        ra.Debug,
		MetricsFile:  ra.MetricsFile,
		RedisURL:     ra.RedisURL,
		NoCache:      ra.NoCache,
	}, env)
}

// unavailable 占住未配置凭据（或未编译）的 service 名称：
// 注册表里始终有全部已知 service，scan 才能识别所有 <base>.<service>.jpg 产物。
type unavailable struct {
	name   string
	reason error
}

func (u *unavailable) Name() string           { return u.name }
func (u *unavailable) Limits() service.Limits { return service.Limits{} }
func (u *unavailable) Recognize(context.Context, domain.Image) (domain.Recognition, error) {
	return domain.Recognition{}, u.reason
}

func buildRegistry(ctx context.Context, eff config.EffectiveConfig, client *http.Client) (service.Registry, error) {
	var all []service.Service

	if eff.Google.APIKey != "" || eff.Google.CredentialsFile != "" {
		g, err := google.New(ctx, google.Options{
			Credentials: google.Credentials{APIKey: eff.Google.APIKey, CredentialsFile: eff.Google.CredentialsFile},
			Client:      client,
			Endpoint:    eff.Google.Endpoint,
		})
		if err != nil {
			return service.Registry{}, domain.ConfigErr("初始化 google 失败", err)
		}
		all = append(all, g)
	} else {
		all = append(all, &unavailable{name: google.Name, reason: fmt.Errorf("缺少凭据（%s 或 %s）", config.EnvGoogleAPIKey, config.EnvGoogleCredentials)})
	}

	if eff.Microsoft.Endpoint != "" && eff.Microsoft.Key != "" {
		m, err := microsoft.New(microsoft.Options{Endpoint: eff.Microsoft.Endpoint, SubscriptionKey: eff.Microsoft.Key, Client: client})
		if err != nil {
			return service.Registry{}, domain.ConfigErr("初始化 microsoft 失败", err)
		}
		all = append(all, m)
	} else {
		all = append(all, &unavailable{name: microsoft.Name, reason: fmt.Errorf("缺少凭据（%s 与 %s）", config.EnvAzureEndpoint, config.EnvAzureKey)})
	}

	if tesseract.Available() {
		ts, err := tesseract.New(tesseract.Options{Languages: eff.Tesseract.Languages, Variables: eff.Tesseract.Variables})
		if err != nil {
			return service.Registry{}, domain.ConfigErr("初始化 tesseract 失败", err)
		}
		all = append(all, ts)
	} else {
		all = append(all, &unavailable{name: tesseract.Name, reason: tesseract.ErrNotBuilt})
	}

	reg, err := service.NewRegistry(all...)
	if err != nil {
		return service.Registry{}, domain.ConfigErr("初始化 service 注册表失败", err)
	}
	return reg, nil
}

// requireAvailable 让“选中了但不可用”的 service 在开始工作前失败。
func requireAvailable(sel service.Selection) error {
	for _, s := range sel.Services() {
		if u, ok := s.(*unavailable); ok {
			return domain.ConfigErr(fmt.Sprintf("service %s 不可用：%v", u.name, u.reason), nil)
		}
	}
	return nil
}

// needsNetwork：只选了本地 service 时跳过网络探测。
func needsNetwork(sel service.Selection) bool {
	for _, s := range sel.Services() {
		if s.Name() != tesseract.Name {
			return true
		}
	}
	return false
}

func openCache(eff config.EffectiveConfig) (cache.Store, precheck.Pinger, func(), error) {
	nop := func() {}
	switch {
	case eff.RedisURL != "":
		opt, err := redis.ParseURL(eff.RedisURL)
		if err != nil {
			return nil, nil, nop, domain.ConfigErr("redis 地址无效", err)
		}
		rs := cache.NewRedis(redis.NewClient(opt), cache.DefaultRedisPrefix, eff.CacheTTL)
		return rs, rs, func() { _ = rs.Close() }, nil
	case eff.CacheDir != "":
		return cache.NewFile(eff.CacheDir, eff.CacheReadOnly), nil, nop, nil
	default:
		return nil, nil, nop, nil
	}
}

func (a *app) servicesCmd(ctx context.Context) int {
	eff, err := a.loadConfig(runArgs{})
	if err != nil {
		a.fatal(err)
		return 1
	}
	reg, err := buildRegistry(ctx, eff, http.DefaultClient)
	if err != nil {
		a.fatal(err)
		return 1
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	for _, name := range reg.Names() {
		s, _ := reg.Get(name)
		status := "可用"
		if u, ok := s.(*unavailable); ok {
			status = "不可用：" + u.reason.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, status)
	}
	_ = tw.Flush()
	fmt.Fprintf(a.stdout, "\n支持的图片格式：%s\n", strings.Join(scan.SortedFormats(service.AcceptedFormats), " "))
	return 0
}
