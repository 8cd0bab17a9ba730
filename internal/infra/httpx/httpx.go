package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRetryMax  = 2
	defaultRateRetry = 5

	// UserAgent 会附加在所有未显式设置 UA 的请求上。
	UserAgent = "inkbatch/1.0 (+https://github.com/John-Robertt/inkbatch)"

	// DefaultProbeURL 是网络可用性探测的默认地址。
	DefaultProbeURL = "http://www.google.com"
)

// Transport 把“UA + 代理 + 有界重试 + 429 退避”固化为统一策略。
//
// 设计目标：service 只负责“组请求 + 解析响应”，不关心网络策略细节。
type Transport struct {
	Base http.RoundTripper

	// RetryMax 表示网络错误时的最大重试次数（不含首次尝试），仅对无 body 的 GET/HEAD 生效；
	// POST 在网络错误后不会重发。
	RetryMax int

	// RateRetryMax 表示 HTTP 429 时的最大重试次数；每次等待 RateBackoff*(n+1)，
	// 若响应带 Retry-After（秒）则以其为准。
	RateRetryMax int
	RateBackoff  time.Duration

	// sleep 可替换，便于测试不真实等待。
	sleep func(ctx context.Context, d time.Duration) error
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	noBody := req.Body == nil || req.Body == http.NoBody
	idempotent := (req.Method == http.MethodGet || req.Method == http.MethodHead) && noBody
	netMax := t.RetryMax
	if netMax < 0 || !idempotent {
		netMax = 0
	}
	// 429 时 body 可重放的 POST 也会重发。
	replayable := noBody || req.GetBody != nil
	rateMax := t.RateRetryMax
	if rateMax < 0 || !replayable {
		rateMax = 0
	}

	var (
		lastErr  error
		netTries int
		rateHits int
	)
	for {
		r, err := cloneRequest(req)
		if err != nil {
			return nil, err
		}
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil || netTries >= netMax {
				// ctx 已取消或重试已用尽：直接返回最后错误（更可解释）。
				return nil, lastErr
			}
			netTries++
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests || rateHits >= rateMax {
			return resp, nil
		}

		wait := retryAfter(resp.Header.Get("Retry-After"))
		if wait <= 0 {
			wait = t.backoff() * time.Duration(rateHits+1)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		rateHits++
		if err := t.doSleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) backoff() time.Duration {
	if t.RateBackoff > 0 {
		return t.RateBackoff
	}
	return 5 * time.Second
}

func (t *Transport) doSleep(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

// Options 描述 client 的网络策略。
type Options struct {
	ProxyURL string
	Timeout  time.Duration
}

// NewClient 构造用于 service 调用与 URL 下载的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 有界重试 + 429 退避 + 总超时
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	proxyURL := strings.TrimSpace(opts.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy url 缺少 scheme 或 host")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &http.Client{
		Transport: &Transport{
			Base:         base,
			RetryMax:     defaultRetryMax,
			RateRetryMax: defaultRateRetry,
		},
		Timeout: timeout,
	}, nil
}

// NetworkAvailable 通过一次 GET 探测网络是否可用（任何 HTTP 响应都算可用）。
func NetworkAvailable(ctx context.Context, c *http.Client, probeURL string) bool {
	if c == nil {
		return false
	}
	if strings.TrimSpace(probeURL) == "" {
		probeURL = DefaultProbeURL
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
