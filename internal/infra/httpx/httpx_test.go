package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	base := tr.Base.(*http.Transport)
	if base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 DisableKeepAlives=false")
	}
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	base := c.Transport.(*Transport).Base.(*http.Transport)
	if base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if c.Timeout != defaultTimeout {
		t.Fatalf("期望默认超时 %s，实际 %s", defaultTimeout, c.Timeout)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := NewClient(Options{ProxyURL: "127.0.0.1"}); err == nil {
		t.Fatalf("缺少 scheme 的代理地址应报错")
	}
}

func TestTransport_RetriesOn429ThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.Header.Get("User-Agent") != UserAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := &http.Client{Transport: &Transport{
		Base:         http.DefaultTransport,
		RateRetryMax: 3,
		RateBackoff:  time.Second,
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}}

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望最终 200，实际 %d", resp.StatusCode)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("退避时长不符合预期：%v", slept)
	}
}

func TestTransport_429ExhaustedReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := &http.Client{Transport: &Transport{
		Base:         http.DefaultTransport,
		RateRetryMax: 1,
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}}

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("重试用尽后应返回 429，实际 %d", resp.StatusCode)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("应遵守 Retry-After：%v", slept)
	}
}

func TestNetworkAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	url := srv.URL

	if !NetworkAvailable(context.Background(), srv.Client(), url) {
		t.Fatalf("期望网络可用")
	}
	srv.Close()
	if NetworkAvailable(context.Background(), &http.Client{Timeout: time.Second}, url) {
		t.Fatalf("服务器关闭后期望网络不可用")
	}
	if NetworkAvailable(context.Background(), nil, url) {
		t.Fatalf("nil client 应视为不可用")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// flaky 第一次调用读完 body 后返回网络错误，之后返回 200。
func flaky(calls *int32) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		if r.Body != nil {
			_, _ = io.Copy(io.Discard, r.Body)
		}
		if atomic.AddInt32(calls, 1) == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	}
}

func TestTransport_PostNotResentOnNetworkError(t *testing.T) {
	var calls int32
	tr := &Transport{Base: flaky(&calls), RetryMax: defaultRetryMax, RateRetryMax: defaultRateRetry}

	req, err := http.NewRequest(http.MethodPost, "https://vision.example/vision/v3.2/read/analyze", strings.NewReader("image"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := tr.RoundTrip(req)
	if err == nil {
		resp.Body.Close()
		t.Fatalf("期望返回网络错误，实际 status=%d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("POST 只能提交一次，实际 %d 次", n)
	}
}

func TestTransport_GetRetriedOnNetworkError(t *testing.T) {
	var calls int32
	tr := &Transport{Base: flaky(&calls), RetryMax: defaultRetryMax}

	req, err := http.NewRequest(http.MethodGet, "https://example.org/page.jpg", nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("期望重试一次（共 2 次），实际 %d 次", n)
	}
}

func TestTransport_PostRetriedOn429(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != "image" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := &http.Client{Transport: &Transport{
		Base:         http.DefaultTransport,
		RateRetryMax: 2,
		sleep:        func(context.Context, time.Duration) error { return nil },
	}}
	resp, err := c.Post(srv.URL, "application/octet-stream", strings.NewReader("image"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if n := atomic.LoadInt32(&hits); resp.StatusCode != http.StatusAccepted || n != 2 {
		t.Fatalf("期望 429 后重放 body 并成功，实际 status=%d hits=%d", resp.StatusCode, n)
	}
}
