package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/inkbatch/internal/app/run"
	"github.com/John-Robertt/inkbatch/internal/domain"
)

var (
	_ run.Sink     = (*console)(nil)
	_ run.Observer = (*console)(nil)
)

// console 是面向用户的终端输出：既是 run.Sink，也是交互模式下的 run.Observer。
//
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - quiet 时只保留 Warn
// - keepalive：长时间无条目完成时定期输出一行进度
type console struct {
	w           io.Writer
	quiet       bool
	interactive bool
	proxyURL    string

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newConsole(w io.Writer, quiet, interactive bool) *console {
	return &console{
		w:                  w,
		quiet:              quiet,
		interactive:        interactive,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

func (c *console) Info(msg string) {
	if c.quiet {
		return
	}
	c.println(msg, "")
}

func (c *console) Warn(msg string) {
	c.println("警告："+msg, ansiYellow)
}

func (c *console) Msg(text, style string) {
	if c.quiet {
		return
	}
	switch style {
	case run.StyleDark:
		c.println(text, ansiDim)
	case run.StyleError:
		c.println(text, ansiRed)
	default:
		c.println(text, "")
	}
}

func (c *console) BeQuiet() bool { return c.quiet }

func (c *console) println(text, color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if color != "" && c.interactive {
		text = color + text + ansiReset
	}
	fmt.Fprintln(c.w, text)
	c.lastPrinted = time.Now()
}

func (c *console) OnStart(rc domain.RunConfig, services []string, total, workers int) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		c.startedAt = now
	}
	c.workers = workers
	c.total = total

	out := rc.OutputDir
	if out == "" {
		out = "（与输入文件同目录）"
	}
	fmt.Fprintf(c.w, "[%s] inkbatch run\n", now.Format("15:04:05"))
	fmt.Fprintln(c.w, "配置（生效）:")
	fmt.Fprintf(c.w, "  services: %s\n", strings.Join(services, ", "))
	fmt.Fprintf(c.w, "  targets: %d\n", total)
	fmt.Fprintf(c.w, "  workers: %d\n", workers)
	fmt.Fprintf(c.w, "  output: %s\n", out)
	if rc.BaseName != "" {
		fmt.Fprintf(c.w, "  base_name: %s\n", rc.BaseName)
	}
	fmt.Fprintf(c.w, "  extended: %s\n", onOff(rc.Extended))
	fmt.Fprintf(c.w, "  proxy: %s\n", formatProxy(c.proxyURL))
	fmt.Fprintln(c.w)

	c.lastPrinted = time.Now()
	if total > 0 && !c.tickerStarted {
		c.startTickerLocked()
	}
}

func (c *console) OnItemDone(done, total int, res domain.ItemResult, dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.done = done
	c.total = total
	if res.Failed() {
		c.fail++
		fmt.Fprintf(c.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			done, total, truncate(res.Target, 80), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	} else {
		c.ok++
		fmt.Fprintf(c.w, "[%d/%d] %s OK services=%d (%s)\n",
			done, total, truncate(res.Target, 80), len(res.Services), formatShortDuration(dur),
		)
	}
	c.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if c.tickerStarted && c.done >= c.total {
		c.stopTickerLocked()
	}
}

// Close 停止 keepalive（提前失败时 OnItemDone 不会走到最后一条）。
func (c *console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickerStarted {
		c.stopTickerLocked()
	}
}

func (c *console) stopTickerLocked() {
	close(c.stopCh)
	c.tickerStarted = false
}

func (c *console) startTickerLocked() {
	c.stopCh = make(chan struct{})
	c.tickerStarted = true
	stop := c.stopCh

	interval := c.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := c.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				c.mu.Lock()
				if c.total > 0 && c.done >= c.total {
					c.mu.Unlock()
					return
				}
				if c.total > 0 && time.Since(c.lastPrinted) > threshold {
					active := min(c.workers, c.total-c.done)
					fmt.Fprintf(c.w, "进度: done=%d/%d ok=%d fail=%d active=%d elapsed=%s\n",
						c.done, c.total, c.ok, c.fail, active, formatElapsed(time.Since(c.startedAt)),
					)
					c.lastPrinted = time.Now()
				}
				c.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按 rune 计数截断，不会切开多字节字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
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
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
