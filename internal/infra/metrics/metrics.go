package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inkbatch"

// 调用结果的取值。
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeCached = "cached"
)

// Recorder 收集一次 run 的指标；结束时写成 node_exporter textfile 格式。
// 所有方法可并发调用（prometheus 的 collector 自带同步）。
type Recorder struct {
	reg *prometheus.Registry

	items    *prometheus.CounterVec
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	workers  prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed work items by final status.",
		}, []string{"status"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_calls_total",
			Help:      "Recognition calls by service and outcome.",
		}, []string{"service", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_call_duration_seconds",
			Help:      "Latency of recognition calls that reached the service.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"service"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Size of the worker pool for this run.",
		}),
	}
	r.reg.MustRegister(r.items, r.calls, r.duration, r.workers)
	return r
}

func (r *Recorder) SetWorkers(n int) { r.workers.Set(float64(n)) }

func (r *Recorder) ItemDone(status string) { r.items.WithLabelValues(status).Inc() }

// ServiceCall 记录一次调用；cached 的调用不计入耗时直方图。
func (r *Recorder) ServiceCall(service, outcome string, d time.Duration) {
	r.calls.WithLabelValues(service, outcome).Inc()
	if outcome != OutcomeCached {
		r.duration.WithLabelValues(service).Observe(d.Seconds())
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile 原子写出 textfile（prometheus 内部使用临时文件 + rename）。
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
