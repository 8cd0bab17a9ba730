package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// BatchReport 是对外稳定输出（stdout JSON / report 文件）的结构。
type BatchReport struct {
	RunID    string   `json:"run_id"`
	Services []string `json:"services"`
	Workers  int      `json:"workers"`
	Extended bool     `json:"extended"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	Index  int        `json:"index"`
	Target string     `json:"target"`
	Kind   TargetKind `json:"kind"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Services []ServiceResult `json:"services"`
}

type ServiceResult struct {
	Service    string   `json:"service"`
	Status     string   `json:"status"`
	Confidence *float64 `json:"confidence,omitempty"`
	Cached     bool     `json:"cached"`
	Outputs    []string `json:"outputs"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Failed 判断条目是否失败。
func (r ItemResult) Failed() bool { return r.Status == StatusFailed }

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 index 升序（完成顺序只影响显示，不影响报告）
// 3) summary 由 items 计算得出
func (r *BatchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Index < r.Items[j].Index })

	var s ReportSummary
	for _, it := range r.Items {
		if it.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	r.Summary = s
}

// MarshalJSON 保证 nil slice 输出为 []（调用方通常按数组解析）。
func (r BatchReport) MarshalJSON() ([]byte, error) {
	type Alias BatchReport
	a := Alias(r)
	if a.Services == nil {
		a.Services = []string{}
	}
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
