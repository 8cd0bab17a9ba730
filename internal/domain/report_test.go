package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestBatchReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := BatchReport{
		RunID:      "r1",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Index: 3, Target: "c.png", Status: StatusOK},
			{Index: 1, Target: "a.png", Status: StatusOK},
			{Index: 2, Target: "b.png", Status: StatusFailed},
		},
	}

	r.Finalize()

	if r.Items[0].Index != 1 || r.Items[1].Index != 2 || r.Items[2].Index != 3 {
		t.Fatalf("items 排序不符合契约：%v", []int{r.Items[0].Index, r.Items[1].Index, r.Items[2].Index})
	}
	if r.Summary.Succeeded != 2 || r.Summary.Failed != 1 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestBatchReport_MarshalJSON_NilSlicesAsArrays(t *testing.T) {
	b, err := json.Marshal(BatchReport{})
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"items":[]`)) || !bytes.Contains(b, []byte(`"services":[]`)) {
		t.Fatalf("nil slice 应输出为 []：%s", string(b))
	}
}
