package domain

// Recognition 是某个 service 对一张图片的识别结果（已归一化）。
//
// 约束：
// - Text 允许为空（图片里确实没有文字），但结构必须稳定
// - Confidence 为 nil 表示 service 没有给出置信度（不是 0）
// - Raw 保存 service 原始响应，仅在 extended 模式下落盘
type Recognition struct {
	Service     string   `json:"service"`
	Text        string   `json:"text"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Raw         []byte   `json:"raw,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
}

// Image 是提交给 service 的图片（已按该 service 的限制做过归一化）。
type Image struct {
	Name   string // 便于日志/错误信息定位，通常是输出 base 名
	Data   []byte
	Format string // "jpeg" / "png" ...
	Width  int
	Height int
}
