package domain

// TargetKind 是原始输入经一次分类后的结果（只分类一次，后续按 kind 显式分支）。
type TargetKind string

const (
	KindFile        TargetKind = "file"
	KindURL         TargetKind = "url"
	KindDirectory   TargetKind = "directory"
	KindUnsupported TargetKind = "unsupported"
)

// WorkItem 是一个待处理目标：本地文件路径或 URL。
//
// 不变量：
// - 由 scan 阶段创建，run 阶段消费一次，之后不再修改
// - Index 从 1 开始，对应 WorkList 中的位置（用于 document-N 命名与报告排序）
type WorkItem struct {
	Index  int
	Target string
	Kind   TargetKind
}

// WorkList 保持首次出现顺序；只有目录扫描会过滤掉本工具生成的产物。
type WorkList []WorkItem

// Targets 返回 WorkList 中的原始目标字符串（按顺序）。
func (l WorkList) Targets() []string {
	out := make([]string, 0, len(l))
	for _, it := range l {
		out = append(out, it.Target)
	}
	return out
}
