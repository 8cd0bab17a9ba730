package domain

// ThreadsAuto 是并发数的哨兵值：按可用 CPU 的一半推导。
const ThreadsAuto = "auto"

// RunConfig 是一次 run 启动时捕获的不可变配置（只属于这一次 run）。
type RunConfig struct {
	BaseName  string
	Extended  bool
	FromFile  string
	OutputDir string
	Threads   string
}
