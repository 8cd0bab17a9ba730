package planner

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Workers 根据并发参数与可用处理单元数计算 worker 数（纯函数）。
//
// 规则：
// - "auto"（或空）：max(1, units/2)
// - 整数：max(1, n)
// - 其它：config_invalid
func Workers(threadSpec string, units int) (int, error) {
	spec := strings.ToLower(strings.TrimSpace(threadSpec))
	if spec == "" || spec == domain.ThreadsAuto {
		return max(1, units/2), nil
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, domain.ConfigErr(fmt.Sprintf("非法并发数：%q（期望整数或 %q）", threadSpec, domain.ThreadsAuto), err)
	}
	return max(1, n), nil
}

// Plan 使用本机 CPU 数计算 worker 数。
func Plan(threadSpec string) (int, error) {
	return Workers(threadSpec, runtime.NumCPU())
}

// AssignBases 为每个条目确定输出文件的 base 名（不含 .<service>.<ext>）。
//
// 规则：
// - baseName 非空：<baseName>-<index>
// - 本地文件：文件名去掉扩展名
// - URL：document-<index>
// - 同一输出目录下 base 冲突时追加 __2、__3 ...（按 index 顺序分配，结果确定）
//
// 在启动 worker 之前一次性分配，保证没有两个 worker 写同一路径。
// fixedOutput 为 true 表示所有产物写到同一位置（输出目录或 bucket）。
func AssignBases(list domain.WorkList, baseName string, fixedOutput bool) []string {
	out := make([]string, len(list))
	used := map[string]map[string]struct{}{}
	baseName = strings.TrimSpace(baseName)

	for i, it := range list {
		var base string
		switch {
		case baseName != "":
			base = fmt.Sprintf("%s-%d", baseName, it.Index)
		case it.Kind == domain.KindURL:
			base = fmt.Sprintf("document-%d", it.Index)
		default:
			name := filepath.Base(it.Target)
			base = strings.TrimSuffix(name, filepath.Ext(name))
		}

		// URL 的产物写到当前目录。
		dir := ""
		switch {
		case fixedOutput:
		case it.Kind == domain.KindURL:
			dir = dirKey(".")
		default:
			dir = dirKey(filepath.Dir(it.Target))
		}
		if used[dir] == nil {
			used[dir] = map[string]struct{}{}
		}
		base = allocName(base, used[dir])
		used[dir][base] = struct{}{}
		out[i] = base
	}
	return out
}

// dirKey 让相对路径与绝对路径指向同一目录时得到同一个 key。
func dirKey(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d", name, n)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
