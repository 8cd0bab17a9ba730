package scan

import (
	"bufio"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Resolver 把用户给出的原始目标解析为 WorkList。
//
// Formats / KnownServices 是启动时确定的不可变表（service.AcceptedFormats、Registry.Names()），
// 由调用方注入，而不是在这里读全局变量。
type Resolver struct {
	Formats       []string
	KnownServices []string
	Recursive     bool

	// Warn 接收非致命的跳过提示；nil 表示丢弃。
	Warn func(msg string)
}

// Resolve 解析目标。
//
// 规则（硬约束）：
// - manifestPath 非空：逐行读取，去掉行尾换行，每个非空行原样成为一个条目（不过滤、不检查存在性）；
//   同时给出的 inputs 被忽略并 warn
// - 否则逐个输入按 Classify 分支：URL/受支持的文件直接接受；目录展开；其余 warn 后跳过
// - 保持输入顺序；只有目录展开会过滤本工具生成的产物（<base>.<service>.jpg）
// - 结果为空返回 no_work
func (r Resolver) Resolve(inputs []string, manifestPath string) (domain.WorkList, error) {
	var targets []target
	if strings.TrimSpace(manifestPath) != "" {
		lines, err := readManifest(manifestPath)
		if err != nil {
			return nil, domain.Resolution(fmt.Sprintf("无法读取清单文件 %q", manifestPath), err)
		}
		if len(inputs) > 0 {
			r.warn(fmt.Sprintf("已指定清单文件，忽略 %d 个命令行目标", len(inputs)))
		}
		for _, line := range lines {
			kind := domain.KindFile
			if isURL(line) {
				kind = domain.KindURL
			}
			targets = append(targets, target{line, kind})
		}
	} else {
		for _, in := range inputs {
			switch kind := r.Classify(in); kind {
			case domain.KindURL, domain.KindFile:
				targets = append(targets, target{in, kind})
			case domain.KindDirectory:
				files, err := r.expandDir(in)
				if err != nil {
					r.warn(fmt.Sprintf("无法读取目录 %q：%v", in, err))
					continue
				}
				for _, f := range files {
					targets = append(targets, target{f, domain.KindFile})
				}
			default:
				r.warn(fmt.Sprintf("跳过不支持的目标：%q", in))
			}
		}
	}

	if len(targets) == 0 {
		return nil, domain.NoWork("没有找到可处理的目标")
	}

	list := make(domain.WorkList, 0, len(targets))
	for i, t := range targets {
		list = append(list, domain.WorkItem{Index: i + 1, Target: t.path, Kind: t.kind})
	}
	return list, nil
}

type target struct {
	path string
	kind domain.TargetKind
}

// Classify 对原始输入做一次分类：URL / 文件（扩展名受支持）/ 目录 / 不支持。
func (r Resolver) Classify(input string) domain.TargetKind {
	if isURL(input) {
		return domain.KindURL
	}
	fi, err := os.Stat(input)
	if err != nil {
		return domain.KindUnsupported
	}
	if fi.IsDir() {
		return domain.KindDirectory
	}
	if fi.Mode().IsRegular() && r.acceptedExt(input) {
		return domain.KindFile
	}
	return domain.KindUnsupported
}

func (r Resolver) expandDir(dir string) ([]string, error) {
	var files []string
	keep := func(path, name string) {
		if r.acceptedExt(name) && !r.isGenerated(name) {
			files = append(files, path)
		}
	}

	if !r.Recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				keep(filepath.Join(dir, e.Name()), e.Name())
			}
		}
		return files, nil
	}

	// WalkDir 按词法序遍历，结果天然稳定。
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			keep(path, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r Resolver) acceptedExt(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, f := range r.Formats {
		if ext == f {
			return true
		}
	}
	return false
}

// isGenerated 判断文件名是否为某个已知 service 生成的产物（<base>.<service>.jpg）。
func (r Resolver) isGenerated(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range r.KnownServices {
		if strings.HasSuffix(lower, "."+strings.ToLower(s)+".jpg") {
			return true
		}
	}
	return false
}

func (r Resolver) warn(msg string) {
	if r.Warn != nil {
		r.Warn(msg)
	}
}

func isURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// SortedFormats 返回去重排序后的扩展名列表（用于帮助信息）。
func SortedFormats(formats []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
