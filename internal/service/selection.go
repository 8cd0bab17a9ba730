package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// SelectAll 是选择全部已注册 service 的关键字。
const SelectAll = "all"

// 名称会出现在输出文件名里（<base>.<service>.jpg），必须是安全的路径片段。
var nameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// Selection 是本次 run 请求的 service 集合（非空、已按注册表校验、保持请求顺序）。
type Selection struct {
	services []Service
}

// NewSelection 在 run 开始前按注册表校验 service 名称。
//
// 规则：
// - names 为空 => config_invalid
// - 含 "all" => 展开为注册表中的全部 service（字典序）
// - 未知名称 => config_invalid（尽早失败，不等到处理第一张图）
// - 重复名称只保留第一次出现
func NewSelection(reg Registry, names []string) (Selection, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			part = normName(part)
			if part != "" {
				cleaned = append(cleaned, part)
			}
		}
	}
	if len(cleaned) == 0 {
		return Selection{}, domain.ConfigErr("未指定任何 service", nil)
	}

	seen := make(map[string]struct{}, len(cleaned))
	out := make([]Service, 0, len(cleaned))
	add := func(name string) error {
		if _, ok := seen[name]; ok {
			return nil
		}
		s, ok := reg.Get(name)
		if !ok {
			return domain.ConfigErr(fmt.Sprintf("未知 service：%q（可用：%s）", name, strings.Join(reg.Names(), ", ")), nil)
		}
		seen[name] = struct{}{}
		out = append(out, s)
		return nil
	}

	for _, name := range cleaned {
		if name == SelectAll {
			for _, n := range reg.Names() {
				if err := add(n); err != nil {
					return Selection{}, err
				}
			}
			continue
		}
		if err := add(name); err != nil {
			return Selection{}, err
		}
	}
	if len(out) == 0 {
		return Selection{}, domain.ConfigErr("没有已注册的 service 可用", nil)
	}
	return Selection{services: out}, nil
}

func (s Selection) Services() []Service { return s.services }

func (s Selection) Len() int { return len(s.services) }

func (s Selection) Names() []string {
	out := make([]string, 0, len(s.services))
	for _, x := range s.services {
		out = append(out, normName(x.Name()))
	}
	return out
}
