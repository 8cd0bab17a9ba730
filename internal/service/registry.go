package service

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 是 service 的只读注册表（按 name 索引）。
// 用 map 做 O(1) 查找；service 数量极小，保持简单即可。
type Registry struct {
	byName map[string]Service
}

func NewRegistry(services ...Service) (Registry, error) {
	byName := make(map[string]Service, len(services))
	for _, s := range services {
		if s == nil {
			return Registry{}, fmt.Errorf("service 不能为空")
		}
		name := normName(s.Name())
		if name == "" {
			return Registry{}, fmt.Errorf("service.Name 不能为空")
		}
		if !nameRE.MatchString(name) {
			return Registry{}, fmt.Errorf("非法 service 名称：%q", name)
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 service：%q", name)
		}
		byName[name] = s
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Service, bool) {
	if r.byName == nil {
		return nil, false
	}
	s, ok := r.byName[normName(name)]
	return s, ok
}

// Names 返回已注册的 service 名称（字典序，保证输出稳定）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
