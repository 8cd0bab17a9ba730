package output

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/infra/fsx"
)

// Local 把产物写到本地目录。Dir 为空时写到 Object.Dir（再为空则写到当前目录）。
type Local struct {
	Dir string
}

func NewLocal(dir string) *Local {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		dir = filepath.Clean(dir)
	}
	return &Local{Dir: dir}
}

func (l *Local) Location() string {
	if l.Dir == "" {
		return "（与输入文件同目录）"
	}
	return l.Dir
}

// Prepare 确保输出目录存在且可写；未配置目录时无事可做。
func (l *Local) Prepare(_ context.Context) (bool, error) {
	if l.Dir == "" {
		return false, nil
	}
	created, err := fsx.EnsureDir(l.Dir)
	if err != nil {
		return false, err
	}
	if err := fsx.WritableDir(l.Dir); err != nil {
		return created, err
	}
	return created, nil
}

func (l *Local) Put(_ context.Context, obj Object) (string, error) {
	dir := l.Dir
	if dir == "" {
		dir = obj.Dir
	}
	if dir == "" {
		dir = "."
	}
	if err := fsx.WriteFileAtomic(dir, obj.Name, obj.Data); err != nil {
		return "", err
	}
	return filepath.Join(dir, obj.Name), nil
}
