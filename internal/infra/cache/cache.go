package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/infra/fsx"
)

// Store 缓存某张（已归一化）图片在某个 service 上的识别结果。
//
// 约束：
// - key 由图片内容决定（Key），与文件名/URL 无关
// - 未命中返回 ok=false 且 err=nil
type Store interface {
	Get(ctx context.Context, service, key string) (rec domain.Recognition, ok bool, err error)
	Put(ctx context.Context, service, key string, rec domain.Recognition) error
}

var ErrReadOnly = errors.New("cache: read-only")

// Key 返回内容哈希（sha256 hex）。
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileStore 提供 <root>/services/<service>/<key>.json 的文件缓存。
type FileStore struct {
	Root     string
	ReadOnly bool
}

func NewFile(root string, readOnly bool) FileStore {
	return FileStore{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Path 返回缓存文件的绝对路径。
func (s FileStore) Path(service, key string) (string, error) {
	svc, k, err := clean(service, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "services", svc, k+".json"), nil
}

func (s FileStore) Get(_ context.Context, service, key string) (domain.Recognition, bool, error) {
	path, err := s.Path(service, key)
	if err != nil {
		return domain.Recognition{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Recognition{}, false, nil
		}
		return domain.Recognition{}, false, err
	}
	var rec domain.Recognition
	if err := json.Unmarshal(b, &rec); err != nil {
		// 损坏的缓存等同于未命中，下次 Put 会覆盖。
		return domain.Recognition{}, false, nil
	}
	return rec, true, nil
}

func (s FileStore) Put(_ context.Context, service, key string, rec domain.Recognition) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	svc, k, err := clean(service, key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Root, "services", svc), k+".json", b)
}

var (
	serviceNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	keyRE         = regexp.MustCompile(`^[a-f0-9]{16,128}$`)
)

func clean(service, key string) (string, string, error) {
	svc := strings.ToLower(strings.TrimSpace(service))
	if svc == "" {
		return "", "", fmt.Errorf("service 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !serviceNameRE.MatchString(svc) {
		return "", "", fmt.Errorf("非法 service：%q", service)
	}
	if !keyRE.MatchString(key) {
		return "", "", fmt.Errorf("非法缓存 key：%q", key)
	}
	return svc, key, nil
}
