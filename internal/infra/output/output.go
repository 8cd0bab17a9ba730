package output

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Object 是一个待写出的产物。
type Object struct {
	// Dir 是条目自身所在目录（本地文件目标）；仅在 Sink 未配置固定位置时使用。
	Dir         string
	Name        string
	Data        []byte
	ContentType string
}

// Sink 是产物的落地位置：本地目录或 S3 兼容存储。
//
// 约束：
// - Prepare 在任何工作开始前调用一次（precheck）
// - Put 必须可并发调用；不同 Name 不会互相覆盖
type Sink interface {
	Location() string
	Prepare(ctx context.Context) (created bool, err error)
	Put(ctx context.Context, obj Object) (location string, err error)
}

// S3Options 是 S3 兼容存储的连接参数（凭据来自环境变量）。
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// IsS3 判断 output 参数是否指向 S3（s3://bucket/prefix）。
func IsS3(spec string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(spec)), "s3://")
}

// ParseS3URL 解析 s3://bucket/prefix；prefix 可为空，非空时保证以 "/" 结尾。
func ParseS3URL(spec string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(spec))
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("非法 S3 地址：%q（期望 s3://bucket/prefix）", spec)
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, nil
}

// New 根据 output 参数选择 Sink：s3:// 走 S3，其余视为本地目录（空串表示跟随输入文件所在目录）。
func New(spec string, s3 S3Options) (Sink, error) {
	if IsS3(spec) {
		bucket, prefix, err := ParseS3URL(spec)
		if err != nil {
			return nil, err
		}
		return NewS3(s3, bucket, prefix)
	}
	return NewLocal(spec), nil
}
