package output

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 把产物上传到 S3 兼容存储（AWS / MinIO / Garage）。
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

func NewS3(opts S3Options, bucket, prefix string) (*S3, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 S3 客户端失败：%w", err)
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, region: opts.Region}, nil
}

func (s *S3) Location() string { return "s3://" + s.bucket + "/" + s.prefix }

// Prepare 检查 bucket，不存在则创建。
func (s *S3) Prepare(ctx context.Context) (bool, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, fmt.Errorf("检查 bucket 失败：%w", err)
	}
	if exists {
		return false, nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return false, fmt.Errorf("创建 bucket 失败：%w", err)
	}
	return true, nil
}

func (s *S3) Put(ctx context.Context, obj Object) (string, error) {
	key := s.prefix + obj.Name
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(obj.Data), int64(len(obj.Data)), minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传 %s 失败：%w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
