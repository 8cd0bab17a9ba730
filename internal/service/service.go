package service

import (
	"context"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Service 把“各家 HTR 服务的差异”限制在各自子包内部；核心流程只依赖统一接口与稳定的 Recognition。
//
// 约束：
// - Recognize 不做缓存、不做重试（缓存在 process 层，重试在 httpx 层统一实现）
// - 任何后端错误都会被上层统一视为条目级失败，不需要自行降级
// - 实现必须允许多个 goroutine 并发调用
type Service interface {
	Name() string
	Limits() Limits
	Recognize(ctx context.Context, img domain.Image) (domain.Recognition, error)
}

// Limits 描述 service 对提交图片的限制；0 表示不限制。
type Limits struct {
	MaxBytes     int
	MaxDimension int
}

// AcceptedFormats 是 scan 阶段认可的图片扩展名（小写、不含点）。
// 这是进程级不可变表：由 main 传给 scan.Resolver，不在 scan 包内直接引用。
// 每一项都必须能被 imgx.Normalize 解码。
var AcceptedFormats = []string{"bmp", "gif", "jpeg", "jpg", "png", "tif", "tiff", "webp"}
