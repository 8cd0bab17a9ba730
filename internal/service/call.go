package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Error 是 service 阶段的可追溯错误。
// 上层据此把失败写入 ServiceResult（error_code=service_failed + 可读的 error_msg）。
type Error struct {
	Service string // service name（小写）
	Stage   string // "prepare" / "recognize"
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("service=%s stage=%s: %v", e.Service, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recognize 调用单个 service，并把错误统一包装为 *Error。
//
// 注意：结果中的 Service 字段总是以注册名为准（后端实现无需关心）。
func Recognize(ctx context.Context, s Service, img domain.Image) (domain.Recognition, error) {
	if s == nil {
		return domain.Recognition{}, errors.New("service 为空")
	}
	name := normName(s.Name())
	if len(img.Data) == 0 {
		return domain.Recognition{}, &Error{Service: name, Stage: "prepare", Err: errors.New("图片为空")}
	}

	rec, err := s.Recognize(ctx, img)
	if err != nil {
		return domain.Recognition{}, &Error{Service: name, Stage: "recognize", Err: err}
	}
	rec.Service = name
	return rec, nil
}

// Humanize 把 service 错误转换为一行可操作的提示。
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	name := "service"
	var se *Error
	if errors.As(err, &se) {
		name = se.Service
		err = se.Err
	}

	var hs *HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.Kind {
		case KindAuthFailed:
			return fmt.Sprintf("%s 拒绝访问（HTTP %d）。请检查凭据是否有效/是否已开通该服务。", name, hs.StatusCode)
		case KindRateLimited:
			return fmt.Sprintf("%s 返回 HTTP 429（触发限流）。建议降低并发（--threads）后重试。", name)
		case KindNoContent:
			return fmt.Sprintf("%s 返回 HTTP %d（找不到内容）。", name, hs.StatusCode)
		case KindRequestRejected:
			return fmt.Sprintf("%s 拒绝了请求（HTTP %d）：%s", name, hs.StatusCode, hs.Body)
		case KindServiceFailed:
			return fmt.Sprintf("%s 服务端错误（HTTP %d），请稍后重试。", name, hs.StatusCode)
		default:
			return fmt.Sprintf("%s 返回 HTTP %d。", name, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 调用超时。建议检查网络/代理后重试。", name)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%s 调用被取消。", name)
	}
	return fmt.Sprintf("%s 调用失败：%v", name, err)
}
