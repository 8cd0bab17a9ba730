package service

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxBodyBytes = 300

// HTTP 状态的归类（沿用原有网络层的划分，便于给出可操作的提示）。
const (
	KindRequestRejected = "request_rejected"
	KindAuthFailed      = "auth_failed"
	KindNoContent       = "no_content"
	KindRateLimited     = "rate_limited"
	KindServiceFailed   = "service_failed"
	KindInternal        = "internal_error"
	KindUnknown         = "unknown"
)

// HTTPStatusError 表示 service 返回了非 2xx 的 HTTP 状态码。
// 后端实现可以返回该错误，让上层生成更可操作的 error_msg。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Kind       string
	Body       string // 截断后的响应体（通常包含 service 的错误说明）
}

// NewHTTPStatusError 按状态码归类并截断响应体（按 rune 边界截断，结果总是合法 UTF-8）。
func NewHTTPStatusError(url string, code int, body []byte) *HTTPStatusError {
	b := strings.ToValidUTF8(strings.TrimSpace(string(body)), "\uFFFD")
	if len(b) > maxBodyBytes {
		n := maxBodyBytes
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n] + "..."
	}
	return &HTTPStatusError{URL: url, StatusCode: code, Kind: ClassifyStatus(code), Body: b}
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d (%s)", e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Body)
}

// ClassifyStatus 把 HTTP 状态码映射为错误类别。
func ClassifyStatus(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestedRangeNotSatisfiable:
		return KindRequestRejected
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden,
		http.StatusProxyAuthRequired, http.StatusUnavailableForLegalReasons,
		http.StatusNetworkAuthenticationRequired:
		return KindAuthFailed
	case http.StatusNotFound, http.StatusGone:
		return KindNoContent
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError, http.StatusNotImplemented, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusVariantAlsoNegotiates,
		http.StatusInsufficientStorage, http.StatusLoopDetected:
		return KindServiceFailed
	case http.StatusMethodNotAllowed, http.StatusNotAcceptable, http.StatusConflict,
		http.StatusLengthRequired, http.StatusPreconditionFailed, http.StatusRequestURITooLong,
		http.StatusExpectationFailed, http.StatusPreconditionRequired,
		http.StatusRequestHeaderFieldsTooLarge, http.StatusHTTPVersionNotSupported,
		http.StatusNotExtended:
		return KindInternal
	default:
		return KindUnknown
	}
}
