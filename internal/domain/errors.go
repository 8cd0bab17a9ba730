package domain

import (
	"errors"
	"fmt"
)

// 致命错误：在任何工作开始之前返回给调用方（CLI 负责转换为退出码）。
const (
	ErrCodePrecondition = "precondition_failed"
	ErrCodeConfig       = "config_invalid"
	ErrCodeResolution   = "resolution_failed"
	ErrCodeNoWork       = "no_work"
)

// 条目级错误：只写入 ItemResult，不会中断 batch。
const (
	ErrCodeLoadFailed    = "load_failed"
	ErrCodeServiceFailed = "service_failed"
	ErrCodeWriteFailed   = "write_failed"
	ErrCodePanic         = "panic"
	ErrCodeCanceled      = "canceled"
)

// Error 是带 error_code 的结构化错误。
type Error struct {
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s：%s：%v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s：%s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s：%v", e.Code, e.Err)
	default:
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 链中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Precondition(msg string, err error) error {
	return &Error{Code: ErrCodePrecondition, Msg: msg, Err: err}
}

func ConfigErr(msg string, err error) error {
	return &Error{Code: ErrCodeConfig, Msg: msg, Err: err}
}

func Resolution(msg string, err error) error {
	return &Error{Code: ErrCodeResolution, Msg: msg, Err: err}
}

func NoWork(msg string) error {
	return &Error{Code: ErrCodeNoWork, Msg: msg}
}

// IsFatal 判断 err 是否属于“开始工作前必须中止”的类别。
func IsFatal(err error) bool {
	switch Code(err) {
	case ErrCodePrecondition, ErrCodeConfig, ErrCodeResolution, ErrCodeNoWork:
		return true
	default:
		return false
	}
}
