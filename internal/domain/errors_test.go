package domain

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestCode_UnwrapsChain(t *testing.T) {
	err := fmt.Errorf("外层：%w", Precondition("输出目录不可写", os.ErrPermission))
	if Code(err) != ErrCodePrecondition {
		t.Fatalf("期望 %q，实际 %q", ErrCodePrecondition, Code(err))
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望保留底层错误 os.ErrPermission")
	}
	if Code(errors.New("x")) != "" {
		t.Fatalf("非 *Error 应返回空 code")
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Precondition("no network", nil), true},
		{ConfigErr("bad threads", nil), true},
		{Resolution("manifest", nil), true},
		{NoWork("empty"), true},
		{&Error{Code: ErrCodeServiceFailed}, false},
		{errors.New("plain"), false},
	}
	for _, c := range cases {
		if got := IsFatal(c.err); got != c.want {
			t.Fatalf("IsFatal(%v)=%v，期望 %v", c.err, got, c.want)
		}
	}
}
