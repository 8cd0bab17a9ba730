package service

import (
	"reflect"
	"testing"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

func TestNewRegistry_RejectsDuplicateAndInvalidNames(t *testing.T) {
	if _, err := NewRegistry(&stubService{name: "google"}, &stubService{name: "GOOGLE"}); err == nil {
		t.Fatalf("重复名称应报错")
	}
	if _, err := NewRegistry(&stubService{name: "bad.name"}); err == nil {
		t.Fatalf("含 '.' 的名称会破坏产物命名，应报错")
	}
	if _, err := NewRegistry(&stubService{name: " "}); err == nil {
		t.Fatalf("空名称应报错")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg, err := NewRegistry(&stubService{name: "microsoft"}, &stubService{name: "google"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"google", "microsoft"}) {
		t.Fatalf("Names 不符合预期：%v", got)
	}
}

func TestNewSelection(t *testing.T) {
	reg, err := NewRegistry(&stubService{name: "microsoft"}, &stubService{name: "google"}, &stubService{name: "tesseract"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	sel, err := NewSelection(reg, []string{"microsoft,google", "microsoft"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := sel.Names(); !reflect.DeepEqual(got, []string{"microsoft", "google"}) {
		t.Fatalf("应保持请求顺序并去重：%v", got)
	}

	all, err := NewSelection(reg, []string{"all"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if all.Len() != 3 {
		t.Fatalf("all 应展开为全部 service，实际 %v", all.Names())
	}

	if _, err := NewSelection(reg, nil); domain.Code(err) != domain.ErrCodeConfig {
		t.Fatalf("空选择应为 config_invalid，实际 %v", err)
	}
	if _, err := NewSelection(reg, []string{"amazon"}); domain.Code(err) != domain.ErrCodeConfig {
		t.Fatalf("未知 service 应为 config_invalid，实际 %v", err)
	}
}
