package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

var testFormats = []string{"bmp", "gif", "jpeg", "jpg", "png", "tif", "tiff", "webp"}

func newResolver(warns *[]string) Resolver {
	return Resolver{
		Formats:       testFormats,
		KnownServices: []string{"google", "microsoft", "tesseract"},
		Warn: func(msg string) {
			if warns != nil {
				*warns = append(*warns, msg)
			}
		},
	}
}

func TestResolve_DirectoryExcludesGeneratedArtifacts(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "page1.png"))
	touch(t, filepath.Join(dir, "page1.google.jpg"))
	touch(t, filepath.Join(dir, "page1.MICROSOFT.JPG"))
	touch(t, filepath.Join(dir, "page2.jpg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "page3.other.jpg"))

	got, err := newResolver(nil).Resolve([]string{dir}, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{
		filepath.Join(dir, "page1.png"),
		filepath.Join(dir, "page2.jpg"),
		filepath.Join(dir, "page3.other.jpg"),
	}
	if !reflect.DeepEqual(got.Targets(), want) {
		t.Fatalf("期望 %v，实际 %v", want, got.Targets())
	}
}

func TestResolve_ManifestVerbatimInOrder(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "list.txt")
	content := "b.txt\nhttps://example.org/scan/1\n\nmissing.png\r\nz.google.jpg\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatalf("写入清单失败：%v", err)
	}

	// manifest 存在时忽略其它输入。
	var warns []string
	got, err := newResolver(&warns).Resolve([]string{dir}, manifest)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(warns) != 1 || !strings.Contains(warns[0], "忽略 1 个命令行目标") {
		t.Fatalf("期望一条忽略命令行目标的 warn，实际 %v", warns)
	}
	want := []string{"b.txt", "https://example.org/scan/1", "missing.png", "z.google.jpg"}
	if !reflect.DeepEqual(got.Targets(), want) {
		t.Fatalf("期望 %v，实际 %v", want, got.Targets())
	}
	if got[1].Kind != domain.KindURL || got[0].Kind != domain.KindFile {
		t.Fatalf("kind 不符合预期：%+v", got)
	}
	for i, it := range got {
		if it.Index != i+1 {
			t.Fatalf("index 应从 1 递增：%+v", got)
		}
	}
}

func TestResolve_ManifestUnreadable(t *testing.T) {
	_, err := newResolver(nil).Resolve(nil, filepath.Join(t.TempDir(), "nope.txt"))
	if domain.Code(err) != domain.ErrCodeResolution {
		t.Fatalf("期望 %s，实际 %v", domain.ErrCodeResolution, err)
	}
}

func TestResolve_MixedInputPreservesOrder(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.png")
	touch(t, file)
	dir := filepath.Join(root, "dir")
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "a.google.jpg"))
	touch(t, filepath.Join(dir, "b.tif"))
	url := "https://example.org/page.jpg"

	got, err := newResolver(nil).Resolve([]string{url, file, dir}, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{url, file, filepath.Join(dir, "a.png"), filepath.Join(dir, "b.tif")}
	if !reflect.DeepEqual(got.Targets(), want) {
		t.Fatalf("期望 %v，实际 %v", want, got.Targets())
	}
}

func TestResolve_NoDedupAcrossInputs(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.png")
	touch(t, file)

	got, err := newResolver(nil).Resolve([]string{file, file}, "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("不同输入之间不做去重，期望 2 个，实际 %d", len(got))
	}
}

func TestResolve_UnsupportedWarnsAndEmptyIsNoWork(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "notes.txt"))

	var warns []string
	_, err := newResolver(&warns).Resolve([]string{filepath.Join(root, "notes.txt"), filepath.Join(root, "missing.png"), "ftp://x/y.png"}, "")
	if domain.Code(err) != domain.ErrCodeNoWork {
		t.Fatalf("期望 %s，实际 %v", domain.ErrCodeNoWork, err)
	}
	if len(warns) != 3 {
		t.Fatalf("期望 3 条 warn，实际 %v", warns)
	}

	empty := filepath.Join(root, "empty")
	if err := os.Mkdir(empty, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if _, err := newResolver(nil).Resolve([]string{empty}, ""); domain.Code(err) != domain.ErrCodeNoWork {
		t.Fatalf("空目录期望 %s，实际 %v", domain.ErrCodeNoWork, err)
	}
}

func TestResolve_FlatVsRecursive(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "top.png"))
	touch(t, filepath.Join(root, "sub", "deep.png"))

	flat, err := newResolver(nil).Resolve([]string{root}, "")
	if err != nil || len(flat) != 1 {
		t.Fatalf("默认只扫描一层，期望 1 个，实际 %v err=%v", flat.Targets(), err)
	}

	r := newResolver(nil)
	r.Recursive = true
	deep, err := r.Resolve([]string{root}, "")
	if err != nil || len(deep) != 2 {
		t.Fatalf("递归扫描期望 2 个，实际 %v err=%v", deep.Targets(), err)
	}
}

func TestClassify(t *testing.T) {
	root := t.TempDir()
	png := filepath.Join(root, "X.PNG")
	touch(t, png)
	txt := filepath.Join(root, "a.txt")
	touch(t, txt)

	r := newResolver(nil)
	cases := map[string]domain.TargetKind{
		"http://example.org/a":   domain.KindURL,
		"https://example.org":    domain.KindURL,
		"http://":                domain.KindUnsupported,
		png:                      domain.KindFile,
		txt:                      domain.KindUnsupported,
		root:                     domain.KindDirectory,
		filepath.Join(root, "x"): domain.KindUnsupported,
	}
	for in, want := range cases {
		if got := r.Classify(in); got != want {
			t.Fatalf("Classify(%q)=%s，期望 %s", in, got, want)
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
