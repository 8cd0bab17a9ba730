package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/inkbatch/internal/config"
	"github.com/John-Robertt/inkbatch/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{"-s", "google", "--service=microsoft", "-e", "--recursive=false", "-t", "3", "-o", "out", "a.png", "dir"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if strings.Join(ra.Services, ",") != "google,microsoft" {
		t.Fatalf("services 不正确：%v", ra.Services)
	}
	if !ra.Extended || !ra.ExtendedSet {
		t.Fatalf("期望 -e 生效")
	}
	if ra.Recursive || !ra.RecursiveSet {
		t.Fatalf("期望 --recursive=false 显式生效")
	}
	if ra.Threads != "3" || ra.Output != "out" {
		t.Fatalf("threads/output 不正确：%+v", ra)
	}
	if strings.Join(ra.Targets, ",") != "a.png,dir" {
		t.Fatalf("targets 不正确：%v", ra.Targets)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"unknown":      {"--nope", "a.png"},
		"missingValue": {"a.png", "-s"},
		"emptyValue":   {"--threads=", "a.png"},
		"badBool":      {"--extended=yes", "a.png"},
		"quietValue":   {"--quiet=1", "a.png"},
		"noTargets":    {"-s", "google"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseRunArgs(args); err == nil {
				t.Fatalf("期望参数错误：%v", args)
			}
		})
	}
}

func TestParseRunArgs_FromFileWithTargets(t *testing.T) {
	ra, err := parseRunArgs([]string{"-f", "list.txt", "a.png"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ra.FromFile != "list.txt" || len(ra.Targets) != 1 {
		t.Fatalf("解析结果不正确：%+v", ra)
	}
}

func TestParseRunArgs_DoubleDash(t *testing.T) {
	ra, err := parseRunArgs([]string{"--", "-odd-name.png"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(ra.Targets) != 1 || ra.Targets[0] != "-odd-name.png" {
		t.Fatalf("-- 之后应视为目标：%v", ra.Targets)
	}
}

func TestApp_UsageExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut, cwd: t.TempDir()}

	if code := a.main(context.Background(), []string{"bogus"}); code != 2 {
		t.Fatalf("未知命令期望退出码 2，实际 %d", code)
	}
	if code := a.main(context.Background(), []string{"run", "--nope"}); code != 2 {
		t.Fatalf("参数错误期望退出码 2，实际 %d", code)
	}
	if code := a.main(context.Background(), []string{"run", "--help"}); code != 0 {
		t.Fatalf("--help 期望退出码 0，实际 %d", code)
	}
}

func TestApp_UnavailableServiceIsFatal(t *testing.T) {
	t.Setenv(config.EnvAzureKey, "")
	t.Setenv(config.EnvAzureEndpoint, "")
	cwd := t.TempDir()
	img := writePNG(t, filepath.Join(cwd, "a.png"))

	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut, cwd: cwd}
	code := a.main(context.Background(), []string{"run", "-s", "microsoft", img})
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d（stderr=%s）", code, errOut.String())
	}
	if out.Len() != 0 {
		t.Fatalf("致命错误时 stdout 应为空：%q", out.String())
	}
	if !strings.Contains(errOut.String(), "microsoft") {
		t.Fatalf("错误信息应指出 service：%q", errOut.String())
	}
}

func TestApp_ServicesCommand(t *testing.T) {
	t.Setenv(config.EnvGoogleAPIKey, "k")
	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut, cwd: t.TempDir()}

	if code := a.main(context.Background(), []string{"services"}); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d（stderr=%s）", code, errOut.String())
	}
	s := out.String()
	for _, want := range []string{"google", "microsoft", "tesseract", "jpg"} {
		if !strings.Contains(s, want) {
			t.Fatalf("输出缺少 %q：%s", want, s)
		}
	}
}

func TestApp_RunEndToEnd_NoTTYEmitsJSON(t *testing.T) {
	var annotateCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/v1/images:annotate") {
			annotateCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"responses":[{"fullTextAnnotation":{"text":"Dear Sir,\n","pages":[{"confidence":0.9}]}}]}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	t.Setenv(config.EnvGoogleAPIKey, "k")
	t.Setenv(config.EnvGoogleCredentials, "")

	cwd := t.TempDir()
	cfg := map[string]any{
		"probe_url": ts.URL + "/probe",
		"google":    map[string]string{"endpoint": ts.URL + "/"},
		"cache":     map[string]bool{"disabled": true},
		"output":    "out",
	}
	b, _ := json.Marshal(cfg)
	if err := os.WriteFile(filepath.Join(cwd, config.FileName), b, 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	in := filepath.Join(cwd, "in")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	writePNG(t, filepath.Join(in, "letter.png"))
	// 上一次运行生成的产物不应再次成为目标。
	if err := os.WriteFile(filepath.Join(in, "old.google.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	var out, errOut bytes.Buffer
	a := &app{stdout: &out, stderr: &errOut, cwd: cwd}
	code := a.main(context.Background(), []string{"run", "-s", "google", "-t", "2", in})
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d（stderr=%s）", code, errOut.String())
	}

	var rep domain.BatchReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("stdout 不是合法的 BatchReport JSON：%v\nstdout=%q", err, out.String())
	}
	if rep.Summary.Succeeded != 1 || rep.Summary.Failed != 0 || len(rep.Items) != 1 {
		t.Fatalf("报告不符合预期：%+v", rep)
	}
	if annotateCalls.Load() != 1 {
		t.Fatalf("期望调用 Vision 1 次，实际 %d", annotateCalls.Load())
	}

	txt, err := os.ReadFile(filepath.Join(cwd, "out", "letter.google.txt"))
	if err != nil {
		t.Fatalf("缺少文本产物：%v", err)
	}
	if string(txt) != "Dear Sir,\n" {
		t.Fatalf("文本产物不正确：%q", string(txt))
	}
	if _, err := os.Stat(filepath.Join(cwd, "out", "letter.google.jpg")); err != nil {
		t.Fatalf("缺少图片产物：%v", err)
	}
	if !strings.Contains(errOut.String(), "完成：succeeded=1 failed=0") {
		t.Fatalf("stderr 缺少完成摘要：%q", errOut.String())
	}
}

func writePNG(t *testing.T, path string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建文件失败：%v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("写入 PNG 失败：%v", err)
	}
	return path
}
