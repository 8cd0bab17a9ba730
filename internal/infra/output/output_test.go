package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		in             string
		bucket, prefix string
		ok             bool
	}{
		{"s3://scans", "scans", "", true},
		{"s3://scans/2026/batch-1/", "scans", "2026/batch-1/", true},
		{"S3://scans/a", "scans", "a/", true},
		{"s3:///nobucket", "", "", false},
		{"https://scans/a", "", "", false},
	}
	for _, c := range cases {
		b, p, err := ParseS3URL(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ParseS3URL(%q) err=%v，期望 ok=%v", c.in, err, c.ok)
		}
		if c.ok && (b != c.bucket || p != c.prefix) {
			t.Fatalf("ParseS3URL(%q)=(%q,%q)，期望 (%q,%q)", c.in, b, p, c.bucket, c.prefix)
		}
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New("s3://scans/out", S3Options{Endpoint: "127.0.0.1:9000"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := s.(*S3); !ok || s.Location() != "s3://scans/out/" {
		t.Fatalf("期望 S3 sink，实际 %T %q", s, s.Location())
	}

	l, err := New("out", S3Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := l.(*Local); !ok {
		t.Fatalf("期望 Local sink，实际 %T", l)
	}
}

func TestLocal_PrepareCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	l := NewLocal(dir)

	created, err := l.Prepare(context.Background())
	if err != nil || !created {
		t.Fatalf("期望新建目录，created=%v err=%v", created, err)
	}
	created, err = l.Prepare(context.Background())
	if err != nil || created {
		t.Fatalf("第二次不应新建，created=%v err=%v", created, err)
	}
}

func TestLocal_PrepareRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if _, err := NewLocal(file).Prepare(context.Background()); err == nil {
		t.Fatalf("输出路径是文件时期望失败")
	}
}

func TestLocal_PutFallsBackToObjectDir(t *testing.T) {
	itemDir := t.TempDir()
	l := NewLocal("")

	loc, err := l.Put(context.Background(), Object{Dir: itemDir, Name: "page.google.txt", Data: []byte("hi")})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if loc != filepath.Join(itemDir, "page.google.txt") {
		t.Fatalf("位置不符合预期：%q", loc)
	}
	b, err := os.ReadFile(loc)
	if err != nil || string(b) != "hi" {
		t.Fatalf("内容不一致：%q err=%v", string(b), err)
	}

	outDir := t.TempDir()
	loc, err = NewLocal(outDir).Put(context.Background(), Object{Dir: itemDir, Name: "page.google.txt", Data: []byte("hi")})
	if err != nil || filepath.Dir(loc) != outDir {
		t.Fatalf("配置了输出目录时应写到输出目录，loc=%q err=%v", loc, err)
	}
}
