package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/service"
)

// maxDownload 限制单个 URL 下载的体积，避免误把大文件读进内存。
const maxDownload = 64 << 20

// source 是加载后的原始图片。
type source struct {
	Data []byte
	// Ext 是原始图片的扩展名（不含点）；仅 URL 下载时用于保存原图。
	Ext string
	// Dir 是本地文件所在目录（URL 为空）。
	Dir         string
	ContentType string
}

func loadFile(p string) (source, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return source{}, err
	}
	if len(b) == 0 {
		return source{}, errors.New("文件为空")
	}
	return source{Data: b, Dir: filepath.Dir(p)}, nil
}

// loadURL 下载 URL 指向的图片。
//
// 若 URL 返回的是 HTML 页面（常见于档案馆的“单页浏览”链接），
// 则依次尝试 og:image、twitter:image、第一个 <img>，再下载一次。
func loadURL(ctx context.Context, c *http.Client, raw string) (source, error) {
	b, ct, err := fetch(ctx, c, raw)
	if err != nil {
		return source{}, err
	}
	if isHTML(ct, b) {
		imgURL, err := imageFromPage(raw, b)
		if err != nil {
			return source{}, err
		}
		b, ct, err = fetch(ctx, c, imgURL)
		if err != nil {
			return source{}, err
		}
		raw = imgURL
	}
	ext := extFor(ct, raw)
	ctype := mime.TypeByExtension("." + ext)
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return source{Data: b, Ext: ext, ContentType: ctype}, nil
}

func fetch(ctx context.Context, c *http.Client, u string) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", service.NewHTTPStatusError(u, resp.StatusCode, body)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, "", err
	}
	if len(b) > maxDownload {
		return nil, "", fmt.Errorf("响应体超过 %d 字节", maxDownload)
	}
	if len(b) == 0 {
		return nil, "", errors.New("empty response body")
	}
	return b, resp.Header.Get("Content-Type"), nil
}

func isHTML(contentType string, body []byte) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "text/html" || mt == "application/xhtml+xml" {
		return true
	}
	if mt == "" {
		return strings.HasPrefix(http.DetectContentType(body), "text/html")
	}
	return false
}

func imageFromPage(pageURL string, html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}

	for _, sel := range []string{"meta[property='og:image']", "meta[name='twitter:image']"} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return resolveURL(pageURL, v), nil
		}
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
		return resolveURL(pageURL, src), nil
	}
	return "", errors.New("页面中没有找到图片（og:image / <img>）")
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

var extByType = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tif",
	"image/webp": "webp",
}

// extFor 优先按 Content-Type 推断扩展名，其次取 URL 路径的扩展名，最后兜底 jpg。
func extFor(contentType, raw string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	if ext, ok := extByType[mt]; ok {
		return ext
	}
	if u, err := url.Parse(raw); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		for _, f := range service.AcceptedFormats {
			if ext == f {
				return ext
			}
		}
	}
	return "jpg"
}

func loadItem(ctx context.Context, c *http.Client, it domain.WorkItem) (source, error) {
	if it.Kind == domain.KindURL {
		return loadURL(ctx, c, it.Target)
	}
	return loadFile(it.Target)
}
