package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/service"
)

const (
	Name = "google"

	featureDocumentText = "DOCUMENT_TEXT_DETECTION"
	// 提示 Vision 按手写体识别。
	handwritingHint = "en-t-i0-handwrit"
	apiKeyHeader    = "X-Goog-Api-Key"
)

// Credentials：二选一。APIKey 优先；否则使用 service account JSON。
type Credentials struct {
	APIKey          string
	CredentialsFile string
}

type Options struct {
	Credentials Credentials
	// Client 是底层 HTTP client（通常来自 httpx.NewClient，带重试/限流退避）。
	Client *http.Client
	// Endpoint 为空时使用默认端点（可配置为区域端点）。
	Endpoint string
}

// Service 调用 Google Cloud Vision 的 DOCUMENT_TEXT_DETECTION。
type Service struct {
	vs *vision.Service
}

var _ service.Service = (*Service)(nil)

func New(ctx context.Context, opts Options) (*Service, error) {
	hc, err := httpClient(ctx, opts)
	if err != nil {
		return nil, err
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	vs, err := vision.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	return &Service{vs: vs}, nil
}

// httpClient 按凭据类型包装底层 client；返回的 client 保留 base 的 Timeout。
func httpClient(ctx context.Context, opts Options) (*http.Client, error) {
	base := opts.Client
	if base == nil {
		base = http.DefaultClient
	}

	switch {
	case strings.TrimSpace(opts.Credentials.APIKey) != "":
		// option.WithHTTPClient 会让 option.WithAPIKey 失效，因此 key 走请求头。
		return withAPIKey(base, strings.TrimSpace(opts.Credentials.APIKey)), nil
	case strings.TrimSpace(opts.Credentials.CredentialsFile) != "":
		b, err := os.ReadFile(opts.Credentials.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("读取 Google 凭据文件失败：%w", err)
		}
		creds, err := googleoauth.CredentialsFromJSON(ctx, b, vision.CloudVisionScope)
		if err != nil {
			return nil, fmt.Errorf("解析 Google 凭据失败：%w", err)
		}
		// token 刷新也走同一个底层 client（代理/超时一致）。
		hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)
		hc.Timeout = base.Timeout
		return hc, nil
	default:
		return nil, errors.New("缺少 Google 凭据（GOOGLE_API_KEY 或 GOOGLE_APPLICATION_CREDENTIALS）")
	}
}

func (*Service) Name() string { return Name }

// Limits：Vision 的 JSON 请求体上限为 10MB，图片经 base64 后约膨胀 4/3。
func (*Service) Limits() service.Limits {
	return service.Limits{MaxBytes: 7 << 20, MaxDimension: 0}
}

func (s *Service) Recognize(ctx context.Context, img domain.Image) (domain.Recognition, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:        &vision.Image{Content: base64.StdEncoding.EncodeToString(img.Data)},
			Features:     []*vision.Feature{{Type: featureDocumentText}},
			ImageContext: &vision.ImageContext{LanguageHints: []string{handwritingHint}},
		}},
	}

	resp, err := s.vs.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var ge *googleapi.Error
		if errors.As(err, &ge) {
			return domain.Recognition{}, service.NewHTTPStatusError("vision:annotate", ge.Code, []byte(ge.Message))
		}
		return domain.Recognition{}, err
	}
	if len(resp.Responses) == 0 {
		return domain.Recognition{}, errors.New("Vision 返回了空响应")
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return domain.Recognition{}, fmt.Errorf("Vision 错误 %d：%s", r.Error.Code, r.Error.Message)
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return domain.Recognition{}, err
	}

	rec := domain.Recognition{Raw: raw, ContentType: "application/json"}
	if r.FullTextAnnotation != nil {
		rec.Text = r.FullTextAnnotation.Text
		rec.Confidence = pageConfidence(r.FullTextAnnotation.Pages)
	}
	return rec, nil
}

// pageConfidence 取各页置信度的平均值；没有页信息时返回 nil。
func pageConfidence(pages []*vision.Page) *float64 {
	if len(pages) == 0 {
		return nil
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	avg := sum / float64(len(pages))
	return &avg
}

type apiKeyTransport struct {
	base http.RoundTripper
	key  string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(apiKeyHeader, t.key)
	return t.base.RoundTrip(r)
}

func withAPIKey(c *http.Client, key string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c2 := *c
	c2.Transport = &apiKeyTransport{base: base, key: key}
	return &c2
}
