package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/service"
)

const (
	Name = "microsoft"

	analyzePath       = "/vision/v3.2/read/analyze"
	subscriptionKeyHd = "Ocp-Apim-Subscription-Key"

	defaultPollInterval = time.Second
	defaultMaxPolls     = 60
)

type Options struct {
	// Endpoint 形如 https://<resource>.cognitiveservices.azure.com
	Endpoint        string
	SubscriptionKey string
	Client          *http.Client

	// PollInterval / MaxPolls 控制对 Operation-Location 的轮询（0 表示默认值）。
	PollInterval time.Duration
	MaxPolls     int
}

// Service 调用 Azure Computer Vision Read API（异步：提交后轮询结果）。
type Service struct {
	endpoint string
	key      string
	client   *http.Client
	interval time.Duration
	maxPolls int
}

var _ service.Service = (*Service)(nil)

func New(opts Options) (*Service, error) {
	ep := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if ep == "" {
		return nil, errors.New("缺少 Microsoft endpoint（AZURE_VISION_ENDPOINT）")
	}
	key := strings.TrimSpace(opts.SubscriptionKey)
	if key == "" {
		return nil, errors.New("缺少 Microsoft subscription key（AZURE_VISION_KEY）")
	}
	c := opts.Client
	if c == nil {
		c = http.DefaultClient
	}
	s := &Service{
		endpoint: ep,
		key:      key,
		client:   c,
		interval: opts.PollInterval,
		maxPolls: opts.MaxPolls,
	}
	if s.interval <= 0 {
		s.interval = defaultPollInterval
	}
	if s.maxPolls <= 0 {
		s.maxPolls = defaultMaxPolls
	}
	return s, nil
}

func (*Service) Name() string { return Name }

func (*Service) Limits() service.Limits {
	return service.Limits{MaxBytes: 4 << 20, MaxDimension: 10000}
}

type readResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		ReadResults []struct {
			Lines []struct {
				Text  string `json:"text"`
				Words []struct {
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

func (s *Service) Recognize(ctx context.Context, img domain.Image) (domain.Recognition, error) {
	opURL, err := s.submit(ctx, img.Data)
	if err != nil {
		return domain.Recognition{}, err
	}

	for i := 0; i < s.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return domain.Recognition{}, ctx.Err()
		case <-time.After(s.interval):
		}

		raw, err := s.get(ctx, opURL)
		if err != nil {
			return domain.Recognition{}, err
		}
		var rr readResponse
		if err := json.Unmarshal(raw, &rr); err != nil {
			return domain.Recognition{}, fmt.Errorf("解析 Read 结果失败：%w", err)
		}
		switch strings.ToLower(rr.Status) {
		case "succeeded":
			return toRecognition(rr, raw), nil
		case "failed":
			return domain.Recognition{}, errors.New("Read 操作失败")
		}
	}
	return domain.Recognition{}, fmt.Errorf("Read 结果在 %d 次轮询后仍未就绪", s.maxPolls)
}

func (s *Service) submit(ctx context.Context, data []byte) (string, error) {
	u := s.endpoint + analyzePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(subscriptionKeyHd, s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", service.NewHTTPStatusError(u, resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	op := resp.Header.Get("Operation-Location")
	if op == "" {
		return "", errors.New("响应缺少 Operation-Location")
	}
	return op, nil
}

func (s *Service) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(subscriptionKeyHd, s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, service.NewHTTPStatusError(u, resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// toRecognition 按行拼接文本；置信度取所有词的平均值。
func toRecognition(rr readResponse, raw []byte) domain.Recognition {
	rec := domain.Recognition{Raw: raw, ContentType: "application/json"}
	if rr.AnalyzeResult == nil {
		return rec
	}

	var (
		sb    strings.Builder
		sum   float64
		words int
	)
	for _, page := range rr.AnalyzeResult.ReadResults {
		for _, ln := range page.Lines {
			sb.WriteString(ln.Text)
			sb.WriteByte('\n')
			for _, w := range ln.Words {
				sum += w.Confidence
				words++
			}
		}
	}
	rec.Text = sb.String()
	if words > 0 {
		avg := sum / float64(words)
		rec.Confidence = &avg
	}
	return rec
}
