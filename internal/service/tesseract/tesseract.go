//go:build tesseract

package tesseract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/service"
)

// Available 报告当前二进制是否编译了 tesseract 支持。
func Available() bool { return true }

type Service struct {
	opts          Options
	clientFactory func() *gosseract.Client
}

var _ service.Service = (*Service)(nil)

func New(opts Options) (*Service, error) {
	return &Service{opts: opts, clientFactory: gosseract.NewClient}, nil
}

func (*Service) Name() string { return Name }

func (*Service) Limits() service.Limits { return service.Limits{} }

type word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Recognize 每次调用使用独立的 client（gosseract.Client 不能并发复用）。
func (s *Service) Recognize(ctx context.Context, img domain.Image) (domain.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return domain.Recognition{}, err
	}
	c := s.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(img.Data); err != nil {
		return domain.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	if len(s.opts.Languages) > 0 {
		if err := c.SetLanguage(s.opts.Languages...); err != nil {
			return domain.Recognition{}, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range s.opts.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return domain.Recognition{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return domain.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	words, avg := extractWords(c)
	raw, err := json.Marshal(struct {
		Text  string `json:"text"`
		Words []word `json:"words"`
	}{Text: text, Words: words})
	if err != nil {
		return domain.Recognition{}, err
	}

	rec := domain.Recognition{Text: strings.TrimSpace(text), Raw: raw, ContentType: "application/json"}
	if len(words) > 0 {
		rec.Confidence = &avg
	}
	return rec, nil
}

// extractWords 读取词级包围盒；tesseract 的置信度是 0~100，这里归一化到 0~1。
func extractWords(c *gosseract.Client) ([]word, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]word, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, word{
			Text:       b.Word,
			Confidence: conf,
			X:          b.Box.Min.X,
			Y:          b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
		})
	}
	return words, sum / float64(len(words))
}
