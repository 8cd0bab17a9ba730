package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // 注册解码器：输入格式由 service.AcceptedFormats 决定
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/John-Robertt/inkbatch/internal/domain"
)

// Limits 是某个 service 对输入图片的约束；0 表示不限制。
type Limits struct {
	MaxBytes     int
	MaxDimension int
}

const (
	startQuality = 90
	minQuality   = 40
	qualityStep  = 10
	shrinkRatio  = 0.8
	minSide      = 32
)

var ErrEmpty = errors.New("图片为空")

// Normalize 把任意受支持格式的图片转换为满足 lim 的 JPEG。
//
// 约束：
// - 输入已是 JPEG 且满足 lim 时原样返回（不做二次有损编码）
// - 长边超过 MaxDimension 时按比例缩小（imaging.Fit）
// - 体积超过 MaxBytes 时先降质量，再按 shrinkRatio 继续缩小
// - 缩到 minSide 仍超限则返回错误
func Normalize(name string, data []byte, lim Limits) (domain.Image, error) {
	if len(data) == 0 {
		return domain.Image{}, ErrEmpty
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("无法识别图片格式：%w", err)
	}
	if format == "jpeg" && fitsDimension(cfg.Width, cfg.Height, lim) && fitsBytes(len(data), lim) {
		return domain.Image{Name: name, Data: data, Format: "jpeg", Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.Image{}, fmt.Errorf("解码 %s 失败：%w", format, err)
	}

	if lim.MaxDimension > 0 && !fitsDimension(img.Bounds().Dx(), img.Bounds().Dy(), lim) {
		img = imaging.Fit(img, lim.MaxDimension, lim.MaxDimension, imaging.Lanczos)
	}

	for {
		b := img.Bounds()
		for q := startQuality; q >= minQuality; q -= qualityStep {
			out, err := encodeJPEG(img, q)
			if err != nil {
				return domain.Image{}, err
			}
			if fitsBytes(len(out), lim) {
				return domain.Image{Name: name, Data: out, Format: "jpeg", Width: b.Dx(), Height: b.Dy()}, nil
			}
		}

		w := int(float64(b.Dx()) * shrinkRatio)
		h := int(float64(b.Dy()) * shrinkRatio)
		if w < minSide || h < minSide {
			return domain.Image{}, fmt.Errorf("无法把图片压缩到 %d 字节以内", lim.MaxBytes)
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fitsDimension(w, h int, lim Limits) bool {
	return lim.MaxDimension <= 0 || (w <= lim.MaxDimension && h <= lim.MaxDimension)
}

func fitsBytes(n int, lim Limits) bool {
	return lim.MaxBytes <= 0 || n <= lim.MaxBytes
}
