// Package tesseract 提供本地 Tesseract 识别后端。
//
// 依赖 libtesseract（cgo），默认不参与编译；使用 -tags tesseract 构建时启用。
package tesseract

import "errors"

const Name = "tesseract"

// ErrNotBuilt 表示当前二进制未使用 -tags tesseract 构建。
var ErrNotBuilt = errors.New("tesseract 支持未编译（请使用 -tags tesseract 构建）")

type Options struct {
	// Languages 为空时使用 tesseract 默认语言（eng）。
	Languages []string
	// Variables 透传给 tesseract（例如 tessedit_pageseg_mode）。
	Variables map[string]string
}
