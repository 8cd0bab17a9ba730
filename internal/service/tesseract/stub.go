//go:build !tesseract

package tesseract

import (
	"context"

	"github.com/John-Robertt/inkbatch/internal/domain"
	"github.com/John-Robertt/inkbatch/internal/service"
)

func Available() bool { return false }

type Service struct{}

var _ service.Service = (*Service)(nil)

func New(Options) (*Service, error) { return nil, ErrNotBuilt }

func (*Service) Name() string { return Name }

func (*Service) Limits() service.Limits { return service.Limits{} }

func (*Service) Recognize(context.Context, domain.Image) (domain.Recognition, error) {
	return domain.Recognition{}, ErrNotBuilt
}
