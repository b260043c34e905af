package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Service exposes catalog reads and inventory adjustments.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Products lists catalog products.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// Variant returns a single variant.
func (s *Service) Variant(ctx context.Context, id string) (*Variant, error) {
	return s.repo.GetVariant(ctx, id)
}

// Variants lists variants, clamping the page size.
func (s *Service) Variants(ctx context.Context, f VariantFilter) ([]Variant, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListVariants(ctx, f)
}

// AdjustStock adds delta units (negative to remove) to a variant.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int) (*Variant, error) {
	if delta == 0 {
		return nil, ErrZeroAdjustment
	}
	if delta > MaxStock || delta < -MaxStock {
		return nil, ErrStockOutOfRange
	}
	v, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, errors.Wrap(err, "adjust stock")
	}
	zctx.From(ctx).Info("Stock adjusted",
		zap.String("variant_id", id),
		zap.Int("delta", delta),
		zap.Int("stock", v.Stock),
	)
	return v, nil
}

// LowStock lists variants that need restocking.
func (s *Service) LowStock(ctx context.Context) ([]Variant, error) {
	return s.repo.LowStock(ctx)
}

// Alerts lists variants below their minimum and above their maximum.
func (s *Service) Alerts(ctx context.Context) (*Alerts, error) {
	low, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "low stock")
	}
	over, err := s.repo.OverStock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "over stock")
	}
	return &Alerts{Low: low, Over: over}, nil
}
