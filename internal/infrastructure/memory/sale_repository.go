package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

type SaleRepository struct {
	mu    sync.RWMutex
	sales map[string]*domain.Sale
}

func NewSaleRepository() *SaleRepository {
	return &SaleRepository{sales: make(map[string]*domain.Sale)}
}

func (r *SaleRepository) Insert(ctx context.Context, sale *domain.Sale) error {
	_ = ctx
	if sale == nil || sale.ID == "" {
		return fmt.Errorf("sale repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sales[sale.ID]; exists {
		return domain.ErrConflict
	}
	r.sales[sale.ID] = sale.Clone()
	return nil
}

func (r *SaleRepository) Get(ctx context.Context, id string) (*domain.Sale, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sales[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SaleRepository) Update(ctx context.Context, sale *domain.Sale) error {
	_ = ctx
	if sale == nil || sale.ID == "" {
		return fmt.Errorf("sale repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sales[sale.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if stored.Version != sale.Version {
		return fmt.Errorf("%w: %s at version %d, have %d", domain.ErrStale, sale.ID, stored.Version, sale.Version)
	}
	sale.Version++
	r.sales[sale.ID] = sale.Clone()
	return nil
}

func (r *SaleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Sale, 0, len(r.sales))
	for _, s := range r.sales {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
