package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	catalogService = "catalog-service"
	useCaseCreate  = "catalog.create_product"
	useCaseUpdate  = "catalog.update_product"
)

var (
	ErrNotFound       = dominv.ErrNotFound
	ErrConflict       = dominv.ErrConflict
	ErrInvalidProduct = dominv.ErrInvalidProduct
)

// Stock is the ledger surface used for reads and admin stock edits.
type Stock interface {
	Available(ctx context.Context, productID string) (dominv.Availability, error)
	Adjust(ctx context.Context, productID string, delta int) (*dominv.Product, error)
	SetStock(ctx context.Context, productID string, stock int) (*dominv.Product, error)
}

type ProductInput struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Classification string          `json:"classification"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	DiscountRate   decimal.Decimal `json:"discount_rate"`
	Stock          int             `json:"stock"`
}

// ProductView is a product with its live availability.
type ProductView struct {
	Product      *dominv.Product
	Availability dominv.Availability
}

type Service struct {
	repo  dominv.Repository
	stock Stock
	in    *application.Instrument
}

func NewService(repo dominv.Repository, stock Stock, tel observability.Observability) *Service {
	return &Service{
		repo:  repo,
		stock: stock,
		in:    application.NewInstrument(tel, catalogService),
	}
}

// Create adds a product. Initial stock is written here once; later changes go through the ledger.
func (s *Service) Create(ctx context.Context, in ProductInput) (_ *dominv.Product, err error) {
	ctx, run := s.in.Begin(ctx, useCaseCreate, "CreateProduct", attribute.String("product.name", in.Name))
	defer func() { run.End(err) }()

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	p, err := dominv.NewProduct(id, in.Name, in.CostPrice, in.SellingPrice, in.DiscountRate, in.Stock)
	if err != nil {
		run.Fail("PRODUCT_INVALID")
		return nil, err
	}
	p.Category = strings.TrimSpace(in.Category)
	p.Classification = strings.TrimSpace(in.Classification)

	if err := s.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, dominv.ErrConflict) {
			run.Fail("PRODUCT_CONFLICT")
		} else {
			run.Fail("REPO_INSERT_FAILED")
		}
		return nil, fmt.Errorf("catalog: create %s: %w", id, err)
	}
	run.With(observability.F("product_id", id))
	return p, nil
}

// Update edits name, category and prices. The Stock field of in is ignored.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (_ *dominv.Product, err error) {
	ctx, run := s.in.Begin(ctx, useCaseUpdate, "UpdateProduct", attribute.String("product.id", id))
	defer func() { run.End(err) }()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		run.Fail("PRODUCT_LOAD_FAILED")
		return nil, fmt.Errorf("catalog: update %s: %w", id, err)
	}
	edit := current.Clone()
	edit.Name = strings.TrimSpace(in.Name)
	edit.Category = strings.TrimSpace(in.Category)
	edit.Classification = strings.TrimSpace(in.Classification)
	edit.CostPrice = in.CostPrice
	edit.SellingPrice = in.SellingPrice
	edit.DiscountRate = in.DiscountRate
	if err := edit.Validate(); err != nil {
		run.Fail("PRODUCT_INVALID")
		return nil, err
	}

	updated, err := s.repo.Update(ctx, edit)
	if err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("catalog: update %s: %w", id, err)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ProductView, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	avail, err := s.stock.Available(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProductView{Product: p, Availability: avail}, nil
}

func (s *Service) List(ctx context.Context) ([]*dominv.Product, error) {
	return s.repo.List(ctx)
}

// StockEdit is either a relative Delta or an absolute Stock.
type StockEdit struct {
	Delta *int `json:"delta,omitempty"`
	Stock *int `json:"stock,omitempty"`
}

func (s *Service) EditStock(ctx context.Context, id string, edit StockEdit) (*dominv.Product, error) {
	switch {
	case edit.Stock != nil && edit.Delta == nil:
		return s.stock.SetStock(ctx, id, *edit.Stock)
	case edit.Delta != nil && edit.Stock == nil:
		return s.stock.Adjust(ctx, id, *edit.Delta)
	default:
		return nil, fmt.Errorf("%w: exactly one of delta or stock is required", ErrInvalidProduct)
	}
}

// Seed creates every product in a JSON array, skipping ones that already exist.
func (s *Service) Seed(ctx context.Context, r io.Reader) (int, error) {
	var inputs []ProductInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return 0, fmt.Errorf("catalog: decode seed: %w", err)
	}
	created := 0
	for _, in := range inputs {
		if _, err := s.Create(ctx, in); err != nil {
			if errors.Is(err, dominv.ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
