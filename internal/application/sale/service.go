package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	saleService     = "sale-service"
	useCaseCreate   = "sale.create"
	useCaseComplete = "sale.complete"
	useCaseCancel   = "sale.cancel"
	publishTimeout  = 300 * time.Millisecond
	restockReason   = "sale_cancelled"
)

var (
	ErrNotFound          = domsale.ErrNotFound
	ErrInvalidQuantity   = domsale.ErrInvalidQuantity
	ErrInvalidTransition = domsale.ErrInvalidTransition
	ErrStale             = domsale.ErrStale
)

// Ledger is the part of the inventory ledger a sale needs.
type Ledger interface {
	Reserve(ctx context.Context, productID string, quantity int, checkoutID string) (dominv.Reservation, error)
	Commit(ctx context.Context, res dominv.Reservation) error
	Release(ctx context.Context, res dominv.Reservation) error
	Restock(ctx context.Context, productID string, quantity int, reason string) error
}

type Catalog interface {
	Get(ctx context.Context, productID string) (*dominv.Product, error)
}

type Service struct {
	repo      domsale.Repository
	ledger    Ledger
	catalog   Catalog
	publisher domoutbox.Publisher
	in        *application.Instrument
}

func NewService(repo domsale.Repository, ledger Ledger, catalog Catalog, publisher domoutbox.Publisher, tel observability.Observability) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		catalog:   catalog,
		publisher: publisher,
		in:        application.NewInstrument(tel, saleService),
	}
}

// Create records a counter sale. Stock is taken immediately through the ledger.
func (s *Service) Create(ctx context.Context, productID string, quantity int) (_ *domsale.Sale, err error) {
	ctx, run := s.in.Begin(ctx, useCaseCreate, "CreateSale",
		attribute.String("product.id", productID),
		attribute.Int("sale.quantity", quantity),
	)
	defer func() { run.End(err) }()

	if quantity <= 0 {
		run.Fail("QUANTITY_INVALID")
		return nil, ErrInvalidQuantity
	}
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		run.Fail("PRODUCT_LOAD_FAILED")
		return nil, fmt.Errorf("sale: load product: %w", err)
	}

	id := uuid.NewString()
	entity, err := domsale.New(id, productID, quantity, product.UnitPrice())
	if err != nil {
		run.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, productID, quantity, "sale:"+id)
	if err != nil {
		run.Fail("RESERVE_FAILED")
		return nil, err
	}
	if err := s.ledger.Commit(ctx, res); err != nil {
		_ = s.ledger.Release(context.WithoutCancel(ctx), res)
		run.Fail("COMMIT_FAILED")
		return nil, err
	}
	if err := s.repo.Insert(ctx, entity); err != nil {
		if rerr := s.ledger.Restock(context.WithoutCancel(ctx), productID, quantity, "sale_persist_failed"); rerr != nil {
			err = errors.Join(err, rerr)
		}
		run.Fail("SALE_PERSIST_FAILED")
		return nil, fmt.Errorf("sale: persist: %w", err)
	}

	run.With(observability.F("sale_id", id), observability.F("total", entity.TotalAmount.StringFixed(2)))
	s.publish(ctx, domsale.NewRecordedEvent(entity))
	return entity, nil
}

func (s *Service) Complete(ctx context.Context, id string) (_ *domsale.Sale, err error) {
	ctx, run := s.in.Begin(ctx, useCaseComplete, "CompleteSale", attribute.String("sale.id", id))
	defer func() { run.End(err) }()

	entity, err := s.repo.Get(ctx, id)
	if err != nil {
		run.Fail("SALE_LOAD_FAILED")
		return nil, err
	}
	from := entity.Status
	if err := entity.Complete(); err != nil {
		run.Fail("STATUS_TRANSITION_FAILED")
		return nil, err
	}
	if err := s.repo.Update(ctx, entity); err != nil {
		run.Fail("SALE_UPDATE_FAILED")
		return nil, err
	}
	s.publish(ctx, domsale.NewStatusChangedEvent(entity, from))
	return entity, nil
}

// Cancel voids a pending or completed sale and returns its units to stock. The
// write is conditional on the version that was read, so racing cancels restock once.
// Cancelling a sale whose earlier restock failed retries that restock.
func (s *Service) Cancel(ctx context.Context, id string) (_ *domsale.Sale, err error) {
	ctx, run := s.in.Begin(ctx, useCaseCancel, "CancelSale", attribute.String("sale.id", id))
	defer func() { run.End(err) }()

	entity, err := s.repo.Get(ctx, id)
	if err != nil {
		run.Fail("SALE_LOAD_FAILED")
		return nil, err
	}
	from := entity.Status
	retry := entity.NeedsRestock()
	if !retry {
		if err := entity.Cancel(); err != nil {
			run.Fail("STATUS_TRANSITION_FAILED")
			return nil, err
		}
	}
	entity.ClaimRestock()
	if err := s.repo.Update(ctx, entity); err != nil {
		if errors.Is(err, domsale.ErrStale) {
			run.Fail("SALE_STALE")
		} else {
			run.Fail("SALE_UPDATE_FAILED")
		}
		return nil, err
	}
	if !retry {
		s.publish(ctx, domsale.NewStatusChangedEvent(entity, from))
	}

	bg := context.WithoutCancel(ctx)
	if err := s.ledger.Restock(bg, entity.ProductID, entity.Quantity, restockReason); err != nil {
		entity.ReleaseRestock()
		if uerr := s.repo.Update(bg, entity); uerr != nil {
			err = errors.Join(err, uerr)
		}
		run.Fail("RESTOCK_FAILED")
		return entity, fmt.Errorf("sale: cancel %s: %w", id, err)
	}
	return entity, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domsale.Sale, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domsale.Sale, error) {
	return s.repo.List(ctx)
}

func (s *Service) publish(ctx context.Context, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		s.in.Logger().Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}
