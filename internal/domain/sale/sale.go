package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("sale: not found")
	ErrConflict          = errors.New("sale: already exists")
	ErrInvalidQuantity   = errors.New("sale: quantity must be greater than zero")
	ErrInvalidTransition = errors.New("sale: invalid status transition")
	ErrStale             = errors.New("sale: modified concurrently")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Sale is an over-the-counter sale recorded by an administrator.
type Sale struct {
	ID          string
	ProductID   string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
	Status      Status
	// Restocked is set once a cancelled sale's units were claimed for return to stock.
	Restocked bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

func New(id, productID string, quantity int, unitPrice decimal.Decimal) (*Sale, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	return &Sale{
		ID:          id,
		ProductID:   productID,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalAmount: unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

func (s *Sale) Complete() error {
	if s.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusCompleted)
	}
	s.Status = StatusCompleted
	s.touch()
	return nil
}

func (s *Sale) Cancel() error {
	if s.Status == StatusCancelled {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusCancelled)
	}
	s.Status = StatusCancelled
	s.touch()
	return nil
}

// NeedsRestock reports a cancelled sale whose units have not been claimed back.
func (s *Sale) NeedsRestock() bool {
	return s.Status == StatusCancelled && !s.Restocked
}

func (s *Sale) ClaimRestock() {
	s.Restocked = true
	s.touch()
}

// ReleaseRestock undoes ClaimRestock after the restock itself failed.
func (s *Sale) ReleaseRestock() {
	s.Restocked = false
	s.touch()
}

func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

func (s *Sale) touch() {
	s.UpdatedAt = time.Now().UTC()
}

type Repository interface {
	Insert(ctx context.Context, sale *Sale) error
	Get(ctx context.Context, id string) (*Sale, error)
	// Update is conditional on sale.Version matching the stored row and bumps it; a mismatch returns ErrStale.
	Update(ctx context.Context, sale *Sale) error
	List(ctx context.Context) ([]*Sale, error)
}

// RecordedEvent is emitted when a sale has taken stock.
type RecordedEvent struct {
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (RecordedEvent) EventName() string { return "sale.recorded" }

func NewRecordedEvent(s *Sale) RecordedEvent {
	return RecordedEvent{
		SaleID:      s.ID,
		ProductID:   s.ProductID,
		Quantity:    s.Quantity,
		TotalAmount: s.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}

type StatusChangedEvent struct {
	SaleID      string          `json:"sale_id"`
	From        Status          `json:"from"`
	To          Status          `json:"to"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return "sale.status_changed" }

func NewStatusChangedEvent(s *Sale, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		SaleID:      s.ID,
		From:        from,
		To:          s.Status,
		Quantity:    s.Quantity,
		TotalAmount: s.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}
