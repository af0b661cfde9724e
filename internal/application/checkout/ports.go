package checkout

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type IDGenerator interface {
	NewID() string
}

// Ledger is the reservation surface of the inventory ledger.
type Ledger interface {
	Reserve(ctx context.Context, productID string, quantity int, checkoutID string) (dominv.Reservation, error)
	Commit(ctx context.Context, res dominv.Reservation) error
	Release(ctx context.Context, res dominv.Reservation) error
	Compensate(ctx context.Context, res dominv.Reservation) error
}

// Catalog supplies names and prices. Satisfied by inventory.Repository.
type Catalog interface {
	Get(ctx context.Context, productID string) (*dominv.Product, error)
}

// Payments is the payment coordinator surface.
type Payments interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (dompay.IntentHandle, error)
	Confirm(ctx context.Context, handle dompay.IntentHandle, details dompay.Details) (dompay.Outcome, error)
	Refund(ctx context.Context, handle dompay.IntentHandle, reason string) error
}
