package inventory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	ledgerService     = "inventory-ledger"
	useCaseReserve    = "inventory.reserve"
	useCaseCommit     = "inventory.commit"
	useCaseRelease    = "inventory.release"
	useCaseCompensate = "inventory.compensate"
	useCaseRestock    = "inventory.restock"
	useCaseAdjust     = "inventory.adjust"
	useCaseSweep      = "inventory.sweep"
	publishPeer       = "outbox"
	publishTimeout    = 300 * time.Millisecond

	DefaultStripes   = 64
	DefaultTTL       = 10 * time.Minute
	DefaultRetention = time.Hour
	// DefaultCommitMemory is how long a purged commit is still recognised by ID.
	DefaultCommitMemory = 24 * time.Hour
)

var (
	ErrNotFound           = dominv.ErrNotFound
	ErrInvalidQuantity    = dominv.ErrInvalidQuantity
	ErrInsufficientStock  = dominv.ErrInsufficientStock
	ErrReservationExpired = dominv.ErrReservationExpired
)

type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

type reservationState int

const (
	stateActive reservationState = iota
	stateCommitted
	stateReleased
	stateCompensated
)

func (s reservationState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCommitted:
		return "committed"
	case stateReleased:
		return "released"
	case stateCompensated:
		return "compensated"
	}
	return "unknown"
}

type entry struct {
	res       dominv.Reservation
	state     reservationState
	retiredAt time.Time
}

// stripe guards the reservations of every product hashing to it.
// Stock writes for those products also happen under its lock.
type stripe struct {
	mu        sync.Mutex
	reserved  map[string]int
	entries   map[string]*entry
	// committed holds commit times of reservations purged from entries.
	committed map[string]time.Time
}

// Ledger is the single writer of product stock. It tracks expiring reservations
// so that available = stock - active reservations never goes negative.
type Ledger struct {
	repo      dominv.Repository
	publisher domoutbox.Publisher
	ids       IDGenerator
	stripes   []*stripe
	ttl       time.Duration
	retention time.Duration
	remember  time.Duration
	now       func() time.Time

	in    *application.Instrument
	swept observability.Counter // inventory_reservations_swept_total
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithStripes(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.stripes = newStripes(n)
		}
	}
}

// WithTTL sets how long a reservation holds stock before it may be swept.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithCommitMemory sets how long a committed reservation is recognised after its
// entry is purged. Commit and Compensate on an ID older than that behave as unknown.
func WithCommitMemory(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.remember = d
		}
	}
}

// WithRetention sets how long retired reservations are remembered for idempotent commits.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.retention = d
		}
	}
}

func WithPublisher(p domoutbox.Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) {
		if g != nil {
			l.ids = g
		}
	}
}

func NewLedger(repo dominv.Repository, tel observability.Observability, opts ...Option) *Ledger {
	in := application.NewInstrument(tel, ledgerService)
	_, _, metrics := observability.Resolve(tel)

	l := &Ledger{
		repo:      repo,
		ids:       uuidGenerator{},
		stripes:   newStripes(DefaultStripes),
		ttl:       DefaultTTL,
		retention: DefaultRetention,
		remember:  DefaultCommitMemory,
		now:       time.Now,
		in:        in,
		swept:     metrics.Counter(observability.MReservationsSwept),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newStripes(n int) []*stripe {
	out := make([]*stripe, n)
	for i := range out {
		out[i] = &stripe{
			reserved:  make(map[string]int),
			entries:   make(map[string]*entry),
			committed: make(map[string]time.Time),
		}
	}
	return out
}

func (l *Ledger) stripeFor(productID string) *stripe {
	return l.stripes[xxhash.Sum64String(productID)%uint64(len(l.stripes))]
}

// TTL is the lifetime given to new reservations.
func (l *Ledger) TTL() time.Duration { return l.ttl }

// Reserve places an expiring claim on quantity units of a product.
// It fails with *InsufficientStockError and leaves no trace when stock is short.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int, checkoutID string) (_ dominv.Reservation, err error) {
	ctx, run := l.in.Begin(ctx, useCaseReserve, "Reserve",
		attribute.String("product.id", productID),
		attribute.Int("reservation.quantity", quantity),
		attribute.String("checkout.id", checkoutID),
	)
	defer func() { run.End(err) }()

	if quantity <= 0 {
		run.Fail("QUANTITY_INVALID")
		return dominv.Reservation{}, ErrInvalidQuantity
	}

	s := l.stripeFor(productID)
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := l.repo.Get(ctx, productID)
	if err != nil {
		run.Fail("PRODUCT_LOAD_FAILED")
		return dominv.Reservation{}, fmt.Errorf("inventory: reserve %s: %w", productID, err)
	}

	available := product.Stock - s.reserved[productID]
	if quantity > available {
		run.Fail("INSUFFICIENT_STOCK")
		return dominv.Reservation{}, &dominv.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: max(available, 0),
		}
	}

	now := l.now().UTC()
	res := dominv.Reservation{
		ID:         l.ids.NewID(),
		ProductID:  productID,
		Quantity:   quantity,
		CheckoutID: checkoutID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.ttl),
	}
	s.entries[res.ID] = &entry{res: res, state: stateActive}
	s.reserved[productID] += quantity

	run.With(observability.F("reservation_id", res.ID), observability.F("available_after", available-quantity))
	return res, nil
}

// Commit turns a reservation into a permanent stock decrement. Committing the
// same reservation twice is a no-op for as long as the commit is remembered
// (see WithCommitMemory). A released or expired reservation fails with
// ErrReservationExpired.
func (l *Ledger) Commit(ctx context.Context, res dominv.Reservation) (err error) {
	ctx, run := l.in.Begin(ctx, useCaseCommit, "Commit",
		attribute.String("reservation.id", res.ID),
		attribute.String("product.id", res.ProductID),
	)
	defer func() { run.End(err) }()

	s := l.stripeFor(res.ProductID)
	s.mu.Lock()

	e, ok := s.entries[res.ID]
	if !ok {
		_, done := s.committed[res.ID]
		s.mu.Unlock()
		if done {
			run.Status("ALREADY_COMMITTED")
			return nil
		}
		run.Fail("RESERVATION_UNKNOWN")
		return fmt.Errorf("%w: %s", ErrReservationExpired, res.ID)
	}
	switch e.state {
	case stateCommitted:
		s.mu.Unlock()
		run.Status("ALREADY_COMMITTED")
		return nil
	case stateReleased, stateCompensated:
		s.mu.Unlock()
		run.Fail("RESERVATION_RETIRED")
		return fmt.Errorf("%w: %s", ErrReservationExpired, res.ID)
	}

	now := l.now().UTC()
	if e.res.Expired(now) {
		l.retire(s, e, stateReleased, now)
		s.mu.Unlock()
		run.Fail("RESERVATION_EXPIRED")
		return fmt.Errorf("%w: %s", ErrReservationExpired, res.ID)
	}

	product, err := l.repo.Mutate(ctx, e.res.ProductID, func(p *dominv.Product) error {
		return p.Decrement(e.res.Quantity)
	})
	if err != nil {
		s.mu.Unlock()
		run.Fail("STOCK_WRITE_FAILED")
		return fmt.Errorf("inventory: commit %s: %w", res.ID, err)
	}
	l.retire(s, e, stateCommitted, now)
	s.mu.Unlock()

	l.publish(ctx, dominv.NewStockChangedEvent(product.ID, -e.res.Quantity, product.Stock, "reservation_committed"))
	return nil
}

// Release drops an active claim. Unknown and retired reservations are ignored.
func (l *Ledger) Release(ctx context.Context, res dominv.Reservation) error {
	_, run := l.in.Begin(ctx, useCaseRelease, "Release",
		attribute.String("reservation.id", res.ID),
		attribute.String("product.id", res.ProductID),
	)

	s := l.stripeFor(res.ProductID)
	s.mu.Lock()
	e, ok := s.entries[res.ID]
	switch {
	case !ok:
		run.Status("RESERVATION_UNKNOWN")
	case e.state != stateActive:
		run.Status("ALREADY_" + strings.ToUpper(e.state.String()))
	default:
		l.retire(s, e, stateReleased, l.now().UTC())
	}
	s.mu.Unlock()

	run.End(nil)
	return nil
}

// Compensate reverses the decrement of a committed reservation exactly once.
// An active reservation is simply released.
func (l *Ledger) Compensate(ctx context.Context, res dominv.Reservation) (err error) {
	ctx, run := l.in.Begin(ctx, useCaseCompensate, "Compensate",
		attribute.String("reservation.id", res.ID),
		attribute.String("product.id", res.ProductID),
	)
	defer func() { run.End(err) }()

	s := l.stripeFor(res.ProductID)
	s.mu.Lock()

	now := l.now().UTC()
	e, ok := s.entries[res.ID]
	if !ok {
		at, done := s.committed[res.ID]
		if !done {
			s.mu.Unlock()
			run.Status("RESERVATION_UNKNOWN")
			return nil
		}
		delete(s.committed, res.ID)
		e = &entry{res: res, state: stateCommitted, retiredAt: at}
		s.entries[res.ID] = e
	}
	switch e.state {
	case stateActive:
		l.retire(s, e, stateReleased, now)
		s.mu.Unlock()
		run.Status("RELEASED")
		return nil
	case stateReleased, stateCompensated:
		s.mu.Unlock()
		run.Status("ALREADY_" + strings.ToUpper(e.state.String()))
		return nil
	}

	product, err := l.repo.Mutate(ctx, e.res.ProductID, func(p *dominv.Product) error {
		return p.Increment(e.res.Quantity)
	})
	if err != nil {
		s.mu.Unlock()
		run.Fail("STOCK_WRITE_FAILED")
		return fmt.Errorf("inventory: compensate %s: %w", res.ID, err)
	}
	l.retire(s, e, stateCompensated, now)
	s.mu.Unlock()

	l.publish(ctx, dominv.NewStockChangedEvent(product.ID, e.res.Quantity, product.Stock, "reservation_compensated"))
	return nil
}

// Restock returns units to stock outside of any reservation, e.g. on cancellation.
func (l *Ledger) Restock(ctx context.Context, productID string, quantity int, reason string) (err error) {
	ctx, run := l.in.Begin(ctx, useCaseRestock, "Restock",
		attribute.String("product.id", productID),
		attribute.Int("restock.quantity", quantity),
		attribute.String("restock.reason", reason),
	)
	defer func() { run.End(err) }()

	if quantity <= 0 {
		run.Fail("QUANTITY_INVALID")
		return ErrInvalidQuantity
	}

	s := l.stripeFor(productID)
	s.mu.Lock()
	product, err := l.repo.Mutate(ctx, productID, func(p *dominv.Product) error {
		return p.Increment(quantity)
	})
	s.mu.Unlock()
	if err != nil {
		run.Fail("STOCK_WRITE_FAILED")
		return fmt.Errorf("inventory: restock %s: %w", productID, err)
	}

	l.publish(ctx, dominv.NewStockChangedEvent(productID, quantity, product.Stock, reason))
	return nil
}

// Adjust changes stock by delta. It refuses to drop stock below what is reserved.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int) (*dominv.Product, error) {
	return l.adjust(ctx, productID, "Adjust", func(current int) int { return current + delta })
}

// SetStock overwrites stock with an absolute count, subject to the same floor as Adjust.
func (l *Ledger) SetStock(ctx context.Context, productID string, stock int) (*dominv.Product, error) {
	return l.adjust(ctx, productID, "SetStock", func(int) int { return stock })
}

func (l *Ledger) adjust(ctx context.Context, productID, spanName string, next func(int) int) (_ *dominv.Product, err error) {
	ctx, run := l.in.Begin(ctx, useCaseAdjust, spanName, attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	s := l.stripeFor(productID)
	s.mu.Lock()
	reserved := s.reserved[productID]
	var delta int
	product, err := l.repo.Mutate(ctx, productID, func(p *dominv.Product) error {
		target := next(p.Stock)
		if target < reserved {
			return &dominv.InsufficientStockError{
				ProductID: p.ID,
				Requested: p.Stock - target,
				Available: max(p.Stock-reserved, 0),
			}
		}
		delta = target - p.Stock
		return p.SetStock(target)
	})
	s.mu.Unlock()
	if err != nil {
		run.Fail("STOCK_WRITE_FAILED")
		return nil, fmt.Errorf("inventory: adjust %s: %w", productID, err)
	}

	run.With(observability.F("delta", delta), observability.F("stock", product.Stock))
	if delta != 0 {
		l.publish(ctx, dominv.NewStockChangedEvent(productID, delta, product.Stock, "admin_adjustment"))
	}
	return product, nil
}

// Available reports stock, active reservations and what is left to sell.
func (l *Ledger) Available(ctx context.Context, productID string) (dominv.Availability, error) {
	s := l.stripeFor(productID)
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := l.repo.Get(ctx, productID)
	if err != nil {
		return dominv.Availability{}, fmt.Errorf("inventory: available %s: %w", productID, err)
	}
	reserved := s.reserved[productID]
	return dominv.Availability{
		ProductID: productID,
		Stock:     product.Stock,
		Reserved:  reserved,
		Available: max(product.Stock-reserved, 0),
	}, nil
}

// SweepExpired releases every active reservation past its expiry and forgets
// retired ones older than the retention window. It returns the number released.
func (l *Ledger) SweepExpired(ctx context.Context) int {
	ctx, run := l.in.Begin(ctx, useCaseSweep, "SweepExpired")

	now := l.now().UTC()
	var expired []domoutbox.Event
	purged := 0
	for _, s := range l.stripes {
		s.mu.Lock()
		for id, e := range s.entries {
			switch {
			case e.state == stateActive && e.res.Expired(now):
				l.retire(s, e, stateReleased, now)
				expired = append(expired, dominv.NewReservationExpiredEvent(e.res))
			case e.state != stateActive && now.Sub(e.retiredAt) >= l.retention:
				if e.state == stateCommitted {
					s.committed[id] = e.retiredAt
				}
				delete(s.entries, id)
				purged++
			}
		}
		for id, at := range s.committed {
			if now.Sub(at) >= l.remember {
				delete(s.committed, id)
			}
		}
		s.mu.Unlock()
	}

	if len(expired) > 0 {
		l.swept.Add(float64(len(expired)))
		l.publish(ctx, expired...)
	}
	run.With(observability.F("released", len(expired)), observability.F("purged", purged))
	run.End(nil)
	return len(expired)
}

// retire must be called with s.mu held.
func (l *Ledger) retire(s *stripe, e *entry, state reservationState, at time.Time) {
	if e.state == stateActive {
		left := s.reserved[e.res.ProductID] - e.res.Quantity
		if left > 0 {
			s.reserved[e.res.ProductID] = left
		} else {
			delete(s.reserved, e.res.ProductID)
		}
	}
	e.state = state
	e.retiredAt = at
}

func (l *Ledger) publish(ctx context.Context, events ...domoutbox.Event) {
	if l.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := application.OutcomeSuccess
	if err := domoutbox.PublishAll(pubCtx, l.publisher, events...); err != nil {
		outcome = application.OutcomeError
		l.in.Logger().Warn("event_publish_failed",
			observability.F("events", len(events)),
			observability.F("error", err.Error()),
		)
	}
	l.in.External(publishPeer, events[0].EventName(), outcome, start)
}
