package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domidem "github.com/Zhima-Mochi/minishop-checkout/internal/domain/idempotency"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService    = "checkout-service"
	useCasePlaceOrder  = "checkout.place_order"
	publishPeer        = "outbox"
	publishTimeout     = 300 * time.Millisecond
	systemActor        = "checkout"
	refundCommitFailed = "stock_commit_failed"
	refundPersistFail  = "order_persist_failed"
	refundUnconfirmed  = "confirm_unresolved"
)

var (
	ErrEmptyCart          = errors.New("checkout: cart is empty")
	ErrInvalidCart        = errors.New("checkout: invalid cart")
	ErrPaymentDeclined    = errors.New("checkout: payment declined")
	ErrPaymentFailed      = errors.New("checkout: payment could not be completed")
	ErrCheckoutInProgress = errors.New("checkout: request with this idempotency key is in progress")
	ErrInsufficientStock  = dominv.ErrInsufficientStock
	ErrReservationExpired = dominv.ErrReservationExpired
)

// CartLine is one line of the customer's cart. PriceAtAddTime is what the
// customer saw and is never used for totals.
type CartLine struct {
	ProductID      string
	Quantity       int
	PriceAtAddTime decimal.Decimal
}

type PlaceOrderInput struct {
	UserID         string
	Lines          []CartLine
	Shipping       domorder.Address
	PaymentMethod  domorder.PaymentMethod
	PaymentDetails dompay.Details
	IdempotencyKey string
}

type Config struct {
	TaxRate  decimal.Decimal
	Currency string
	// IdempotencyTTL is how long a placed order is replayed for its key.
	IdempotencyTTL time.Duration
	// ClaimTTL bounds an in-flight key; it should outlast a reservation plus the payment retry budget.
	ClaimTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		TaxRate:        decimal.RequireFromString("0.18"),
		Currency:       "usd",
		IdempotencyTTL: domidem.DefaultTTL,
		ClaimTTL:       domidem.DefaultClaimTTL,
	}
}

// Orchestrator places orders: reserve, price, pay, commit, persist.
type Orchestrator struct {
	ledger    Ledger
	catalog   Catalog
	payments  Payments
	orders    domorder.Repository
	idem      domidem.Store
	publisher domoutbox.Publisher
	ids       IDGenerator
	cfg       Config
	in        *application.Instrument
}

type Option func(*Orchestrator)

func WithIdempotencyStore(s domidem.Store) Option {
	return func(o *Orchestrator) { o.idem = s }
}

func WithPublisher(p domoutbox.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.ids = g
		}
	}
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

func New(
	ledger Ledger,
	catalog Catalog,
	payments Payments,
	orders domorder.Repository,
	cfg Config,
	tel observability.Observability,
	opts ...Option,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	o := &Orchestrator{
		ledger:   ledger,
		catalog:  catalog,
		payments: payments,
		orders:   orders,
		ids:      uuidGenerator{},
		cfg:      cfg,
		in:       application.NewInstrument(tel, checkoutService),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PlaceOrder turns a cart into a committed order or leaves no trace in stock.
func (c *Orchestrator) PlaceOrder(ctx context.Context, cmd PlaceOrderInput) (_ *domorder.Order, err error) {
	ctx, run := c.in.Begin(ctx, useCasePlaceOrder, "PlaceOrder",
		attribute.String("user.id", cmd.UserID),
		attribute.String("payment.method", string(cmd.PaymentMethod)),
		attribute.Int("cart.lines", len(cmd.Lines)),
	)
	defer func() { run.End(err) }()

	lines, err := validate(cmd)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			run.Fail("CART_EMPTY")
		} else {
			run.Fail("CART_INVALID")
		}
		return nil, err
	}

	if cmd.IdempotencyKey != "" && c.idem != nil {
		key := cmd.UserID + ":" + cmd.IdempotencyKey
		claim, cerr := c.idem.Claim(ctx, key, c.cfg.ClaimTTL)
		if cerr != nil {
			run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
			return nil, fmt.Errorf("checkout: idempotency: %w", cerr)
		}
		switch claim.State {
		case domidem.StateCompleted:
			existing, gerr := c.orders.Get(ctx, claim.ResultID)
			if gerr != nil {
				run.Fail("IDEMPOTENT_REPLAY_FAILED")
				return nil, fmt.Errorf("checkout: load replayed order %s: %w", claim.ResultID, gerr)
			}
			run.Status("IDEMPOTENT_REPLAY")
			run.With(observability.F("order_id", existing.ID))
			run.Span().AddEvent("checkout.idempotent_replay",
				trace.WithAttributes(attribute.String("order.id", existing.ID)))
			return existing, nil
		case domidem.StateInFlight:
			run.Fail("IN_PROGRESS")
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err != nil {
				_ = c.idem.Abandon(context.WithoutCancel(ctx), key)
			}
		}()
		placed, perr := c.place(ctx, run, cmd, lines)
		if perr != nil {
			return nil, perr
		}
		if cerr := c.idem.Complete(context.WithoutCancel(ctx), key, placed.ID, c.cfg.IdempotencyTTL); cerr != nil {
			run.Logger().Warn("idempotency_complete_failed",
				observability.F("order_id", placed.ID),
				observability.F("error", cerr.Error()),
			)
		}
		return placed, nil
	}

	return c.place(ctx, run, cmd, lines)
}

func (c *Orchestrator) place(ctx context.Context, run *application.Run, cmd PlaceOrderInput, lines []CartLine) (*domorder.Order, error) {
	checkoutID := c.ids.NewID()
	run.With(observability.F("checkout_id", checkoutID))
	run.Span().SetAttributes(attribute.String("checkout.id", checkoutID))
	bg := context.WithoutCancel(ctx)

	reservations, err := c.reserve(ctx, checkoutID, lines)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			run.Fail("INSUFFICIENT_STOCK")
		} else {
			run.Fail("RESERVE_FAILED")
		}
		return nil, err
	}
	run.Span().AddEvent("checkout.reserve_inventory")

	priced, err := c.price(ctx, lines)
	if err != nil {
		c.releaseAll(bg, reservations)
		run.Fail("PRICING_FAILED")
		return nil, err
	}

	o, err := domorder.New(domorder.Params{
		ID:             c.ids.NewID(),
		UserID:         cmd.UserID,
		Lines:          priced,
		Shipping:       cmd.Shipping,
		PaymentMethod:  cmd.PaymentMethod,
		TaxRate:        c.cfg.TaxRate,
		IdempotencyKey: cmd.IdempotencyKey,
		Actor:          cmd.UserID,
	})
	if err != nil {
		c.releaseAll(bg, reservations)
		run.Fail("ORDER_BUILD_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrInvalidCart, err)
	}
	run.With(observability.F("order_id", o.ID), observability.F("total", o.Total.StringFixed(2)))

	var handle *dompay.IntentHandle
	if o.PaymentMethod == domorder.PaymentCard {
		h, status, err := c.pay(ctx, o, checkoutID, cmd.PaymentDetails)
		if err != nil {
			c.releaseAll(bg, reservations)
			run.Fail(status)
			if errors.Is(err, ErrPaymentDeclined) {
				run.Span().AddEvent("checkout.payment_declined")
			}
			return nil, err
		}
		handle = &h
		run.Span().AddEvent("checkout.authorize_payment",
			trace.WithAttributes(attribute.String("payment.intent_id", h.ID)))
	}

	if err := c.commit(ctx, reservations); err != nil {
		c.refund(bg, run, handle, refundCommitFailed)
		if errors.Is(err, ErrReservationExpired) {
			run.Fail("RESERVATION_EXPIRED")
		} else {
			run.Fail("COMMIT_FAILED")
		}
		return nil, err
	}
	o.StockCommitted = true

	if handle != nil {
		if err := o.MarkPaid(handle.ID, systemActor); err != nil {
			c.compensateAll(bg, reservations)
			c.refund(bg, run, handle, refundPersistFail)
			run.Fail("STATE_TRANSITION_FAILED")
			return nil, err
		}
	}

	if err := c.orders.Insert(ctx, o); err != nil {
		c.compensateAll(bg, reservations)
		c.refund(bg, run, handle, refundPersistFail)
		run.Fail("ORDER_PERSIST_FAILED")
		return nil, fmt.Errorf("checkout: persist order: %w", err)
	}

	c.publish(ctx, run, domorder.NewPlacedEvent(o))
	run.Span().SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.state", string(o.State)),
	)
	return o, nil
}

// reserve claims every line; on the first failure all earlier claims are released.
func (c *Orchestrator) reserve(ctx context.Context, checkoutID string, lines []CartLine) ([]dominv.Reservation, error) {
	reservations := make([]dominv.Reservation, 0, len(lines))
	for _, l := range lines {
		res, err := c.ledger.Reserve(ctx, l.ProductID, l.Quantity, checkoutID)
		if err != nil {
			c.releaseAll(context.WithoutCancel(ctx), reservations)
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

// price snapshots name and discounted unit price from the catalog.
func (c *Orchestrator) price(ctx context.Context, lines []CartLine) ([]domorder.Line, error) {
	out := make([]domorder.Line, 0, len(lines))
	for _, l := range lines {
		p, err := c.catalog.Get(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("checkout: price %s: %w", l.ProductID, err)
		}
		out = append(out, domorder.Line{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.UnitPrice(),
		})
	}
	return out, nil
}

// pay opens and confirms an intent. The returned status labels the failure for telemetry.
func (c *Orchestrator) pay(ctx context.Context, o *domorder.Order, checkoutID string, details dompay.Details) (dompay.IntentHandle, string, error) {
	amount := minorUnits(o.Total)
	handle, err := c.payments.CreateIntent(ctx, amount, c.cfg.Currency, map[string]string{
		"checkout_id": checkoutID,
		"order_id":    o.ID,
		"user_id":     o.UserID,
	})
	if err != nil {
		return dompay.IntentHandle{}, "PAYMENT_FAILED", fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	outcome, err := c.payments.Confirm(ctx, handle, details)
	if err != nil {
		// The provider may still capture later; void it so no money is held without an order.
		c.refund(context.WithoutCancel(ctx), nil, &handle, refundUnconfirmed)
		return dompay.IntentHandle{}, "PAYMENT_FAILED", fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if outcome == dompay.OutcomeDeclined {
		return dompay.IntentHandle{}, "PAYMENT_DECLINED", ErrPaymentDeclined
	}
	return handle, "", nil
}

// commit makes every reservation permanent. If any fails, the ones already
// committed are compensated and the rest released.
func (c *Orchestrator) commit(ctx context.Context, reservations []dominv.Reservation) error {
	for i, res := range reservations {
		if err := c.ledger.Commit(ctx, res); err != nil {
			bg := context.WithoutCancel(ctx)
			c.compensateAll(bg, reservations[:i])
			c.releaseAll(bg, reservations[i:])
			if errors.Is(err, ErrReservationExpired) {
				return err
			}
			return fmt.Errorf("checkout: commit stock: %w", err)
		}
	}
	return nil
}

func (c *Orchestrator) releaseAll(ctx context.Context, reservations []dominv.Reservation) {
	for _, res := range reservations {
		if err := c.ledger.Release(ctx, res); err != nil {
			c.in.Logger().Error("reservation_release_failed",
				observability.F("reservation_id", res.ID),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (c *Orchestrator) compensateAll(ctx context.Context, reservations []dominv.Reservation) {
	for _, res := range reservations {
		if err := c.ledger.Compensate(ctx, res); err != nil {
			c.in.Logger().Error("reservation_compensate_failed",
				observability.F("reservation_id", res.ID),
				observability.F("error", err.Error()),
			)
		}
	}
}

func (c *Orchestrator) refund(ctx context.Context, run *application.Run, handle *dompay.IntentHandle, reason string) {
	if handle == nil {
		return
	}
	if err := c.payments.Refund(ctx, *handle, reason); err != nil {
		c.in.Logger().Error("payment_refund_failed",
			observability.F("intent_id", handle.ID),
			observability.F("reason", reason),
			observability.F("error", err.Error()),
		)
		return
	}
	if run != nil {
		run.With(observability.F("refunded_intent", handle.ID))
	}
}

func (c *Orchestrator) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if c.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := application.OutcomeSuccess
	if err := c.publisher.Publish(pubCtx, e); err != nil {
		outcome = application.OutcomeError
		run.Span().RecordError(err)
		run.Status("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", err.Error()))
	}
	c.in.External(publishPeer, e.EventName(), outcome, start)
}

// validate rejects malformed input and merges lines for the same product.
func validate(cmd PlaceOrderInput) ([]CartLine, error) {
	if len(cmd.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidCart)
	}
	if !cmd.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidCart, cmd.PaymentMethod)
	}
	if cmd.PaymentMethod == domorder.PaymentCard && strings.TrimSpace(cmd.PaymentDetails.Token) == "" {
		return nil, fmt.Errorf("%w: payment token is required", ErrInvalidCart)
	}
	if err := cmd.Shipping.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCart, err)
	}

	index := make(map[string]int, len(cmd.Lines))
	merged := make([]CartLine, 0, len(cmd.Lines))
	for _, l := range cmd.Lines {
		l.ProductID = strings.TrimSpace(l.ProductID)
		if l.ProductID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInvalidCart)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidCart, l.ProductID)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
