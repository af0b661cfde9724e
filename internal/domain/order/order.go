package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("order: unit price must be zero or greater")
	ErrNoLines           = errors.New("order: at least one line is required")
	ErrInvalidShipping   = errors.New("order: invalid shipping address")
	ErrInvalidPayment    = errors.New("order: unsupported payment method")
	ErrInvalidTransition = errors.New("order: invalid state transition")
	// ErrStale reports that the stored order changed since it was read.
	ErrStale = errors.New("order: modified concurrently")
)

// State is the internal lifecycle state driven by the state machine.
type State string

const (
	StateCreated       State = "created"
	StatePaid          State = "paid"
	StatePaymentFailed State = "payment_failed"
	StateProcessing    State = "processing"
	StateShipped       State = "shipped"
	StateDelivered     State = "delivered"
	StateCancelled     State = "cancelled"
)

// Status is the customer-facing order status derived from State.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	// PaymentRefunded is set when a paid order is cancelled and its payment voided.
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCOD  PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentCOD
}

// Line is an order line with name and price snapshots taken at checkout.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

type Address struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	Phone      string
}

func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.FullName) == "":
		return fmt.Errorf("%w: full name is required", ErrInvalidShipping)
	case strings.TrimSpace(a.Line1) == "":
		return fmt.Errorf("%w: address line is required", ErrInvalidShipping)
	case strings.TrimSpace(a.City) == "":
		return fmt.Errorf("%w: city is required", ErrInvalidShipping)
	case strings.TrimSpace(a.Country) == "":
		return fmt.Errorf("%w: country is required", ErrInvalidShipping)
	}
	return nil
}

// Transition is one entry of the order's append-only state log.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Actor  string
	Reason string
}

type Order struct {
	ID             string
	UserID         string
	Lines          []Line
	Shipping       Address
	PaymentMethod  PaymentMethod
	PaymentRef     string
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	PaymentStatus  PaymentStatus
	State          State
	StockCommitted bool
	// RestockedLines counts lines already returned to stock after a cancellation.
	RestockedLines int
	FailureReason  string
	Transitions    []Transition
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Version is bumped by every successful repository Update.
	Version int64
}

// Params carries everything needed to build an order at checkout.
type Params struct {
	ID             string
	UserID         string
	Lines          []Line
	Shipping       Address
	PaymentMethod  PaymentMethod
	TaxRate        decimal.Decimal
	IdempotencyKey string
	Actor          string
}

// New builds an order in the Created state. Totals are computed here once and never again.
func New(p Params) (*Order, error) {
	if len(p.Lines) == 0 {
		return nil, ErrNoLines
	}
	if !p.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayment, p.PaymentMethod)
	}
	if err := p.Shipping.Validate(); err != nil {
		return nil, err
	}

	lines := make([]Line, len(p.Lines))
	subtotal := decimal.Zero
	for i, l := range p.Lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.UnitPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		subtotal = subtotal.Add(l.LineTotal)
		lines[i] = l
	}
	tax := subtotal.Mul(p.TaxRate).Round(2)

	now := time.Now().UTC()
	o := &Order{
		ID:             p.ID,
		UserID:         p.UserID,
		Lines:          lines,
		Shipping:       p.Shipping,
		PaymentMethod:  p.PaymentMethod,
		Subtotal:       subtotal,
		Tax:            tax,
		Total:          subtotal.Add(tax),
		PaymentStatus:  PaymentPending,
		State:          StateCreated,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	o.Transitions = append(o.Transitions, Transition{To: StateCreated, At: now, Actor: p.Actor, Reason: "placed"})
	return o, nil
}

// Status maps the internal state to the customer-facing status.
func (o *Order) Status() Status { return StatusOf(o.State) }

func StatusOf(s State) Status {
	switch s {
	case StateProcessing:
		return StatusProcessing
	case StateShipped:
		return StatusShipped
	case StateDelivered:
		return StatusDelivered
	case StateCancelled, StatePaymentFailed:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Units is the total quantity across lines.
func (o *Order) Units() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	clone.Transitions = append([]Transition(nil), o.Transitions...)
	return &clone
}

// MarkRefunded records that the payment of a cancelled order was returned.
func (o *Order) MarkRefunded() error {
	if o.State != StateCancelled || o.PaymentStatus != PaymentPaid {
		return fmt.Errorf("%w: refund from %s/%s", ErrInvalidTransition, o.State, o.PaymentStatus)
	}
	o.PaymentStatus = PaymentRefunded
	o.touch(time.Now().UTC())
	return nil
}

// NextRestock returns the next line a cancelled order still owes to stock.
func (o *Order) NextRestock() (Line, bool) {
	if o.State != StateCancelled || !o.StockCommitted || o.RestockedLines >= len(o.Lines) {
		return Line{}, false
	}
	return o.Lines[o.RestockedLines], true
}

// ClaimRestock marks the line returned by NextRestock as restocked.
func (o *Order) ClaimRestock() {
	o.RestockedLines++
	if o.RestockedLines >= len(o.Lines) {
		o.StockCommitted = false
	}
	o.touch(time.Now().UTC())
}

// ReleaseRestock undoes ClaimRestock after the restock itself failed.
func (o *Order) ReleaseRestock() {
	if o.RestockedLines > 0 {
		o.RestockedLines--
	}
	o.StockCommitted = true
	o.touch(time.Now().UTC())
}

// NeedsRefund reports a cancelled card order whose payment is still captured.
func (o *Order) NeedsRefund() bool {
	return o.State == StateCancelled && o.PaymentMethod == PaymentCard && o.PaymentStatus == PaymentPaid
}

func (o *Order) touch(at time.Time) {
	o.UpdatedAt = at
}
