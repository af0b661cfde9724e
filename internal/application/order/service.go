package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService      = "order-service"
	useCaseTransition = "order.transition"
	useCaseCompensate = "order.compensate"
	publishPeer       = "outbox"
	publishTimeout    = 300 * time.Millisecond
	restockReason     = "order_cancelled"
)

var (
	ErrNotFound          = domorder.ErrNotFound
	ErrInvalidTransition = domorder.ErrInvalidTransition
	ErrStale             = domorder.ErrStale
	ErrRepository        = errors.New("order: repository failure")
)

// Restocker returns units to stock. Satisfied by the inventory ledger.
type Restocker interface {
	Restock(ctx context.Context, productID string, quantity int, reason string) error
}

// Refunder voids a captured payment. Satisfied by the payment coordinator.
type Refunder interface {
	Refund(ctx context.Context, handle dompay.IntentHandle, reason string) error
}

// Service exposes order reads and the administrative lifecycle transitions.
type Service struct {
	repo      domorder.Repository
	restocker Restocker
	refunder  Refunder
	publisher domoutbox.Publisher
	in        *application.Instrument
}

func NewService(
	repo domorder.Repository,
	restocker Restocker,
	refunder Refunder,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		repo:      repo,
		restocker: restocker,
		refunder:  refunder,
		publisher: publisher,
		in:        application.NewInstrument(tel, orderService),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domorder.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, filter domorder.ListFilter) ([]*domorder.Order, error) {
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return orders, nil
}

type TransitionInput struct {
	OrderID string
	Target  domorder.State
	Actor   string
	Reason  string
}

// Transition moves an order along an administrative edge. The write is conditional on
// the version that was read, so of two racing transitions only one succeeds; the other
// gets ErrStale. Cancelling restocks committed lines and refunds a paid card order.
func (s *Service) Transition(ctx context.Context, cmd TransitionInput) (_ *domorder.Order, err error) {
	ctx, run := s.in.Begin(ctx, useCaseTransition, "TransitionOrder",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_state", string(cmd.Target)),
		attribute.String("actor", cmd.Actor),
	)
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", cmd.OrderID), observability.F("target", string(cmd.Target)))

	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}
	from, fromPayment := o.State, o.PaymentStatus

	if err := o.TransitionTo(cmd.Target, cmd.Actor, cmd.Reason); err != nil {
		run.Fail("STATE_TRANSITION_FAILED")
		return nil, err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		if errors.Is(err, domorder.ErrStale) {
			run.Fail("ORDER_STALE")
		} else {
			run.Fail("ORDER_UPDATE_FAILED")
		}
		return nil, wrapRepositoryError(err)
	}

	var compErr error
	if o.State == domorder.StateCancelled {
		compErr = s.compensate(context.WithoutCancel(ctx), o)
	}
	s.publish(ctx, run, domorder.NewStatusChangedEvent(o, from, fromPayment, cmd.Actor))
	run.Span().SetAttributes(attribute.String("order.state", string(o.State)))
	if compErr != nil {
		run.Fail("CANCEL_COMPENSATION_FAILED")
		return o, compErr
	}
	return o, nil
}

// Compensate finishes the restock and refund of a cancelled order whose earlier
// attempt failed. It is a no-op once nothing is owed.
func (s *Service) Compensate(ctx context.Context, orderID, actor string) (_ *domorder.Order, err error) {
	ctx, run := s.in.Begin(ctx, useCaseCompensate, "CompensateOrder",
		attribute.String("order.id", orderID),
		attribute.String("actor", actor),
	)
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", orderID))

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, wrapRepositoryError(err)
	}
	if o.State != domorder.StateCancelled {
		run.Fail("ORDER_NOT_CANCELLED")
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, o.ID, o.State)
	}

	fromPayment := o.PaymentStatus
	if err := s.compensate(context.WithoutCancel(ctx), o); err != nil {
		run.Fail("CANCEL_COMPENSATION_FAILED")
		return o, err
	}
	if o.PaymentStatus != fromPayment {
		s.publish(ctx, run, domorder.NewStatusChangedEvent(o, domorder.StateCancelled, fromPayment, actor))
	}
	return o, nil
}

// compensate returns committed stock line by line, then refunds. Each restock is
// claimed with a versioned update before it runs and released if it fails, so a
// retry never returns the same line twice. Refunds reuse one idempotency key per order.
func (s *Service) compensate(ctx context.Context, o *domorder.Order) error {
	for s.restocker != nil {
		line, ok := o.NextRestock()
		if !ok {
			break
		}
		o.ClaimRestock()
		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order: cancel %s: claim restock: %w", o.ID, wrapRepositoryError(err))
		}
		if err := s.restocker.Restock(ctx, line.ProductID, line.Quantity, restockReason); err != nil {
			o.ReleaseRestock()
			if uerr := s.repo.Update(ctx, o); uerr != nil {
				err = errors.Join(err, wrapRepositoryError(uerr))
			}
			return fmt.Errorf("order: cancel %s: restock %s: %w", o.ID, line.ProductID, err)
		}
	}

	if s.refunder != nil && o.NeedsRefund() {
		handle := dompay.IntentHandle{ID: o.PaymentRef, IdempotencyKey: "order:" + o.ID}
		if err := s.refunder.Refund(ctx, handle, restockReason); err != nil {
			return fmt.Errorf("order: cancel %s: refund: %w", o.ID, err)
		}
		if err := o.MarkRefunded(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order: cancel %s: record refund: %w", o.ID, wrapRepositoryError(err))
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, run *application.Run, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := application.OutcomeSuccess
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		outcome = application.OutcomeError
		run.Span().RecordError(err)
		run.Status("EVENT_PUBLISH_FAILED")
		run.With(observability.F("event_publish_error", err.Error()))
	}
	s.in.External(publishPeer, e.EventName(), outcome, start)
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domorder.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domorder.ErrConflict):
		return domorder.ErrConflict
	case errors.Is(err, domorder.ErrStale):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
