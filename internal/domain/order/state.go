package order

import (
	"fmt"
	"time"
)

// OrderState implements the state pattern for order lifecycle transitions.
// Each handler returns the next state or ErrInvalidTransition.
type OrderState interface {
	State() State
	OnPaid(o *Order, paymentRef string) (OrderState, error)
	OnPaymentFailed(o *Order, reason string) (OrderState, error)
	OnProcessing(o *Order) (OrderState, error)
	OnShipped(o *Order) (OrderState, error)
	OnDelivered(o *Order) (OrderState, error)
	OnCancelled(o *Order) (OrderState, error)
}

// rejectAll is embedded by every state so only the legal moves need overriding.
type rejectAll struct{}

func (rejectAll) OnPaid(*Order, string) (OrderState, error)          { return nil, ErrInvalidTransition }
func (rejectAll) OnPaymentFailed(*Order, string) (OrderState, error) { return nil, ErrInvalidTransition }
func (rejectAll) OnProcessing(*Order) (OrderState, error)            { return nil, ErrInvalidTransition }
func (rejectAll) OnShipped(*Order) (OrderState, error)               { return nil, ErrInvalidTransition }
func (rejectAll) OnDelivered(*Order) (OrderState, error)             { return nil, ErrInvalidTransition }
func (rejectAll) OnCancelled(*Order) (OrderState, error)             { return nil, ErrInvalidTransition }

type createdState struct{ rejectAll }

func (createdState) State() State { return StateCreated }

func (createdState) OnPaid(o *Order, paymentRef string) (OrderState, error) {
	if o.PaymentMethod != PaymentCard {
		return nil, ErrInvalidTransition
	}
	o.PaymentStatus = PaymentPaid
	o.PaymentRef = paymentRef
	o.FailureReason = ""
	return paidState{}, nil
}

func (createdState) OnPaymentFailed(o *Order, reason string) (OrderState, error) {
	if o.PaymentMethod != PaymentCard {
		return nil, ErrInvalidTransition
	}
	o.PaymentStatus = PaymentFailed
	o.FailureReason = reason
	return paymentFailedState{}, nil
}

// Cash on delivery skips the payment step.
func (createdState) OnProcessing(o *Order) (OrderState, error) {
	if o.PaymentMethod != PaymentCOD {
		return nil, ErrInvalidTransition
	}
	return processingState{}, nil
}

func (createdState) OnCancelled(*Order) (OrderState, error) { return cancelledState{}, nil }

type paidState struct{ rejectAll }

func (paidState) State() State { return StatePaid }

func (paidState) OnProcessing(*Order) (OrderState, error) { return processingState{}, nil }

func (paidState) OnCancelled(*Order) (OrderState, error) { return cancelledState{}, nil }

type processingState struct{ rejectAll }

func (processingState) State() State { return StateProcessing }

func (processingState) OnShipped(*Order) (OrderState, error) { return shippedState{}, nil }

func (processingState) OnCancelled(*Order) (OrderState, error) { return cancelledState{}, nil }

type shippedState struct{ rejectAll }

func (shippedState) State() State { return StateShipped }

func (shippedState) OnDelivered(o *Order) (OrderState, error) {
	if o.PaymentMethod == PaymentCOD {
		o.PaymentStatus = PaymentPaid
	}
	return deliveredState{}, nil
}

type deliveredState struct{ rejectAll }

func (deliveredState) State() State { return StateDelivered }

type paymentFailedState struct{ rejectAll }

func (paymentFailedState) State() State { return StatePaymentFailed }

type cancelledState struct{ rejectAll }

func (cancelledState) State() State { return StateCancelled }

func stateFor(s State) (OrderState, error) {
	switch s {
	case StateCreated:
		return createdState{}, nil
	case StatePaid:
		return paidState{}, nil
	case StatePaymentFailed:
		return paymentFailedState{}, nil
	case StateProcessing:
		return processingState{}, nil
	case StateShipped:
		return shippedState{}, nil
	case StateDelivered:
		return deliveredState{}, nil
	case StateCancelled:
		return cancelledState{}, nil
	default:
		return nil, fmt.Errorf("order: unknown state %q", s)
	}
}

// MarkPaid records a successful card payment.
func (o *Order) MarkPaid(paymentRef, actor string) error {
	return o.apply(actor, "payment_succeeded", func(s OrderState) (OrderState, error) {
		return s.OnPaid(o, paymentRef)
	})
}

// MarkPaymentFailed records a declined card payment. The state is terminal.
func (o *Order) MarkPaymentFailed(reason, actor string) error {
	return o.apply(actor, reason, func(s OrderState) (OrderState, error) {
		return s.OnPaymentFailed(o, reason)
	})
}

// TransitionTo moves the order along an administrative edge.
func (o *Order) TransitionTo(target State, actor, reason string) error {
	return o.apply(actor, reason, func(s OrderState) (OrderState, error) {
		switch target {
		case StateProcessing:
			return s.OnProcessing(o)
		case StateShipped:
			return s.OnShipped(o)
		case StateDelivered:
			return s.OnDelivered(o)
		case StateCancelled:
			return s.OnCancelled(o)
		default:
			return nil, fmt.Errorf("%w: %s is not an administrative target", ErrInvalidTransition, target)
		}
	})
}

// CanTransition reports whether target is reachable in one step from the current state.
func (o *Order) CanTransition(target State) bool {
	return o.Clone().TransitionTo(target, "", "") == nil
}

func (o *Order) apply(actor, reason string, fn func(OrderState) (OrderState, error)) error {
	current, err := stateFor(o.State)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return fmt.Errorf("%w: %s", err, o.State)
	}
	now := time.Now().UTC()
	o.Transitions = append(o.Transitions, Transition{
		From:   current.State(),
		To:     next.State(),
		At:     now,
		Actor:  actor,
		Reason: reason,
	})
	o.State = next.State()
	o.touch(now)
	return nil
}
