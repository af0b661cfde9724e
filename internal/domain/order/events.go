package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PlacedEvent is emitted once an order has been persisted by checkout.
type PlacedEvent struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	State         State           `json:"state"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Items         []LineItem      `json:"items"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (PlacedEvent) EventName() string { return "order.placed" }

func NewPlacedEvent(o *Order) PlacedEvent {
	items := make([]LineItem, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, LineItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return PlacedEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		State:         o.State,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Items:         items,
		OccurredAt:    time.Now().UTC(),
	}
}

// StatusChangedEvent is emitted for every administrative transition.
type StatusChangedEvent struct {
	OrderID       string          `json:"order_id"`
	From          State           `json:"from"`
	To            State           `json:"to"`
	FromPayment   PaymentStatus   `json:"from_payment"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Units         int             `json:"units"`
	Actor         string          `json:"actor"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return "order.status_changed" }

func NewStatusChangedEvent(o *Order, from State, fromPayment PaymentStatus, actor string) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:       o.ID,
		From:          from,
		To:            o.State,
		FromPayment:   fromPayment,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Units:         o.Units(),
		Actor:         actor,
		OccurredAt:    time.Now().UTC(),
	}
}
