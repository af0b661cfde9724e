package inventory

import "time"

// StockChangedEvent is emitted whenever the ledger writes a product's stock.
type StockChangedEvent struct {
	ProductID  string    `json:"product_id"`
	Delta      int       `json:"delta"`
	Stock      int       `json:"stock"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockChangedEvent) EventName() string { return "inventory.stock_changed" }

func NewStockChangedEvent(productID string, delta, stock int, reason string) StockChangedEvent {
	return StockChangedEvent{
		ProductID:  productID,
		Delta:      delta,
		Stock:      stock,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// ReservationExpiredEvent is emitted when the sweeper releases an abandoned reservation.
type ReservationExpiredEvent struct {
	ReservationID string    `json:"reservation_id"`
	ProductID     string    `json:"product_id"`
	CheckoutID    string    `json:"checkout_id"`
	Quantity      int       `json:"quantity"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (ReservationExpiredEvent) EventName() string { return "inventory.reservation_expired" }

func NewReservationExpiredEvent(r Reservation) ReservationExpiredEvent {
	return ReservationExpiredEvent{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		CheckoutID:    r.CheckoutID,
		Quantity:      r.Quantity,
		OccurredAt:    time.Now().UTC(),
	}
}
