package inventory

import "time"

// Reservation is an expiring claim on a product's stock held by one checkout attempt.
type Reservation struct {
	ID         string
	ProductID  string
	Quantity   int
	CheckoutID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the reservation's lifetime has elapsed at now.
func (r Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Availability is the product-listing view of stock.
type Availability struct {
	ProductID string
	Stock     int
	Reserved  int
	Available int
}
