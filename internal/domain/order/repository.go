package order

import "context"

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	UserID string
	State  State
}

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Update stores order only if the stored Version still equals order.Version,
	// then increments order.Version. A mismatch returns ErrStale.
	Update(ctx context.Context, order *Order) error
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
}

func (f ListFilter) Match(o *Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.State != "" && o.State != f.State {
		return false
	}
	return true
}
