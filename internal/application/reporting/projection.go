package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

const (
	reportingService = "reporting"
	useCaseApply     = "reporting.apply"
)

// Dashboard is the admin read model.
type Dashboard struct {
	OrdersByStatus map[domorder.Status]int `json:"orders_by_status"`
	SalesByStatus  map[domsale.Status]int  `json:"sales_by_status"`
	PaidRevenue    decimal.Decimal         `json:"paid_revenue"`
	SalesRevenue   decimal.Decimal         `json:"sales_revenue"`
	UnitsSold      int                     `json:"units_sold"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Projection folds order and sale events into a Dashboard. It is eventually
// consistent with the repositories.
type Projection struct {
	mu sync.RWMutex
	d  Dashboard
	in *application.Instrument
}

func NewProjection(tel observability.Observability) *Projection {
	return &Projection{
		d: Dashboard{
			OrdersByStatus: make(map[domorder.Status]int),
			SalesByStatus:  make(map[domsale.Status]int),
		},
		in: application.NewInstrument(tel, reportingService),
	}
}

// Events lists the event names Apply understands.
func (p *Projection) Events() []string {
	return []string{
		domorder.PlacedEvent{}.EventName(),
		domorder.StatusChangedEvent{}.EventName(),
		domsale.RecordedEvent{}.EventName(),
		domsale.StatusChangedEvent{}.EventName(),
	}
}

func (p *Projection) Apply(ctx context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt := e.(type) {
	case domorder.PlacedEvent:
		p.d.OrdersByStatus[domorder.StatusOf(evt.State)]++
		if evt.State != domorder.StatePaymentFailed {
			for _, item := range evt.Items {
				p.d.UnitsSold += item.Quantity
			}
		}
		if evt.PaymentStatus == domorder.PaymentPaid {
			p.d.PaidRevenue = p.d.PaidRevenue.Add(evt.Total)
		}
	case domorder.StatusChangedEvent:
		p.move(domorder.StatusOf(evt.From), domorder.StatusOf(evt.To))
		if evt.To == domorder.StateCancelled && evt.From != domorder.StateCancelled {
			p.d.UnitsSold -= evt.Units
		}
		switch {
		case evt.FromPayment != domorder.PaymentPaid && evt.PaymentStatus == domorder.PaymentPaid:
			p.d.PaidRevenue = p.d.PaidRevenue.Add(evt.Total)
		case evt.FromPayment == domorder.PaymentPaid && evt.PaymentStatus == domorder.PaymentRefunded:
			p.d.PaidRevenue = p.d.PaidRevenue.Sub(evt.Total)
		}
	case domsale.RecordedEvent:
		p.d.SalesByStatus[domsale.StatusPending]++
		p.d.UnitsSold += evt.Quantity
		p.d.SalesRevenue = p.d.SalesRevenue.Add(evt.TotalAmount)
	case domsale.StatusChangedEvent:
		p.d.SalesByStatus[evt.From]--
		p.d.SalesByStatus[evt.To]++
		if evt.To == domsale.StatusCancelled {
			p.d.UnitsSold -= evt.Quantity
			p.d.SalesRevenue = p.d.SalesRevenue.Sub(evt.TotalAmount)
		}
	default:
		p.in.Count(useCaseApply, "ignored")
		return nil
	}
	p.d.UpdatedAt = time.Now().UTC()
	p.in.Count(useCaseApply, application.OutcomeSuccess)
	return nil
}

func (p *Projection) move(from, to domorder.Status) {
	if from == to {
		return
	}
	if p.d.OrdersByStatus[from] > 0 {
		p.d.OrdersByStatus[from]--
	}
	p.d.OrdersByStatus[to]++
}

// Snapshot returns a copy safe to serialize.
func (p *Projection) Snapshot() Dashboard {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := p.d
	out.OrdersByStatus = make(map[domorder.Status]int, len(p.d.OrdersByStatus))
	for k, v := range p.d.OrdersByStatus {
		out.OrdersByStatus[k] = v
	}
	out.SalesByStatus = make(map[domsale.Status]int, len(p.d.SalesByStatus))
	for k, v := range p.d.SalesByStatus {
		out.SalesByStatus[k] = v
	}
	return out
}
