package httppresentation

import (
	"time"

	"github.com/shopspring/decimal"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

type addressJSON struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressJSON) domain() domorder.Address {
	return domorder.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type lineView struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type transitionView struct {
	From   domorder.State `json:"from,omitempty"`
	To     domorder.State `json:"to"`
	At     time.Time      `json:"at"`
	Actor  string         `json:"actor,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type orderView struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	Status        domorder.Status        `json:"status"`
	State         domorder.State         `json:"state"`
	PaymentMethod domorder.PaymentMethod `json:"payment_method"`
	PaymentStatus domorder.PaymentStatus `json:"payment_status"`
	Lines         []lineView             `json:"lines"`
	Shipping      addressJSON            `json:"shipping"`
	Subtotal      decimal.Decimal        `json:"subtotal"`
	Tax           decimal.Decimal        `json:"tax"`
	Total         decimal.Decimal        `json:"total"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	Transitions   []transitionView       `json:"transitions"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func newOrderView(o *domorder.Order) orderView {
	lines := make([]lineView, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineView{l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.LineTotal})
	}
	transitions := make([]transitionView, 0, len(o.Transitions))
	for _, t := range o.Transitions {
		transitions = append(transitions, transitionView{t.From, t.To, t.At, t.Actor, t.Reason})
	}
	s := o.Shipping
	return orderView{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status(),
		State:         o.State,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Lines:         lines,
		Shipping:      addressJSON{s.FullName, s.Line1, s.Line2, s.City, s.PostalCode, s.Country, s.Phone},
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		Total:         o.Total,
		FailureReason: o.FailureReason,
		Transitions:   transitions,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newOrderViews(orders []*domorder.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderView(o))
	}
	return out
}

type productView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	Classification string          `json:"classification,omitempty"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	DiscountRate   decimal.Decimal `json:"discount_rate"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Stock          int             `json:"stock"`
	Available      *int            `json:"available,omitempty"`
	Reserved       *int            `json:"reserved,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newProductView(p *dominv.Product) productView {
	return productView{
		ID:             p.ID,
		Name:           p.Name,
		Category:       p.Category,
		Classification: p.Classification,
		SellingPrice:   p.SellingPrice,
		DiscountRate:   p.DiscountRate,
		UnitPrice:      p.UnitPrice(),
		Stock:          p.Stock,
		UpdatedAt:      p.UpdatedAt,
	}
}

func newProductDetailView(v *appcatalog.ProductView) productView {
	out := newProductView(v.Product)
	available, reserved := v.Availability.Available, v.Availability.Reserved
	out.Available, out.Reserved = &available, &reserved
	return out
}

type saleView struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      domsale.Status  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newSaleView(s *domsale.Sale) saleView {
	return saleView{s.ID, s.ProductID, s.Quantity, s.UnitPrice, s.TotalAmount, s.Status, s.CreatedAt, s.UpdatedAt}
}
