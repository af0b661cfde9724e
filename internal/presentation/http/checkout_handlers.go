package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	appcheckout "github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

type cartLineRequest struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	PriceAtAddTime decimal.Decimal `json:"price_at_add_time"`
}

type checkoutRequest struct {
	Items          []cartLineRequest      `json:"items"`
	Shipping       addressJSON            `json:"shipping"`
	PaymentMethod  domorder.PaymentMethod `json:"payment_method"`
	PaymentToken   string                 `json:"payment_token,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	lines := make([]appcheckout.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, appcheckout.CartLine{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			PriceAtAddTime: it.PriceAtAddTime,
		})
	}
	key := r.Header.Get(headerIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	o, err := h.svc.Checkout.PlaceOrder(r.Context(), appcheckout.PlaceOrderInput{
		UserID:         principal(r.Context()).UserID,
		Lines:          lines,
		Shipping:       req.Shipping.domain(),
		PaymentMethod:  req.PaymentMethod,
		PaymentDetails: dompay.Details{Token: req.PaymentToken},
		IdempotencyKey: key,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(o))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	// Other customers' orders are reported as missing.
	if p := principal(r.Context()); !p.IsAdmin() && o.UserID != p.UserID {
		writeDomainError(w, r, domorder.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *Handler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.List(r.Context(), domorder.ListFilter{
		UserID: principal(r.Context()).UserID,
		State:  domorder.State(r.URL.Query().Get("state")),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, newProductView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductDetailView(v))
}
