package httppresentation

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
)

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in appcatalog.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductView(p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in appcatalog.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

func (h *Handler) handleEditStock(w http.ResponseWriter, r *http.Request) {
	var edit appcatalog.StockEdit
	if err := decodeJSON(w, r, &edit); err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, err := h.svc.Catalog.EditStock(r.Context(), chi.URLParam(r, "id"), edit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.svc.Orders.List(r.Context(), domorder.ListFilter{
		UserID: q.Get("user_id"),
		State:  domorder.State(q.Get("state")),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

type transitionRequest struct {
	Target domorder.State `json:"target"`
	Reason string         `json:"reason,omitempty"`
}

func (h *Handler) handleTransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.svc.Orders.Transition(r.Context(), apporder.TransitionInput{
		OrderID: chi.URLParam(r, "id"),
		Target:  req.Target,
		Actor:   principal(r.Context()).UserID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *Handler) handleCompensateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Compensate(r.Context(), chi.URLParam(r, "id"), principal(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

type createSaleRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s, err := h.svc.Sales.Create(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSaleView(s))
}

func (h *Handler) handleCompleteSale(w http.ResponseWriter, r *http.Request) {
	h.writeSale(w, r, h.svc.Sales.Complete)
}

func (h *Handler) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	h.writeSale(w, r, h.svc.Sales.Cancel)
}

func (h *Handler) writeSale(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*domsale.Sale, error)) {
	s, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSaleView(s))
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.svc.Sales.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]saleView, 0, len(sales))
	for _, s := range sales {
		out = append(out, newSaleView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Dashboard.Snapshot())
}
