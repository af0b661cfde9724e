package httppresentation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	appcheckout "github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/reporting"
	appsale "github.com/Zhima-Mochi/minishop-checkout/internal/application/sale"
	domauth "github.com/Zhima-Mochi/minishop-checkout/internal/domain/auth"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
	defaultTimeout       = 30 * time.Second
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Checkout  *appcheckout.Orchestrator
	Orders    *apporder.Service
	Catalog   *appcatalog.Service
	Sales     *appsale.Service
	Dashboard *reporting.Projection
	Auth      domauth.Authenticator
}

type Handler struct {
	svc          Services
	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	metrics      http.Handler
	timeout      time.Duration
}

type Option func(*Handler)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHandler(svc Services, tel observability.Observability, opts ...Option) *Handler {
	logger, _, metrics := observability.Resolve(tel)
	h := &Handler{
		svc:          svc,
		log:          logger.With(observability.F("component", componentHTTPHandler)),
		reqCounter:   metrics.Counter(observability.MHTTPRequests),
		durHistogram: metrics.Histogram(observability.MHTTPRequestDuration),
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))

	h.handle(r, http.MethodGet, "/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	h.handle(r, http.MethodGet, "/products", h.handleListProducts)
	h.handle(r, http.MethodGet, "/products/{id}", h.handleGetProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		h.handle(r, http.MethodPost, "/checkout", h.handleCheckout)
		h.handle(r, http.MethodGet, "/orders", h.handleListMyOrders)
		h.handle(r, http.MethodGet, "/orders/{id}", h.handleGetOrder)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			h.handle(r, http.MethodPost, "/admin/products", h.handleCreateProduct)
			h.handle(r, http.MethodPut, "/admin/products/{id}", h.handleUpdateProduct)
			h.handle(r, http.MethodPost, "/admin/products/{id}/stock", h.handleEditStock)
			h.handle(r, http.MethodGet, "/admin/orders", h.handleListOrders)
			h.handle(r, http.MethodPost, "/admin/orders/{id}/transitions", h.handleTransitionOrder)
			h.handle(r, http.MethodPost, "/admin/orders/{id}/compensate", h.handleCompensateOrder)
			h.handle(r, http.MethodGet, "/admin/sales", h.handleListSales)
			h.handle(r, http.MethodPost, "/admin/sales", h.handleCreateSale)
			h.handle(r, http.MethodPost, "/admin/sales/{id}/complete", h.handleCompleteSale)
			h.handle(r, http.MethodPost, "/admin/sales/{id}/cancel", h.handleCancelSale)
			h.handle(r, http.MethodGet, "/admin/dashboard", h.handleDashboard)
		})
	})

	return r
}

// handle wires one route as Trace -> Request Logger -> Access Log -> Metrics -> Handler.
func (h *Handler) handle(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	route := method + " " + pattern
	wrapped := h.withTrace(
		ObservabilityMiddleware(h.log, requestIDFrom)(h.withAccess(handler)),
	)
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.svc.Auth == nil {
			writeDomainError(w, r, domauth.ErrUnauthorized)
			return
		}
		p, err := h.svc.Auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		ctx := domauth.WithPrincipal(r.Context(), p)
		ctx = logctx.WithFields(ctx, h.log, observability.F("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := domauth.FromContext(r.Context())
		if !ok {
			writeDomainError(w, r, domauth.ErrUnauthorized)
			return
		}
		if !p.IsAdmin() {
			writeDomainError(w, r, domauth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(ctx context.Context) domauth.Principal {
	p, _ := domauth.FromContext(ctx)
	return p
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}
