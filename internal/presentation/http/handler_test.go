package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	appcheckout "github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppayment "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/reporting"
	appsale "github.com/Zhima-Mochi/minishop-checkout/internal/application/sale"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/staticauth"
)

const (
	customerToken = "cust-token"
	otherToken    = "other-token"
	adminToken    = "admin-token"
)

type testServer struct {
	*httptest.Server
	ledger *appinventory.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	p, err := dominv.NewProduct("p-1", "Mug", decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.Zero, 5)
	require.NoError(t, err)
	products := memory.NewProductRepository(p)
	orders := memory.NewOrderRepository()

	ledger := appinventory.NewLedger(products, nil)
	payments := apppayment.NewCoordinator(simulated.New(1), apppayment.DefaultConfig(), nil)
	auth, err := staticauth.Parse(customerToken + ":alice:customer," + otherToken + ":bob:customer," + adminToken + ":ops:admin")
	require.NoError(t, err)

	h := NewHandler(Services{
		Checkout: appcheckout.New(ledger, products, payments, orders, appcheckout.DefaultConfig(), nil,
			appcheckout.WithIdempotencyStore(memory.NewIdempotencyStore())),
		Orders:    apporder.NewService(orders, ledger, payments, nil, nil),
		Catalog:   appcatalog.NewService(products, ledger, nil),
		Sales:     appsale.NewService(memory.NewSaleRepository(), ledger, products, nil, nil),
		Dashboard: reporting.NewProjection(nil),
		Auth:      auth,
	}, nil, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})))

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func checkoutBody(qty int, method domorder.PaymentMethod, token string) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"product_id": "p-1", "quantity": qty, "price_at_add_time": "1"}},
		"shipping": map[string]any{
			"full_name": "Alice", "line1": "1 Main St", "city": "Springfield", "postal_code": "12345", "country": "US",
		},
		"payment_method": method,
		"payment_token":  token,
	}
}

func TestCheckoutPlacesPaidOrder(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/checkout", customerToken,
		checkoutBody(2, domorder.PaymentCard, simulated.TokenSucceed), headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
	assert.Equal(t, "paid", body["state"])
	assert.Equal(t, "236", body["total"])

	id := body["id"].(string)
	resp, replay := s.do(t, http.MethodPost, "/checkout", customerToken,
		checkoutBody(2, domorder.PaymentCard, simulated.TokenSucceed), headerIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, id, replay["id"])

	av, err := s.ledger.Available(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 3, av.Available)

	resp, _ = s.do(t, http.MethodGet, "/orders/"+id, customerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/orders/"+id, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/orders/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckoutErrorMapping(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/checkout", customerToken,
		checkoutBody(9, domorder.PaymentCard, simulated.TokenSucceed))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "p-1", body["product_id"])
	assert.EqualValues(t, 5, body["available"])

	resp, body = s.do(t, http.MethodPost, "/checkout", customerToken,
		checkoutBody(1, domorder.PaymentCard, simulated.TokenDecline))
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, msgPaymentDeclined, body["error"])

	resp, _ = s.do(t, http.MethodPost, "/checkout", customerToken, map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/checkout", customerToken, map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/checkout", "", checkoutBody(1, domorder.PaymentCOD, ""))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	av, err := s.ledger.Available(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, 5, av.Available)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/admin/dashboard", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/admin/dashboard", adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminOrderLifecycleAndStock(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/checkout", customerToken, checkoutBody(1, domorder.PaymentCOD, ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/admin/orders/"+id+"/transitions", adminToken,
		map[string]any{"target": "delivered"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, http.MethodPost, "/admin/orders/"+id+"/transitions", adminToken,
		map[string]any{"target": "cancelled", "reason": "customer request"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cancelled", body["status"])

	resp, body = s.do(t, http.MethodPost, "/admin/orders/"+id+"/compensate", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cancelled", body["status"])

	resp, body = s.do(t, http.MethodGet, "/products/p-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, body["available"])

	resp, body = s.do(t, http.MethodPost, "/admin/products/p-1/stock", adminToken, map[string]any{"delta": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 8, body["stock"])

	resp, _ = s.do(t, http.MethodPost, "/admin/products/p-1/stock", adminToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminSales(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodPost, "/admin/sales", adminToken, map[string]any{"product_id": "p-1", "quantity": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/admin/sales/"+id+"/cancel", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	resp, _ = s.do(t, http.MethodPost, "/admin/sales/missing/complete", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
