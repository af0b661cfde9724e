package httppresentation

import (
	"errors"
	"net/http"

	appcheckout "github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domauth "github.com/Zhima-Mochi/minishop-checkout/internal/domain/auth"
	domidem "github.com/Zhima-Mochi/minishop-checkout/internal/domain/idempotency"
	dominv "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domsale "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sale"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
)

var errBadRequest = errors.New("http: malformed request")

const (
	msgPaymentDeclined = "payment was declined"
	msgPaymentFailed   = "payment could not be completed, please retry later"
	msgInternal        = "internal error"
)

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domauth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domauth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, appcheckout.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, appcheckout.ErrPaymentFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, dominv.ErrInsufficientStock),
		errors.Is(err, dominv.ErrReservationExpired),
		errors.Is(err, appcheckout.ErrCheckoutInProgress),
		errors.Is(err, dominv.ErrConflict),
		errors.Is(err, domorder.ErrConflict),
		errors.Is(err, domsale.ErrConflict),
		errors.Is(err, domorder.ErrInvalidTransition),
		errors.Is(err, domsale.ErrInvalidTransition),
		errors.Is(err, domorder.ErrStale),
		errors.Is(err, domsale.ErrStale):
		return http.StatusConflict
	case errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domsale.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, appcheckout.ErrEmptyCart),
		errors.Is(err, appcheckout.ErrInvalidCart),
		errors.Is(err, domidem.ErrInvalidKey),
		errors.Is(err, dominv.ErrInvalidQuantity),
		errors.Is(err, dominv.ErrInvalidProduct),
		errors.Is(err, domorder.ErrNoLines),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrInvalidPrice),
		errors.Is(err, domorder.ErrInvalidShipping),
		errors.Is(err, domorder.ErrInvalidPayment),
		errors.Is(err, domsale.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}

	var stockErr *dominv.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		available := stockErr.Available
		body.ProductID, body.Available = stockErr.ProductID, &available
	case status == http.StatusPaymentRequired:
		body.Error = msgPaymentDeclined
	case status == http.StatusServiceUnavailable:
		body.Error = msgPaymentFailed
	case status == http.StatusInternalServerError:
		body.Error = msgInternal
	}

	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), nil).Error("http_request_failed",
			observability.F("status", status),
			observability.F("error", err),
		)
	}
	writeJSON(w, status, body)
}
