package httpprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
)

const maxResponseBodySize = 64 << 10

// ErrRejected is a non-retryable 4xx answer such as a bad API key or malformed request.
var ErrRejected = errors.New("payment provider: request rejected")

// Provider talks to a payment-intent style JSON API over HTTP.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type confirmRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type refundRequest struct {
	PaymentIntent string `json:"payment_intent"`
	Reason        string `json:"reason,omitempty"`
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) CreateIntent(ctx context.Context, req dompay.IntentRequest) (string, error) {
	var out intentResponse
	body := createIntentRequest{Amount: req.Amount, Currency: req.Currency, Metadata: req.Metadata}
	if _, err := p.post(ctx, "/v1/payment_intents", req.IdempotencyKey, body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create intent: empty id", dompay.ErrProviderError)
	}
	return out.ID, nil
}

func (p *Provider) Confirm(ctx context.Context, intentID string, details dompay.Details, idempotencyKey string) (dompay.ProviderStatus, error) {
	var out intentResponse
	path := "/v1/payment_intents/" + url.PathEscape(intentID) + "/confirm"
	declined, err := p.post(ctx, path, idempotencyKey, confirmRequest{PaymentMethod: details.Token}, &out)
	if err != nil {
		return "", err
	}
	if declined {
		return dompay.StatusDeclined, nil
	}
	return dompay.ProviderStatus(out.Status), nil
}

func (p *Provider) Refund(ctx context.Context, intentID, reason, idempotencyKey string) error {
	var out intentResponse
	_, err := p.post(ctx, "/v1/refunds", idempotencyKey, refundRequest{PaymentIntent: intentID, Reason: reason}, &out)
	return err
}

// post sends a JSON body and decodes a 2xx answer into out. A 402 is reported
// as declined. 429, 5xx and transport failures wrap ErrProviderError.
func (p *Provider) post(ctx context.Context, path, idempotencyKey string, body, out any) (declined bool, err error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("payment provider: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("payment provider: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", dompay.ErrProviderError, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %w", dompay.ErrProviderError, path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("%w: decode %s: %w", dompay.ErrProviderError, path, err)
		}
		return false, nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return true, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: %s: status %d", dompay.ErrProviderError, path, resp.StatusCode)
	default:
		return false, fmt.Errorf("%w: %s: status %d: %s", ErrRejected, path, resp.StatusCode, errorMessage(raw))
	}
}

func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
