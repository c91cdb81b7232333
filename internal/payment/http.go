package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tabletap/api/internal/money"
)

// HTTPGateway talks JSON to a hosted payment provider.
type HTTPGateway struct {
	client  *resty.Client
	baseURL string
}

type createPaymentBody struct {
	Amount    string            `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Method    string            `json:"method,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type createPaymentReply struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
	Message     string `json:"message"`
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	client := resty.New().
		SetTimeout(timeout).
		SetHeaders(map[string]string{
			"Authorization": "Bearer " + apiKey,
			"Accept":        "application/json",
			"Content-Type":  "application/json",
		})
	return &HTTPGateway{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *HTTPGateway) Name() string { return "http" }

func (g *HTTPGateway) InitiatePayment(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.Reference).
		SetBody(createPaymentBody{
			Amount:    money.Format(req.Amount),
			Currency:  req.Currency,
			Reference: req.Reference,
			Method:    req.Method,
			Metadata:  req.Metadata,
		}).
		Post(g.baseURL + "/payments")
	if err != nil {
		return nil, fmt.Errorf("payment request: %w", err)
	}

	var reply createPaymentReply
	decodeErr := json.Unmarshal(resp.Body(), &reply)

	switch {
	case resp.StatusCode() == http.StatusPaymentRequired:
		return nil, fmt.Errorf("%w: %s", ErrDeclined, reply.Message)
	case resp.IsError():
		return nil, fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	case decodeErr != nil:
		return nil, fmt.Errorf("decode payment response: %w", decodeErr)
	}

	status, err := ParseStatus(reply.Status)
	if err != nil {
		return nil, err
	}
	if status == StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrDeclined, reply.Message)
	}
	if reply.ID == "" {
		return nil, fmt.Errorf("payment provider response has no id")
	}
	return &Response{ProviderRef: reply.ID, Status: status, RedirectURL: reply.RedirectURL}, nil
}

// ParseStatus maps provider status strings onto Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "", "pending", "processing", "requires_action":
		return StatusPending, nil
	case "paid", "succeeded", "completed":
		return StatusPaid, nil
	case "failed", "declined", "cancelled", "canceled":
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}
