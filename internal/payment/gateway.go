// Package payment reaches external payment providers and records which
// payment references have already been settled.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tabletap/api/internal/money"
)

// Status is a provider-reported payment outcome.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var ErrDeclined = errors.New("payment declined")

// Request asks a provider to collect Amount for one table session.
type Request struct {
	Amount    money.Cents
	Currency  string
	Reference string
	Method    string
	Metadata  map[string]string
}

// Response is the provider's answer to Request. Most providers answer
// pending and report the result later through the webhook.
type Response struct {
	ProviderRef string
	Status      Status
	RedirectURL string
}

// Gateway is the payment provider capability.
type Gateway interface {
	Name() string
	InitiatePayment(ctx context.Context, req Request) (*Response, error)
}

// ManualGateway settles at the counter: every attempt stays pending until
// staff confirm or fail it.
type ManualGateway struct{}

func NewManualGateway() *ManualGateway { return &ManualGateway{} }

func (g *ManualGateway) Name() string { return "manual" }

func (g *ManualGateway) InitiatePayment(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{
		ProviderRef: "manual_" + uuid.NewString(),
		Status:      StatusPending,
	}, nil
}

// NewReference generates the reference the engine attaches to the orders
// covered by one payment attempt.
func NewReference() string {
	return "pay_" + uuid.NewString()
}
