// Package order holds the table order aggregate: line items, derived
// totals, the order/payment state machine and session grouping.
//
// The aggregate is storage agnostic. Callers load an Order, apply one
// operation, and persist the result only when the operation succeeds.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/money"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBuilding, StatusSubmitted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment sub-state, independent of Status.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// MenuItemRef is the catalog entry as seen at add time.
type MenuItemRef struct {
	ID        uuid.UUID
	Name      string
	Price     money.Cents
	Available bool
}

// AddonRef is an addon price snapshot attached to one line item.
type AddonRef struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Price money.Cents `json:"price"`
}

// LineItem is one order row.
type LineItem struct {
	ID         uuid.UUID   `json:"id"`
	MenuItemID uuid.UUID   `json:"menu_item_id"`
	Name       string      `json:"name"`
	UnitPrice  money.Cents `json:"unit_price"`
	Quantity   int         `json:"quantity"`
	Addons     []AddonRef  `json:"addons"`
	Subtotal   money.Cents `json:"subtotal"`
}

// Payment tracks the payment attempt covering this order.
type Payment struct {
	Method      string
	Status      PaymentStatus
	Reference   string
	ProviderRef string
}

// Order is the aggregate root for one round at a table.
type Order struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	TableID      uuid.UUID
	TableNumber  int32
	SessionKey   string

	Items   []LineItem
	Status  Status
	Payment Payment

	TaxRate  decimal.Decimal
	Subtotal money.Cents
	Tax      money.Cents
	Tip      money.Cents
	Total    money.Cents

	// Version is bumped by the store on every successful write.
	Version int32

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	PaidAt      *time.Time
}

// New starts an empty building order.
func New(restaurantID, tableID uuid.UUID, tableNumber int32, sessionKey string, taxRate decimal.Decimal, now time.Time) *Order {
	return &Order{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		TableID:      tableID,
		TableNumber:  tableNumber,
		SessionKey:   sessionKey,
		Items:        []LineItem{},
		Status:       StatusBuilding,
		Payment:      Payment{Status: PaymentUnpaid},
		TaxRate:      taxRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewSessionKey generates a key for a fresh dining visit.
func NewSessionKey() string {
	return uuid.NewString()
}

// Mutable reports whether line items may still change: the order is being
// built and no payment is in flight or settled.
func (o *Order) Mutable() bool {
	if o.Status != StatusBuilding {
		return false
	}
	return o.Payment.Status == PaymentUnpaid || o.Payment.Status == PaymentFailed
}

// Outstanding reports whether the order still needs to be paid.
func (o *Order) Outstanding() bool {
	return o.Status != StatusCancelled && o.Payment.Status != PaymentPaid
}

// SetTaxRate replaces the tax rate while the order is still mutable and
// recomputes totals. Submitted orders keep the rate they were submitted
// with, and an amount already sent for payment does not move.
func (o *Order) SetTaxRate(rate decimal.Decimal) error {
	if !o.Mutable() || rate.Equal(o.TaxRate) {
		return nil
	}
	prev := o.TaxRate
	o.TaxRate = rate
	if err := o.recalculate(); err != nil {
		o.TaxRate = prev
		return err
	}
	return nil
}

// ApplyTip sets the tip carried by this order.
func (o *Order) ApplyTip(tip money.Cents) error {
	if tip < 0 {
		return ErrInvalidTip.WithMessage("tip must not be negative")
	}
	if o.Status == StatusCancelled {
		return o.transitionError("apply tip", ErrInvalidTransition)
	}
	switch o.Payment.Status {
	case PaymentPaid:
		return o.transitionError("apply tip", ErrPaymentAlreadyFinal)
	case PaymentPending:
		return o.transitionError("apply tip", ErrPaymentInProgress)
	}
	prev := o.Tip
	o.Tip = tip
	if err := o.recalculate(); err != nil {
		o.Tip = prev
		return err
	}
	return nil
}

// Lines converts the line items into calculator input.
func (o *Order) Lines() []money.Line {
	lines := make([]money.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = it.line()
	}
	return lines
}

func (it LineItem) line() money.Line {
	addons := make([]money.Cents, len(it.Addons))
	for i, a := range it.Addons {
		addons[i] = a.Price
	}
	return money.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity, AddonPrices: addons}
}

// recalculate derives every money field from the line items.
func (o *Order) recalculate() error {
	for i := range o.Items {
		sub, err := money.LineSubtotal(o.Items[i].line())
		if err != nil {
			return ErrInvalidPrice.WithMessage("line %s: %v", o.Items[i].ID, err)
		}
		o.Items[i].Subtotal = sub
	}
	totals, err := money.Compute(o.Lines(), o.TaxRate, o.Tip)
	if err != nil {
		return ErrInvalidPrice.WithMessage("recalculate totals: %v", err)
	}
	o.Subtotal = totals.Subtotal
	o.Tax = totals.Tax
	o.Tip = totals.Tip
	o.Total = totals.Total
	return nil
}

// Clone returns a deep copy, so a failed operation can be discarded.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	for i, it := range o.Items {
		it.Addons = append([]AddonRef(nil), it.Addons...)
		c.Items[i] = it
	}
	if o.SubmittedAt != nil {
		t := *o.SubmittedAt
		c.SubmittedAt = &t
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}
