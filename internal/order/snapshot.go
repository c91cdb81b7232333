package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/tabletap/api/internal/money"
)

// Snapshot is the read-only projection of an order shared by the admin
// list, receipts and the real-time feed. Money is rendered as decimal
// strings.
type Snapshot struct {
	ID            uuid.UUID          `json:"id"`
	RestaurantID  uuid.UUID          `json:"restaurant_id"`
	TableNumber   int32              `json:"table_number"`
	SessionKey    string             `json:"session_key"`
	Status        Status             `json:"status"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	PaymentRef    string             `json:"payment_reference,omitempty"`
	Items         []LineItemSnapshot `json:"items"`
	Subtotal      string             `json:"subtotal"`
	Tax           string             `json:"tax"`
	TaxRate       string             `json:"tax_rate"`
	Tip           string             `json:"tip"`
	Total         string             `json:"total"`
	Version       int32              `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	SubmittedAt   *time.Time         `json:"submitted_at"`
	PaidAt        *time.Time         `json:"paid_at"`
}

type LineItemSnapshot struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  string          `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Addons     []AddonSnapshot `json:"addons"`
	Subtotal   string          `json:"subtotal"`
}

type AddonSnapshot struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price string    `json:"price"`
}

// Snapshot projects o. The result shares nothing with o.
func (o *Order) Snapshot() Snapshot {
	items := make([]LineItemSnapshot, len(o.Items))
	for i, it := range o.Items {
		addons := make([]AddonSnapshot, len(it.Addons))
		for j, a := range it.Addons {
			addons[j] = AddonSnapshot{ID: a.ID, Name: a.Name, Price: money.Format(a.Price)}
		}
		items[i] = LineItemSnapshot{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			UnitPrice:  money.Format(it.UnitPrice),
			Quantity:   it.Quantity,
			Addons:     addons,
			Subtotal:   money.Format(it.Subtotal),
		}
	}
	c := o.Clone()
	return Snapshot{
		ID:            o.ID,
		RestaurantID:  o.RestaurantID,
		TableNumber:   o.TableNumber,
		SessionKey:    o.SessionKey,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
		PaymentMethod: o.Payment.Method,
		PaymentRef:    o.Payment.Reference,
		Items:         items,
		Subtotal:      money.Format(o.Subtotal),
		Tax:           money.Format(o.Tax),
		TaxRate:       o.TaxRate.String(),
		Tip:           money.Format(o.Tip),
		Total:         money.Format(o.Total),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		SubmittedAt:   c.SubmittedAt,
		PaidAt:        c.PaidAt,
	}
}

// SessionSnapshot is the projection of a Session.
type SessionSnapshot struct {
	SessionKey       string     `json:"session_key"`
	Orders           []Snapshot `json:"orders"`
	Subtotal         string     `json:"subtotal"`
	Tax              string     `json:"tax"`
	Tip              string     `json:"tip"`
	GrandTotal       string     `json:"grand_total"`
	OrderCount       int        `json:"order_count"`
	Rounds           int        `json:"rounds"`
	FirstSubmittedAt *time.Time `json:"first_submitted_at"`
	Paid             bool       `json:"paid"`
}

func (s Session) Snapshot() SessionSnapshot {
	orders := make([]Snapshot, len(s.Orders))
	for i, o := range s.Orders {
		orders[i] = o.Snapshot()
	}
	return SessionSnapshot{
		SessionKey:       s.Key,
		Orders:           orders,
		Subtotal:         money.Format(s.Subtotal),
		Tax:              money.Format(s.Tax),
		Tip:              money.Format(s.Tip),
		GrandTotal:       money.Format(s.GrandTotal),
		OrderCount:       s.OrderCount,
		Rounds:           s.Rounds,
		FirstSubmittedAt: s.FirstSubmittedAt,
		Paid:             s.Paid,
	}
}
