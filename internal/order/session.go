package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/tabletap/api/internal/money"
)

// Session is the derived view of one dining visit at a table: every
// non-cancelled, non-empty order sharing a session key.
type Session struct {
	Key              string
	Orders           []*Order
	Subtotal         money.Cents
	Tax              money.Cents
	Tip              money.Cents
	GrandTotal       money.Cents
	OrderCount       int
	Rounds           int
	FirstSubmittedAt *time.Time
	// Paid is true once every order in the session is paid.
	Paid bool

	startedAt time.Time
}

// counts reports whether o belongs in a session view.
func counts(o *Order) bool {
	return o.Status != StatusCancelled && len(o.Items) > 0
}

// BuildSession aggregates the orders carrying key. Orders under other keys,
// cancelled orders and empty building orders are ignored.
func BuildSession(key string, orders []*Order) Session {
	s := Session{Key: key, Orders: []*Order{}, Paid: true}
	for _, o := range orders {
		if o.SessionKey != key || !counts(o) {
			continue
		}
		s.Orders = append(s.Orders, o)
		s.Subtotal += o.Subtotal
		s.Tax += o.Tax
		s.Tip += o.Tip
		s.GrandTotal += o.Total
		if o.Payment.Status != PaymentPaid {
			s.Paid = false
		}
		if o.SubmittedAt != nil {
			s.Rounds++
			if s.FirstSubmittedAt == nil || o.SubmittedAt.Before(*s.FirstSubmittedAt) {
				t := *o.SubmittedAt
				s.FirstSubmittedAt = &t
			}
		}
		if s.startedAt.IsZero() || o.CreatedAt.Before(s.startedAt) {
			s.startedAt = o.CreatedAt
		}
	}
	s.OrderCount = len(s.Orders)
	if s.OrderCount == 0 {
		s.Paid = false
	}
	slices.SortStableFunc(s.Orders, func(a, b *Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return s
}

// Outstanding returns the session's orders that still need payment.
func (s Session) Outstanding() []*Order {
	var out []*Order
	for _, o := range s.Orders {
		if o.Outstanding() {
			out = append(out, o)
		}
	}
	return out
}

// Verify checks that the grand total reconciles to the cent with each
// order's own subtotal, tax and tip.
func (s Session) Verify() error {
	var sum, totals money.Cents
	for _, o := range s.Orders {
		if o.Total != o.Subtotal+o.Tax+o.Tip {
			return fmt.Errorf("order %s: total %s != %s + %s + %s", o.ID, o.Total, o.Subtotal, o.Tax, o.Tip)
		}
		sum += o.Subtotal + o.Tax + o.Tip
		totals += o.Total
	}
	if sum != s.GrandTotal || totals != s.GrandTotal {
		return fmt.Errorf("session %s: grand total %s != %s", s.Key, s.GrandTotal, sum)
	}
	return nil
}

// sortTime orders sessions by first submission, falling back to creation
// for sessions that were paid before anything was submitted.
func (s Session) sortTime() time.Time {
	if s.FirstSubmittedAt != nil {
		return *s.FirstSubmittedAt
	}
	return s.startedAt
}

// GroupSessions splits orders into sessions, newest first. A non-nil paid
// keeps only sessions whose Paid flag matches.
func GroupSessions(orders []*Order, paid *bool) []Session {
	var keys []string
	seen := make(map[string]bool)
	for _, o := range orders {
		if !counts(o) || seen[o.SessionKey] {
			continue
		}
		seen[o.SessionKey] = true
		keys = append(keys, o.SessionKey)
	}

	sessions := make([]Session, 0, len(keys))
	for _, k := range keys {
		s := BuildSession(k, orders)
		if paid != nil && s.Paid != *paid {
			continue
		}
		sessions = append(sessions, s)
	}
	slices.SortStableFunc(sessions, func(a, b Session) int {
		return b.sortTime().Compare(a.sortTime())
	})
	return sessions
}
