package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/metrics"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/payment"
	"go.uber.org/zap"
)

// PaymentRequest starts payment of a table's outstanding session. At most
// one of TipPercent and Tip may be set.
type PaymentRequest struct {
	Method     string
	TipPercent int32
	Tip        money.Cents
}

// PaymentResult describes one payment attempt and the orders it covers.
type PaymentResult struct {
	Reference   string
	Amount      money.Cents
	Currency    string
	Status      order.PaymentStatus
	RedirectURL string
	Orders      []*order.Order
}

// PaymentEvent is the real-time payload for payment state changes.
type PaymentEvent struct {
	Reference     string              `json:"reference"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	Amount        string              `json:"amount"`
	Orders        []order.Snapshot    `json:"orders"`
}

func (r *PaymentResult) event() PaymentEvent {
	snaps := make([]order.Snapshot, len(r.Orders))
	for i, o := range r.Orders {
		snaps[i] = o.Snapshot()
	}
	return PaymentEvent{
		Reference:     r.Reference,
		PaymentStatus: r.Status,
		Amount:        money.Format(r.Amount),
		Orders:        snaps,
	}
}

func sumTotals(orders []*order.Order) money.Cents {
	var total money.Cents
	for _, o := range orders {
		total += o.Total
	}
	return total
}

func (s *OrderService) validateTip(restaurant database.Restaurant, req PaymentRequest) error {
	if req.Tip < 0 || req.TipPercent < 0 {
		return order.ErrInvalidTip.WithMessage("tip must not be negative")
	}
	if req.Tip > 0 && req.TipPercent > 0 {
		return order.ErrInvalidTip.WithMessage("give either a tip amount or a tip percentage")
	}
	if req.Tip == 0 && req.TipPercent == 0 {
		return nil
	}
	if !restaurant.TipsEnabled {
		return order.ErrTipsDisabled
	}
	if req.TipPercent > 0 && len(restaurant.TipPercentages) > 0 && !slices.Contains(restaurant.TipPercentages, req.TipPercent) {
		return order.ErrInvalidTip.WithMessage("tip percentage %d is not offered", req.TipPercent)
	}
	return nil
}

// InitiatePayment marks every payable order of the table's session pending
// under one new reference, then asks the gateway to collect the amount. The
// gateway is called outside the table lock. A gateway error fails the
// attempt so the diner can retry.
func (s *OrderService) InitiatePayment(ctx context.Context, ref TableRef, req PaymentRequest) (*PaymentResult, error) {
	restaurant, table, err := s.resolveTable(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !table.IsAvailable {
		return nil, order.ErrTableUnavailable
	}
	if !restaurant.PaymentEnabled {
		return nil, order.ErrPaymentDisabled
	}
	if !enum.ValidPaymentMethod(req.Method) {
		return nil, order.ErrInvalidMethod.WithMessage("unknown payment method %q", req.Method)
	}
	if err := s.validateTip(restaurant, req); err != nil {
		return nil, err
	}
	taxRate := database.NumericToDecimal(restaurant.TaxRate)
	reference := payment.NewReference()

	var result *PaymentResult
	err = s.withTable(ctx, "initiate_payment", table.ID, func(ctx context.Context, store OrderStore) error {
		now := s.now()
		building, err := buildingOrder(ctx, store, table.ID)
		if err != nil {
			return err
		}
		key := ""
		if building != nil && len(building.Items) > 0 {
			key = building.SessionKey
		} else if key, err = activeSessionKey(ctx, store, table.ID); err != nil {
			return err
		}
		if key == "" {
			return order.ErrNothingToPay
		}

		orders, err := sessionOrders(ctx, store, table.ID, key)
		if err != nil {
			return err
		}
		var payable []*order.Order
		for _, o := range orders {
			if o.Payment.Status == order.PaymentPending {
				return order.ErrPaymentInProgress
			}
			if o.Outstanding() && len(o.Items) > 0 {
				payable = append(payable, o)
			}
		}
		if len(payable) == 0 {
			return order.ErrNothingToPay
		}

		var base money.Cents
		newest := payable[0]
		for _, o := range payable {
			if err := o.SetTaxRate(taxRate); err != nil {
				return err
			}
			base += o.Subtotal
			if o.CreatedAt.After(newest.CreatedAt) {
				newest = o
			}
		}
		tip := req.Tip
		if req.TipPercent > 0 {
			if tip, err = money.TipFromPercent(base, decimal.NewFromInt32(req.TipPercent)); err != nil {
				return order.ErrInvalidTip.WithMessage("%v", err)
			}
		}

		// The session tip lives on its newest order only.
		for _, o := range payable {
			want := money.Cents(0)
			if o == newest {
				want = tip
			}
			if o.Tip != want {
				if err := o.ApplyTip(want); err != nil {
					return err
				}
			}
			if err := o.MarkPaymentPending(req.Method, reference, now); err != nil {
				return err
			}
			if err := save(ctx, store, o, false); err != nil {
				return err
			}
		}

		result = &PaymentResult{
			Reference: reference,
			Amount:    sumTotals(payable),
			Currency:  restaurant.Currency,
			Status:    order.PaymentPending,
			Orders:    payable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Payments.WithLabelValues("initiated").Inc()
	s.log.Info("payment initiated",
		zap.String("reference", reference),
		zap.Int32("table_number", table.Number),
		zap.Stringer("amount", result.Amount),
		zap.Int("orders", len(result.Orders)),
	)
	s.publish([]event{{restaurant.ID, enum.EventPaymentPending, result.event()}})

	resp, err := s.gateway.InitiatePayment(ctx, payment.Request{
		Amount:    result.Amount,
		Currency:  restaurant.Currency,
		Reference: reference,
		Method:    req.Method,
		Metadata: map[string]string{
			"restaurant_id": restaurant.ID.String(),
			"table_number":  fmt.Sprint(table.Number),
			"session_key":   result.Orders[0].SessionKey,
		},
	})
	if err == nil && resp.Status == payment.StatusFailed {
		err = payment.ErrDeclined
	}
	if err != nil {
		metrics.Payments.WithLabelValues("upstream_error").Inc()
		s.log.Warn("payment provider rejected attempt",
			zap.String("reference", reference),
			zap.String("gateway", s.gateway.Name()),
			zap.Error(err),
		)
		// The request context may already be gone; the attempt must not
		// stay pending.
		if _, ferr := s.FailPayment(context.WithoutCancel(ctx), uuid.Nil, reference); ferr != nil {
			s.log.Error("fail payment after gateway error", zap.String("reference", reference), zap.Error(ferr))
		}
		return nil, order.ErrUpstreamPayment.WithMessage("payment provider: %v", err)
	}

	result.RedirectURL = resp.RedirectURL
	if resp.ProviderRef != "" {
		if err := s.setProviderRef(ctx, table.ID, reference, resp.ProviderRef); err != nil {
			s.log.Error("store provider reference", zap.String("reference", reference), zap.Error(err))
		}
	}

	if resp.Status == payment.StatusPaid {
		confirmed, err := s.ConfirmPayment(ctx, restaurant.ID, reference)
		if err != nil && !errors.Is(err, order.ErrPaymentAlreadyFinal) {
			return nil, err
		}
		if confirmed != nil {
			confirmed.RedirectURL = resp.RedirectURL
			return confirmed, nil
		}
		result.Status = order.PaymentPaid
	}
	return result, nil
}

func (s *OrderService) setProviderRef(ctx context.Context, tableID uuid.UUID, reference, providerRef string) error {
	return s.withTable(ctx, "provider_ref", tableID, func(ctx context.Context, store OrderStore) error {
		orders, err := ordersByReference(ctx, store, reference)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Payment.ProviderRef == providerRef {
				continue
			}
			o.SetProviderRef(providerRef, s.now())
			if err := save(ctx, store, o, false); err != nil {
				return err
			}
		}
		return nil
	})
}

func ordersByReference(ctx context.Context, store OrderStore, reference string) ([]*order.Order, error) {
	rows, err := store.ListOrdersByPaymentReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("list orders by reference: %w", err)
	}
	return toOrders(rows)
}

// locatePayment finds the table a reference was issued for. A non-nil
// restaurantID also requires the reference to belong to that restaurant.
func (s *OrderService) locatePayment(ctx context.Context, restaurantID uuid.UUID, reference string) (uuid.UUID, error) {
	if reference == "" {
		return uuid.Nil, order.ErrInvalidReference
	}
	rows, err := s.reader.ListOrdersByPaymentReference(ctx, reference)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list orders by reference: %w", err)
	}
	if len(rows) == 0 || (restaurantID != uuid.Nil && rows[0].RestaurantID != restaurantID) {
		return uuid.Nil, order.ErrPaymentNotFound
	}
	return rows[0].TableID, nil
}

// processed is the ledger fast path for replayed callbacks. Ledger errors
// fall through to the paid-state guard.
func (s *OrderService) processed(ctx context.Context, reference string) bool {
	if s.ledger == nil {
		return false
	}
	done, err := s.ledger.IsProcessed(ctx, reference)
	if err != nil {
		s.log.Warn("payment ledger lookup", zap.String("reference", reference), zap.Error(err))
		return false
	}
	return done
}

// ConfirmPayment settles every order carrying reference. Rounds already
// submitted are completed; a round paid while still being built is
// submitted, except at restaurants where the diner submits after paying.
// Replays return ErrPaymentAlreadyFinal and publish nothing. When the session has nothing
// left to pay, an empty building order still under its key moves to a fresh
// session so the next round starts a new bill. uuid.Nil skips the
// restaurant check (provider webhooks).
func (s *OrderService) ConfirmPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*PaymentResult, error) {
	if s.processed(ctx, reference) {
		return nil, order.ErrPaymentAlreadyFinal
	}
	tableID, err := s.locatePayment(ctx, restaurantID, reference)
	if err != nil {
		return nil, err
	}

	var (
		result *PaymentResult
		placed []*order.Order
	)
	err = s.withTable(ctx, "confirm_payment", tableID, func(ctx context.Context, store OrderStore) error {
		now := s.now()
		orders, err := ordersByReference(ctx, store, reference)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return order.ErrPaymentNotFound
		}
		restaurant, err := store.GetRestaurant(ctx, orders[0].RestaurantID)
		if err != nil {
			return fmt.Errorf("get restaurant: %w", err)
		}
		var changed []*order.Order
		placed = placed[:0]
		for _, o := range orders {
			if o.Payment.Status == order.PaymentPaid || o.Status == order.StatusCancelled {
				continue
			}
			if err := o.MarkPaymentPaid(now); err != nil {
				return err
			}
			// A round paid while still being built goes to the kitchen,
			// unless the diner submits it after paying.
			if o.Status == order.StatusBuilding && len(o.Items) > 0 && !restaurant.RequirePaymentBeforeOrder {
				if err := o.Submit(false, now); err != nil {
					return err
				}
				placed = append(placed, o)
			}
			if err := save(ctx, store, o, false); err != nil {
				return err
			}
			changed = append(changed, o)
		}
		if len(changed) == 0 {
			return order.ErrPaymentAlreadyFinal
		}

		if err := closeSession(ctx, store, tableID, changed[0].SessionKey, now); err != nil {
			return err
		}
		result = &PaymentResult{
			Reference: reference,
			Amount:    sumTotals(changed),
			Status:    order.PaymentPaid,
			Orders:    changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.ledger != nil {
		if _, err := s.ledger.MarkProcessed(ctx, reference); err != nil {
			s.log.Warn("payment ledger write", zap.String("reference", reference), zap.Error(err))
		}
	}
	metrics.Payments.WithLabelValues("paid").Inc()
	s.log.Info("payment confirmed",
		zap.String("reference", reference),
		zap.Stringer("amount", result.Amount),
		zap.Int("orders", len(result.Orders)),
	)
	events := []event{{result.Orders[0].RestaurantID, enum.EventPaymentPaid, result.event()}}
	for _, o := range placed {
		s.recordTransition("submit", o)
		events = append(events, event{o.RestaurantID, enum.EventOrderSubmitted, o.Snapshot()})
	}
	s.publish(events)
	return result, nil
}

// closeSession rekeys empty building orders once nothing under key is left
// to pay.
func closeSession(ctx context.Context, store OrderStore, tableID uuid.UUID, key string, now time.Time) error {
	orders, err := sessionOrders(ctx, store, tableID, key)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Outstanding() && len(o.Items) > 0 {
			return nil
		}
	}
	for _, o := range orders {
		if o.Status == order.StatusBuilding && len(o.Items) == 0 && o.Outstanding() {
			o.SessionKey = order.NewSessionKey()
			o.UpdatedAt = now
			if err := save(ctx, store, o, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// FailPayment records a declined or abandoned attempt so the diner may pay
// again. Failing an already failed attempt is a no-op and returns a nil
// result; failing a settled one returns ErrPaymentAlreadyFinal.
func (s *OrderService) FailPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*PaymentResult, error) {
	if s.processed(ctx, reference) {
		return nil, order.ErrPaymentAlreadyFinal
	}
	tableID, err := s.locatePayment(ctx, restaurantID, reference)
	if err != nil {
		return nil, err
	}

	var result *PaymentResult
	err = s.withTable(ctx, "fail_payment", tableID, func(ctx context.Context, store OrderStore) error {
		result = nil
		now := s.now()
		orders, err := ordersByReference(ctx, store, reference)
		if err != nil {
			return err
		}
		var (
			changed []*order.Order
			paid    bool
		)
		for _, o := range orders {
			ok, err := o.MarkPaymentFailed(now)
			if errors.Is(err, order.ErrPaymentAlreadyFinal) {
				paid = true
				continue
			}
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := save(ctx, store, o, false); err != nil {
				return err
			}
			changed = append(changed, o)
		}
		if len(changed) == 0 {
			if paid {
				return order.ErrPaymentAlreadyFinal
			}
			return nil
		}
		result = &PaymentResult{
			Reference: reference,
			Amount:    sumTotals(changed),
			Status:    order.PaymentFailed,
			Orders:    changed,
		}
		return nil
	})
	if err != nil || result == nil {
		return nil, err
	}

	metrics.Payments.WithLabelValues("failed").Inc()
	s.log.Info("payment failed", zap.String("reference", reference), zap.Int("orders", len(result.Orders)))
	s.publish([]event{{result.Orders[0].RestaurantID, enum.EventPaymentFailed, result.event()}})
	return result, nil
}
