package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
)

// ListFilter narrows the admin order list. Empty fields match everything.
type ListFilter struct {
	Status        order.Status
	PaymentStatus order.PaymentStatus
	TableNumber   *int32
	Limit         int32
	Offset        int32
}

// Stats summarizes a restaurant's orders over a period. Money fields only
// count paid orders.
type Stats struct {
	From            time.Time   `json:"from"`
	To              time.Time   `json:"to"`
	TotalOrders     int64       `json:"total_orders"`
	BuildingOrders  int64       `json:"building_orders"`
	SubmittedOrders int64       `json:"submitted_orders"`
	CompletedOrders int64       `json:"completed_orders"`
	CancelledOrders int64       `json:"cancelled_orders"`
	PaidOrders      int64       `json:"paid_orders"`
	Revenue         money.Cents `json:"-"`
	TaxCollected    money.Cents `json:"-"`
	Tips            money.Cents `json:"-"`
}

func (s *OrderService) GetOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	return getOrder(ctx, s.reader, restaurantID, orderID)
}

func getOrder(ctx context.Context, store OrderStore, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	row, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, RestaurantID: restaurantID})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return toOrder(row)
}

func (s *OrderService) ListOrders(ctx context.Context, restaurantID uuid.UUID, f ListFilter) ([]*order.Order, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	params := database.ListOrdersParams{
		RestaurantID:  restaurantID,
		Status:        database.Text(string(f.Status)),
		PaymentStatus: database.Text(string(f.PaymentStatus)),
		Limit:         f.Limit,
		Offset:        f.Offset,
	}
	if f.TableNumber != nil {
		params.TableNumber = pgtype.Int4{Int32: *f.TableNumber, Valid: true}
	}
	rows, err := s.reader.ListOrders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return toOrders(rows)
}

// CompleteOrder closes a submitted order, e.g. once it has been served and
// settled at the counter.
func (s *OrderService) CompleteOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	return s.staffTransition(ctx, "complete", enum.EventOrderCompleted, restaurantID, orderID, func(o *order.Order, now time.Time) error {
		return o.Complete(now)
	})
}

// CancelOrder voids an order that has not been paid.
func (s *OrderService) CancelOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	return s.staffTransition(ctx, "cancel", enum.EventOrderCancelled, restaurantID, orderID, func(o *order.Order, now time.Time) error {
		return o.Cancel(now)
	})
}

func (s *OrderService) staffTransition(
	ctx context.Context,
	op, eventType string,
	restaurantID, orderID uuid.UUID,
	apply func(o *order.Order, now time.Time) error,
) (*order.Order, error) {
	current, err := getOrder(ctx, s.reader, restaurantID, orderID)
	if err != nil {
		return nil, err
	}

	var result *order.Order
	err = s.withTable(ctx, op, current.TableID, func(ctx context.Context, store OrderStore) error {
		o, err := getOrder(ctx, store, restaurantID, orderID)
		if err != nil {
			return err
		}
		if err := apply(o, s.now()); err != nil {
			return err
		}
		if err := save(ctx, store, o, false); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(op, result)
	s.publish([]event{{result.RestaurantID, eventType, result.Snapshot()}})
	return result, nil
}

// Stats aggregates orders created in [from, to).
func (s *OrderService) Stats(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*Stats, error) {
	if !to.After(from) {
		return nil, order.ErrInvalidPeriod
	}
	row, err := s.reader.GetOrderStats(ctx, database.GetOrderStatsParams{RestaurantID: restaurantID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("get order stats: %w", err)
	}
	return &Stats{
		From:            from,
		To:              to,
		TotalOrders:     row.TotalOrders,
		BuildingOrders:  row.BuildingOrders,
		SubmittedOrders: row.SubmittedOrders,
		CompletedOrders: row.CompletedOrders,
		CancelledOrders: row.CancelledOrders,
		PaidOrders:      row.PaidOrders,
		Revenue:         money.Cents(row.Revenue),
		TaxCollected:    money.Cents(row.TaxCollected),
		Tips:            money.Cents(row.Tips),
	}, nil
}
