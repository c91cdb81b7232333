package service

import (
	"encoding/json"
	"fmt"

	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
)

// toOrder rebuilds the aggregate from a stored row.
func toOrder(row database.Order) (*order.Order, error) {
	items := []order.LineItem{}
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &items); err != nil {
			return nil, fmt.Errorf("decode items of order %s: %w", row.ID, err)
		}
	}
	return &order.Order{
		ID:           row.ID,
		RestaurantID: row.RestaurantID,
		TableID:      row.TableID,
		TableNumber:  row.TableNumber,
		SessionKey:   row.SessionKey,
		Items:        items,
		Status:       order.Status(row.Status),
		Payment: order.Payment{
			Method:      row.PaymentMethod.String,
			Status:      order.PaymentStatus(row.PaymentStatus),
			Reference:   row.PaymentReference.String,
			ProviderRef: row.ProviderReference.String,
		},
		TaxRate:     database.NumericToDecimal(row.TaxRate),
		Subtotal:    money.Cents(row.Subtotal),
		Tax:         money.Cents(row.Tax),
		Tip:         money.Cents(row.Tip),
		Total:       money.Cents(row.Total),
		Version:     row.Version,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		SubmittedAt: database.TimePtr(row.SubmittedAt),
		PaidAt:      database.TimePtr(row.PaidAt),
	}, nil
}

func toOrders(rows []database.Order) ([]*order.Order, error) {
	orders := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := toOrder(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// encodeItems always yields a JSON array; the schema indexes on its length.
func encodeItems(items []order.LineItem) ([]byte, error) {
	if items == nil {
		items = []order.LineItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return b, nil
}

func createParams(o *order.Order) (database.CreateOrderParams, error) {
	items, err := encodeItems(o.Items)
	if err != nil {
		return database.CreateOrderParams{}, err
	}
	return database.CreateOrderParams{
		ID:                o.ID,
		RestaurantID:      o.RestaurantID,
		TableID:           o.TableID,
		TableNumber:       o.TableNumber,
		SessionKey:        o.SessionKey,
		Status:            string(o.Status),
		PaymentStatus:     string(o.Payment.Status),
		PaymentMethod:     database.Text(o.Payment.Method),
		PaymentReference:  database.Text(o.Payment.Reference),
		ProviderReference: database.Text(o.Payment.ProviderRef),
		Items:             items,
		TaxRate:           database.DecimalToNumeric(o.TaxRate),
		Subtotal:          int64(o.Subtotal),
		Tax:               int64(o.Tax),
		Tip:               int64(o.Tip),
		Total:             int64(o.Total),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		SubmittedAt:       database.Timestamptz(o.SubmittedAt),
		PaidAt:            database.Timestamptz(o.PaidAt),
	}, nil
}

func updateParams(o *order.Order) (database.UpdateOrderParams, error) {
	items, err := encodeItems(o.Items)
	if err != nil {
		return database.UpdateOrderParams{}, err
	}
	return database.UpdateOrderParams{
		ID:                o.ID,
		Version:           o.Version,
		SessionKey:        o.SessionKey,
		Status:            string(o.Status),
		PaymentStatus:     string(o.Payment.Status),
		PaymentMethod:     database.Text(o.Payment.Method),
		PaymentReference:  database.Text(o.Payment.Reference),
		ProviderReference: database.Text(o.Payment.ProviderRef),
		Items:             items,
		TaxRate:           database.DecimalToNumeric(o.TaxRate),
		Subtotal:          int64(o.Subtotal),
		Tax:               int64(o.Tax),
		Tip:               int64(o.Tip),
		Total:             int64(o.Total),
		UpdatedAt:         o.UpdatedAt,
		SubmittedAt:       database.Timestamptz(o.SubmittedAt),
		PaidAt:            database.Timestamptz(o.PaidAt),
	}, nil
}
