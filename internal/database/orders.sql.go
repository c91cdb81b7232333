package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, table_id, table_number, session_key, status, payment_status,
    payment_method, payment_reference, provider_reference, items, tax_rate, subtotal, tax, tip, total,
    version, created_at, updated_at, submitted_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.TableID,
		&i.TableNumber,
		&i.SessionKey,
		&i.Status,
		&i.PaymentStatus,
		&i.PaymentMethod,
		&i.PaymentReference,
		&i.ProviderReference,
		&i.Items,
		&i.TaxRate,
		&i.Subtotal,
		&i.Tax,
		&i.Tip,
		&i.Total,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.SubmittedAt,
		&i.PaidAt,
	)
	return i, err
}

func collectOrders(rows pgx.Rows, err error) ([]Order, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const lockTable = `-- name: LockTable :exec
SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
`

// LockTable serializes writers of one table's orders across processes for
// the rest of the transaction.
func (q *Queries) LockTable(ctx context.Context, tableID uuid.UUID) error {
	_, err := q.db.Exec(ctx, lockTable, tableID.String())
	return err
}

const getBuildingOrder = `-- name: GetBuildingOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE table_id = $1 AND status = 'building'
`

func (q *Queries) GetBuildingOrder(ctx context.Context, tableID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getBuildingOrder, tableID))
}

const getLatestOutstandingOrder = `-- name: GetLatestOutstandingOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1 AND status <> 'cancelled' AND payment_status <> 'paid'
  AND jsonb_array_length(items) > 0
ORDER BY created_at DESC
LIMIT 1
`

func (q *Queries) GetLatestOutstandingOrder(ctx context.Context, tableID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getLatestOutstandingOrder, tableID))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND restaurant_id = $2
`

type GetOrderParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.RestaurantID))
}

const listOrdersBySession = `-- name: ListOrdersBySession :many
SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1 AND session_key = $2
ORDER BY created_at
`

type ListOrdersBySessionParams struct {
	TableID    uuid.UUID `json:"table_id"`
	SessionKey string    `json:"session_key"`
}

func (q *Queries) ListOrdersBySession(ctx context.Context, arg ListOrdersBySessionParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersBySession, arg.TableID, arg.SessionKey))
}

const listOrdersByTable = `-- name: ListOrdersByTable :many
SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListOrdersByTableParams struct {
	TableID uuid.UUID `json:"table_id"`
	Limit   int32     `json:"limit"`
}

func (q *Queries) ListOrdersByTable(ctx context.Context, arg ListOrdersByTableParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersByTable, arg.TableID, arg.Limit))
}

const listOrdersByPaymentReference = `-- name: ListOrdersByPaymentReference :many
SELECT ` + orderColumns + ` FROM orders
WHERE payment_reference = $1
ORDER BY created_at
`

func (q *Queries) ListOrdersByPaymentReference(ctx context.Context, reference string) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrdersByPaymentReference, reference))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR payment_status = $3)
  AND ($4::int IS NULL OR table_number = $4)
ORDER BY created_at DESC
LIMIT $5 OFFSET $6
`

type ListOrdersParams struct {
	RestaurantID  uuid.UUID   `json:"restaurant_id"`
	Status        pgtype.Text `json:"status"`
	PaymentStatus pgtype.Text `json:"payment_status"`
	TableNumber   pgtype.Int4 `json:"table_number"`
	Limit         int32       `json:"limit"`
	Offset        int32       `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	return collectOrders(q.db.Query(ctx, listOrders,
		arg.RestaurantID,
		arg.Status,
		arg.PaymentStatus,
		arg.TableNumber,
		arg.Limit,
		arg.Offset,
	))
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (id, restaurant_id, table_id, table_number, session_key, status, payment_status,
    payment_method, payment_reference, provider_reference, items, tax_rate, subtotal, tax, tip, total,
    created_at, updated_at, submitted_at, paid_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	ID                uuid.UUID          `json:"id"`
	RestaurantID      uuid.UUID          `json:"restaurant_id"`
	TableID           uuid.UUID          `json:"table_id"`
	TableNumber       int32              `json:"table_number"`
	SessionKey        string             `json:"session_key"`
	Status            string             `json:"status"`
	PaymentStatus     string             `json:"payment_status"`
	PaymentMethod     pgtype.Text        `json:"payment_method"`
	PaymentReference  pgtype.Text        `json:"payment_reference"`
	ProviderReference pgtype.Text        `json:"provider_reference"`
	Items             []byte             `json:"items"`
	TaxRate           pgtype.Numeric     `json:"tax_rate"`
	Subtotal          int64              `json:"subtotal"`
	Tax               int64              `json:"tax"`
	Tip               int64              `json:"tip"`
	Total             int64              `json:"total"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	SubmittedAt       pgtype.Timestamptz `json:"submitted_at"`
	PaidAt            pgtype.Timestamptz `json:"paid_at"`
}

// CreateOrder inserts a new order. A second building order for the same
// table violates orders_one_building_per_table and surfaces as ErrConflict.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.RestaurantID,
		arg.TableID,
		arg.TableNumber,
		arg.SessionKey,
		arg.Status,
		arg.PaymentStatus,
		arg.PaymentMethod,
		arg.PaymentReference,
		arg.ProviderReference,
		arg.Items,
		arg.TaxRate,
		arg.Subtotal,
		arg.Tax,
		arg.Tip,
		arg.Total,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.SubmittedAt,
		arg.PaidAt,
	)
	i, err := scanOrder(row)
	return i, mapConflict(err)
}

const updateOrder = `-- name: UpdateOrder :one
UPDATE orders SET
    session_key = $3,
    status = $4,
    payment_status = $5,
    payment_method = $6,
    payment_reference = $7,
    provider_reference = $8,
    items = $9,
    tax_rate = $10,
    subtotal = $11,
    tax = $12,
    tip = $13,
    total = $14,
    updated_at = $15,
    submitted_at = $16,
    paid_at = $17,
    version = version + 1
WHERE id = $1 AND version = $2
RETURNING ` + orderColumns

type UpdateOrderParams struct {
	ID                uuid.UUID          `json:"id"`
	Version           int32              `json:"version"`
	SessionKey        string             `json:"session_key"`
	Status            string             `json:"status"`
	PaymentStatus     string             `json:"payment_status"`
	PaymentMethod     pgtype.Text        `json:"payment_method"`
	PaymentReference  pgtype.Text        `json:"payment_reference"`
	ProviderReference pgtype.Text        `json:"provider_reference"`
	Items             []byte             `json:"items"`
	TaxRate           pgtype.Numeric     `json:"tax_rate"`
	Subtotal          int64              `json:"subtotal"`
	Tax               int64              `json:"tax"`
	Tip               int64              `json:"tip"`
	Total             int64              `json:"total"`
	UpdatedAt         time.Time          `json:"updated_at"`
	SubmittedAt       pgtype.Timestamptz `json:"submitted_at"`
	PaidAt            pgtype.Timestamptz `json:"paid_at"`
}

// UpdateOrder writes arg only if the stored version still equals
// arg.Version. A stale version returns ErrConflict.
func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrder,
		arg.ID,
		arg.Version,
		arg.SessionKey,
		arg.Status,
		arg.PaymentStatus,
		arg.PaymentMethod,
		arg.PaymentReference,
		arg.ProviderReference,
		arg.Items,
		arg.TaxRate,
		arg.Subtotal,
		arg.Tax,
		arg.Tip,
		arg.Total,
		arg.UpdatedAt,
		arg.SubmittedAt,
		arg.PaidAt,
	)
	i, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return i, ErrConflict
	}
	return i, mapConflict(err)
}

const getOrderStats = `-- name: GetOrderStats :one
SELECT
    count(*)                                                    AS total_orders,
    count(*) FILTER (WHERE status = 'building')                 AS building_orders,
    count(*) FILTER (WHERE status = 'submitted')                AS submitted_orders,
    count(*) FILTER (WHERE status = 'completed')                AS completed_orders,
    count(*) FILTER (WHERE status = 'cancelled')                AS cancelled_orders,
    count(*) FILTER (WHERE payment_status = 'paid')             AS paid_orders,
    coalesce(sum(total) FILTER (WHERE payment_status = 'paid'), 0)::bigint AS revenue,
    coalesce(sum(tax) FILTER (WHERE payment_status = 'paid'), 0)::bigint   AS tax_collected,
    coalesce(sum(tip) FILTER (WHERE payment_status = 'paid'), 0)::bigint   AS tips
FROM orders
WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3
`

type GetOrderStatsParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

type GetOrderStatsRow struct {
	TotalOrders     int64 `json:"total_orders"`
	BuildingOrders  int64 `json:"building_orders"`
	SubmittedOrders int64 `json:"submitted_orders"`
	CompletedOrders int64 `json:"completed_orders"`
	CancelledOrders int64 `json:"cancelled_orders"`
	PaidOrders      int64 `json:"paid_orders"`
	Revenue         int64 `json:"revenue"`
	TaxCollected    int64 `json:"tax_collected"`
	Tips            int64 `json:"tips"`
}

func (q *Queries) GetOrderStats(ctx context.Context, arg GetOrderStatsParams) (GetOrderStatsRow, error) {
	row := q.db.QueryRow(ctx, getOrderStats, arg.RestaurantID, arg.From, arg.To)
	var i GetOrderStatsRow
	err := row.Scan(
		&i.TotalOrders,
		&i.BuildingOrders,
		&i.SubmittedOrders,
		&i.CompletedOrders,
		&i.CancelledOrders,
		&i.PaidOrders,
		&i.Revenue,
		&i.TaxCollected,
		&i.Tips,
	)
	return i, err
}
