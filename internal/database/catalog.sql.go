package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const restaurantColumns = `id, name, currency, tax_rate, is_active, ordering_enabled, payment_enabled,
    require_payment_before_order, tips_enabled, tip_percentages, created_at, updated_at`

func scanRestaurant(row interface{ Scan(...any) error }) (Restaurant, error) {
	var i Restaurant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Currency,
		&i.TaxRate,
		&i.IsActive,
		&i.OrderingEnabled,
		&i.PaymentEnabled,
		&i.RequirePaymentBeforeOrder,
		&i.TipsEnabled,
		&i.TipPercentages,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRestaurant = `-- name: GetRestaurant :one
SELECT ` + restaurantColumns + ` FROM restaurants WHERE id = $1
`

func (q *Queries) GetRestaurant(ctx context.Context, id uuid.UUID) (Restaurant, error) {
	return scanRestaurant(q.db.QueryRow(ctx, getRestaurant, id))
}

const getRestaurantByName = `-- name: GetRestaurantByName :one
SELECT ` + restaurantColumns + ` FROM restaurants WHERE lower(name) = lower($1)
`

func (q *Queries) GetRestaurantByName(ctx context.Context, name string) (Restaurant, error) {
	return scanRestaurant(q.db.QueryRow(ctx, getRestaurantByName, name))
}

const createRestaurant = `-- name: CreateRestaurant :one
INSERT INTO restaurants (name, currency, tax_rate, ordering_enabled, payment_enabled,
    require_payment_before_order, tips_enabled, tip_percentages)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + restaurantColumns

type CreateRestaurantParams struct {
	Name                      string         `json:"name"`
	Currency                  string         `json:"currency"`
	TaxRate                   pgtype.Numeric `json:"tax_rate"`
	OrderingEnabled           bool           `json:"ordering_enabled"`
	PaymentEnabled            bool           `json:"payment_enabled"`
	RequirePaymentBeforeOrder bool           `json:"require_payment_before_order"`
	TipsEnabled               bool           `json:"tips_enabled"`
	TipPercentages            []int32        `json:"tip_percentages"`
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, createRestaurant,
		arg.Name,
		arg.Currency,
		arg.TaxRate,
		arg.OrderingEnabled,
		arg.PaymentEnabled,
		arg.RequirePaymentBeforeOrder,
		arg.TipsEnabled,
		arg.TipPercentages,
	)
	return scanRestaurant(row)
}

const getTableByNumber = `-- name: GetTableByNumber :one
SELECT id, restaurant_id, number, capacity, is_available, created_at
FROM dining_tables
WHERE restaurant_id = $1 AND number = $2
`

type GetTableByNumberParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
}

func (q *Queries) GetTableByNumber(ctx context.Context, arg GetTableByNumberParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, getTableByNumber, arg.RestaurantID, arg.Number)
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Number,
		&i.Capacity,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const createTable = `-- name: CreateTable :one
INSERT INTO dining_tables (restaurant_id, number, capacity)
VALUES ($1, $2, $3)
RETURNING id, restaurant_id, number, capacity, is_available, created_at
`

type CreateTableParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, createTable, arg.RestaurantID, arg.Number, arg.Capacity)
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Number,
		&i.Capacity,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT id, restaurant_id, name, price, is_available, created_at
FROM menu_items
WHERE id = $1 AND restaurant_id = $2
`

type GetMenuItemParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, arg.ID, arg.RestaurantID)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (restaurant_id, name, price)
VALUES ($1, $2, $3)
RETURNING id, restaurant_id, name, price, is_available, created_at
`

type CreateMenuItemParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, arg.RestaurantID, arg.Name, arg.Price)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const listAddonsByIDs = `-- name: ListAddonsByIDs :many
SELECT id, restaurant_id, menu_item_id, name, price, is_available, created_at
FROM addons
WHERE restaurant_id = $1 AND id = ANY($2::uuid[])
`

type ListAddonsByIDsParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Ids          []uuid.UUID `json:"ids"`
}

func (q *Queries) ListAddonsByIDs(ctx context.Context, arg ListAddonsByIDsParams) ([]Addon, error) {
	rows, err := q.db.Query(ctx, listAddonsByIDs, arg.RestaurantID, arg.Ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Addon{}
	for rows.Next() {
		var i Addon
		if err := rows.Scan(
			&i.ID,
			&i.RestaurantID,
			&i.MenuItemID,
			&i.Name,
			&i.Price,
			&i.IsAvailable,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createAddon = `-- name: CreateAddon :one
INSERT INTO addons (restaurant_id, menu_item_id, name, price)
VALUES ($1, $2, $3, $4)
RETURNING id, restaurant_id, menu_item_id, name, price, is_available, created_at
`

type CreateAddonParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	MenuItemID   pgtype.UUID `json:"menu_item_id"`
	Name         string      `json:"name"`
	Price        int64       `json:"price"`
}

func (q *Queries) CreateAddon(ctx context.Context, arg CreateAddonParams) (Addon, error) {
	row := q.db.QueryRow(ctx, createAddon, arg.RestaurantID, arg.MenuItemID, arg.Name, arg.Price)
	var i Addon
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.MenuItemID,
		&i.Name,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}
