package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Restaurant struct {
	ID                        uuid.UUID      `json:"id"`
	Name                      string         `json:"name"`
	Currency                  string         `json:"currency"`
	TaxRate                   pgtype.Numeric `json:"tax_rate"`
	IsActive                  bool           `json:"is_active"`
	OrderingEnabled           bool           `json:"ordering_enabled"`
	PaymentEnabled            bool           `json:"payment_enabled"`
	RequirePaymentBeforeOrder bool           `json:"require_payment_before_order"`
	TipsEnabled               bool           `json:"tips_enabled"`
	TipPercentages            []int32        `json:"tip_percentages"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

type DiningTable struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
	IsAvailable  bool      `json:"is_available"`
	CreatedAt    time.Time `json:"created_at"`
}

type MenuItem struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	IsAvailable  bool      `json:"is_available"`
	CreatedAt    time.Time `json:"created_at"`
}

type Addon struct {
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	MenuItemID   pgtype.UUID `json:"menu_item_id"`
	Name         string      `json:"name"`
	Price        int64       `json:"price"`
	IsAvailable  bool        `json:"is_available"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Order struct {
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
	Version           int32              `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	SubmittedAt       pgtype.Timestamptz `json:"submitted_at"`
	PaidAt            pgtype.Timestamptz `json:"paid_at"`
}

type StaffUser struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}
