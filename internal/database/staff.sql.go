package database

import (
	"context"

	"github.com/google/uuid"
)

const getStaffByEmail = `-- name: GetStaffByEmail :one
SELECT id, restaurant_id, email, full_name, password_hash, role, is_active, created_at
FROM staff_users
WHERE lower(email) = lower($1) AND is_active = true
`

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (StaffUser, error) {
	row := q.db.QueryRow(ctx, getStaffByEmail, email)
	var i StaffUser
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Email,
		&i.FullName,
		&i.PasswordHash,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getStaffByID = `-- name: GetStaffByID :one
SELECT id, restaurant_id, email, full_name, password_hash, role, is_active, created_at
FROM staff_users
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetStaffByID(ctx context.Context, id uuid.UUID) (StaffUser, error) {
	row := q.db.QueryRow(ctx, getStaffByID, id)
	var i StaffUser
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Email,
		&i.FullName,
		&i.PasswordHash,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createStaff = `-- name: CreateStaff :one
INSERT INTO staff_users (restaurant_id, email, full_name, password_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, restaurant_id, email, full_name, password_hash, role, is_active, created_at
`

type CreateStaffParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (StaffUser, error) {
	row := q.db.QueryRow(ctx, createStaff,
		arg.RestaurantID,
		arg.Email,
		arg.FullName,
		arg.PasswordHash,
		arg.Role,
	)
	var i StaffUser
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Email,
		&i.FullName,
		&i.PasswordHash,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}
