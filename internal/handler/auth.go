package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/database"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// StaffDirectory looks up staff accounts. *database.Queries satisfies it.
type StaffDirectory interface {
	GetStaffByEmail(ctx context.Context, email string) (database.StaffUser, error)
	GetStaffByID(ctx context.Context, id uuid.UUID) (database.StaffUser, error)
}

// AuthHandler issues staff tokens. Diners never authenticate.
type AuthHandler struct {
	staff  StaffDirectory
	tokens auth.Issuer
	log    *zap.Logger
}

func NewAuthHandler(staff StaffDirectory, tokens auth.Issuer, log *zap.Logger) *AuthHandler {
	return &AuthHandler{staff: staff, tokens: tokens, log: log}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	auth.TokenPair
	User staffResponse `json:"user"`
}

type staffResponse struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
}

var errBadCredentials = errorResponse{Error: "invalid credentials", Code: "INVALID_CREDENTIALS"}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email and password are required", Code: "INVALID_BODY"})
		return
	}

	user, ok := h.lookup(w, r.Context(), func(ctx context.Context) (database.StaffUser, error) {
		return h.staff.GetStaffByEmail(ctx, email)
	})
	if !ok {
		return
	}
	// Compare even for inactive accounts so timing does not reveal them.
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil || !user.IsActive {
		h.log.Info("login rejected", zap.String("staff_id", user.ID.String()))
		writeJSON(w, http.StatusUnauthorized, errBadCredentials)
		return
	}
	h.issue(w, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "refresh_token is required", Code: "INVALID_BODY"})
		return
	}
	userID, err := auth.ValidateRefreshToken(h.tokens.Secret, in.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid refresh token", Code: "INVALID_TOKEN"})
		return
	}

	user, ok := h.lookup(w, r.Context(), func(ctx context.Context) (database.StaffUser, error) {
		return h.staff.GetStaffByID(ctx, userID)
	})
	if !ok {
		return
	}
	if !user.IsActive {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "account disabled", Code: "INVALID_TOKEN"})
		return
	}
	h.issue(w, user)
}

// lookup runs get and answers 401 for a missing account or 500 for a
// store failure. ok is false once a response has been written.
func (h *AuthHandler) lookup(w http.ResponseWriter, ctx context.Context, get func(context.Context) (database.StaffUser, error)) (database.StaffUser, bool) {
	user, err := get(ctx)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusUnauthorized, errBadCredentials)
		return user, false
	case err != nil:
		h.log.Error("staff lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return user, false
	}
	return user, true
}

func (h *AuthHandler) issue(w http.ResponseWriter, user database.StaffUser) {
	pair, err := h.tokens.Issue(user.ID, user.RestaurantID, user.Role)
	if err != nil {
		h.log.Error("issue tokens", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		TokenPair: pair,
		User: staffResponse{
			ID:           user.ID,
			RestaurantID: user.RestaurantID,
			FullName:     user.FullName,
			Email:        user.Email,
			Role:         user.Role,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
