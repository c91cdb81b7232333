package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrWrongUse is returned when a refresh token is presented as an access
// token or the other way round.
var ErrWrongUse = errors.New("token presented for the wrong use")

// Claims identify a staff member and the restaurant they act for.
type Claims struct {
	UserID       uuid.UUID `json:"user_id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Role         string    `json:"role,omitempty"`
	Use          string    `json:"use"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

func sign(secret string, ttl time.Duration, c Claims) (string, error) {
	now := time.Now()
	c.Subject = c.UserID.String()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func parse(secret, raw, use string) (*Claims, error) {
	c := &Claims{}
	_, err := parser.ParseWithClaims(raw, c, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if c.Use != use {
		return nil, ErrWrongUse
	}
	if c.UserID == uuid.Nil {
		return nil, fmt.Errorf("%s token has no user", use)
	}
	return c, nil
}

// GenerateToken signs a short-lived access token.
func GenerateToken(secret string, ttl time.Duration, userID, restaurantID uuid.UUID, role string) (string, error) {
	return sign(secret, ttl, Claims{UserID: userID, RestaurantID: restaurantID, Role: role, Use: useAccess})
}

// GenerateRefreshToken signs a token that can only be exchanged for a new
// pair. It carries no role so a demoted user picks up the change on refresh.
func GenerateRefreshToken(secret string, ttl time.Duration, userID uuid.UUID) (string, error) {
	return sign(secret, ttl, Claims{UserID: userID, Use: useRefresh})
}

func ValidateToken(secret, raw string) (*Claims, error) {
	return parse(secret, raw, useAccess)
}

// ValidateRefreshToken returns the user a refresh token was issued to.
func ValidateRefreshToken(secret, raw string) (uuid.UUID, error) {
	c, err := parse(secret, raw, useRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	return c.UserID, nil
}

// Issuer mints access/refresh pairs with fixed lifetimes.
type Issuer struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (i Issuer) Issue(userID, restaurantID uuid.UUID, role string) (TokenPair, error) {
	access, err := GenerateToken(i.Secret, i.AccessTTL, userID, restaurantID, role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := GenerateRefreshToken(i.Secret, i.RefreshTTL, userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(i.AccessTTL.Seconds())}, nil
}
