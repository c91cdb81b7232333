package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	want, err := hex.DecodeString(Sign(secret, body))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(want, got) {
		return ErrInvalidSignature
	}
	return nil
}

// Callback is the provider's asynchronous payment result.
type Callback struct {
	Reference   string `json:"reference"`
	ProviderRef string `json:"id"`
	Status      string `json:"status"`
}

// ParseCallback verifies and decodes a webhook body.
func ParseCallback(secret string, body []byte, signature string) (*Callback, Status, error) {
	if err := VerifySignature(secret, body, signature); err != nil {
		return nil, "", err
	}
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, "", fmt.Errorf("decode callback: %w", err)
	}
	if cb.Reference == "" {
		return nil, "", fmt.Errorf("callback has no reference")
	}
	status, err := ParseStatus(cb.Status)
	if err != nil {
		return nil, "", err
	}
	return &cb, status, nil
}
