package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_InitiatePayment(t *testing.T) {
	var got createPaymentBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "pay_1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"prov_9","status":"pending","redirect_url":"https://pay.example/prov_9"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "sk_test", 2*time.Second)
	resp, err := g.InitiatePayment(context.Background(), Request{
		Amount:    2750,
		Currency:  "USD",
		Reference: "pay_1",
		Metadata:  map[string]string{"table_number": "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "prov_9", resp.ProviderRef)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Equal(t, "https://pay.example/prov_9", resp.RedirectURL)
	assert.Equal(t, "27.50", got.Amount)
	assert.Equal(t, "5", got.Metadata["table_number"])
}

func TestHTTPGateway_Errors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		declined bool
	}{
		{"declined", http.StatusPaymentRequired, `{"message":"card declined"}`, true},
		{"failed status", http.StatusOK, `{"id":"x","status":"failed"}`, true},
		{"server error", http.StatusBadGateway, `upstream down`, false},
		{"garbage", http.StatusOK, `not json`, false},
		{"missing id", http.StatusOK, `{"status":"pending"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPGateway(srv.URL, "k", time.Second).InitiatePayment(context.Background(), Request{Reference: "pay_1"})
			require.Error(t, err)
			assert.Equal(t, tc.declined, errors.Is(err, ErrDeclined))
		})
	}
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPGateway(url, "k", time.Second).InitiatePayment(context.Background(), Request{Reference: "pay_1"})
	assert.Error(t, err)
}

func TestManualGateway(t *testing.T) {
	resp, err := NewManualGateway().InitiatePayment(context.Background(), Request{Amount: 100, Reference: "pay_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.NotEmpty(t, resp.ProviderRef)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewManualGateway().InitiatePayment(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"reference":"pay_1","status":"paid"}`)
	sig := Sign("whsec", body)

	assert.NoError(t, VerifySignature("whsec", body, sig))
	assert.ErrorIs(t, VerifySignature("other", body, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("whsec", append(body, ' '), sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("whsec", body, "zz"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("", body, sig), ErrInvalidSignature)
}

func TestParseCallback(t *testing.T) {
	body := []byte(`{"reference":"pay_1","id":"prov_9","status":"succeeded"}`)
	cb, status, err := ParseCallback("whsec", body, Sign("whsec", body))
	require.NoError(t, err)
	assert.Equal(t, "pay_1", cb.Reference)
	assert.Equal(t, "prov_9", cb.ProviderRef)
	assert.Equal(t, StatusPaid, status)

	bad := []byte(`{"reference":"pay_1","status":"teleported"}`)
	_, _, err = ParseCallback("whsec", bad, Sign("whsec", bad))
	assert.Error(t, err)

	noRef := []byte(`{"status":"paid"}`)
	_, _, err = ParseCallback("whsec", noRef, Sign("whsec", noRef))
	assert.Error(t, err)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(time.Hour)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	ok, err := l.IsProcessed(ctx, "pay_1")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := l.MarkProcessed(ctx, "pay_1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := l.MarkProcessed(ctx, "pay_1")
	require.NoError(t, err)
	assert.False(t, again)

	ok, _ = l.IsProcessed(ctx, "pay_1")
	assert.True(t, ok)

	clock = clock.Add(2 * time.Hour)
	ok, _ = l.IsProcessed(ctx, "pay_1")
	assert.False(t, ok)
}

func TestNewReference(t *testing.T) {
	a, b := NewReference(), NewReference()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "pay_")
}
