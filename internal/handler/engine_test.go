package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/service"
)

// mockEngine satisfies DinerServicer, StaffServicer and PaymentSettler.
// Unset functions fail the call with an unexpected error.
type mockEngine struct {
	currentFn  func(ctx context.Context, ref service.TableRef) (*service.TableView, error)
	addFn      func(ctx context.Context, ref service.TableRef, req service.AddItemRequest) (*order.Order, error)
	setQtyFn   func(ctx context.Context, ref service.TableRef, lineID uuid.UUID, quantity int) (*order.Order, error)
	removeFn   func(ctx context.Context, ref service.TableRef, lineID uuid.UUID) (*order.Order, error)
	submitFn   func(ctx context.Context, ref service.TableRef) (*order.Order, error)
	payFn      func(ctx context.Context, ref service.TableRef, req service.PaymentRequest) (*service.PaymentResult, error)
	historyFn  func(ctx context.Context, ref service.TableRef, paid *bool) ([]order.Session, error)
	getFn      func(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	listFn     func(ctx context.Context, restaurantID uuid.UUID, f service.ListFilter) ([]*order.Order, error)
	completeFn func(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	cancelFn   func(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	confirmFn  func(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
	failFn     func(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
	statsFn    func(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*service.Stats, error)
}

var errUnexpectedCall = errors.New("unexpected call")

func (m *mockEngine) CurrentOrder(ctx context.Context, ref service.TableRef) (*service.TableView, error) {
	if m.currentFn == nil {
		return nil, errUnexpectedCall
	}
	return m.currentFn(ctx, ref)
}

func (m *mockEngine) AddItem(ctx context.Context, ref service.TableRef, req service.AddItemRequest) (*order.Order, error) {
	if m.addFn == nil {
		return nil, errUnexpectedCall
	}
	return m.addFn(ctx, ref, req)
}

func (m *mockEngine) SetItemQuantity(ctx context.Context, ref service.TableRef, lineID uuid.UUID, quantity int) (*order.Order, error) {
	if m.setQtyFn == nil {
		return nil, errUnexpectedCall
	}
	return m.setQtyFn(ctx, ref, lineID, quantity)
}

func (m *mockEngine) RemoveItem(ctx context.Context, ref service.TableRef, lineID uuid.UUID) (*order.Order, error) {
	if m.removeFn == nil {
		return nil, errUnexpectedCall
	}
	return m.removeFn(ctx, ref, lineID)
}

func (m *mockEngine) Submit(ctx context.Context, ref service.TableRef) (*order.Order, error) {
	if m.submitFn == nil {
		return nil, errUnexpectedCall
	}
	return m.submitFn(ctx, ref)
}

func (m *mockEngine) InitiatePayment(ctx context.Context, ref service.TableRef, req service.PaymentRequest) (*service.PaymentResult, error) {
	if m.payFn == nil {
		return nil, errUnexpectedCall
	}
	return m.payFn(ctx, ref, req)
}

func (m *mockEngine) History(ctx context.Context, ref service.TableRef, paid *bool) ([]order.Session, error) {
	if m.historyFn == nil {
		return nil, errUnexpectedCall
	}
	return m.historyFn(ctx, ref, paid)
}

func (m *mockEngine) GetOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	if m.getFn == nil {
		return nil, errUnexpectedCall
	}
	return m.getFn(ctx, restaurantID, orderID)
}

func (m *mockEngine) ListOrders(ctx context.Context, restaurantID uuid.UUID, f service.ListFilter) ([]*order.Order, error) {
	if m.listFn == nil {
		return nil, errUnexpectedCall
	}
	return m.listFn(ctx, restaurantID, f)
}

func (m *mockEngine) CompleteOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	if m.completeFn == nil {
		return nil, errUnexpectedCall
	}
	return m.completeFn(ctx, restaurantID, orderID)
}

func (m *mockEngine) CancelOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error) {
	if m.cancelFn == nil {
		return nil, errUnexpectedCall
	}
	return m.cancelFn(ctx, restaurantID, orderID)
}

func (m *mockEngine) ConfirmPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error) {
	if m.confirmFn == nil {
		return nil, errUnexpectedCall
	}
	return m.confirmFn(ctx, restaurantID, reference)
}

func (m *mockEngine) FailPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error) {
	if m.failFn == nil {
		return nil, errUnexpectedCall
	}
	return m.failFn(ctx, restaurantID, reference)
}

func (m *mockEngine) Stats(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*service.Stats, error) {
	if m.statsFn == nil {
		return nil, errUnexpectedCall
	}
	return m.statsFn(ctx, restaurantID, from, to)
}

// --- Fixtures ---

var (
	testNow    = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	testBurger = order.MenuItemRef{ID: uuid.New(), Name: "Burger", Price: 1000, Available: true}
)

// testOrder returns a building order at table 5 holding qty burgers.
func testOrder(t *testing.T, restaurantID uuid.UUID, qty int) *order.Order {
	t.Helper()
	o := order.New(restaurantID, uuid.New(), 5, order.NewSessionKey(), decimal.NewFromInt(10), testNow)
	if qty > 0 {
		_, err := o.AddItem(testBurger, qty, nil, testNow)
		require.NoError(t, err)
	}
	return o
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if claims != nil {
		token, err := auth.GenerateToken(testSecret, time.Hour, claims.UserID, claims.RestaurantID, claims.Role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func testClaims(restaurantID uuid.UUID, role string) *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), RestaurantID: restaurantID, Role: role}
}

