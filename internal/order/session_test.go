package order

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabletap/api/internal/money"
)

func TestTableVisitScenario(t *testing.T) {
	restaurant, table := uuid.New(), uuid.New()
	key := NewSessionKey()

	first := New(restaurant, table, 5, key, tenPct, t0)
	_, err := first.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1000), first.Subtotal)

	_, err = first.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 2, first.Items[0].Quantity)
	assert.Equal(t, money.Cents(2000), first.Subtotal)
	assert.Equal(t, money.Cents(200), first.Tax)
	assert.Equal(t, money.Cents(2200), first.Total)

	require.NoError(t, first.Submit(false, t0.Add(5*time.Minute)))
	assert.Equal(t, StatusSubmitted, first.Status)

	second := New(restaurant, table, 5, first.SessionKey, tenPct, t0.Add(10*time.Minute))
	_, err = second.AddItem(fries, 1, nil, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, key, second.SessionKey)

	orders := []*Order{first, second}
	s := BuildSession(key, orders)
	assert.Equal(t, money.Cents(2750), s.GrandTotal)
	assert.Equal(t, 2, s.OrderCount)
	assert.Equal(t, 1, s.Rounds)
	assert.False(t, s.Paid)
	require.NoError(t, s.Verify())

	for _, o := range s.Outstanding() {
		require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0.Add(15*time.Minute)))
	}
	for _, o := range s.Outstanding() {
		require.NoError(t, o.MarkPaymentPaid(t0.Add(16*time.Minute)))
	}
	for _, o := range orders {
		assert.Equal(t, PaymentPaid, o.Payment.Status)
		assert.NotNil(t, o.PaidAt)
	}

	unpaid, paid := false, true
	assert.Empty(t, GroupSessions(orders, &unpaid))
	history := GroupSessions(orders, &paid)
	require.Len(t, history, 1)
	assert.Equal(t, money.Cents(2750), history[0].GrandTotal)
	assert.True(t, history[0].Paid)
}

func TestGroupSessions(t *testing.T) {
	restaurant, table := uuid.New(), uuid.New()

	older := New(restaurant, table, 2, "visit-1", tenPct, t0)
	_, err := older.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, older.Submit(false, t0))

	newer := New(restaurant, table, 2, "visit-2", tenPct, t0.Add(time.Hour))
	_, err = newer.AddItem(fries, 1, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, newer.Submit(false, t0.Add(time.Hour)))

	empty := New(restaurant, table, 2, "visit-2", tenPct, t0.Add(2*time.Hour))

	cancelled := New(restaurant, table, 2, "visit-3", tenPct, t0.Add(3*time.Hour))
	_, err = cancelled.AddItem(fries, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, cancelled.Cancel(t0))

	sessions := GroupSessions([]*Order{older, newer, empty, cancelled}, nil)
	require.Len(t, sessions, 2)
	assert.Equal(t, "visit-2", sessions[0].Key)
	assert.Equal(t, "visit-1", sessions[1].Key)
	assert.Equal(t, 1, sessions[0].OrderCount)

	for _, s := range sessions {
		assert.NoError(t, s.Verify())
	}
}

func TestSessionVerifyDetectsDrift(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	s := BuildSession(o.SessionKey, []*Order{o})
	require.NoError(t, s.Verify())

	o.Total++
	assert.Error(t, s.Verify())
}

func TestSessionSnapshot(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, o.ApplyTip(100))

	snap := BuildSession(o.SessionKey, []*Order{o}).Snapshot()
	assert.Equal(t, "12.00", snap.GrandTotal)
	assert.Equal(t, "1.00", snap.Tip)
	require.Len(t, snap.Orders, 1)
}
