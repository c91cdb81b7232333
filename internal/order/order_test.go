package order

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabletap/api/internal/money"
)

var (
	t0      = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	tenPct  = decimal.NewFromInt(10)
	burger  = MenuItemRef{ID: uuid.New(), Name: "Burger", Price: 1000, Available: true}
	fries   = MenuItemRef{ID: uuid.New(), Name: "Fries", Price: 500, Available: true}
	cheese  = AddonRef{ID: uuid.New(), Name: "Cheese", Price: 150}
	bacon   = AddonRef{ID: uuid.New(), Name: "Bacon", Price: 200}
	soldOut = MenuItemRef{ID: uuid.New(), Name: "Soup", Price: 700, Available: false}
)

func newTestOrder() *Order {
	return New(uuid.New(), uuid.New(), 5, NewSessionKey(), tenPct, t0)
}

func TestNewOrder(t *testing.T) {
	o := newTestOrder()
	assert.Equal(t, StatusBuilding, o.Status)
	assert.Equal(t, PaymentUnpaid, o.Payment.Status)
	assert.Empty(t, o.Items)
	assert.True(t, o.Mutable())
	assert.NotEmpty(t, o.SessionKey)
}

func TestAddItem(t *testing.T) {
	t.Run("merges same item and addon set", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, []AddonRef{cheese, bacon}, t0)
		require.NoError(t, err)
		line, err := o.AddItem(burger, 1, []AddonRef{bacon, cheese}, t0)
		require.NoError(t, err)

		require.Len(t, o.Items, 1)
		assert.Equal(t, 2, line.Quantity)
		assert.Equal(t, money.Cents(2*(1000+150+200)), o.Subtotal)
	})

	t.Run("different addon set is a new row", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)
		_, err = o.AddItem(burger, 1, []AddonRef{cheese}, t0)
		require.NoError(t, err)
		assert.Len(t, o.Items, 2)
	})

	t.Run("price change starts a new row", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, []AddonRef{cheese}, t0)
		require.NoError(t, err)

		repriced := burger
		repriced.Price = 1200
		line, err := o.AddItem(repriced, 1, []AddonRef{cheese}, t0)
		require.NoError(t, err)
		require.Len(t, o.Items, 2)
		assert.Equal(t, money.Cents(1200), line.UnitPrice)

		dearCheese := cheese
		dearCheese.Price = 175
		_, err = o.AddItem(repriced, 1, []AddonRef{dearCheese}, t0)
		require.NoError(t, err)
		require.Len(t, o.Items, 3)
		assert.Equal(t, money.Cents(1150+1350+1375), o.Subtotal)

		_, err = o.AddItem(repriced, 2, []AddonRef{cheese}, t0)
		require.NoError(t, err)
		assert.Len(t, o.Items, 3)
		assert.Equal(t, 3, o.Items[1].Quantity)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 0, nil, t0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = o.AddItem(soldOut, 1, nil, t0)
		assert.ErrorIs(t, err, ErrItemUnavailable)

		_, err = o.AddItem(burger, 1, []AddonRef{cheese, cheese}, t0)
		assert.ErrorIs(t, err, ErrInvalidAddon)

		_, err = o.AddItem(MenuItemRef{ID: uuid.New(), Name: "Odd", Price: -1, Available: true}, 1, nil, t0)
		assert.ErrorIs(t, err, ErrInvalidPrice)
		assert.Equal(t, KindValidation, KindOf(err))

		assert.Empty(t, o.Items)
		assert.Equal(t, money.Cents(0), o.Total)
	})

	t.Run("keeps the price seen at add time", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)

		repriced := burger
		repriced.Price = 1300
		_, err = o.AddItem(repriced, 1, nil, t0)
		require.NoError(t, err)

		require.Len(t, o.Items, 1)
		assert.Equal(t, money.Cents(1000), o.Items[0].UnitPrice)
	})
}

func TestSetQuantityAndRemove(t *testing.T) {
	t.Run("overwrites quantity", func(t *testing.T) {
		o := newTestOrder()
		line, err := o.AddItem(fries, 1, nil, t0)
		require.NoError(t, err)
		require.NoError(t, o.SetQuantity(line.ID, 4, t0))
		assert.Equal(t, 4, o.Items[0].Quantity)
		assert.Equal(t, money.Cents(2000), o.Subtotal)
	})

	t.Run("zero equals remove", func(t *testing.T) {
		a, b := newTestOrder(), newTestOrder()
		la, err := a.AddItem(burger, 2, nil, t0)
		require.NoError(t, err)
		_, err = a.AddItem(fries, 1, nil, t0)
		require.NoError(t, err)
		lb, err := b.AddItem(burger, 2, nil, t0)
		require.NoError(t, err)
		_, err = b.AddItem(fries, 1, nil, t0)
		require.NoError(t, err)

		require.NoError(t, a.SetQuantity(la.ID, 0, t0))
		removed, err := b.RemoveItem(lb.ID, t0)
		require.NoError(t, err)
		assert.True(t, removed)

		assert.Equal(t, a.Subtotal, b.Subtotal)
		assert.Equal(t, a.Total, b.Total)
		require.Len(t, a.Items, 1)
		require.Len(t, b.Items, 1)
		assert.Equal(t, a.Items[0].MenuItemID, b.Items[0].MenuItemID)
	})

	t.Run("unknown line", func(t *testing.T) {
		o := newTestOrder()
		err := o.SetQuantity(uuid.New(), 2, t0)
		assert.ErrorIs(t, err, ErrLineItemNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))

		err = o.SetQuantity(uuid.New(), -1, t0)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("remove of absent line is a no-op", func(t *testing.T) {
		o := newTestOrder()
		removed, err := o.RemoveItem(uuid.New(), t0)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestTotalsNeverDrift(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	menu := []MenuItemRef{burger, fries, {ID: uuid.New(), Name: "Cola", Price: 333, Available: true}}
	addons := [][]AddonRef{nil, {cheese}, {cheese, bacon}}
	rates := []decimal.Decimal{decimal.Zero, tenPct, decimal.RequireFromString("8.875")}

	for run := 0; run < 50; run++ {
		o := New(uuid.New(), uuid.New(), 1, NewSessionKey(), rates[run%len(rates)], t0)
		for step := 0; step < 40; step++ {
			switch op := rng.IntN(3); {
			case op == 0 || len(o.Items) == 0:
				_, err := o.AddItem(menu[rng.IntN(len(menu))], 1+rng.IntN(3), addons[rng.IntN(len(addons))], t0)
				require.NoError(t, err)
			case op == 1:
				line := o.Items[rng.IntN(len(o.Items))]
				require.NoError(t, o.SetQuantity(line.ID, rng.IntN(4), t0))
			default:
				line := o.Items[rng.IntN(len(o.Items))]
				_, err := o.RemoveItem(line.ID, t0)
				require.NoError(t, err)
			}

			want, err := money.Compute(o.Lines(), o.TaxRate, o.Tip)
			require.NoError(t, err)
			require.Equal(t, want.Subtotal, o.Subtotal, "run %d step %d", run, step)
			require.Equal(t, want.Tax, o.Tax, "run %d step %d", run, step)
			require.Equal(t, want.Total, o.Total, "run %d step %d", run, step)
			for _, it := range o.Items {
				require.GreaterOrEqual(t, it.Quantity, 1)
			}
		}
	}
}

func TestSubmit(t *testing.T) {
	t.Run("empty order is a validation error", func(t *testing.T) {
		o := newTestOrder()
		err := o.Submit(false, t0)
		assert.ErrorIs(t, err, ErrEmptyOrder)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, StatusBuilding, o.Status)
	})

	t.Run("locks items", func(t *testing.T) {
		o := newTestOrder()
		line, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)
		require.NoError(t, o.Submit(false, t0.Add(time.Minute)))

		assert.Equal(t, StatusSubmitted, o.Status)
		require.NotNil(t, o.SubmittedAt)
		assert.False(t, o.Mutable())

		_, err = o.AddItem(fries, 1, nil, t0)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StatusSubmitted, te.Status)
		assert.ErrorIs(t, err, ErrOrderLocked)
		assert.Equal(t, KindStateConflict, KindOf(err))

		assert.ErrorIs(t, o.SetQuantity(line.ID, 3, t0), ErrOrderLocked)
		_, err = o.RemoveItem(line.ID, t0)
		assert.ErrorIs(t, err, ErrOrderLocked)
		assert.ErrorIs(t, o.Submit(false, t0), ErrInvalidTransition)
	})

	t.Run("payment first", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)
		assert.ErrorIs(t, o.Submit(true, t0), ErrPaymentRequired)

		require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))
		assert.ErrorIs(t, o.Submit(true, t0), ErrPaymentInProgress)

		require.NoError(t, o.MarkPaymentPaid(t0))
		assert.Equal(t, StatusBuilding, o.Status)
		require.NoError(t, o.Submit(true, t0))
		assert.Equal(t, StatusSubmitted, o.Status)
	})
}

func TestPaymentTransitions(t *testing.T) {
	submitted := func(t *testing.T) *Order {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)
		require.NoError(t, o.Submit(false, t0))
		return o
	}

	t.Run("pending then paid completes the order", func(t *testing.T) {
		o := submitted(t)
		require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))
		assert.ErrorIs(t, o.MarkPaymentPending("card", "pay_2", t0), ErrPaymentInProgress)

		require.NoError(t, o.MarkPaymentPaid(t0.Add(time.Minute)))
		assert.Equal(t, PaymentPaid, o.Payment.Status)
		assert.Equal(t, StatusCompleted, o.Status)
		require.NotNil(t, o.PaidAt)

		err := o.MarkPaymentPaid(t0.Add(2 * time.Minute))
		assert.ErrorIs(t, err, ErrPaymentAlreadyFinal)
		assert.Equal(t, t0.Add(time.Minute), *o.PaidAt)
	})

	t.Run("failed payment can be retried", func(t *testing.T) {
		o := submitted(t)
		require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))
		changed, err := o.MarkPaymentFailed(t0)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = o.MarkPaymentFailed(t0)
		require.NoError(t, err)
		assert.False(t, changed)

		require.NoError(t, o.MarkPaymentPending("card", "pay_2", t0))
		assert.Equal(t, "pay_2", o.Payment.Reference)
	})

	t.Run("cannot fail an unpaid order", func(t *testing.T) {
		o := submitted(t)
		_, err := o.MarkPaymentFailed(t0)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("reference required", func(t *testing.T) {
		o := submitted(t)
		assert.ErrorIs(t, o.MarkPaymentPending("card", "", t0), ErrInvalidReference)
	})

	t.Run("pending payment locks items", func(t *testing.T) {
		o := newTestOrder()
		_, err := o.AddItem(burger, 1, nil, t0)
		require.NoError(t, err)
		require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))
		_, err = o.AddItem(fries, 1, nil, t0)
		assert.ErrorIs(t, err, ErrOrderLocked)

		_, err = o.MarkPaymentFailed(t0)
		require.NoError(t, err)
		_, err = o.AddItem(fries, 1, nil, t0)
		assert.NoError(t, err)
	})
}

func TestApplyTip(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 2, nil, t0)
	require.NoError(t, err)

	require.NoError(t, o.ApplyTip(300))
	assert.Equal(t, money.Cents(2000+200+300), o.Total)
	assert.ErrorIs(t, o.ApplyTip(-1), ErrInvalidTip)

	require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))
	assert.ErrorIs(t, o.ApplyTip(100), ErrPaymentInProgress)
}

func TestTaxRateFrozenAfterSubmit(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)

	require.NoError(t, o.SetTaxRate(decimal.NewFromInt(20)))
	assert.Equal(t, money.Cents(200), o.Tax)

	require.NoError(t, o.Submit(false, t0))
	require.NoError(t, o.SetTaxRate(decimal.NewFromInt(5)))
	assert.Equal(t, money.Cents(200), o.Tax)
}

func TestTaxRateFrozenWhilePaymentPending(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, o.MarkPaymentPending("card", "pay_1", t0))

	require.NoError(t, o.SetTaxRate(decimal.NewFromInt(20)))
	assert.Equal(t, money.Cents(1100), o.Total)
}

func TestCompleteAndCancel(t *testing.T) {
	o := newTestOrder()
	assert.ErrorIs(t, o.Complete(t0), ErrInvalidTransition)

	_, err := o.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, o.Submit(false, t0))
	require.NoError(t, o.Complete(t0))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.ErrorIs(t, o.Cancel(t0), ErrInvalidTransition)

	c := newTestOrder()
	_, err = c.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, c.Submit(false, t0))
	require.NoError(t, c.Cancel(t0))
	assert.Equal(t, StatusCancelled, c.Status)
	assert.ErrorIs(t, c.MarkPaymentPending("card", "pay_1", t0), ErrInvalidTransition)

	p := newTestOrder()
	_, err = p.AddItem(burger, 1, nil, t0)
	require.NoError(t, err)
	require.NoError(t, p.MarkPaymentPending("card", "pay_1", t0))
	require.NoError(t, p.MarkPaymentPaid(t0))
	assert.ErrorIs(t, p.Cancel(t0), ErrPaymentAlreadyFinal)
}

func TestSnapshot(t *testing.T) {
	o := newTestOrder()
	_, err := o.AddItem(burger, 1, []AddonRef{cheese}, t0)
	require.NoError(t, err)

	s := o.Snapshot()
	assert.Equal(t, o.ID, s.ID)
	assert.Equal(t, "11.50", s.Subtotal)
	assert.Equal(t, "1.15", s.Tax)
	assert.Equal(t, "12.65", s.Total)
	require.Len(t, s.Items, 1)
	assert.Equal(t, "1.50", s.Items[0].Addons[0].Price)

	o.Items[0].Name = "changed"
	assert.Equal(t, "Burger", s.Items[0].Name)
}
