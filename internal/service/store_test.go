package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/payment"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

// memStore is an in-memory OrderStore. It enforces the same version check
// and one-building-order-per-table rule as the SQL schema.
type memStore struct {
	mu          sync.Mutex
	restaurants map[uuid.UUID]database.Restaurant
	tables      map[uuid.UUID]database.DiningTable
	menuItems   map[uuid.UUID]database.MenuItem
	addons      map[uuid.UUID]database.Addon
	orders      map[uuid.UUID]database.Order

	// updateConflicts makes the next n UpdateOrder calls fail as if another
	// writer got there first.
	updateConflicts int
	updates         int
}

func newMemStore() *memStore {
	return &memStore{
		restaurants: make(map[uuid.UUID]database.Restaurant),
		tables:      make(map[uuid.UUID]database.DiningTable),
		menuItems:   make(map[uuid.UUID]database.MenuItem),
		addons:      make(map[uuid.UUID]database.Addon),
		orders:      make(map[uuid.UUID]database.Order),
	}
}

func (m *memStore) GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return database.Restaurant{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) GetRestaurantByName(ctx context.Context, name string) (database.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.restaurants {
		if r.Name == name {
			return r, nil
		}
	}
	return database.Restaurant{}, pgx.ErrNoRows
}

func (m *memStore) GetTableByNumber(ctx context.Context, arg database.GetTableByNumberParams) (database.DiningTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tables {
		if t.RestaurantID == arg.RestaurantID && t.Number == arg.Number {
			return t, nil
		}
	}
	return database.DiningTable{}, pgx.ErrNoRows
}

func (m *memStore) GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.menuItems[arg.ID]
	if !ok || it.RestaurantID != arg.RestaurantID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (m *memStore) ListAddonsByIDs(ctx context.Context, arg database.ListAddonsByIDsParams) ([]database.Addon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []database.Addon{}
	for _, a := range m.addons {
		if a.RestaurantID == arg.RestaurantID && slices.Contains(arg.Ids, a.ID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) LockTable(ctx context.Context, tableID uuid.UUID) error { return nil }

func (m *memStore) filter(keep func(database.Order) bool) []database.Order {
	out := []database.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b database.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *memStore) GetBuildingOrder(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.filter(func(o database.Order) bool { return o.TableID == tableID && o.Status == "building" })
	if len(rows) == 0 {
		return database.Order{}, pgx.ErrNoRows
	}
	return rows[0], nil
}

func (m *memStore) GetLatestOutstandingOrder(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.filter(func(o database.Order) bool {
		return o.TableID == tableID && o.Status != "cancelled" && o.PaymentStatus != "paid" && string(o.Items) != "[]"
	})
	if len(rows) == 0 {
		return database.Order{}, pgx.ErrNoRows
	}
	return rows[len(rows)-1], nil
}

func (m *memStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.RestaurantID != arg.RestaurantID {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) ListOrdersBySession(ctx context.Context, arg database.ListOrdersBySessionParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(o database.Order) bool { return o.TableID == arg.TableID && o.SessionKey == arg.SessionKey }), nil
}

func (m *memStore) ListOrdersByTable(ctx context.Context, arg database.ListOrdersByTableParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.filter(func(o database.Order) bool { return o.TableID == arg.TableID })
	slices.Reverse(rows)
	if len(rows) > int(arg.Limit) {
		rows = rows[:arg.Limit]
	}
	return rows, nil
}

func (m *memStore) ListOrdersByPaymentReference(ctx context.Context, reference string) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(o database.Order) bool { return o.PaymentReference.String == reference }), nil
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.filter(func(o database.Order) bool {
		return o.RestaurantID == arg.RestaurantID &&
			(!arg.Status.Valid || o.Status == arg.Status.String) &&
			(!arg.PaymentStatus.Valid || o.PaymentStatus == arg.PaymentStatus.String) &&
			(!arg.TableNumber.Valid || o.TableNumber == arg.TableNumber.Int32)
	})
	slices.Reverse(rows)
	if int(arg.Offset) >= len(rows) {
		return []database.Order{}, nil
	}
	rows = rows[arg.Offset:]
	if len(rows) > int(arg.Limit) {
		rows = rows[:arg.Limit]
	}
	return rows, nil
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if arg.Status == "building" {
		for _, o := range m.orders {
			if o.TableID == arg.TableID && o.Status == "building" {
				return database.Order{}, database.ErrConflict
			}
		}
	}
	row := database.Order{
		ID:                arg.ID,
		RestaurantID:      arg.RestaurantID,
		TableID:           arg.TableID,
		TableNumber:       arg.TableNumber,
		SessionKey:        arg.SessionKey,
		Status:            arg.Status,
		PaymentStatus:     arg.PaymentStatus,
		PaymentMethod:     arg.PaymentMethod,
		PaymentReference:  arg.PaymentReference,
		ProviderReference: arg.ProviderReference,
		Items:             arg.Items,
		TaxRate:           arg.TaxRate,
		Subtotal:          arg.Subtotal,
		Tax:               arg.Tax,
		Tip:               arg.Tip,
		Total:             arg.Total,
		Version:           1,
		CreatedAt:         arg.CreatedAt,
		UpdatedAt:         arg.UpdatedAt,
		SubmittedAt:       arg.SubmittedAt,
		PaidAt:            arg.PaidAt,
	}
	m.orders[row.ID] = row
	return row, nil
}

func (m *memStore) UpdateOrder(ctx context.Context, arg database.UpdateOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateConflicts > 0 {
		m.updateConflicts--
		return database.Order{}, database.ErrConflict
	}
	row, ok := m.orders[arg.ID]
	if !ok || row.Version != arg.Version {
		return database.Order{}, database.ErrConflict
	}
	row.SessionKey = arg.SessionKey
	row.Status = arg.Status
	row.PaymentStatus = arg.PaymentStatus
	row.PaymentMethod = arg.PaymentMethod
	row.PaymentReference = arg.PaymentReference
	row.ProviderReference = arg.ProviderReference
	row.Items = arg.Items
	row.TaxRate = arg.TaxRate
	row.Subtotal = arg.Subtotal
	row.Tax = arg.Tax
	row.Tip = arg.Tip
	row.Total = arg.Total
	row.UpdatedAt = arg.UpdatedAt
	row.SubmittedAt = arg.SubmittedAt
	row.PaidAt = arg.PaidAt
	row.Version++
	m.orders[row.ID] = row
	return row, nil
}

func (m *memStore) GetOrderStats(ctx context.Context, arg database.GetOrderStatsParams) (database.GetOrderStatsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s database.GetOrderStatsRow
	for _, o := range m.orders {
		if o.RestaurantID != arg.RestaurantID || o.CreatedAt.Before(arg.From) || !o.CreatedAt.Before(arg.To) {
			continue
		}
		s.TotalOrders++
		switch o.Status {
		case "building":
			s.BuildingOrders++
		case "submitted":
			s.SubmittedOrders++
		case "completed":
			s.CompletedOrders++
		case "cancelled":
			s.CancelledOrders++
		}
		if o.PaymentStatus == "paid" {
			s.PaidOrders++
			s.Revenue += o.Total
			s.TaxCollected += o.Tax
			s.Tips += o.Tip
		}
	}
	return s, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// --- Fixtures ---

type fixture struct {
	store      *memStore
	restaurant database.Restaurant
	table      database.DiningTable
	burger     database.MenuItem
	fries      database.MenuItem
	cheese     database.Addon
	bacon      database.Addon
	ref        TableRef
}

func newFixture() *fixture {
	store := newMemStore()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	r := database.Restaurant{
		ID:              uuid.New(),
		Name:            "bistro",
		Currency:        "USD",
		TaxRate:         database.DecimalToNumeric(decimal.NewFromInt(10)),
		IsActive:        true,
		OrderingEnabled: true,
		PaymentEnabled:  true,
		TipsEnabled:     true,
		TipPercentages:  []int32{10, 15, 20},
		CreatedAt:       now,
	}
	t := database.DiningTable{ID: uuid.New(), RestaurantID: r.ID, Number: 5, Capacity: 4, IsAvailable: true, CreatedAt: now}
	burger := database.MenuItem{ID: uuid.New(), RestaurantID: r.ID, Name: "Burger", Price: 1000, IsAvailable: true}
	fries := database.MenuItem{ID: uuid.New(), RestaurantID: r.ID, Name: "Fries", Price: 500, IsAvailable: true}
	cheese := database.Addon{ID: uuid.New(), RestaurantID: r.ID, MenuItemID: pgtype.UUID{Bytes: burger.ID, Valid: true}, Name: "Cheese", Price: 150, IsAvailable: true}
	bacon := database.Addon{ID: uuid.New(), RestaurantID: r.ID, Name: "Bacon", Price: 200, IsAvailable: true}

	store.restaurants[r.ID] = r
	store.tables[t.ID] = t
	store.menuItems[burger.ID] = burger
	store.menuItems[fries.ID] = fries
	store.addons[cheese.ID] = cheese
	store.addons[bacon.ID] = bacon

	return &fixture{
		store:      store,
		restaurant: r,
		table:      t,
		burger:     burger,
		fries:      fries,
		cheese:     cheese,
		bacon:      bacon,
		ref:        TableRef{Restaurant: r.Name, TableNumber: t.Number},
	}
}

func (f *fixture) updateRestaurant(fn func(r *database.Restaurant)) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	r := f.store.restaurants[f.restaurant.ID]
	fn(&r)
	f.store.restaurants[r.ID] = r
	f.restaurant = r
}

// published is one Notifier call.
type published struct {
	restaurantID uuid.UUID
	eventType    string
	payload      any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(restaurantID uuid.UUID, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{restaurantID, eventType, payload})
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.eventType == eventType {
			c++
		}
	}
	return c
}

// stubGateway answers every request with resp or err.
type stubGateway struct {
	mu   sync.Mutex
	resp *payment.Response
	err  error
	reqs []payment.Request
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) InitiatePayment(ctx context.Context, req payment.Request) (*payment.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return nil, g.err
	}
	resp := *g.resp
	return &resp, nil
}

// clock hands out strictly increasing times so creation order is stable.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
