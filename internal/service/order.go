// Package service is the order engine: it serializes every mutation of a
// table's orders, persists the result and publishes snapshots to the
// real-time feed once the write has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/metrics"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/payment"
	"go.uber.org/zap"
)

const (
	defaultMaxConflictRetries = 3
	defaultHistoryLimit       = 200
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the engine needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	GetRestaurantByName(ctx context.Context, name string) (database.Restaurant, error)
	GetTableByNumber(ctx context.Context, arg database.GetTableByNumberParams) (database.DiningTable, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	ListAddonsByIDs(ctx context.Context, arg database.ListAddonsByIDsParams) ([]database.Addon, error)

	LockTable(ctx context.Context, tableID uuid.UUID) error
	GetBuildingOrder(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	GetLatestOutstandingOrder(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrdersBySession(ctx context.Context, arg database.ListOrdersBySessionParams) ([]database.Order, error)
	ListOrdersByTable(ctx context.Context, arg database.ListOrdersByTableParams) ([]database.Order, error)
	ListOrdersByPaymentReference(ctx context.Context, reference string) ([]database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpdateOrder(ctx context.Context, arg database.UpdateOrderParams) (database.Order, error)
	GetOrderStats(ctx context.Context, arg database.GetOrderStatsParams) (database.GetOrderStatsRow, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// Notifier receives order snapshots after every committed change.
// Implementations must not block.
type Notifier interface {
	Publish(restaurantID uuid.UUID, eventType string, payload any)
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	MaxConflictRetries int
	HistoryLimit       int32
}

// OrderService handles the order lifecycle for every table.
type OrderService struct {
	pool     TxBeginner
	reader   OrderStore
	newStore NewOrderStore
	gateway  payment.Gateway
	ledger   payment.Ledger
	notifier Notifier
	guard    *TableGuard
	log      *zap.Logger
	now      func() time.Time

	maxRetries   int
	historyLimit int32
}

// NewOrderService creates a new OrderService. reader serves the lock-free
// read paths; writes always go through a transaction from pool.
func NewOrderService(
	pool TxBeginner,
	reader OrderStore,
	newStore NewOrderStore,
	gateway payment.Gateway,
	ledger payment.Ledger,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) *OrderService {
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = defaultMaxConflictRetries
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &OrderService{
		pool:         pool,
		reader:       reader,
		newStore:     newStore,
		gateway:      gateway,
		ledger:       ledger,
		notifier:     notifier,
		guard:        NewTableGuard(),
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		maxRetries:   opts.MaxConflictRetries,
		historyLimit: opts.HistoryLimit,
	}
}

// TableRef addresses a table the way diners do: by restaurant name and the
// number printed on the table.
type TableRef struct {
	Restaurant  string
	TableNumber int32
}

// TableView is the diner's view of a table: the order being built (nil if
// none) and the unpaid session it belongs to.
type TableView struct {
	Restaurant database.Restaurant
	Table      database.DiningTable
	Building   *order.Order
	Session    order.Session
}

// AddItemRequest is the validated input for adding a menu item.
type AddItemRequest struct {
	MenuItemID uuid.UUID
	Quantity   int
	AddonIDs   []uuid.UUID
}

// event is a notification queued during a transaction and published after
// it commits.
type event struct {
	restaurantID uuid.UUID
	eventType    string
	payload      any
}

// --- Serialization ---

// withTable runs fn as one serialized read-modify-write against tableID's
// orders: in-process guard, then a transaction holding the table's advisory
// lock. Conflicts re-run fn from scratch, so fn must rebuild its results on
// every call.
func (s *OrderService) withTable(ctx context.Context, op string, tableID uuid.UUID, fn func(ctx context.Context, store OrderStore) error) error {
	unlock, err := s.guard.Lock(ctx, tableID)
	if err != nil {
		return fmt.Errorf("wait for table: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, func(ctx context.Context, store OrderStore) error {
			if err := store.LockTable(ctx, tableID); err != nil {
				return fmt.Errorf("lock table: %w", err)
			}
			return fn(ctx, store)
		})
		if err == nil || !database.IsConflict(err) {
			return err
		}
		if attempt >= s.maxRetries {
			s.log.Warn("giving up after write conflicts",
				zap.String("operation", op),
				zap.Stringer("table_id", tableID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return order.ErrConcurrencyConflict
		}
		metrics.ConflictRetries.WithLabelValues(op).Inc()
		s.log.Warn("write conflict, retrying",
			zap.String("operation", op),
			zap.Stringer("table_id", tableID),
			zap.Int("attempt", attempt),
		)
	}
}

func (s *OrderService) runTx(ctx context.Context, fn func(ctx context.Context, store OrderStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, s.newStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// save persists o and refreshes its version from the stored row.
func save(ctx context.Context, store OrderStore, o *order.Order, isNew bool) error {
	var (
		row database.Order
		err error
	)
	if isNew {
		params, perr := createParams(o)
		if perr != nil {
			return perr
		}
		row, err = store.CreateOrder(ctx, params)
	} else {
		params, perr := updateParams(o)
		if perr != nil {
			return perr
		}
		row, err = store.UpdateOrder(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	o.Version = row.Version
	return nil
}

func (s *OrderService) publish(events []event) {
	for _, e := range events {
		s.notifier.Publish(e.restaurantID, e.eventType, e.payload)
	}
}

// --- Reference data ---

func (s *OrderService) resolveTable(ctx context.Context, ref TableRef) (database.Restaurant, database.DiningTable, error) {
	restaurant, err := s.reader.GetRestaurantByName(ctx, ref.Restaurant)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !restaurant.IsActive) {
		return database.Restaurant{}, database.DiningTable{}, order.ErrRestaurantNotFound
	}
	if err != nil {
		return database.Restaurant{}, database.DiningTable{}, fmt.Errorf("get restaurant: %w", err)
	}

	table, err := s.reader.GetTableByNumber(ctx, database.GetTableByNumberParams{
		RestaurantID: restaurant.ID,
		Number:       ref.TableNumber,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Restaurant{}, database.DiningTable{}, order.ErrTableNotFound
	}
	if err != nil {
		return database.Restaurant{}, database.DiningTable{}, fmt.Errorf("get table: %w", err)
	}
	return restaurant, table, nil
}

// resolveForOrdering is resolveTable plus the checks every diner mutation
// needs.
func (s *OrderService) resolveForOrdering(ctx context.Context, ref TableRef) (database.Restaurant, database.DiningTable, error) {
	restaurant, table, err := s.resolveTable(ctx, ref)
	if err != nil {
		return restaurant, table, err
	}
	if !table.IsAvailable {
		return restaurant, table, order.ErrTableUnavailable
	}
	if !restaurant.OrderingEnabled {
		return restaurant, table, order.ErrOrderingDisabled
	}
	return restaurant, table, nil
}

func (s *OrderService) menuItem(ctx context.Context, restaurantID uuid.UUID, req AddItemRequest) (order.MenuItemRef, []order.AddonRef, error) {
	item, err := s.reader.GetMenuItem(ctx, database.GetMenuItemParams{ID: req.MenuItemID, RestaurantID: restaurantID})
	if errors.Is(err, pgx.ErrNoRows) {
		return order.MenuItemRef{}, nil, order.ErrMenuItemNotFound
	}
	if err != nil {
		return order.MenuItemRef{}, nil, fmt.Errorf("get menu item: %w", err)
	}
	ref := order.MenuItemRef{
		ID:        item.ID,
		Name:      item.Name,
		Price:     money.Cents(item.Price),
		Available: item.IsAvailable,
	}
	if len(req.AddonIDs) == 0 {
		return ref, nil, nil
	}

	rows, err := s.reader.ListAddonsByIDs(ctx, database.ListAddonsByIDsParams{RestaurantID: restaurantID, Ids: req.AddonIDs})
	if err != nil {
		return order.MenuItemRef{}, nil, fmt.Errorf("list addons: %w", err)
	}
	byID := make(map[uuid.UUID]database.Addon, len(rows))
	for _, a := range rows {
		byID[a.ID] = a
	}

	// Duplicates are kept so AddItem can reject them.
	addons := make([]order.AddonRef, 0, len(req.AddonIDs))
	for _, id := range req.AddonIDs {
		a, ok := byID[id]
		if !ok {
			return order.MenuItemRef{}, nil, order.ErrInvalidAddon.WithMessage("addon %s not found", id)
		}
		if a.MenuItemID.Valid && uuid.UUID(a.MenuItemID.Bytes) != item.ID {
			return order.MenuItemRef{}, nil, order.ErrInvalidAddon.WithMessage("addon %q does not belong to %q", a.Name, item.Name)
		}
		if !a.IsAvailable {
			return order.MenuItemRef{}, nil, order.ErrInvalidAddon.WithMessage("addon %q is unavailable", a.Name)
		}
		addons = append(addons, order.AddonRef{ID: a.ID, Name: a.Name, Price: money.Cents(a.Price)})
	}
	return ref, addons, nil
}

// --- Loading ---

// buildingOrder loads the table's building order, or nil.
func buildingOrder(ctx context.Context, store OrderStore, tableID uuid.UUID) (*order.Order, error) {
	row, err := store.GetBuildingOrder(ctx, tableID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get building order: %w", err)
	}
	return toOrder(row)
}

// activeSessionKey is the key a new building order joins: the key of the
// table's latest unpaid round, or "" when there is none.
func activeSessionKey(ctx context.Context, store OrderStore, tableID uuid.UUID) (string, error) {
	row, err := store.GetLatestOutstandingOrder(ctx, tableID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get outstanding order: %w", err)
	}
	return row.SessionKey, nil
}

func sessionOrders(ctx context.Context, store OrderStore, tableID uuid.UUID, key string) ([]*order.Order, error) {
	rows, err := store.ListOrdersBySession(ctx, database.ListOrdersBySessionParams{TableID: tableID, SessionKey: key})
	if err != nil {
		return nil, fmt.Errorf("list session orders: %w", err)
	}
	return toOrders(rows)
}

// checkLineOwner fails with ErrOrderLocked when lineID is not in the
// building order but belongs to another of the table's orders.
func (s *OrderService) checkLineOwner(ctx context.Context, store OrderStore, tableID uuid.UUID, building *order.Order, lineID uuid.UUID, transition string) error {
	if building != nil {
		if _, ok := building.Item(lineID); ok {
			return nil
		}
	}
	rows, err := store.ListOrdersByTable(ctx, database.ListOrdersByTableParams{TableID: tableID, Limit: s.historyLimit})
	if err != nil {
		return fmt.Errorf("list table orders: %w", err)
	}
	orders, err := toOrders(rows)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if _, ok := o.Item(lineID); ok {
			return o.LockedError(transition)
		}
	}
	return nil
}

func outstanding(orders []*order.Order) []*order.Order {
	var out []*order.Order
	for _, o := range orders {
		if o.Outstanding() {
			out = append(out, o)
		}
	}
	return out
}

// --- Diner reads ---

// CurrentOrder returns the table's building order and unpaid session. It
// does not take the table lock.
func (s *OrderService) CurrentOrder(ctx context.Context, ref TableRef) (*TableView, error) {
	restaurant, table, err := s.resolveTable(ctx, ref)
	if err != nil {
		return nil, err
	}

	building, err := buildingOrder(ctx, s.reader, table.ID)
	if err != nil {
		return nil, err
	}

	key := ""
	if building != nil && len(building.Items) > 0 {
		key = building.SessionKey
	} else if key, err = activeSessionKey(ctx, s.reader, table.ID); err != nil {
		return nil, err
	}

	view := &TableView{Restaurant: restaurant, Table: table, Building: building}
	if key == "" {
		view.Session = order.BuildSession("", nil)
		return view, nil
	}
	orders, err := sessionOrders(ctx, s.reader, table.ID, key)
	if err != nil {
		return nil, err
	}
	view.Session = order.BuildSession(key, outstanding(orders))
	return view, nil
}

// History groups the table's recent orders into sessions, newest first. A
// non-nil paid keeps only paid or only unpaid sessions.
func (s *OrderService) History(ctx context.Context, ref TableRef, paid *bool) ([]order.Session, error) {
	_, table, err := s.resolveTable(ctx, ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.reader.ListOrdersByTable(ctx, database.ListOrdersByTableParams{TableID: table.ID, Limit: s.historyLimit})
	if err != nil {
		return nil, fmt.Errorf("list table orders: %w", err)
	}
	orders, err := toOrders(rows)
	if err != nil {
		return nil, err
	}
	return order.GroupSessions(orders, paid), nil
}

// --- Diner mutations ---

// AddItem adds a menu item to the table's building order, creating the
// order on first use.
func (s *OrderService) AddItem(ctx context.Context, ref TableRef, req AddItemRequest) (*order.Order, error) {
	restaurant, table, err := s.resolveForOrdering(ctx, ref)
	if err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, order.ErrInvalidQuantity
	}
	item, addons, err := s.menuItem(ctx, restaurant.ID, req)
	if err != nil {
		return nil, err
	}
	taxRate := database.NumericToDecimal(restaurant.TaxRate)

	var result *order.Order
	err = s.withTable(ctx, "add_item", table.ID, func(ctx context.Context, store OrderStore) error {
		now := s.now()
		o, err := buildingOrder(ctx, store, table.ID)
		if err != nil {
			return err
		}
		isNew := o == nil
		if isNew {
			key, err := activeSessionKey(ctx, store, table.ID)
			if err != nil {
				return err
			}
			if key == "" {
				key = order.NewSessionKey()
			}
			o = order.New(restaurant.ID, table.ID, table.Number, key, taxRate, now)
		} else if err := o.SetTaxRate(taxRate); err != nil {
			return err
		}

		if _, err := o.AddItem(item, req.Quantity, addons, now); err != nil {
			return err
		}
		if err := save(ctx, store, o, isNew); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("add_item", result)
	s.publish([]event{{result.RestaurantID, enum.EventOrderUpdated, result.Snapshot()}})
	return result, nil
}

// SetItemQuantity overwrites a line item's quantity; zero removes it.
func (s *OrderService) SetItemQuantity(ctx context.Context, ref TableRef, lineID uuid.UUID, quantity int) (*order.Order, error) {
	restaurant, table, err := s.resolveForOrdering(ctx, ref)
	if err != nil {
		return nil, err
	}
	taxRate := database.NumericToDecimal(restaurant.TaxRate)

	var result *order.Order
	err = s.withTable(ctx, "set_quantity", table.ID, func(ctx context.Context, store OrderStore) error {
		o, err := buildingOrder(ctx, store, table.ID)
		if err != nil {
			return err
		}
		if err := s.checkLineOwner(ctx, store, table.ID, o, lineID, "change quantity"); err != nil {
			return err
		}
		if o == nil {
			return order.ErrLineItemNotFound
		}
		if err := o.SetTaxRate(taxRate); err != nil {
			return err
		}
		if err := o.SetQuantity(lineID, quantity, s.now()); err != nil {
			return err
		}
		if err := save(ctx, store, o, false); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("set_quantity", result)
	s.publish([]event{{result.RestaurantID, enum.EventOrderUpdated, result.Snapshot()}})
	return result, nil
}

// RemoveItem deletes a line item. Removing an item found in no order of the
// table succeeds without changing anything; the returned order is nil when
// the table has no building order. Items of submitted or settled orders
// fail with ErrOrderLocked.
func (s *OrderService) RemoveItem(ctx context.Context, ref TableRef, lineID uuid.UUID) (*order.Order, error) {
	restaurant, table, err := s.resolveForOrdering(ctx, ref)
	if err != nil {
		return nil, err
	}
	taxRate := database.NumericToDecimal(restaurant.TaxRate)

	var (
		result  *order.Order
		changed bool
	)
	err = s.withTable(ctx, "remove_item", table.ID, func(ctx context.Context, store OrderStore) error {
		result, changed = nil, false
		o, err := buildingOrder(ctx, store, table.ID)
		if err != nil {
			return err
		}
		if err := s.checkLineOwner(ctx, store, table.ID, o, lineID, "remove item"); err != nil || o == nil {
			return err
		}
		result = o
		removed, err := o.RemoveItem(lineID, s.now())
		if err != nil || !removed {
			return err
		}
		if err := o.SetTaxRate(taxRate); err != nil {
			return err
		}
		changed = true
		return save(ctx, store, o, false)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordTransition("remove_item", result)
		s.publish([]event{{result.RestaurantID, enum.EventOrderUpdated, result.Snapshot()}})
	}
	return result, nil
}

// Submit sends the building order to the kitchen. The next AddItem starts a
// new round under the same session.
func (s *OrderService) Submit(ctx context.Context, ref TableRef) (*order.Order, error) {
	restaurant, table, err := s.resolveForOrdering(ctx, ref)
	if err != nil {
		return nil, err
	}
	taxRate := database.NumericToDecimal(restaurant.TaxRate)

	var result *order.Order
	err = s.withTable(ctx, "submit", table.ID, func(ctx context.Context, store OrderStore) error {
		o, err := buildingOrder(ctx, store, table.ID)
		if err != nil {
			return err
		}
		if o == nil {
			return order.ErrEmptyOrder
		}
		// Tax is frozen at submission with the rate in effect now.
		if err := o.SetTaxRate(taxRate); err != nil {
			return err
		}
		if err := o.Submit(restaurant.RequirePaymentBeforeOrder, s.now()); err != nil {
			return err
		}
		if err := save(ctx, store, o, false); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition("submit", result)
	s.publish([]event{{result.RestaurantID, enum.EventOrderSubmitted, result.Snapshot()}})
	return result, nil
}

func (s *OrderService) recordTransition(op string, o *order.Order) {
	metrics.OrderTransitions.WithLabelValues(op).Inc()
	s.log.Info("order updated",
		zap.String("operation", op),
		zap.Stringer("order_id", o.ID),
		zap.Int32("table_number", o.TableNumber),
		zap.String("status", string(o.Status)),
		zap.String("payment_status", string(o.Payment.Status)),
		zap.Int32("version", o.Version),
	)
}
