package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type menuEntry struct {
	name   string
	price  int64
	addons []addonEntry
}

type addonEntry struct {
	name  string
	price int64
}

var demoMenu = []menuEntry{
	{"Classic Burger", 1000, []addonEntry{{"Cheese", 150}, {"Bacon", 200}}},
	{"Fries", 500, []addonEntry{{"Truffle Oil", 250}}},
	{"Caesar Salad", 850, nil},
	{"Lemonade", 350, nil},
}

// generic addons apply to any menu item
var demoAddons = []addonEntry{{"Extra Sauce", 50}}

func main() {
	name := flag.String("restaurant", "", "Restaurant name (used in diner URLs)")
	email := flag.String("email", "", "Owner email address")
	password := flag.String("password", "", "Owner password")
	tables := flag.Int("tables", 10, "Number of tables to create")
	flag.Parse()

	if *name == "" {
		*name = envOr("SEED_RESTAURANT", "demo-bistro")
	}
	if *email == "" {
		*email = envOr("SEED_EMAIL", "owner@tabletap.local")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}

	log, err := logger.New(logger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if *password == "" {
		*password = "password123"
		log.Warn("using default password 'password123'; change it immediately outside development")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := database.Migrate(cfg.Database.URL); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// Seed in a transaction: everything or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("failed to begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := database.New(tx)
	restaurant, created, err := seedRestaurant(ctx, q, *name, cfg.Payment.Currency)
	if err != nil {
		log.Fatal("failed to seed restaurant", zap.Error(err))
	}
	if !created {
		log.Info("restaurant already exists, skipping", zap.String("name", *name), zap.Stringer("id", restaurant.ID))
		return
	}

	if err := seedTables(ctx, q, restaurant.ID, *tables); err != nil {
		log.Fatal("failed to seed tables", zap.Error(err))
	}
	if err := seedMenu(ctx, q, restaurant.ID); err != nil {
		log.Fatal("failed to seed menu", zap.Error(err))
	}
	owner, err := seedOwner(ctx, q, restaurant.ID, *email, *password)
	if err != nil {
		log.Fatal("failed to seed owner", zap.Error(err))
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("failed to commit", zap.Error(err))
	}

	log.Info("seed completed",
		zap.String("restaurant", restaurant.Name),
		zap.Stringer("restaurant_id", restaurant.ID),
		zap.Stringer("owner_id", owner.ID),
		zap.Int("tables", *tables),
		zap.String("diner_url", fmt.Sprintf("/r/%s/tables/1/order", restaurant.Name)),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedRestaurant creates the restaurant unless one with the same name exists.
func seedRestaurant(ctx context.Context, q *database.Queries, name, currency string) (database.Restaurant, bool, error) {
	existing, err := q.GetRestaurantByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.Restaurant{}, false, fmt.Errorf("check restaurant: %w", err)
	}

	r, err := q.CreateRestaurant(ctx, database.CreateRestaurantParams{
		Name:            name,
		Currency:        currency,
		TaxRate:         database.DecimalToNumeric(decimal.RequireFromString("8.25")),
		OrderingEnabled: true,
		PaymentEnabled:  true,
		TipsEnabled:     true,
		TipPercentages:  []int32{10, 15, 20},
	})
	if err != nil {
		return database.Restaurant{}, false, fmt.Errorf("insert restaurant: %w", err)
	}
	return r, true, nil
}

func seedTables(ctx context.Context, q *database.Queries, restaurantID uuid.UUID, n int) error {
	for i := 1; i <= n; i++ {
		capacity := int32(4)
		if i%3 == 0 {
			capacity = 6
		}
		if _, err := q.CreateTable(ctx, database.CreateTableParams{
			RestaurantID: restaurantID,
			Number:       int32(i),
			Capacity:     capacity,
		}); err != nil {
			return fmt.Errorf("insert table %d: %w", i, err)
		}
	}
	return nil
}

func seedMenu(ctx context.Context, q *database.Queries, restaurantID uuid.UUID) error {
	for _, m := range demoMenu {
		item, err := q.CreateMenuItem(ctx, database.CreateMenuItemParams{
			RestaurantID: restaurantID,
			Name:         m.name,
			Price:        m.price,
		})
		if err != nil {
			return fmt.Errorf("insert menu item %q: %w", m.name, err)
		}
		for _, a := range m.addons {
			if _, err := q.CreateAddon(ctx, database.CreateAddonParams{
				RestaurantID: restaurantID,
				MenuItemID:   pgtype.UUID{Bytes: item.ID, Valid: true},
				Name:         a.name,
				Price:        a.price,
			}); err != nil {
				return fmt.Errorf("insert addon %q: %w", a.name, err)
			}
		}
	}
	for _, a := range demoAddons {
		if _, err := q.CreateAddon(ctx, database.CreateAddonParams{
			RestaurantID: restaurantID,
			Name:         a.name,
			Price:        a.price,
		}); err != nil {
			return fmt.Errorf("insert addon %q: %w", a.name, err)
		}
	}
	return nil
}

func seedOwner(ctx context.Context, q *database.Queries, restaurantID uuid.UUID, email, password string) (database.StaffUser, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return database.StaffUser{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := q.CreateStaff(ctx, database.CreateStaffParams{
		RestaurantID: restaurantID,
		Email:        email,
		FullName:     "Owner",
		PasswordHash: string(hashed),
		Role:         enum.RoleOwner,
	})
	if err != nil {
		return database.StaffUser{}, fmt.Errorf("insert owner: %w", err)
	}
	return u, nil
}
