package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/handler"
	"github.com/tabletap/api/internal/logger"
	"github.com/tabletap/api/internal/metrics"
	mw "github.com/tabletap/api/internal/middleware"
	"github.com/tabletap/api/internal/service"
	"github.com/tabletap/api/internal/ws"
	"go.uber.org/zap"
)

// New creates a Chi router with all application routes wired up.
// Diner and webhook routes are public; staff routes are authenticated,
// restaurant-scoped and role-checked.
func New(
	cfg *config.Config,
	queries *database.Queries,
	pool *pgxpool.Pool,
	orders *service.OrderService,
	hub *ws.Hub,
	log *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(mw.Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.SignatureHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(ctx); err != nil {
			log.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	authHandler := handler.NewAuthHandler(queries, auth.Issuer{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}, log.Named("auth"))
	authHandler.RegisterRoutes(r)

	// Diner routes (public, addressed by QR code)
	dinerHandler := handler.NewDinerHandler(orders, log.Named("diner"))
	r.Route("/r/{restaurant}/tables/{table}", dinerHandler.RegisterRoutes)

	// Payment provider callbacks (authenticated by signature)
	webhookHandler := handler.NewWebhookHandler(orders, cfg.Payment.WebhookSecret, log.Named("webhook"))
	webhookHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/restaurants/{rid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWT.Secret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWT.Secret))

		r.Route("/restaurants/{rid}", func(r chi.Router) {
			r.Use(mw.RequireRestaurant)
			r.Use(mw.RequireRole(enum.RoleOwner, enum.RoleManager, enum.RoleStaff, enum.RoleKitchen))

			staffHandler := handler.NewStaffHandler(orders, log.Named("staff"))
			staffHandler.RegisterRoutes(r)
		})
	})

	log.Info("router initialized")
	return r
}
