package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/middleware"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/service"
	"go.uber.org/zap"
)

// StaffServicer defines the service methods needed by staff handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type StaffServicer interface {
	GetOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	ListOrders(ctx context.Context, restaurantID uuid.UUID, f service.ListFilter) ([]*order.Order, error)
	CompleteOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	CancelOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*order.Order, error)
	ConfirmPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
	FailPayment(ctx context.Context, restaurantID uuid.UUID, reference string) (*service.PaymentResult, error)
	Stats(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (*service.Stats, error)
}

// StaffHandler serves the restaurant back office: the live order list,
// manual state changes and counter payments.
type StaffHandler struct {
	svc StaffServicer
	log *zap.Logger
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(svc StaffServicer, log *zap.Logger) *StaffHandler {
	return &StaffHandler{svc: svc, log: log}
}

// RegisterRoutes registers staff endpoints.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}
func (h *StaffHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleOwner, enum.RoleManager, enum.RoleStaff))
		r.Post("/orders/{id}/complete", h.Complete)
		r.Post("/orders/{id}/cancel", h.Cancel)
		r.Post("/payments/{reference}/confirm", h.ConfirmPayment)
		r.Post("/payments/{reference}/fail", h.FailPayment)
	})

	r.With(middleware.RequireRole(enum.RoleOwner, enum.RoleManager)).Get("/stats", h.Stats)
}

// --- Response types ---

type listResponse struct {
	Orders []order.Snapshot `json:"orders"`
	Limit  int32            `json:"limit"`
	Offset int32            `json:"offset"`
}

type statsResponse struct {
	service.Stats
	Revenue      string `json:"revenue"`
	TaxCollected string `json:"tax_collected"`
	Tips         string `json:"tips"`
}

// --- Helpers ---

func restaurantID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "rid"))
}

func (h *StaffHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	rid, err := restaurantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return rid, id, true
}

func parseListFilter(r *http.Request) (service.ListFilter, error) {
	q := r.URL.Query()
	f := service.ListFilter{Limit: 50}

	if s := q.Get("status"); s != "" {
		st := order.Status(s)
		if !st.Valid() {
			return f, fmt.Errorf("invalid status %q", s)
		}
		f.Status = st
	}
	if s := q.Get("payment_status"); s != "" {
		ps := order.PaymentStatus(s)
		if !ps.Valid() {
			return f, fmt.Errorf("invalid payment_status %q", s)
		}
		f.PaymentStatus = ps
	}
	if s := q.Get("table"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid table %q", s)
		}
		t := int32(n)
		f.TableNumber = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 1 || n > 200 {
			return f, fmt.Errorf("limit must be between 1 and 200")
		}
		f.Limit = int32(n)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", s)
		}
		f.Offset = int32(n)
	}
	return f, nil
}

// parseDateRange reads from/to (YYYY-MM-DD, UTC). to is inclusive on the
// wire and exclusive in the returned range. Defaults to the last 30 days.
func parseDateRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := today.AddDate(0, 0, -30)
	to := today.AddDate(0, 0, 1)

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
		to = t.AddDate(0, 0, 1)
	}
	return from, to, nil
}

// --- Handlers ---

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	f, err := parseListFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), rid, f)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := listResponse{Orders: make([]order.Snapshot, len(orders)), Limit: f.Limit, Offset: f.Offset}
	for i, o := range orders {
		resp.Orders[i] = o.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StaffHandler) Get(w http.ResponseWriter, r *http.Request) {
	rid, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), rid, id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *StaffHandler) Complete(w http.ResponseWriter, r *http.Request) {
	rid, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	o, err := h.svc.CompleteOrder(r.Context(), rid, id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *StaffHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rid, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	o, err := h.svc.CancelOrder(r.Context(), rid, id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil {
		h.log.Info("order cancelled by staff",
			zap.Stringer("order_id", o.ID),
			zap.Stringer("staff_id", claims.UserID),
		)
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

// ConfirmPayment records a payment taken at the counter (cash, card
// terminal) for a pending reference.
func (h *StaffHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	res, err := h.svc.ConfirmPayment(r.Context(), rid, chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(res))
}

func (h *StaffHandler) FailPayment(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	res, err := h.svc.FailPayment(r.Context(), rid, chi.URLParam(r, "reference"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if res == nil {
		// already failed
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(res))
}

func (h *StaffHandler) Stats(w http.ResponseWriter, r *http.Request) {
	rid, err := restaurantID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}
	from, to, err := parseDateRange(r, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	stats, err := h.svc.Stats(r.Context(), rid, from, to)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:        *stats,
		Revenue:      money.Format(stats.Revenue),
		TaxCollected: money.Format(stats.TaxCollected),
		Tips:         money.Format(stats.Tips),
	})
}
