package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/money"
	"github.com/tabletap/api/internal/order"
	"github.com/tabletap/api/internal/service"
	"go.uber.org/zap"
)

// DinerServicer defines the service methods needed by diner handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type DinerServicer interface {
	CurrentOrder(ctx context.Context, ref service.TableRef) (*service.TableView, error)
	AddItem(ctx context.Context, ref service.TableRef, req service.AddItemRequest) (*order.Order, error)
	SetItemQuantity(ctx context.Context, ref service.TableRef, lineID uuid.UUID, quantity int) (*order.Order, error)
	RemoveItem(ctx context.Context, ref service.TableRef, lineID uuid.UUID) (*order.Order, error)
	Submit(ctx context.Context, ref service.TableRef) (*order.Order, error)
	InitiatePayment(ctx context.Context, ref service.TableRef, req service.PaymentRequest) (*service.PaymentResult, error)
	History(ctx context.Context, ref service.TableRef, paid *bool) ([]order.Session, error)
}

// DinerHandler serves the public per-table ordering endpoints. Diners are
// addressed by restaurant name and table number, as printed on the QR code.
type DinerHandler struct {
	svc DinerServicer
	log *zap.Logger
}

// NewDinerHandler creates a new DinerHandler.
func NewDinerHandler(svc DinerServicer, log *zap.Logger) *DinerHandler {
	return &DinerHandler{svc: svc, log: log}
}

// RegisterRoutes registers diner endpoints.
// Expected to be mounted at /r/{restaurant}/tables/{table}
func (h *DinerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/order", h.GetOrder)
	r.Post("/order/items", h.AddItem)
	r.Patch("/order/items/{itemID}", h.SetQuantity)
	r.Delete("/order/items/{itemID}", h.RemoveItem)
	r.Post("/order/submit", h.Submit)
	r.Post("/payments", h.Pay)
	r.Get("/history", h.History)
}

// --- Request / Response types ---

type addItemRequest struct {
	MenuItemID string   `json:"menu_item_id"`
	Quantity   *int     `json:"quantity"`
	AddonIDs   []string `json:"addon_ids"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type paymentRequest struct {
	Method     string `json:"method"`
	TipPercent int32  `json:"tip_percent"`
	Tip        string `json:"tip"`
}

type restaurantResponse struct {
	Name                      string  `json:"name"`
	Currency                  string  `json:"currency"`
	TaxRate                   string  `json:"tax_rate"`
	OrderingEnabled           bool    `json:"ordering_enabled"`
	PaymentEnabled            bool    `json:"payment_enabled"`
	RequirePaymentBeforeOrder bool    `json:"require_payment_before_order"`
	TipsEnabled               bool    `json:"tips_enabled"`
	TipPercentages            []int32 `json:"tip_percentages"`
}

type tableResponse struct {
	Restaurant  restaurantResponse    `json:"restaurant"`
	TableNumber int32                 `json:"table_number"`
	Order       *order.Snapshot       `json:"order"`
	Session     order.SessionSnapshot `json:"session"`
}

type paymentResponse struct {
	Reference     string              `json:"reference"`
	Amount        string              `json:"amount"`
	Currency      string              `json:"currency,omitempty"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	Orders        []order.Snapshot    `json:"orders"`
}

type historyResponse struct {
	Sessions []order.SessionSnapshot `json:"sessions"`
}

func toRestaurantResponse(r database.Restaurant) restaurantResponse {
	tips := r.TipPercentages
	if tips == nil {
		tips = []int32{}
	}
	return restaurantResponse{
		Name:                      r.Name,
		Currency:                  r.Currency,
		TaxRate:                   database.NumericToDecimal(r.TaxRate).String(),
		OrderingEnabled:           r.OrderingEnabled,
		PaymentEnabled:            r.PaymentEnabled,
		RequirePaymentBeforeOrder: r.RequirePaymentBeforeOrder,
		TipsEnabled:               r.TipsEnabled,
		TipPercentages:            tips,
	}
}

func toPaymentResponse(res *service.PaymentResult) paymentResponse {
	snaps := make([]order.Snapshot, len(res.Orders))
	for i, o := range res.Orders {
		snaps[i] = o.Snapshot()
	}
	return paymentResponse{
		Reference:     res.Reference,
		Amount:        money.Format(res.Amount),
		Currency:      res.Currency,
		PaymentStatus: res.Status,
		RedirectURL:   res.RedirectURL,
		Orders:        snaps,
	}
}

// --- Helpers ---

func tableRef(r *http.Request) (service.TableRef, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "restaurant"))
	if err != nil || name == "" {
		return service.TableRef{}, false
	}
	n, err := strconv.ParseInt(chi.URLParam(r, "table"), 10, 32)
	if err != nil || n < 1 {
		return service.TableRef{}, false
	}
	return service.TableRef{Restaurant: name, TableNumber: int32(n)}, true
}

func (h *DinerHandler) writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	if o == nil {
		writeJSON(w, status, map[string]any{"order": nil})
		return
	}
	snap := o.Snapshot()
	writeJSON(w, status, map[string]any{"order": snap})
}

// --- Handlers ---

// GetOrder returns the table's building order and its unpaid session.
func (h *DinerHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}

	view, err := h.svc.CurrentOrder(r.Context(), ref)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := tableResponse{
		Restaurant:  toRestaurantResponse(view.Restaurant),
		TableNumber: view.Table.Number,
		Session:     view.Session.Snapshot(),
	}
	if view.Building != nil {
		snap := view.Building.Snapshot()
		resp.Order = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *DinerHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	menuItemID, err := uuid.Parse(req.MenuItemID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_item_id"})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	addonIDs := make([]uuid.UUID, 0, len(req.AddonIDs))
	for _, s := range req.AddonIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid addon id: " + s})
			return
		}
		addonIDs = append(addonIDs, id)
	}

	o, err := h.svc.AddItem(r.Context(), ref, service.AddItemRequest{
		MenuItemID: menuItemID,
		Quantity:   quantity,
		AddonIDs:   addonIDs,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *DinerHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity is required"})
		return
	}
	if *req.Quantity < 0 {
		writeServiceError(w, h.log, order.ErrInvalidQuantity)
		return
	}

	o, err := h.svc.SetItemQuantity(r.Context(), ref, lineID, *req.Quantity)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// RemoveItem is idempotent: removing an item that is already gone is 200.
func (h *DinerHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	o, err := h.svc.RemoveItem(r.Context(), ref, lineID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

func (h *DinerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}

	o, err := h.svc.Submit(r.Context(), ref)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	h.writeOrder(w, http.StatusOK, o)
}

// Pay starts payment of the table's outstanding session.
func (h *DinerHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "method is required"})
		return
	}
	var tip money.Cents
	if req.Tip != "" {
		var err error
		if tip, err = money.Parse(req.Tip); err != nil {
			writeServiceError(w, h.log, order.ErrInvalidTip.WithMessage("invalid tip %q", req.Tip))
			return
		}
	}

	res, err := h.svc.InitiatePayment(r.Context(), ref, service.PaymentRequest{
		Method:     req.Method,
		TipPercent: req.TipPercent,
		Tip:        tip,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	status := http.StatusAccepted
	if res.Status == order.PaymentPaid {
		status = http.StatusOK
	}
	writeJSON(w, status, toPaymentResponse(res))
}

// History lists the table's sessions, newest first. ?paid=true|false
// narrows to paid or unpaid sessions.
func (h *DinerHandler) History(w http.ResponseWriter, r *http.Request) {
	ref, ok := tableRef(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant or table"})
		return
	}

	var paid *bool
	if v := r.URL.Query().Get("paid"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "paid must be true or false"})
			return
		}
		paid = &b
	}

	sessions, err := h.svc.History(r.Context(), ref, paid)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	resp := historyResponse{Sessions: make([]order.SessionSnapshot, len(sessions))}
	for i, s := range sessions {
		resp.Sessions[i] = s.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}
