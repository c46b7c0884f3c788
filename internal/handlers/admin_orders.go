package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/platform/auth"
	"github.com/shopstream/api/internal/platform/httpx"
	"github.com/shopstream/api/internal/services"
)

// AdminOrderHandlers exposes staff-only order management endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/orders", func(orders chi.Router) {
		orders.Get("/", h.listOrders)
		orders.Get("/stats", h.getStatistics)
		orders.Get("/{orderID}", h.getOrder)
		orders.Post("/{orderID}/status", h.updateStatus)
		orders.Post("/{orderID}/tracking", h.addTracking)
		orders.Post("/{orderID}/payment:complete", h.completePayment)
		orders.Post("/{orderID}/refund", h.processRefund)
	})
}

type updateStatusRequest struct {
	Status       string `json:"status"`
	InternalNote string `json:"internal_note"`
}

type addTrackingRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

type completePaymentRequest struct {
	TransactionID string `json:"transaction_id"`
}

type processRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w, h.orders); !ok {
		return
	}

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page, query.Page, query.PageSize, true))
}

func (h *AdminOrderHandlers) getStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w, h.orders); !ok {
		return
	}

	var dateRange services.DateRange
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	stats, err := h.orders.GetStatistics(ctx, dateRange)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildStatisticsPayload(stats))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w, h.orders); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req updateStatusRequest
	if !decodeAdminRequest(ctx, w, r, orderID, &req) {
		return
	}

	status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.Status)))
	if !domain.ValidOrderStatus(status) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: status,
		InternalNote: strings.TrimSpace(req.InternalNote),
		ActorID:      strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

func (h *AdminOrderHandlers) addTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req addTrackingRequest
	if !decodeAdminRequest(ctx, w, r, orderID, &req) {
		return
	}

	order, err := h.orders.AddTracking(ctx, services.AddTrackingCommand{
		OrderID:        orderID,
		Carrier:        strings.TrimSpace(req.Carrier),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		TrackingURL:    strings.TrimSpace(req.TrackingURL),
		ActorID:        strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

func (h *AdminOrderHandlers) completePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req completePaymentRequest
	if !decodeAdminRequest(ctx, w, r, orderID, &req) {
		return
	}

	order, err := h.orders.MarkPaymentCompleted(ctx, services.MarkPaymentCompletedCommand{
		OrderID:       orderID,
		TransactionID: strings.TrimSpace(req.TransactionID),
		ActorID:       strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

func (h *AdminOrderHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req processRefundRequest
	if !decodeAdminRequest(ctx, w, r, orderID, &req) {
		return
	}

	order, err := h.orders.ProcessRefund(ctx, services.ProcessRefundCommand{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, true)})
}

// decodeAdminRequest validates the order id and decodes the JSON body into dst.
// It writes the error response and returns false when the request is unusable.
func decodeAdminRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, orderID string, dst any) bool {
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return false
	}
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}
