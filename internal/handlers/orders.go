package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/platform/auth"
	"github.com/shopstream/api/internal/platform/httpx"
	"github.com/shopstream/api/internal/platform/textutil"
	"github.com/shopstream/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 32 * 1024
)

// Customers may only cancel before the warehouse starts picking.
var userCancellableStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:   {},
	domain.OrderStatusConfirmed: {},
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	idempotent func(http.Handler) http.Handler
}

// OrderHandlerOption customises the handlers before route registration.
type OrderHandlerOption func(*OrderHandlers)

// WithIdempotency guards order creation with the supplied idempotency middleware.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.idempotent = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	if h.idempotent != nil {
		r.With(h.idempotent).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type createOrderRequest struct {
	Items         []createOrderItemRequest `json:"items"`
	Shipping      addressRequest           `json:"shipping_address"`
	Billing       addressRequest           `json:"billing_address"`
	PaymentMethod string                   `json:"payment_method"`
	CustomerNotes string                   `json:"customer_notes"`
	Gift          *giftRequest             `json:"gift"`
	Coupon        *couponRequest           `json:"coupon"`
	Source        string                   `json:"source"`
	Metadata      map[string]string        `json:"metadata"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type addressRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type giftRequest struct {
	IsGift  bool   `json:"is_gift"`
	Message string `json:"message"`
}

type couponRequest struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:        strings.TrimSpace(identity.UID),
		Items:         make([]services.CreateOrderItem, 0, len(req.Items)),
		Shipping:      buildAddress(req.Shipping),
		Billing:       buildAddress(req.Billing),
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(strings.ToLower(req.PaymentMethod))),
		CustomerNotes: strings.TrimSpace(req.CustomerNotes),
		Source:        domain.OrderSource(strings.TrimSpace(strings.ToLower(req.Source))),
		Metadata:      buildMetadata(req.Metadata),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CreateOrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	if req.Gift != nil {
		cmd.Gift = domain.GiftInfo{IsGift: req.Gift.IsGift, Message: strings.TrimSpace(req.Gift.Message)}
	}
	if req.Coupon != nil {
		cmd.Coupon = &domain.Coupon{Code: strings.TrimSpace(req.Coupon.Code), Discount: req.Coupon.Discount}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order, false)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query.UserID = strings.TrimSpace(identity.UID)

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page, query.Page, query.PageSize, false))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
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

	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order, identity.IsStaff())})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !ownsOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	if !identity.IsStaff() {
		if _, cancellable := userCancellableStatuses[order.Status]; !cancellable {
			httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", "order can no longer be cancelled", http.StatusConflict))
			return
		}
	}

	cancelled, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:      orderID,
		TargetStatus: domain.OrderStatusCancelled,
		InternalNote: strings.TrimSpace(req.Reason),
		ActorID:      strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled, identity.IsStaff())})
}

func requireIdentity(ctx context.Context, w http.ResponseWriter, orders services.OrderService) (*auth.Identity, bool) {
	if orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func ownsOrder(identity *auth.Identity, order services.Order) bool {
	if identity.IsStaff() {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(order.UserID), strings.TrimSpace(identity.UID))
}

func parseOrderListQuery(r *http.Request) (services.ListOrdersQuery, error) {
	query := r.URL.Query()
	result := services.ListOrdersQuery{
		SortBy:   strings.TrimSpace(query.Get("sort")),
		SortDesc: strings.EqualFold(strings.TrimSpace(query.Get("order")), "desc"),
		PageSize: defaultOrderPageSize,
		Page:     1,
	}

	for _, status := range parseFilterValues(query["status"]) {
		result.Status = append(result.Status, domain.OrderStatus(status))
	}
	for _, status := range parseFilterValues(query["payment_status"]) {
		result.PaymentStatus = append(result.PaymentStatus, domain.PaymentStatus(status))
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return result, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		result.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return result, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		result.DateRange.To = &ts
	}

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page <= 0 {
			return result, errors.New("page must be a positive integer")
		}
		result.Page = page
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return result, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			result.PageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			result.PageSize = maxOrderPageSize
		default:
			result.PageSize = size
		}
	}

	return result, nil
}

func buildAddress(req addressRequest) domain.Address {
	return domain.Address{
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Company:    strings.TrimSpace(req.Company),
		Address1:   strings.TrimSpace(req.Address1),
		Address2:   strings.TrimSpace(req.Address2),
		City:       strings.TrimSpace(req.City),
		State:      strings.TrimSpace(req.State),
		PostalCode: strings.TrimSpace(req.PostalCode),
		Country:    strings.TrimSpace(req.Country),
		Phone:      strings.TrimSpace(req.Phone),
	}
}

func buildMetadata(src map[string]string) domain.Metadata {
	normalized := textutil.NormalizeStringMap(src)
	if len(normalized) == 0 {
		return nil
	}
	metadata := make(domain.Metadata, len(normalized))
	for key, value := range normalized {
		metadata[domain.MetadataKey(key)] = value
	}
	return metadata
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryProductInactive):
		httpx.WriteError(ctx, w, httpx.NewError("product_inactive", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRefundNotAllowed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_allowed", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
