package handlers

import (
	"strings"

	domain "github.com/shopstream/api/internal/domain"
	"github.com/shopstream/api/internal/services"
)

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items      []orderPayload `json:"items"`
	TotalCount int64          `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	HasNext    bool           `json:"has_next"`
	HasPrev    bool           `json:"has_prev"`
}

type orderPayload struct {
	ID          string               `json:"id"`
	OrderNumber string               `json:"order_number"`
	UserID      string               `json:"user_id"`
	Status      string               `json:"status"`
	Items       []lineItemPayload    `json:"items"`
	Shipping    addressPayload       `json:"shipping_address"`
	Billing     addressPayload       `json:"billing_address"`
	Payment     orderPaymentPayload  `json:"payment"`
	Pricing     orderPricingPayload  `json:"pricing"`
	Tracking    *trackingPayload     `json:"tracking,omitempty"`
	Notes       *orderNotesPayload   `json:"notes,omitempty"`
	Gift        *giftPayload         `json:"gift,omitempty"`
	Coupon      *couponPayload       `json:"coupon,omitempty"`
	Source      string               `json:"source"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

type lineItemPayload struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Total        int64  `json:"total"`
}

type addressPayload struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type orderPaymentPayload struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	RefundAmount  int64  `json:"refund_amount,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
	RefundedAt    string `json:"refunded_at,omitempty"`
}

type orderPricingPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

type trackingPayload struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url,omitempty"`
	ShippedAt      string `json:"shipped_at,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

type orderNotesPayload struct {
	Customer string `json:"customer,omitempty"`
	Internal string `json:"internal,omitempty"`
}

type giftPayload struct {
	IsGift  bool   `json:"is_gift"`
	Message string `json:"message,omitempty"`
}

type couponPayload struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

type orderStatisticsPayload struct {
	TotalOrders       int64            `json:"total_orders"`
	TotalRevenue      int64            `json:"total_revenue"`
	AverageOrderValue float64          `json:"average_order_value"`
	CountsByStatus    map[string]int64 `json:"counts_by_status"`
}

func buildOrderListResponse(page domain.Page[services.Order], pageNum, pageSize int, includeInternal bool) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, includeInternal))
	}
	return orderListResponse{
		Items:      items,
		TotalCount: page.TotalCount,
		Page:       pageNum,
		PageSize:   pageSize,
		HasNext:    int64(pageNum)*int64(pageSize) < page.TotalCount,
		HasPrev:    pageNum > 1,
	}
}

// buildOrderPayload converts the aggregate to wire form. Internal notes are
// only included for staff callers.
func buildOrderPayload(order services.Order, includeInternal bool) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Items:       make([]lineItemPayload, 0, len(order.Items)),
		Shipping:    buildAddressPayload(order.Shipping),
		Billing:     buildAddressPayload(order.Billing),
		Payment: orderPaymentPayload{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			RefundAmount:  order.Payment.RefundAmount,
			PaidAt:        formatTime(pointerTime(order.Payment.PaidAt)),
			RefundedAt:    formatTime(pointerTime(order.Payment.RefundedAt)),
		},
		Pricing: orderPricingPayload{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Discount: order.Pricing.Discount,
			Total:    order.Pricing.Total,
		},
		Source:    string(order.Source),
		Metadata:  metadataPayload(order.Metadata),
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, lineItemPayload{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Total:        item.Total,
		})
	}

	if order.Tracking.Carrier != "" || order.Tracking.TrackingNumber != "" || order.Tracking.ShippedAt != nil {
		payload.Tracking = &trackingPayload{
			Carrier:        order.Tracking.Carrier,
			TrackingNumber: order.Tracking.TrackingNumber,
			TrackingURL:    order.Tracking.TrackingURL,
			ShippedAt:      formatTime(pointerTime(order.Tracking.ShippedAt)),
			DeliveredAt:    formatTime(pointerTime(order.Tracking.DeliveredAt)),
		}
	}

	notes := orderNotesPayload{Customer: order.Notes.Customer}
	if includeInternal {
		notes.Internal = order.Notes.Internal
	}
	if notes.Customer != "" || notes.Internal != "" {
		payload.Notes = &notes
	}

	if order.Gift.IsGift {
		payload.Gift = &giftPayload{IsGift: true, Message: order.Gift.Message}
	}

	if order.Coupon != nil {
		payload.Coupon = &couponPayload{
			Code:     strings.ToUpper(strings.TrimSpace(order.Coupon.Code)),
			Discount: order.Coupon.Discount,
		}
	}

	return payload
}

func metadataPayload(metadata domain.Metadata) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for key, value := range metadata {
		result[string(key)] = value
	}
	return result
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		FirstName:  addr.FirstName,
		LastName:   addr.LastName,
		Company:    addr.Company,
		Address1:   addr.Address1,
		Address2:   addr.Address2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func buildStatisticsPayload(stats services.OrderStatistics) orderStatisticsPayload {
	payload := orderStatisticsPayload{
		TotalOrders:       stats.TotalOrders,
		TotalRevenue:      stats.TotalRevenue,
		AverageOrderValue: stats.AverageOrderValue,
		CountsByStatus:    make(map[string]int64, len(stats.CountsByStatus)),
	}
	for status, count := range stats.CountsByStatus {
		payload.CountsByStatus[string(status)] = count
	}
	return payload
}
