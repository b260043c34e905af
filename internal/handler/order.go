package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

type addressJSON struct {
	ID         string `json:"id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type paymentMethodJSON struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

type orderJSON struct {
	ID                string             `json:"id"`
	Number            string             `json:"number"`
	CustomerID        string             `json:"customer_id"`
	Subtotal          string             `json:"subtotal"`
	ShippingCost      string             `json:"shipping_cost"`
	Total             string             `json:"total"`
	Status            string             `json:"status"`
	Note              string             `json:"note,omitempty"`
	ShippingAddressID string             `json:"shipping_address_id"`
	PaymentMethodID   string             `json:"payment_method_id"`
	ShippingAddress   *addressJSON       `json:"shipping_address,omitempty"`
	PaymentMethod     *paymentMethodJSON `json:"payment_method,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func toOrderJSON(o *order.Order) orderJSON {
	out := orderJSON{
		ID:                o.ID,
		Number:            o.Number,
		CustomerID:        o.CustomerID,
		Subtotal:          o.Subtotal.StringFixed(2),
		ShippingCost:      o.ShippingCost.StringFixed(2),
		Total:             o.Total.StringFixed(2),
		Status:            string(o.Status),
		Note:              o.Note,
		ShippingAddressID: o.ShippingAddressID,
		PaymentMethodID:   o.PaymentMethodID,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if a := o.ShippingAddress; a != nil {
		out.ShippingAddress = &addressJSON{
			ID:         a.ID,
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	if pm := o.PaymentMethod; pm != nil {
		out.PaymentMethod = &paymentMethodJSON{ID: pm.ID, Kind: string(pm.Kind), Details: pm.Details}
	}
	return out
}

type statusStatsJSON struct {
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

type statsJSON struct {
	TotalOrders   int                        `json:"total_orders"`
	TotalAmount   string                     `json:"total_amount"`
	AverageAmount string                     `json:"average_amount"`
	ByStatus      map[string]statusStatsJSON `json:"by_status"`
	LastSevenDays int                        `json:"last_seven_days"`
}

// canSeeAll reports whether the caller may read orders of any customer.
func canSeeAll(p *auth.Principal) bool {
	return p.Has(auth.ScopeOrdersAdmin)
}

type createOrderRequest struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Total             decimal.Decimal `json:"total"`
	ShippingAddressID string          `json:"shipping_address_id" binding:"required"`
	PaymentMethodID   string          `json:"payment_method_id" binding:"required"`
	Note              string          `json:"note"`
}

// CreateOrder handles POST /orders. The order belongs to the calling customer.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	o, err := h.orders.Create(c.Request.Context(), order.CreateRequest{
		CustomerID:        principal(c).CustomerID,
		Subtotal:          req.Subtotal,
		ShippingCost:      req.ShippingCost,
		Total:             req.Total,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethodID:   req.PaymentMethodID,
		Note:              req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "order created", "order", toOrderJSON(o))
}

// GetOrder handles GET /orders/:id. Orders of other customers are reported
// as missing unless the caller administers orders.
func (h *Handler) GetOrder(c *gin.Context) {
	p := principal(c)
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !canSeeAll(p) && o.CustomerID != p.CustomerID {
		writeError(c, order.ErrNotFound)
		return
	}
	respond(c, http.StatusOK, "", "order", toOrderJSON(o))
}

// ListOrders handles GET /orders.
func (h *Handler) ListOrders(c *gin.Context) {
	f, ok := h.orderFilter(c)
	if !ok {
		return
	}
	orders, err := h.orders.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]orderJSON, len(orders))
	for i := range orders {
		out[i] = toOrderJSON(&orders[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"orders":  out,
		"count":   len(out),
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

// OrderStats handles GET /orders/stats.
func (h *Handler) OrderStats(c *gin.Context) {
	f, ok := h.orderFilter(c)
	if !ok {
		return
	}
	st, err := h.orders.Stats(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	byStatus := make(map[string]statusStatsJSON, len(st.ByStatus))
	for s, v := range st.ByStatus {
		byStatus[string(s)] = statusStatsJSON{Count: v.Count, Amount: v.Amount.StringFixed(2)}
	}
	respond(c, http.StatusOK, "", "stats", statsJSON{
		TotalOrders:   st.TotalOrders,
		TotalAmount:   st.TotalAmount.StringFixed(2),
		AverageAmount: st.AverageAmount.StringFixed(2),
		ByStatus:      byStatus,
		LastSevenDays: st.LastSevenDays,
	})
}

type updateOrderRequest struct {
	Subtotal          *decimal.Decimal `json:"subtotal"`
	ShippingCost      *decimal.Decimal `json:"shipping_cost"`
	Total             *decimal.Decimal `json:"total"`
	ShippingAddressID *string          `json:"shipping_address_id"`
	PaymentMethodID   *string          `json:"payment_method_id"`
	Note              *string          `json:"note"`
	Status            *string          `json:"status"`
	Number            *string          `json:"number"`
	CreatedAt         *time.Time       `json:"created_at"`
}

// UpdateOrder handles PATCH /orders/:id.
func (h *Handler) UpdateOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	o, err := h.orders.Update(c.Request.Context(), c.Param("id"), order.Patch{
		Subtotal:          req.Subtotal,
		ShippingCost:      req.ShippingCost,
		Total:             req.Total,
		ShippingAddressID: req.ShippingAddressID,
		PaymentMethodID:   req.PaymentMethodID,
		Note:              req.Note,
		Status:            req.Status,
		Number:            req.Number,
		CreatedAt:         req.CreatedAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "order updated", "order", toOrderJSON(o))
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetOrderStatus handles PATCH /orders/:id/status.
func (h *Handler) SetOrderStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status", "status is required")
		return
	}

	o, err := h.orders.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "order status updated to "+string(o.Status), "order", toOrderJSON(o))
}

// orderFilter reads the list query. Callers that cannot see every order are
// restricted to their own. It writes the error response itself and reports
// false on bad input.
func (h *Handler) orderFilter(c *gin.Context) (order.Filter, bool) {
	var f order.Filter

	if raw := c.Query("status"); raw != "" {
		s, err := order.ParseStatus(raw)
		if err != nil {
			writeError(c, err)
			return f, false
		}
		f.Status = s
	}
	for _, q := range []struct {
		name     string
		dst      *time.Time
		endOfDay bool
	}{
		{"from", &f.From, false},
		{"to", &f.To, true},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw, q.endOfDay)
		if err != nil {
			badRequest(c, q.name, "expected RFC 3339 timestamp or YYYY-MM-DD date")
			return f, false
		}
		*q.dst = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		badRequest(c, "to", "must be after from")
		return f, false
	}
	f.NumberContains = c.Query("number")

	var err error
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		badRequest(c, "limit", err.Error())
		return f, false
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		badRequest(c, "offset", err.Error())
		return f, false
	}

	if p := principal(c); !canSeeAll(p) {
		if p.CustomerID == "" {
			writeError(c, auth.ErrForbidden)
			return f, false
		}
		f.CustomerID = p.CustomerID
	} else if id := c.Query("customer_id"); id != "" {
		f.CustomerID = id
	}
	return f, true
}

// parseTime accepts an RFC 3339 timestamp or a bare date. A bare date used as
// an upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse time")
	}
	if endOfDay {
		d = d.Add(24 * time.Hour)
	}
	return d, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}
