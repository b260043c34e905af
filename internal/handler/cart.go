package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartLineJSON struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	Label     string    `json:"label"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
	Stock     int       `json:"stock"`
	AddedAt   time.Time `json:"added_at"`
}

type cartJSON struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	Items      []cartLineJSON `json:"items"`
	ItemCount  int            `json:"item_count"`
	TotalPrice string         `json:"total_price"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toCartLineJSON(l cart.Line) cartLineJSON {
	return cartLineJSON{
		ID:        l.ID,
		VariantID: l.VariantID,
		Label:     l.Label,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice.StringFixed(2),
		Subtotal:  l.Subtotal().StringFixed(2),
		Stock:     l.Stock,
		AddedAt:   l.AddedAt,
	}
}

func toCartJSON(v *cart.View) cartJSON {
	items := make([]cartLineJSON, len(v.Lines))
	for i, l := range v.Lines {
		items[i] = toCartLineJSON(l)
	}
	return cartJSON{
		ID:         v.Cart.ID,
		CustomerID: v.Cart.CustomerID,
		Items:      items,
		ItemCount:  v.Totals.ItemCount,
		TotalPrice: v.Totals.TotalPrice.StringFixed(2),
		CreatedAt:  v.Cart.CreatedAt,
		UpdatedAt:  v.Cart.UpdatedAt,
	}
}

// GetCart handles GET /cart. The cart is created on first access.
func (h *Handler) GetCart(c *gin.Context) {
	v, err := h.carts.View(c.Request.Context(), principal(c).CustomerID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", "cart", toCartJSON(v))
}

type addItemRequest struct {
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// AddCartItem handles POST /cart/items. Adding a variant already in the cart
// increases that line.
func (h *Handler) AddCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	res, err := h.carts.AddItem(c.Request.Context(), principal(c).CustomerID, req.VariantID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Created {
		respond(c, http.StatusCreated, "item added to cart", "item", toCartLineJSON(*res.Line))
		return
	}
	respond(c, http.StatusOK, "cart item quantity updated", "item", toCartLineJSON(*res.Line))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem handles PATCH /cart/items/:id.
func (h *Handler) UpdateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	l, err := h.carts.UpdateItem(c.Request.Context(), principal(c).CustomerID, c.Param("id"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart item updated", "item", toCartLineJSON(*l))
}

// RemoveCartItem handles DELETE /cart/items/:id.
func (h *Handler) RemoveCartItem(c *gin.Context) {
	if err := h.carts.RemoveItem(c.Request.Context(), principal(c).CustomerID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "item removed from cart", "", nil)
}

// ClearCart handles DELETE /cart/items.
func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), principal(c).CustomerID); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart cleared", "", nil)
}
