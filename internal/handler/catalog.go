package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xenking/storefront/internal/domain/catalog"
)

type productJSON struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type variantJSON struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Color       string    `json:"color,omitempty"`
	Size        string    `json:"size,omitempty"`
	Capacity    string    `json:"capacity,omitempty"`
	UnitPrice   string    `json:"unit_price"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"min_stock"`
	MaxStock    int       `json:"max_stock"`
	Location    string    `json:"location,omitempty"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toVariantJSON(v catalog.Variant) variantJSON {
	return variantJSON{
		ID:          v.ID,
		ProductID:   v.ProductID,
		ProductName: v.ProductName,
		SKU:         v.SKU,
		Color:       v.Color,
		Size:        v.Size,
		Capacity:    v.Capacity,
		UnitPrice:   v.UnitPrice.StringFixed(2),
		Stock:       v.Stock,
		MinStock:    v.MinStock,
		MaxStock:    v.MaxStock,
		Location:    v.Location,
		Active:      v.Active,
		UpdatedAt:   v.UpdatedAt,
	}
}

func toVariantsJSON(vs []catalog.Variant) []variantJSON {
	out := make([]variantJSON, len(vs))
	for i, v := range vs {
		out[i] = toVariantJSON(v)
	}
	return out
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.catalog.Products(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]productJSON, len(products))
	for i, p := range products {
		out[i] = productJSON{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Active:      p.Active,
			CreatedAt:   p.CreatedAt,
		}
	}
	respond(c, http.StatusOK, "", "products", out)
}

// ListVariants handles GET /variants.
func (h *Handler) ListVariants(c *gin.Context) {
	f := catalog.VariantFilter{ProductID: c.Query("product_id")}
	if raw := c.Query("available"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "available", "must be a boolean")
			return
		}
		f.InStockOnly = b
	}
	var err error
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		badRequest(c, "limit", err.Error())
		return
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		badRequest(c, "offset", err.Error())
		return
	}

	vs, err := h.catalog.Variants(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", "variants", toVariantsJSON(vs))
}

// GetVariant handles GET /variants/:id.
func (h *Handler) GetVariant(c *gin.Context) {
	v, err := h.catalog.Variant(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", "variant", toVariantJSON(*v))
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

// AdjustStock handles POST /variants/:id/stock.
func (h *Handler) AdjustStock(c *gin.Context) {
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	v, err := h.catalog.AdjustStock(c.Request.Context(), c.Param("id"), req.Delta)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "stock adjusted", "variant", toVariantJSON(*v))
}

// LowStock handles GET /inventory/low-stock.
func (h *Handler) LowStock(c *gin.Context) {
	vs, err := h.catalog.LowStock(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", "variants", toVariantsJSON(vs))
}

// StockAlerts handles GET /inventory/alerts.
func (h *Handler) StockAlerts(c *gin.Context) {
	a, err := h.catalog.Alerts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"low_stock":  toVariantsJSON(a.Low),
		"over_stock": toVariantsJSON(a.Over),
	})
}
