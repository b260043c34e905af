package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/order"
)

// CartService is the cart behaviour the API exposes.
type CartService interface {
	View(ctx context.Context, customerID string) (*cart.View, error)
	AddItem(ctx context.Context, customerID, variantID string, qty int) (*cart.AddResult, error)
	UpdateItem(ctx context.Context, customerID, lineID string, qty int) (*cart.Line, error)
	RemoveItem(ctx context.Context, customerID, lineID string) error
	Clear(ctx context.Context, customerID string) error
}

// OrderService is the order behaviour the API exposes.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	Update(ctx context.Context, id string, p order.Patch) (*order.Order, error)
	SetStatus(ctx context.Context, id, status string) (*order.Order, error)
	Stats(ctx context.Context, f order.Filter) (*order.Stats, error)
}

// CatalogService is the catalog and inventory behaviour the API exposes.
type CatalogService interface {
	Products(ctx context.Context) ([]catalog.Product, error)
	Variant(ctx context.Context, id string) (*catalog.Variant, error)
	Variants(ctx context.Context, f catalog.VariantFilter) ([]catalog.Variant, error)
	AdjustStock(ctx context.Context, id string, delta int) (*catalog.Variant, error)
	LowStock(ctx context.Context) ([]catalog.Variant, error)
	Alerts(ctx context.Context) (*catalog.Alerts, error)
}

// MediaService is the image behaviour the API exposes.
type MediaService interface {
	Upload(ctx context.Context, u media.Upload) (*media.Image, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, variantID string) ([]media.Image, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// Policy authorizes every operation. DefaultPolicy when nil.
	Policy auth.Policy
	// MaxUploadSize bounds the bytes read from a multipart image. It should
	// match the media service limit.
	MaxUploadSize int
}

// Handler serves the storefront API over gin.
type Handler struct {
	carts   CartService
	orders  OrderService
	catalog CatalogService
	media   MediaService
	apikeys auth.Repository

	pepper    []byte
	policy    auth.Policy
	maxUpload int
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	carts CartService,
	orders OrderService,
	catalog CatalogService,
	images MediaService,
	apikeys auth.Repository,
) *Handler {
	if cfg.Policy == nil {
		cfg.Policy = auth.DefaultPolicy()
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = media.DefaultMaxSize
	}
	return &Handler{
		carts:     carts,
		orders:    orders,
		catalog:   catalog,
		media:     images,
		apikeys:   apikeys,
		pepper:    cfg.APIKeyPepper,
		policy:    cfg.Policy,
		maxUpload: cfg.MaxUploadSize,
	}
}

// Engine builds a gin engine serving the API under /api.
func (h *Handler) Engine() *gin.Engine {
	e := gin.New()
	e.HandleMethodNotAllowed = true
	e.NoRoute(func(c *gin.Context) { fail(c, http.StatusNotFound, "route not found", nil) })
	e.NoMethod(func(c *gin.Context) { fail(c, http.StatusMethodNotAllowed, "method not allowed", nil) })
	h.Register(e.Group("/api"))
	return e
}

// Register mounts every route on r. Each route resolves the caller first and
// then checks the operation against the policy.
func (h *Handler) Register(r gin.IRouter) {
	r.Use(h.authenticate())
	op := h.authorize

	r.GET("/cart", op(auth.OpCartView), h.GetCart)
	r.POST("/cart/items", op(auth.OpCartAddItem), h.AddCartItem)
	r.PATCH("/cart/items/:id", op(auth.OpCartUpdateItem), h.UpdateCartItem)
	r.DELETE("/cart/items/:id", op(auth.OpCartRemoveItem), h.RemoveCartItem)
	r.DELETE("/cart/items", op(auth.OpCartClear), h.ClearCart)

	r.POST("/orders", op(auth.OpOrderCreate), h.CreateOrder)
	r.GET("/orders", op(auth.OpOrderList), h.ListOrders)
	r.GET("/orders/stats", op(auth.OpOrderStats), h.OrderStats)
	r.GET("/orders/:id", op(auth.OpOrderGet), h.GetOrder)
	r.PATCH("/orders/:id", op(auth.OpOrderUpdate), h.UpdateOrder)
	r.PATCH("/orders/:id/status", op(auth.OpOrderSetStatus), h.SetOrderStatus)

	r.GET("/products", op(auth.OpCatalogRead), h.ListProducts)
	r.GET("/variants", op(auth.OpCatalogRead), h.ListVariants)
	r.GET("/variants/:id", op(auth.OpCatalogRead), h.GetVariant)
	r.POST("/variants/:id/stock", op(auth.OpCatalogStock), h.AdjustStock)
	r.GET("/inventory/low-stock", op(auth.OpCatalogLowStock), h.LowStock)
	r.GET("/inventory/alerts", op(auth.OpCatalogAlerts), h.StockAlerts)

	r.GET("/variants/:id/images", op(auth.OpMediaList), h.ListImages)
	r.POST("/variants/:id/images", op(auth.OpMediaUpload), h.UploadImage)
	r.DELETE("/images/:id", op(auth.OpMediaDelete), h.DeleteImage)
}
