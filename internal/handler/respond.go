package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/media"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// respond writes a success envelope. key names the entity field and may be
// empty for bodies that carry only a message.
func respond(c *gin.Context, status int, message, key string, v any) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	if key != "" {
		body[key] = v
	}
	c.JSON(status, body)
}

// fail writes an error envelope and aborts the chain.
func fail(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": false, "message": message}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, field, msg string) {
	fail(c, http.StatusBadRequest, "validation failed", gin.H{field: msg})
}

// writeError translates a domain error into its HTTP status and envelope.
// Anything unrecognised is logged with the request logger and reported as a
// generic failure.
func writeError(c *gin.Context, err error) {
	var (
		stock      *cart.InsufficientStockError
		amount     *order.InvalidAmountError
		transition *order.TransitionError
		tooLarge   *media.TooLargeError
	)
	switch {
	case errors.As(err, &stock):
		fail(c, http.StatusConflict, "insufficient stock", gin.H{
			"variant_id": stock.VariantID,
			"requested":  stock.Requested,
			"in_cart":    stock.InCart,
			"available":  stock.Available,
		})
	case errors.As(err, &amount):
		badRequest(c, amount.Field, "must not be negative")
	case errors.As(err, &transition):
		fail(c, http.StatusConflict, transition.Error(), gin.H{
			"from": string(transition.From),
			"to":   string(transition.To),
		})
	case errors.As(err, &tooLarge):
		fail(c, http.StatusRequestEntityTooLarge, tooLarge.Error(), nil)

	case errors.Is(err, cart.ErrInvalidQuantity):
		badRequest(c, "quantity", err.Error())
	case errors.Is(err, order.ErrInvalidStatus):
		badRequest(c, "status", err.Error())
	case errors.Is(err, catalog.ErrZeroAdjustment),
		errors.Is(err, catalog.ErrStockOutOfRange):
		badRequest(c, "delta", rootMessage(err))
	case errors.Is(err, catalog.ErrInvalidStockBounds):
		badRequest(c, "min_stock", rootMessage(err))
	case errors.Is(err, media.ErrEmptyFile),
		errors.Is(err, media.ErrUnsupportedContent):
		badRequest(c, "file", err.Error())

	case errors.Is(err, auth.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, "authentication required", nil)
	case errors.Is(err, auth.ErrForbidden):
		fail(c, http.StatusForbidden, "insufficient permissions", nil)

	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, customer.ErrAddressNotFound),
		errors.Is(err, customer.ErrPaymentMethodNotFound),
		errors.Is(err, media.ErrNotFound):
		fail(c, http.StatusNotFound, rootMessage(err), nil)

	case errors.Is(err, order.ErrDuplicateNumber),
		errors.Is(err, catalog.ErrStockUnderflow):
		fail(c, http.StatusConflict, rootMessage(err), nil)

	case errors.Is(err, media.ErrStoreUnavailable):
		fail(c, http.StatusServiceUnavailable, err.Error(), nil)

	default:
		ctx := c.Request.Context()
		zctx.From(ctx).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		var detail gin.H
		if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
			detail = gin.H{"request_id": id}
		}
		fail(c, http.StatusInternalServerError, "internal server error", detail)
	}
}

// rootMessage returns the message of the innermost error so wrapping context
// such as ids stays out of client responses.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
