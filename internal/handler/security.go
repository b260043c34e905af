package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
)

// HeaderAPIKey carries the raw API key. "Authorization: Bearer <key>" is
// accepted as well.
const HeaderAPIKey = "api_key"

func apiKey(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); k != "" {
		return k
	}
	const bearer = "bearer "
	h := c.GetHeader("Authorization")
	if len(h) > len(bearer) && strings.EqualFold(h[:len(bearer)], bearer) {
		return strings.TrimSpace(h[len(bearer):])
	}
	return ""
}

// authenticate resolves the API key, if any, into a principal on the request
// context. Requests without a key continue anonymously; an unknown key is
// rejected outright.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := apiKey(c)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		hash := auth.HashKey(key, h.pepper)
		info, err := h.apikeys.FindByHash(ctx, hash)
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(ctx).Error("Look up API key", zap.Error(err))
			}
			fail(c, http.StatusUnauthorized, "invalid API key", nil)
			return
		}
		// The repository matched on the digest already; compare again in
		// constant time in case it returned a different row.
		if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
			fail(c, http.StatusUnauthorized, "invalid API key", nil)
			return
		}

		p := &auth.Principal{KeyID: info.ID, CustomerID: info.CustomerID, Scopes: info.Scopes}
		ctx = auth.WithPrincipal(ctx, p)
		ctx = zctx.With(ctx, zap.String("key_id", info.ID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize checks the caller against the rule registered for op.
func (h *Handler) authorize(op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.policy.Authorize(auth.PrincipalFrom(c.Request.Context()), op); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

// principal returns the caller of an authorized route. Public routes may see
// nil.
func principal(c *gin.Context) *auth.Principal {
	return auth.PrincipalFrom(c.Request.Context())
}
