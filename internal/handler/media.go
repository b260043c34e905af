package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/media"
)

type imageJSON struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	URL       string    `json:"url"`
	AltText   string    `json:"alt_text,omitempty"`
	Primary   bool      `json:"primary"`
	CreatedAt time.Time `json:"created_at"`
}

func toImageJSON(img media.Image) imageJSON {
	return imageJSON{
		ID:        img.ID,
		VariantID: img.VariantID,
		URL:       img.URL,
		AltText:   img.AltText,
		Primary:   img.Primary,
		CreatedAt: img.CreatedAt,
	}
}

// ListImages handles GET /variants/:id/images.
func (h *Handler) ListImages(c *gin.Context) {
	images, err := h.media.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]imageJSON, len(images))
	for i, img := range images {
		out[i] = toImageJSON(img)
	}
	respond(c, http.StatusOK, "", "images", out)
}

// UploadImage handles POST /variants/:id/images with a multipart "file" part
// and optional "alt_text" and "primary" fields.
func (h *Handler) UploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "multipart field \"file\" is required")
		return
	}
	if fh.Size > int64(h.maxUpload) {
		writeError(c, &media.TooLargeError{Size: int(fh.Size), Limit: h.maxUpload})
		return
	}
	primary := false
	if raw := c.PostForm("primary"); raw != "" {
		if primary, err = strconv.ParseBool(raw); err != nil {
			badRequest(c, "primary", "must be a boolean")
			return
		}
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, errors.Wrap(err, "open upload"))
		return
	}
	defer func() { _ = f.Close() }()
	body, err := io.ReadAll(io.LimitReader(f, int64(h.maxUpload)+1))
	if err != nil {
		writeError(c, errors.Wrap(err, "read upload"))
		return
	}

	img, err := h.media.Upload(c.Request.Context(), media.Upload{
		VariantID:   c.Param("id"),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        body,
		AltText:     c.PostForm("alt_text"),
		Primary:     primary,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "image uploaded", "image", toImageJSON(*img))
}

// DeleteImage handles DELETE /images/:id.
func (h *Handler) DeleteImage(c *gin.Context) {
	if err := h.media.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "image deleted", "", nil)
}
