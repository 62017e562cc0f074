// handlers_objects.go - Signed-URL object serving for the local store
package api

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/snapbatch/backend/internal/storage"
)

// ObjectHandlerImpl serves objects from a LocalStore once the HMAC
// signature and expiry on the request check out. With the HTTP store
// backend signed URLs point at the gateway and this handler is idle.
type ObjectHandlerImpl struct {
	store *storage.LocalStore
}

// NewObjectHandler creates a new object handler instance
func NewObjectHandler(store *storage.LocalStore) ObjectHandler {
	return &ObjectHandlerImpl{store: store}
}

// HandleGetObject validates the signature and streams the object
func (h *ObjectHandlerImpl) HandleGetObject(c echo.Context) error {
	if h.store == nil {
		return NewNotFoundError("object", c.Param("*"))
	}

	key := c.Param("*")
	expires, err := strconv.ParseInt(c.QueryParam("expires"), 10, 64)
	if err != nil {
		return NewBadRequestError("missing or invalid expires parameter", err)
	}
	sig := c.QueryParam("sig")
	if sig == "" {
		return NewBadRequestError("missing sig parameter", nil)
	}

	if !h.store.Verify(key, expires, sig) {
		return NewForbiddenError("signature invalid or expired")
	}

	obj, err := h.store.Open(key)
	if err != nil {
		return NewNotFoundError("object", key)
	}
	defer obj.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Stream(http.StatusOK, contentType, obj)
}
