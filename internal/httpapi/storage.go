package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// upload takes the raw image as the request body. The token query parameter
// stands in for the bearer token, so upload URLs can be handed to any client.
func (s *Server) upload(c echo.Context) error {
	req := c.Request()
	id, err := s.storage.Upload(req.Context(), c.QueryParam("token"), req.Header.Get(echo.HeaderContentType), req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, storageIDResponse{StorageID: id})
}

func (s *Server) fetchBlob(c echo.Context) error {
	blob, rc, err := s.storage.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()

	h := c.Response().Header()
	h.Set(echo.HeaderContentLength, strconv.FormatInt(blob.Size, 10))
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	h.Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, blob.ContentType, rc)
}
