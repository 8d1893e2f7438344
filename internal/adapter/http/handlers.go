package http

import (
	"net/http"
	"time"

	"credlend-backend/internal/usecase/tracker"

	"github.com/labstack/echo/v4"
)

type Handler struct{ trk *tracker.Usecase }

func NewHandler(trk *tracker.Usecase) *Handler { return &Handler{trk: trk} }

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// TransferStatus lets callers poll the outcome of a pending settlement.
func (h *Handler) TransferStatus(c echo.Context) error {
	trackingID := c.Param("tracking_id")
	st, err := h.trk.Status(c.Request().Context(), trackingID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"tracking_id": trackingID,
		"status":      string(st),
	})
}
