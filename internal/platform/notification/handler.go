package notification

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// NotificationHandler exposes the delivery history to administrators.
type NotificationHandler struct {
	manager    *NotificationManager
	dispatcher *Dispatcher
}

func NewNotificationHandler(mgr *NotificationManager, d *Dispatcher) *NotificationHandler {
	return &NotificationHandler{manager: mgr, dispatcher: d}
}

// RegisterRoutes mounts the routes on an admin-only group.
func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
}

func (h *NotificationHandler) HandleGet(c echo.Context) error {
	r, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

// HandleList handles GET /notifications?recipient=...&limit=...
func (h *NotificationHandler) HandleList(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient query parameter is required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return c.JSON(http.StatusOK, h.manager.ListByRecipient(c.Request().Context(), recipient, limit))
}

func (h *NotificationHandler) HandleStats(c echo.Context) error {
	resp := map[string]interface{}{
		"by_status": h.manager.Stats(c.Request().Context()),
	}
	if h.dispatcher != nil {
		resp["dispatcher"] = h.dispatcher.Stats()
	}
	return c.JSON(http.StatusOK, resp)
}
