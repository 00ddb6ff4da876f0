package visit

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	allGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff, auth.RoleFamily))
	allGroup.GET("/visits", h.List)
	allGroup.GET("/visits/:id", h.Get)
	allGroup.POST("/visits", h.Book)
	allGroup.POST("/visits/:id/cancel", h.Cancel)

	staffGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staffGroup.POST("/visits/:id/approve", h.Approve)
	staffGroup.POST("/visits/:id/reject", h.Reject)
	staffGroup.POST("/visits/:id/complete", h.Complete)
}

func (h *Handler) Book(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	v, err := h.svc.Book(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Limit: pg.Limit, Offset: pg.Offset}
	if v := c.QueryParam("status"); v != "" {
		f.Statuses = strings.Split(v, ",")
	}
	if v := c.QueryParam("resident_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid resident_id")
		}
		f.ResidentID = &id
	}
	list, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

func (h *Handler) Approve(c echo.Context) error  { return h.move(c, h.svc.Approve) }
func (h *Handler) Reject(c echo.Context) error   { return h.move(c, h.svc.Reject) }
func (h *Handler) Complete(c echo.Context) error { return h.move(c, h.svc.Complete) }
func (h *Handler) Cancel(c echo.Context) error   { return h.move(c, h.svc.Cancel) }

func (h *Handler) move(c echo.Context, fn func(context.Context, uuid.UUID) (*Visit, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := fn(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
