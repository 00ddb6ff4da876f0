package careplan

import (
	"net/http"
	"strconv"
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
	catalog := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff, auth.RoleFamily))
	catalog.GET("/care-plans", h.ListPlans)
	catalog.GET("/care-plans/:id", h.GetPlan)
	catalog.GET("/registration-packages", h.ListPackages)
	catalog.GET("/registration-packages/:id", h.GetPackage)
	catalog.GET("/care-plan-assignments", h.ListAssignments)
	catalog.GET("/care-plan-assignments/:id", h.GetAssignment)

	staffGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staffGroup.POST("/care-plan-assignments", h.CreateAssignment)
	staffGroup.PUT("/care-plan-assignments/:id", h.UpdateAssignment)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/care-plans", h.CreatePlan)
	adminGroup.PUT("/care-plans/:id", h.UpdatePlan)
	adminGroup.DELETE("/care-plans/:id", h.DeletePlan)
	adminGroup.POST("/registration-packages", h.CreatePackage)
	adminGroup.PUT("/registration-packages/:id", h.UpdatePackage)
	adminGroup.DELETE("/registration-packages/:id", h.DeletePackage)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bindValid(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(v)
}

func parseActive(c echo.Context) (*bool, error) {
	v := c.QueryParam("is_active")
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid is_active")
	}
	return &b, nil
}

// -- Care Plans --

func (h *Handler) CreatePlan(c echo.Context) error {
	var in PlanInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePlan(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPlan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPlans(c echo.Context) error {
	pg := pagination.FromContext(c)
	active, err := parseActive(c)
	if err != nil {
		return err
	}
	plans, total, err := h.svc.ListPlans(c.Request().Context(), PlanFilter{
		PlanType: c.QueryParam("plan_type"),
		Category: c.QueryParam("category"),
		Active:   active,
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(plans, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PlanInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePlan(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePlan(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Registration Packages --

func (h *Handler) CreatePackage(c echo.Context) error {
	var in PackageInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePackage(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPackage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPackage(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPackages(c echo.Context) error {
	pg := pagination.FromContext(c)
	active, err := parseActive(c)
	if err != nil {
		return err
	}
	list, total, err := h.svc.ListPackages(c.Request().Context(), PackageFilter{Active: active, Limit: pg.Limit, Offset: pg.Offset})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePackage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PackageInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePackage(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePackage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePackage(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Care Plan Assignments --

func (h *Handler) CreateAssignment(c echo.Context) error {
	var in CreateAssignmentInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	a, err := h.svc.CreateAssignment(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAssignment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAssignments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AssignmentFilter{Limit: pg.Limit, Offset: pg.Offset}
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
	list, total, err := h.svc.ListAssignments(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAssignment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateAssignmentInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	a, err := h.svc.UpdateAssignment(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
