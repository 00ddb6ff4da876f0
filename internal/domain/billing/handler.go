package billing

import (
	"net/http"
	"strings"
	"time"

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
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff, auth.RoleFamily))
	readGroup.GET("/bills", h.ListBills)
	readGroup.GET("/bills/:id", h.GetBill)
	readGroup.GET("/residents/:id/cost-calculation", h.CostCalculation)

	staffGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staffGroup.POST("/bills", h.CreateBill)
	staffGroup.PUT("/bills/:id", h.UpdateBill)
	staffGroup.POST("/bills/:id/pay", h.PayBill)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/bills/:id/cancel", h.CancelBill)
	adminGroup.GET("/finance/transactions", h.ListTransactions)
	adminGroup.GET("/finance/transactions/:id", h.GetTransaction)
	adminGroup.POST("/finance/transactions", h.CreateTransaction)
	adminGroup.DELETE("/finance/transactions/:id", h.DeleteTransaction)
	adminGroup.GET("/finance/summary", h.Summary)
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

// parseDate accepts RFC 3339 or YYYY-MM-DD.
func parseDate(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+", use YYYY-MM-DD or RFC 3339")
}

// -- Bills --

func (h *Handler) CreateBill(c echo.Context) error {
	var in CreateBillInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	b, err := h.svc.CreateBill(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := BillFilter{Limit: pg.Limit, Offset: pg.Offset}
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
	if v := c.QueryParam("period"); v != "" {
		f.TitleContains = v
	}
	bills, total, err := h.svc.ListBills(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateBillInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	b, err := h.svc.UpdateBill(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) PayBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.PayBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.CancelBill(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CostCalculation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	calc, err := h.svc.CostCalculation(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, calc)
}

// -- Finance --

func (h *Handler) CreateTransaction(c echo.Context) error {
	var in TransactionInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	t, err := h.svc.CreateTransaction(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTransaction(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTransaction(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	pg := pagination.FromContext(c)
	from, err := parseDate(c, "from")
	if err != nil {
		return err
	}
	to, err := parseDate(c, "to")
	if err != nil {
		return err
	}
	list, total, err := h.svc.ListTransactions(c.Request().Context(), FinanceFilter{
		Type:     c.QueryParam("type"),
		Category: c.QueryParam("category"),
		From:     from,
		To:       to,
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteTransaction(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTransaction(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Summary(c echo.Context) error {
	from, err := parseDate(c, "from")
	if err != nil {
		return err
	}
	to, err := parseDate(c, "to")
	if err != nil {
		return err
	}
	s, err := h.svc.Summary(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
