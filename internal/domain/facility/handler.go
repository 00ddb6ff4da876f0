package facility

import (
	"net/http"
	"strconv"
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
	// Catalog reads are open to every signed-in role.
	catalog := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff, auth.RoleFamily))
	catalog.GET("/rooms", h.ListRooms)
	catalog.GET("/rooms/:id", h.GetRoom)

	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	readGroup.GET("/rooms/:id/beds", h.ListRoomBeds)
	readGroup.GET("/beds", h.ListBeds)
	readGroup.GET("/beds/:id", h.GetBed)
	readGroup.GET("/bed-assignments", h.ListAssignments)
	readGroup.GET("/bed-assignments/:id", h.GetAssignment)
	readGroup.POST("/bed-assignments", h.Assign)
	readGroup.POST("/bed-assignments/:id/unassign", h.Unassign)
	readGroup.POST("/bed-assignments/:id/accept", h.Accept)
	readGroup.POST("/bed-assignments/:id/reject", h.Reject)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/rooms", h.CreateRoom)
	writeGroup.PUT("/rooms/:id", h.UpdateRoom)
	writeGroup.DELETE("/rooms/:id", h.DeleteRoom)
	writeGroup.POST("/beds", h.CreateBed)
	writeGroup.PUT("/beds/:id", h.UpdateBed)
	writeGroup.DELETE("/beds/:id", h.DeleteBed)
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

// -- Rooms --

func (h *Handler) CreateRoom(c echo.Context) error {
	var in RoomInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	room, err := h.svc.CreateRoom(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, room)
}

func (h *Handler) GetRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	room, err := h.svc.GetRoom(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) ListRooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := RoomFilter{
		Status:   c.QueryParam("status"),
		RoomType: c.QueryParam("room_type"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	if v := c.QueryParam("floor"); v != "" {
		floor, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid floor")
		}
		f.Floor = &floor
	}
	rooms, total, err := h.svc.ListRooms(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rooms, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in RoomInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	room, err := h.svc.UpdateRoom(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

func (h *Handler) DeleteRoom(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRoom(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Beds --

func (h *Handler) CreateBed(c echo.Context) error {
	var in BedInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	bed, err := h.svc.CreateBed(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bed)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	bed, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bed)
}

func (h *Handler) ListBeds(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := BedFilter{Status: c.QueryParam("status"), Limit: pg.Limit, Offset: pg.Offset}
	if v := c.QueryParam("room_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid room_id")
		}
		f.RoomID = &id
	}
	beds, total, err := h.svc.ListBeds(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(beds, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListRoomBeds(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	beds, _, err := h.svc.ListBeds(c.Request().Context(), BedFilter{RoomID: &id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, beds)
}

func (h *Handler) UpdateBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in BedInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	bed, err := h.svc.UpdateBed(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bed)
}

func (h *Handler) DeleteBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Bed Assignments --

func (h *Handler) Assign(c echo.Context) error {
	var in AssignInput
	if err := bindValid(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Assign(c.Request().Context(), in)
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
	f := BedAssignmentFilter{Limit: pg.Limit, Offset: pg.Offset}
	if v := c.QueryParam("status"); v != "" {
		f.Statuses = strings.Split(v, ",")
	}
	for param, dst := range map[string]**uuid.UUID{"resident_id": &f.ResidentID, "bed_id": &f.BedID} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			*dst = &id
		}
	}
	list, total, err := h.svc.ListAssignments(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, pg.Limit, pg.Offset))
}

type unassignRequest struct {
	UnassignedDate *time.Time `json:"unassigned_date,omitempty"`
}

func (h *Handler) Unassign(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req unassignRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	a, err := h.svc.Unassign(c.Request().Context(), id, req.UnassignedDate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Accept(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Accept(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Reject(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
