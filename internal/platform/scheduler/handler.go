package scheduler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eldercare/eldercare/internal/platform/auth"
)

type Handler struct {
	sched *Scheduler
}

func NewHandler(s *Scheduler) *Handler {
	return &Handler{sched: s}
}

// RegisterRoutes mounts the job admin endpoints (admin only).
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/jobs", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListJobs)
	admin.POST("/:name/run", h.RunJob)
}

// RegisterTrigger mounts an admin-only POST at path that starts job in the
// background and answers with a fixed acknowledgement.
func (h *Handler) RegisterTrigger(api *echo.Group, path, job, ack string) {
	api.POST(path, func(c echo.Context) error {
		if err := h.sched.TriggerAsync(job); err != nil {
			return jobError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"message": ack})
	}, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) ListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"location": h.sched.Location().String(),
		"jobs":     h.sched.Jobs(),
	})
}

func (h *Handler) RunJob(c echo.Context) error {
	name := c.Param("name")
	if err := h.sched.TriggerAsync(name); err != nil {
		return jobError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "job triggered",
		"job":     name,
	})
}

func jobError(err error) error {
	if errors.Is(err, ErrUnknownJob) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, ErrStopped) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return err
}
