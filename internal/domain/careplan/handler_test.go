package careplan

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eldercare/eldercare/internal/platform/auth"
	"github.com/eldercare/eldercare/internal/platform/middleware"
)

func newTestServer(f *fixture, userID string, roles ...string) *echo.Echo {
	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithUser(c.Request().Context(), userID, "", roles)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CarePlanCatalog(t *testing.T) {
	f := newFixture()
	admin := newTestServer(f, "admin", auth.RoleAdmin)

	rec := serve(admin, http.MethodPost, "/api/v1/care-plans",
		`{"plan_name":"Dementia care","plan_type":"main","monthly_price":"7000000","category":"memory"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(admin, http.MethodPost, "/api/v1/care-plans", `{"plan_name":"X","plan_type":"premium"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad plan type, got %d", rec.Code)
	}

	family := newTestServer(f, f.family.String(), auth.RoleFamily)
	rec = serve(family, http.MethodGet, "/api/v1/care-plans?plan_type=main", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Dementia care") {
		t.Errorf("family should browse plans, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(family, http.MethodPost, "/api/v1/care-plans", `{"plan_name":"Y","plan_type":"main"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for family write, got %d", rec.Code)
	}
}

func TestHandler_CreateAssignment(t *testing.T) {
	f := newFixture()
	main := f.addPlan("Basic", PlanMain, 3000000)
	staff := newTestServer(f, "staff", auth.RoleStaff)

	rec := serve(staff, http.MethodPost, "/api/v1/care-plan-assignments",
		`{"resident_id":"`+f.resident.ID.String()+`","care_plan_ids":["`+main.ID.String()+`"],"room_id":"`+f.room.ID.String()+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"total_monthly_cost":"5000000"`) {
		t.Errorf("expected computed total, got %s", rec.Body.String())
	}

	rec = serve(staff, http.MethodPost, "/api/v1/care-plan-assignments",
		`{"resident_id":"`+f.resident.ID.String()+`","care_plan_ids":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty plan list, got %d", rec.Code)
	}
}
