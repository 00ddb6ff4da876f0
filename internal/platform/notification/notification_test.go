package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_MonthlyBill(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render(TemplateMonthlyBill, map[string]string{
		"family_name":   "Tran Van B",
		"resident_name": "Tran Thi A",
		"month":         "03/2024",
		"amount":        "12,500,000",
		"due_date":      "05/03/2024",
		"bill_id":       "bill-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Monthly bill 03/2024 for Tran Thi A" {
		t.Errorf("unexpected subject %q", subject)
	}
	for _, want := range []string{"Dear Tran Van B", "12,500,000", "05/03/2024", "bill-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unreplaced placeholder in body: %s", body)
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "partial-tpl",
		Subject: "Hi {{name}}",
		Body:    "Your code is {{code}} and token is {{token}}.",
	})

	_, body, err := eng.Render("partial-tpl", map[string]string{"name": "Bob", "code": "5678"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "Your code is 5678 and token is {{token}}."
	if body != expected {
		t.Errorf("body = %q, want %q", body, expected)
	}
}

func TestNotificationManager_NotifyQueues(t *testing.T) {
	q := NewMemoryQueue(4)
	mgr := NewNotificationManager(q, NewTemplateEngine())

	msg, err := mgr.Notify(context.Background(), TemplateBillPaid, "fam@example.com", map[string]string{
		"family_name": "B", "amount": "100", "title": "Bill", "paid_date": "today",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued message, got %d", q.Len())
	}
	r, err := mgr.Get(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if r.Status != StatusQueued {
		t.Errorf("status = %q, want queued", r.Status)
	}
}

func TestNotificationManager_NotifyValidation(t *testing.T) {
	q := NewMemoryQueue(4)
	mgr := NewNotificationManager(q, NewTemplateEngine())

	if _, err := mgr.Notify(context.Background(), TemplateMonthlyBill, "  ", nil); err == nil {
		t.Error("expected error for empty recipient")
	}
	if _, err := mgr.Notify(context.Background(), "nope", "a@b.co", nil); err == nil {
		t.Error("expected error for unknown template")
	}
	if q.Len() != 0 {
		t.Errorf("nothing should be queued, got %d", q.Len())
	}
}

func TestNotificationManager_NotifyClosedQueue(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Close()
	mgr := NewNotificationManager(q, NewTemplateEngine())

	if _, err := mgr.Notify(context.Background(), TemplateBillPaid, "a@b.co", nil); err == nil {
		t.Error("expected error when queue is closed")
	}
	if got := mgr.Stats(context.Background()); got[StatusQueued] != 0 {
		t.Errorf("failed publish should not leave a record, got %v", got)
	}
}

func TestNotificationManager_ListAndStats(t *testing.T) {
	mgr := NewNotificationManager(NewMemoryQueue(10), NewTemplateEngine())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := mgr.Notify(ctx, TemplateBillPaid, "a@example.com", nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := mgr.Notify(ctx, TemplateBillPaid, "b@example.com", nil); err != nil {
		t.Fatal(err)
	}

	if got := len(mgr.ListByRecipient(ctx, "A@example.com", 10)); got != 3 {
		t.Errorf("expected 3 records for a@, got %d", got)
	}
	if got := len(mgr.ListByRecipient(ctx, "a@example.com", 2)); got != 2 {
		t.Errorf("expected limit to apply, got %d", got)
	}
	if stats := mgr.Stats(ctx); stats[StatusQueued] != 4 {
		t.Errorf("expected 4 queued, got %v", stats)
	}
}

func TestNotificationManager_HistoryIsBounded(t *testing.T) {
	mgr := NewNotificationManager(NewMemoryQueue(maxRecords+10), NewTemplateEngine())
	ctx := context.Background()
	for i := 0; i < maxRecords+5; i++ {
		if _, err := mgr.Notify(ctx, TemplateBillPaid, "a@example.com", nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := mgr.Stats(ctx)[StatusQueued]; got != maxRecords {
		t.Errorf("expected history capped at %d, got %d", maxRecords, got)
	}
}

func TestNotificationHandler_Routes(t *testing.T) {
	q := NewMemoryQueue(4)
	mgr := NewNotificationManager(q, NewTemplateEngine())
	msg, _ := mgr.Notify(context.Background(), TemplateBillPaid, "a@example.com", nil)

	e := echo.New()
	NewNotificationHandler(mgr, nil).RegisterRoutes(e.Group("/admin"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/notifications/"+msg.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/notifications?recipient=a@example.com", nil))
	var list []Record
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("list: unexpected body %s (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/notifications", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("list without recipient: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/notifications/stats", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "by_status") {
		t.Errorf("stats: unexpected %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/notifications/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
}
