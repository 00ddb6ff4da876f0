// Package notification renders templated emails, queues them on an outbox
// and delivers them through a pluggable EmailSender with retries.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusQueued  = "queued"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Message is one outbound email as it travels through the queue.
type Message struct {
	ID         string            `json:"id"`
	TemplateID string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Record is the manager's view of a message's delivery state.
type Record struct {
	ID         string     `json:"id"`
	TemplateID string     `json:"template_id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable email template. Placeholders are {{key}}.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	TemplateMonthlyBill = "monthly-bill"
	TemplateBillPaid    = "bill-paid"
	TemplateVisitStatus = "visit-status"
)

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateMonthlyBill,
			Name:    "Monthly Bill",
			Subject: "Monthly bill {{month}} for {{resident_name}}",
			Body: "Dear {{family_name}},\n\n" +
				"The care bill for {{resident_name}} for {{month}} has been issued.\n" +
				"Amount: {{amount}}\n" +
				"Due date: {{due_date}}\n" +
				"Bill reference: {{bill_id}}\n\n" +
				"Please complete the payment before the due date.",
		},
		{
			ID:      TemplateBillPaid,
			Name:    "Bill Paid",
			Subject: "Payment received: {{title}}",
			Body:    "Dear {{family_name}}, we received your payment of {{amount}} for \"{{title}}\" on {{paid_date}}. Thank you.",
		},
		{
			ID:      TemplateVisitStatus,
			Name:    "Visit Status",
			Subject: "Your visit on {{visit_date}} was {{status}}",
			Body:    "Dear {{family_name}}, your visit to {{resident_name}} on {{visit_date}} at {{visit_time}} was {{status}}.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender. FailTimes makes the first
// N calls fail; ShouldFail makes every call fail.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailTimes  int
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail || len(m.calls) <= m.FailTimes {
		msg := m.FailError
		if msg == "" {
			msg = "send failed"
		}
		return errors.New(msg)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Notification Manager
// ---------------------------------------------------------------------------

// maxRecords bounds the in-memory delivery history.
const maxRecords = 1000

// NotificationManager renders templates, publishes messages to the outbox
// and keeps a bounded history of their delivery state.
type NotificationManager struct {
	queue     Queue
	templates *TemplateEngine

	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

func NewNotificationManager(q Queue, tpl *TemplateEngine) *NotificationManager {
	return &NotificationManager{
		queue:     q,
		templates: tpl,
		records:   make(map[string]*Record),
	}
}

// Notify renders templateID and queues the email for recipient. It returns
// once the message is on the queue; delivery happens in the Dispatcher.
func (m *NotificationManager) Notify(ctx context.Context, templateID, recipient string, data map[string]string) (*Message, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, fmt.Errorf("notify %s: empty recipient", templateID)
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := &Message{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
	m.track(msg)
	if err := m.queue.Publish(ctx, msg); err != nil {
		m.forget(msg.ID)
		return nil, fmt.Errorf("queue notification: %w", err)
	}
	return msg, nil
}

func (m *NotificationManager) track(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[msg.ID]; ok {
		return
	}
	m.records[msg.ID] = &Record{
		ID:         msg.ID,
		TemplateID: msg.TemplateID,
		Recipient:  msg.Recipient,
		Subject:    msg.Subject,
		Status:     StatusQueued,
		CreatedAt:  msg.CreatedAt,
	}
	m.order = append(m.order, msg.ID)
	if len(m.order) > maxRecords {
		delete(m.records, m.order[0])
		m.order = m.order[1:]
	}
}

func (m *NotificationManager) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	for i := len(m.order) - 1; i >= 0; i-- {
		if m.order[i] == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// markResult is called by the Dispatcher after every attempt.
func (m *NotificationManager) markResult(msg *Message, status string, sendErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[msg.ID]
	if !ok {
		// Published by another instance; not tracked here.
		return
	}
	r.Status = status
	r.Attempts = msg.Attempts
	if sendErr != nil {
		r.Error = sendErr.Error()
	} else {
		r.Error = ""
		now := time.Now().UTC()
		r.SentAt = &now
	}
}

// Get returns a copy of the record for id.
func (m *NotificationManager) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	cp := *r
	return &cp, nil
}

// ListByRecipient returns up to limit records for recipient, newest first.
func (m *NotificationManager) ListByRecipient(_ context.Context, recipient string, limit int) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[m.order[i]]
		if strings.EqualFold(r.Recipient, recipient) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// Stats returns counts of tracked notifications grouped by status.
func (m *NotificationManager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, r := range m.records {
		stats[r.Status]++
	}
	return stats
}
