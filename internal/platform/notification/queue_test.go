package notification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

func TestMemoryQueue_PublishConsume(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	if err := q.Publish(ctx, &Message{ID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	d, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if d.ID != "1" || d.Message.ID != "1" {
		t.Errorf("unexpected delivery %+v", d)
	}
	if err := q.Ack(ctx, d); err != nil {
		t.Errorf("ack: %v", err)
	}
}

func TestMemoryQueue_ConsumeHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := q.Consume(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Close()
	_ = q.Close()

	if err := q.Publish(context.Background(), &Message{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("publish after close: %v", err)
	}
	if _, err := q.Consume(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("consume after close: %v", err)
	}
}

func TestDecodeDelivery(t *testing.T) {
	d, err := decodeDelivery(&redis.XMessage{
		ID:     "1700000000000-0",
		Values: map[string]interface{}{"payload": `{"id":"m1","recipient":"a@b.co","attempts":2}`},
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.ID != "1700000000000-0" || d.Message.ID != "m1" || d.Message.Attempts != 2 {
		t.Errorf("unexpected delivery %+v / %+v", d, d.Message)
	}

	if _, err := decodeDelivery(&redis.XMessage{ID: "x", Values: map[string]interface{}{}}); err == nil {
		t.Error("expected error without payload")
	}
	if _, err := decodeDelivery(&redis.XMessage{ID: "x", Values: map[string]interface{}{"payload": "{"}}); err == nil {
		t.Error("expected error for bad JSON")
	}
}

func TestSendGridSender_Prepare(t *testing.T) {
	s := NewSendGridSender("key", "Eldercare", "no-reply@eldercare.local")
	m := s.prepare("fam@example.com", "Monthly bill", "body")

	body := string(sgmail.GetRequestBody(m))
	for _, want := range []string{"fam@example.com", "[Eldercare] Monthly bill", "no-reply@eldercare.local", "text/plain"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q: %s", want, body)
		}
	}
}
