package notification

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherStats are cumulative counters since start.
type DispatcherStats struct {
	Sent    int64 `json:"sent"`
	Retried int64 `json:"retried"`
	Dropped int64 `json:"dropped"`
}

// Dispatcher drains the queue into an EmailSender. A failed send is
// re-published with Attempts+1 until MaxAttempts, then logged and dropped.
type Dispatcher struct {
	queue       Queue
	sender      EmailSender
	manager     *NotificationManager
	logger      zerolog.Logger
	maxAttempts int
	backoff     time.Duration

	sent, retried, dropped atomic.Int64
}

func NewDispatcher(q Queue, sender EmailSender, mgr *NotificationManager, logger zerolog.Logger, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		queue:       q,
		sender:      sender,
		manager:     mgr,
		logger:      logger.With().Str("component", "notification-dispatcher").Logger(),
		maxAttempts: maxAttempts,
		backoff:     2 * time.Second,
	}
}

// SetBackoff changes the base delay between attempts (attempt n waits n*d).
func (d *Dispatcher) SetBackoff(b time.Duration) { d.backoff = b }

// Run consumes until ctx is cancelled or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().Int("max_attempts", d.maxAttempts).Msg("dispatcher started")
	for {
		del, err := d.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				d.logger.Info().Msg("dispatcher stopped")
				return
			}
			d.logger.Error().Err(err).Msg("consume notification")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		d.Handle(ctx, del)
	}
}

// Handle delivers one message and acks it.
func (d *Dispatcher) Handle(ctx context.Context, del *Delivery) {
	msg := del.Message
	msg.Attempts++
	log := d.logger.With().
		Str("notification_id", msg.ID).
		Str("template", msg.TemplateID).
		Str("recipient", msg.Recipient).
		Int("attempt", msg.Attempts).
		Logger()

	err := d.sender.SendEmail(ctx, msg.Recipient, msg.Subject, msg.Body)
	switch {
	case err == nil:
		d.sent.Add(1)
		d.track(msg, StatusSent, nil)
		log.Info().Msg("email sent")
	case msg.Attempts < d.maxAttempts:
		d.retried.Add(1)
		d.track(msg, StatusFailed, err)
		log.Warn().Err(err).Msg("email send failed, will retry")
		if !d.wait(ctx, time.Duration(msg.Attempts)*d.backoff) {
			// Shutting down: leave it unacked so a durable queue redelivers it.
			return
		}
		if perr := d.queue.Publish(ctx, msg); perr != nil {
			log.Error().Err(perr).Msg("re-queue failed, dropping email")
			d.dropped.Add(1)
		}
	default:
		d.dropped.Add(1)
		d.track(msg, StatusDropped, err)
		log.Error().Err(err).Msg("email send failed, giving up")
	}

	if aerr := d.queue.Ack(ctx, del); aerr != nil {
		log.Error().Err(aerr).Msg("ack notification")
	}
}

func (d *Dispatcher) track(msg *Message, status string, err error) {
	if d.manager != nil {
		d.manager.markResult(msg, status, err)
	}
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{Sent: d.sent.Load(), Retried: d.retried.Load(), Dropped: d.dropped.Load()}
}
