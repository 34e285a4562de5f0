// Package outbox moves events committed to the outbox table onto the
// notification queue.  Delivery is at-least-once: an event published but
// not yet marked is published again on the next poll.
package outbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
	"github.com/iliyamo/quickshow-booking/internal/metrics"
	"github.com/iliyamo/quickshow-booking/internal/repository"
)

// Store reads and acknowledges outbox rows.
type Store interface {
	Pending(ctx context.Context, limit int) ([]repository.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids ...uint64) error
}

// Publisher hands one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body []byte, messageID string) error
}

// Forwarder polls the outbox and publishes events in insertion order.
type Forwarder struct {
	store    Store
	pub      Publisher
	batch    int
	interval time.Duration
}

// NewForwarder returns a Forwarder moving up to batch events every interval.
func NewForwarder(store Store, pub Publisher, batch int, interval time.Duration) *Forwarder {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Forwarder{store: store, pub: pub, batch: batch, interval: interval}
}

// Run forwards until ctx is cancelled.  A full batch is followed
// immediately by another poll.
func (f *Forwarder) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).WithField("component", "outbox")
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		n, err := f.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("outbox flush failed")
		}
		if n == f.batch && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Flush forwards one batch and returns how many events were published.
// Publishing stops at the first failure so ordering is kept; the events
// published before it are still marked.
func (f *Forwarder) Flush(ctx context.Context) (int, error) {
	events, err := f.store.Pending(ctx, f.batch)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	done := make([]uint64, 0, len(events))
	var pubErr error
	for _, ev := range events {
		if err := f.pub.Publish(ctx, ev.Type, ev.Payload, MessageID(ev.ID)); err != nil {
			pubErr = fmt.Errorf("forward event %d: %w", ev.ID, err)
			break
		}
		done = append(done, ev.ID)
	}
	if len(done) > 0 {
		if err := f.store.MarkPublished(ctx, done...); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
		metrics.OutboxForwarded.Add(float64(len(done)))
		logging.FromContext(ctx).WithFields(logrus.Fields{"forwarded": len(done)}).Debug("outbox events forwarded")
	}
	return len(done), pubErr
}

// MessageID is the broker message id of an outbox event.  It is stable
// across redeliveries.
func MessageID(id uint64) string { return "outbox-" + strconv.FormatUint(id, 10) }
