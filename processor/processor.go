// Package processor drains the Todoist event queue and applies each event
// to the owner's dashboard.
package processor

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/storage"
)

const defaultIdle = time.Second

type Queue interface {
	Dequeue(ctx context.Context) (*storage.Message, error)
	Delete(ctx context.Context, id, receipt string) error
}

type Publisher interface {
	Publish(ctx context.Context, u storage.Update) error
}

type Deduper interface {
	Add(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

type Processor struct {
	queue   Queue
	store   storage.DashboardStore
	pub     Publisher
	deduper Deduper
	logger  *log.Logger
	idle    time.Duration
	now     func() time.Time
}

// New creates a processor. pub and deduper may be nil.
func New(queue Queue, store storage.DashboardStore, pub Publisher, deduper Deduper, logger *log.Logger) *Processor {
	return &Processor{
		queue:   queue,
		store:   store,
		pub:     pub,
		deduper: deduper,
		logger:  logger,
		idle:    defaultIdle,
		now:     time.Now,
	}
}

// Run polls the queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("processor starting")
	for {
		if ctx.Err() != nil {
			p.logger.Info("processor stopped")
			return
		}
		handled, err := p.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.WithError(err).Error("processor.poll_failed")
		}
		if !handled || err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(p.idle):
			}
		}
	}
}

// Poll handles at most one message. It reports whether a message was found.
// A message is deleted once applied or when it cannot be decoded; failed
// applications stay queued and reappear after the visibility timeout.
func (p *Processor) Poll(ctx context.Context) (bool, error) {
	msg, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}
	entry := p.logger.WithField("message_id", msg.ID)
	if msg.DecodeErr != nil {
		entry.WithError(msg.DecodeErr).Warn("processor.poison_message")
		return true, p.queue.Delete(ctx, msg.ID, msg.PopReceipt)
	}
	if err := p.handle(ctx, msg.Event); err != nil {
		return true, err
	}
	return true, p.queue.Delete(ctx, msg.ID, msg.PopReceipt)
}

func (p *Processor) handle(ctx context.Context, ev domain.TodoistEvent) error {
	entry := p.logger.WithFields(log.Fields{
		"event_id":   ev.ID,
		"event_name": ev.EventName,
		"task_id":    ev.TaskID,
		"user":       ev.UserID,
	})
	if p.deduper != nil && ev.ID != "" {
		added, err := p.deduper.Add(ctx, ev.ID)
		if err != nil {
			entry.WithError(err).Warn("processor.dedupe_unavailable")
		} else if !added {
			entry.Debug("processor.duplicate_event")
			return nil
		}
	}
	changed, err := p.Apply(ctx, ev)
	if err != nil {
		if p.deduper != nil && ev.ID != "" {
			_ = p.deduper.Remove(ctx, ev.ID)
		}
		return err
	}
	entry.WithField("changed", changed).Info("processor.event_applied")
	return nil
}

// Apply loads the user's dashboard, applies ev and saves it when something
// changed. Subscribers are notified after a successful save.
func (p *Processor) Apply(ctx context.Context, ev domain.TodoistEvent) (bool, error) {
	if ev.UserID == "" {
		return false, errors.New("event without user")
	}
	d, err := p.store.LoadDashboard(ctx, ev.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !d.ApplyTodoistEvent(ev) {
		return false, nil
	}
	d.Touch(p.now())
	if err := p.store.SaveDashboard(ctx, d); err != nil {
		return false, err
	}
	if p.pub != nil {
		u := storage.Update{UserID: ev.UserID, Source: "todoist", At: p.now().UnixMilli()}
		if err := p.pub.Publish(ctx, u); err != nil {
			p.logger.WithError(err).WithField("user", ev.UserID).Error("processor.publish_failed")
		}
	}
	return true, nil
}
