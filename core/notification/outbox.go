package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core/user"
)

const (
	defaultOutboxInterval = 15 * time.Second
	defaultOutboxBatch    = 50
	defaultMaxAttempts    = 3
)

// Outbox delivers pending notification rows in the background. Progress
// writes enqueue rows in their own transaction and return immediately; the
// worker picks them up on the next tick (or kick), so a crash between the
// progress write and the send leaves a durable pending row instead of a
// silently lost email.
type Outbox struct {
	svc         *Service
	interval    time.Duration
	batchSize   int
	maxAttempts int
	kick        chan struct{}
}

func NewOutbox(svc *Service) *Outbox {
	return &Outbox{
		svc:         svc,
		interval:    defaultOutboxInterval,
		batchSize:   defaultOutboxBatch,
		maxAttempts: defaultMaxAttempts,
		kick:        make(chan struct{}, 1),
	}
}

// Kick asks the worker to process the queue before its next tick.
// Non-blocking; safe from request handlers.
func (o *Outbox) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Run processes the queue until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.kick:
		}
		if _, err := o.ProcessOnce(ctx); err != nil {
			o.svc.logger.Error(fmt.Sprintf("notification outbox: %v", err), err)
		}
	}
}

// ProcessOnce drains one batch of pending rows and returns how many were
// delivered (sent or logged).
func (o *Outbox) ProcessOnce(ctx context.Context) (int, error) {
	rows, err := o.svc.repo.QueryPending(ctx, o.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "querying pending notifications")
	}

	var delivered int
	for _, n := range rows {
		if err = ctx.Err(); err != nil {
			return delivered, err
		}
		if o.deliverPending(ctx, n) {
			delivered++
		}
	}
	return delivered, nil
}

// deliverPending attempts one pending row. Failures are retried on later
// ticks until maxAttempts, then marked failed; they never propagate.
func (o *Outbox) deliverPending(ctx context.Context, n Notification) bool {
	svc := o.svc

	fail := func(reason string) {
		n.Status = StatusFailed
		if _, err := svc.repo.UpdateNotification(ctx, n); err != nil {
			svc.logger.Error(fmt.Sprintf("outbox: marking %s failed: %v", n.ID, err), err)
		}
		svc.logger.Warn(fmt.Sprintf("outbox: dropping notification %s (%s): %s", n.ID, n.Type, reason))
	}

	kind, ok := kindFromStored(n.Type)
	if !ok {
		fail("type cannot be rebuilt from storage")
		return false
	}

	usr, err := svc.users.GetUserByID(ctx, n.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			fail("user no longer exists")
		} else {
			svc.logger.Error(fmt.Sprintf("outbox: loading user for %s: %v", n.ID, err), err)
		}
		return false
	}

	if err = svc.deliver(&n, usr, kind); err != nil {
		svc.logger.Error(fmt.Sprintf("outbox: delivering %s: %v", n.ID, err), err)
		if n.Attempts < o.maxAttempts {
			n.Status = StatusPending // retry on a later tick
		}
		if _, uerr := svc.repo.UpdateNotification(ctx, n); uerr != nil {
			svc.logger.Error(fmt.Sprintf("outbox: updating %s: %v", n.ID, uerr), uerr)
		}
		return false
	}

	if _, err = svc.repo.UpdateNotification(ctx, n); err != nil {
		svc.logger.Error(fmt.Sprintf("outbox: updating %s: %v", n.ID, err), err)
		return false
	}
	return true
}
