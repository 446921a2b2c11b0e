package main

import (
	"context"
	"time"

	"github.com/intellibus/aimasterclass/core/notification"
)

// sendReminders emails every account inactive for at least `days` days.
// Accounts that already received a reminder or finished the course are
// skipped. Rows are enqueued first, then drained inline so the command
// does not depend on the API process being up.
func (cli *commandLine) sendReminders(days int) error {
	ctx := context.Background()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	users, err := cli.usrRepo.QueryUsers(ctx, nil, nil, 0, 0)
	if err != nil {
		return err
	}

	var queued int
	for _, usr := range users {
		if usr.LastLoginAt.IsZero() || usr.LastLoginAt.After(cutoff) {
			continue
		}
		if sent, err := cli.notifSvc.AlreadySent(ctx, usr.ID, notification.Reminder{}); err != nil {
			return err
		} else if sent {
			continue
		}
		if done, err := cli.notifSvc.AlreadySent(ctx, usr.ID, notification.Milestone{Percent: 100}); err != nil {
			return err
		} else if done {
			continue
		}
		if _, err := cli.notifSvc.Enqueue(ctx, usr.ID, notification.Reminder{}); err != nil {
			return err
		}
		queued++
	}

	outbox := notification.NewOutbox(cli.notifSvc)
	var delivered int
	for {
		n, err := outbox.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		delivered += n
	}

	std.Printf("queued %d reminder(s), processed %d outbox row(s)\n", queued, delivered)
	return nil
}
