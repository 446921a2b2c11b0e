package course

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrModuleNotFound = errors.New("module not found")
)

// defaultModuleCount is the curriculum size assumed before the module table
// is seeded. Overall percentages fall back to it so early progress writes
// do not report 100% after a single video.
const defaultModuleCount = 6

type Repository interface {
	GetProgress(ctx context.Context, userID, moduleID string, exec ...core.DBExecutor) (Progress, error)
	QueryProgressByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Progress, error)
	UpsertProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
	CountCompletedModules(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
	CountModules(ctx context.Context, exec ...core.DBExecutor) (int, error)
	QueryModules(ctx context.Context, exec ...core.DBExecutor) ([]Module, error)
	GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (Module, error)
	CreateVideoEvent(ctx context.Context, ev VideoEvent, exec ...core.DBExecutor) (VideoEvent, error)
}

// MilestoneNotifier is the slice of the notification service the course
// service needs. Enqueue must honor the exec so milestone rows commit or
// roll back with the progress write.
type MilestoneNotifier interface {
	AlreadySent(ctx context.Context, userID string, kind notification.Kind, exec ...core.DBExecutor) (bool, error)
	Enqueue(ctx context.Context, userID string, kind notification.Kind, exec ...core.DBExecutor) (notification.Notification, error)
}

type Service struct {
	db       core.DB
	repo     Repository
	notifier MilestoneNotifier
	logger   core.Logger
}

func NewService(db core.DB, repo Repository, notifier MilestoneNotifier, logger core.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// SaveProgress applies a watch event and returns the refreshed per-module and
// overall state. The progress upsert, event insert and any milestone rows
// commit in a single transaction.
func (svc *Service) SaveProgress(ctx context.Context, ev WatchEvent) (ProgressResult, error) {
	now := time.Now().UTC()

	var res ProgressResult
	err := core.Atomic(ctx, svc.db, func(exec core.DBExecutor) error {
		prev, err := svc.repo.GetProgress(ctx, ev.UserID, ev.ModuleID, exec)
		if err != nil && errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "loading progress")
		}

		p := prev
		p.UserID = ev.UserID
		p.ModuleID = ev.ModuleID
		p.LastWatchedAt = now
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if ev.WatchedSeconds > p.WatchedSeconds {
			p.WatchedSeconds = ev.WatchedSeconds
		}
		if ev.MaxPosition > p.MaxPosition {
			p.MaxPosition = ev.MaxPosition
		}
		if ev.Position > p.MaxPosition {
			p.MaxPosition = ev.Position
		}
		if ev.CompletionPct > p.CompletionPct {
			p.CompletionPct = ev.CompletionPct
		}
		if ev.Completed || ev.EventType == EventEnded || p.CompletionPct >= 100 {
			p.Completed = true
		}
		if p.Completed && !prev.Completed {
			p.CompletedAt = now
		}

		if p, err = svc.repo.UpsertProgress(ctx, p, exec); err != nil {
			return errors.Wrap(err, "saving progress")
		}

		vev := VideoEvent{
			UserID:    ev.UserID,
			ModuleID:  ev.ModuleID,
			EventType: ev.EventType,
			Position:  ev.Position,
			CreatedAt: now,
		}
		if vev.EventType == "" {
			vev.EventType = EventProgress
		}
		if _, err = svc.repo.CreateVideoEvent(ctx, vev, exec); err != nil {
			return errors.Wrap(err, "recording video event")
		}

		completed, total, overall, err := svc.overall(ctx, ev.UserID, exec)
		if err != nil {
			return err
		}

		for _, m := range crossedMilestones(overall) {
			kind := notification.Milestone{Percent: m}
			sent, err := svc.notifier.AlreadySent(ctx, ev.UserID, kind, exec)
			if err != nil {
				return errors.Wrapf(err, "checking %d%% milestone", m)
			}
			if sent {
				continue
			}
			if _, err = svc.notifier.Enqueue(ctx, ev.UserID, kind, exec); err != nil {
				// a concurrent write crossed the same threshold first;
				// the progress upsert must still commit
				if errors.Cause(err) == notification.ErrAlreadySent {
					continue
				}
				return errors.Wrapf(err, "queueing %d%% milestone email", m)
			}
		}

		res = ProgressResult{
			Progress:         p,
			OverallPercent:   overall,
			CompletedModules: completed,
			TotalModules:     total,
		}
		return nil
	})
	return res, err
}

// GetProgress returns a user's per-module rows plus the overall percentage.
func (svc *Service) GetProgress(ctx context.Context, userID string) ([]Progress, int, error) {
	rows, err := svc.repo.QueryProgressByUser(ctx, userID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying progress")
	}
	_, _, overall, err := svc.overall(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return rows, overall, nil
}

// Summary aggregates a user's progress for reporting emails and dashboards.
func (svc *Service) Summary(ctx context.Context, userID string, exec ...core.DBExecutor) (Summary, error) {
	rows, err := svc.repo.QueryProgressByUser(ctx, userID, exec...)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying progress")
	}

	s := Summary{UserID: userID, Modules: rows}
	var lastWatched time.Time
	for _, p := range rows {
		s.WatchTimeSeconds += p.WatchedSeconds
		if p.Completed {
			s.CompletedModules++
		} else {
			s.InProgressModules++
		}
		if p.LastWatchedAt.After(lastWatched) {
			lastWatched = p.LastWatchedAt
		}
	}
	if !lastWatched.IsZero() {
		s.LastWatchedAt = &lastWatched
	}

	_, total, overall, err := svc.overall(ctx, userID, exec...)
	if err != nil {
		return Summary{}, err
	}
	s.TotalModules = total
	s.CompletionPercentage = overall
	return s, nil
}

func (svc *Service) Modules(ctx context.Context) ([]Module, error) {
	return svc.repo.QueryModules(ctx)
}

// CheckMilestones queues the milestone email for an exact threshold hit,
// reporting whether one was queued. Callers that already know the overall
// percentage (rather than a watch event) use this.
func (svc *Service) CheckMilestones(ctx context.Context, userID string, percent int) (bool, error) {
	var hit bool
	for _, m := range milestoneThresholds {
		if m == percent {
			hit = true
		}
	}
	if !hit {
		return false, nil
	}

	kind := notification.Milestone{Percent: percent}
	sent, err := svc.notifier.AlreadySent(ctx, userID, kind)
	if err != nil {
		return false, errors.Wrapf(err, "checking %d%% milestone", percent)
	}
	if sent {
		return false, nil
	}
	if _, err = svc.notifier.Enqueue(ctx, userID, kind); err != nil {
		return false, errors.Wrapf(err, "queueing %d%% milestone email", percent)
	}
	return true, nil
}

func (svc *Service) overall(ctx context.Context, userID string, exec ...core.DBExecutor) (completed, total, percent int, err error) {
	if completed, err = svc.repo.CountCompletedModules(ctx, userID, exec...); err != nil {
		return 0, 0, 0, errors.Wrap(err, "counting completed modules")
	}
	if total, err = svc.repo.CountModules(ctx, exec...); err != nil {
		return 0, 0, 0, errors.Wrap(err, "counting modules")
	}
	if total == 0 {
		total = defaultModuleCount
	}
	percent = int(math.Round(float64(completed) / float64(total) * 100))
	return completed, total, percent, nil
}
