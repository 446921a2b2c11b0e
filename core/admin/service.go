package admin

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/intellibus/aimasterclass/core"
)

const (
	recentUsersLimit    = 10
	topVideosLimit      = 5
	recentActivityLimit = 20
	dropOffSpotsLimit   = 5
)

// Repository provides the read-only aggregates behind the admin pages.
// Everything here spans tables owned by other packages, so it gets its own
// store instead of piggybacking on theirs.
type Repository interface {
	CountUsers(ctx context.Context, exec ...core.DBExecutor) (int, error)
	CountUsersActiveSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error)
	CountUsersCreatedSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error)
	CountUsersByTier(ctx context.Context, exec ...core.DBExecutor) (TierStats, error)
	CountPlayEvents(ctx context.Context, exec ...core.DBExecutor) (int, error)
	AvgWatchedSeconds(ctx context.Context, exec ...core.DBExecutor) (int, error)
	CompletionRate(ctx context.Context, exec ...core.DBExecutor) (float64, error)
	CountPendingDiscounts(ctx context.Context, exec ...core.DBExecutor) (int, error)
	CountEmailsSentSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error)
	QueryUsersWithProgress(ctx context.Context, search, tier string, limit, offset int, exec ...core.DBExecutor) ([]UserProgress, int, error)
	QueryVideoStats(ctx context.Context, limit int, exec ...core.DBExecutor) ([]VideoStats, error)
	QueryDropOffSpots(ctx context.Context, moduleID string, limit int, exec ...core.DBExecutor) ([]DropOffSpot, error)
	QueryRecentActivity(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Activity, error)
}

type Service struct {
	repo   Repository
	logger core.Logger
}

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Dashboard assembles the overview stats. Aggregates are independent reads;
// a page render does not need them from one snapshot.
func (svc *Service) Dashboard(ctx context.Context) (DashboardStats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var stats DashboardStats
	var err error

	if stats.TotalUsers, err = svc.repo.CountUsers(ctx); err != nil {
		return stats, errors.Wrap(err, "counting users")
	}
	if stats.ActiveToday, err = svc.repo.CountUsersActiveSince(ctx, dayStart); err != nil {
		return stats, errors.Wrap(err, "counting active users")
	}
	if stats.NewThisWeek, err = svc.repo.CountUsersCreatedSince(ctx, weekAgo); err != nil {
		return stats, errors.Wrap(err, "counting new users")
	}
	if stats.TotalPlays, err = svc.repo.CountPlayEvents(ctx); err != nil {
		return stats, errors.Wrap(err, "counting play events")
	}
	if stats.AvgWatchSeconds, err = svc.repo.AvgWatchedSeconds(ctx); err != nil {
		return stats, errors.Wrap(err, "averaging watch time")
	}
	if stats.CompletionRate, err = svc.repo.CompletionRate(ctx); err != nil {
		return stats, errors.Wrap(err, "computing completion rate")
	}
	if stats.PendingDiscounts, err = svc.repo.CountPendingDiscounts(ctx); err != nil {
		return stats, errors.Wrap(err, "counting pending discounts")
	}
	if stats.EmailsSentThisMonth, err = svc.repo.CountEmailsSentSince(ctx, monthStart); err != nil {
		return stats, errors.Wrap(err, "counting sent emails")
	}
	if stats.RecentUsers, _, err = svc.repo.QueryUsersWithProgress(ctx, "", "", recentUsersLimit, 0); err != nil {
		return stats, errors.Wrap(err, "querying recent users")
	}
	if stats.TopVideos, err = svc.repo.QueryVideoStats(ctx, topVideosLimit); err != nil {
		return stats, errors.Wrap(err, "querying top videos")
	}
	if stats.RecentActivity, err = svc.repo.QueryRecentActivity(ctx, recentActivityLimit); err != nil {
		return stats, errors.Wrap(err, "querying recent activity")
	}
	return stats, nil
}

// Users returns a page of users with progress aggregates, the unpaged
// total, and the tier breakdown.
func (svc *Service) Users(ctx context.Context, search, tier string, limit, offset int) ([]UserProgress, int, TierStats, error) {
	search = core.CleanString(search)
	tier = core.CleanString(tier, true)
	if tier == "all" {
		tier = ""
	}

	rows, total, err := svc.repo.QueryUsersWithProgress(ctx, search, tier, limit, offset)
	if err != nil {
		return nil, 0, TierStats{}, errors.Wrap(err, "querying users")
	}
	tiers, err := svc.repo.CountUsersByTier(ctx)
	if err != nil {
		return nil, 0, TierStats{}, errors.Wrap(err, "counting tiers")
	}
	return rows, total, tiers, nil
}

// VideoAnalytics returns per-module engagement stats with pause drop-off
// clusters attached.
func (svc *Service) VideoAnalytics(ctx context.Context) ([]VideoStats, error) {
	stats, err := svc.repo.QueryVideoStats(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "querying video stats")
	}
	for i := range stats {
		spots, err := svc.repo.QueryDropOffSpots(ctx, stats[i].ModuleID, dropOffSpotsLimit)
		if err != nil {
			return nil, errors.Wrapf(err, "querying drop-offs for %s", stats[i].ModuleID)
		}
		stats[i].DropOffPoints = spots
	}
	return stats, nil
}
