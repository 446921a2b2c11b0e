package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/intellibus/aimasterclass/core"
	admincore "github.com/intellibus/aimasterclass/core/admin"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/user"
)

type adminRepository struct {
	db *DB
}

var _ admincore.Repository = (*adminRepository)(nil) // interface compliance check

func NewAdminRepository(db *DB) *adminRepository {
	return &adminRepository{db: db}
}

func (repo *adminRepository) CountUsers(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.users), nil
}

func (repo *adminRepository) CountUsersActiveSince(_ context.Context, since time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, usr := range repo.db.users {
		if !usr.LastLoginAt.IsZero() && !usr.LastLoginAt.Before(since) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *adminRepository) CountUsersCreatedSince(_ context.Context, since time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, usr := range repo.db.users {
		if !usr.CreatedAt.Before(since) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *adminRepository) CountUsersByTier(_ context.Context, _ ...core.DBExecutor) (admincore.TierStats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var stats admincore.TierStats
	for _, usr := range repo.db.users {
		switch usr.Tier {
		case user.TierFree:
			stats.Free++
		case user.TierPaid:
			stats.Paid++
		}
	}
	return stats, nil
}

func (repo *adminRepository) CountPlayEvents(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, ev := range repo.db.events {
		if ev.EventType == course.EventPlay {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *adminRepository) AvgWatchedSeconds(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if len(repo.db.progress) == 0 {
		return 0, nil
	}
	var sum int
	for _, p := range repo.db.progress {
		sum += p.WatchedSeconds
	}
	return sum / len(repo.db.progress), nil
}

func (repo *adminRepository) CompletionRate(_ context.Context, _ ...core.DBExecutor) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if len(repo.db.progress) == 0 {
		return 0, nil
	}
	var completed int
	for _, p := range repo.db.progress {
		if p.Completed {
			completed++
		}
	}
	return float64(completed) / float64(len(repo.db.progress)) * 100, nil
}

func (repo *adminRepository) CountPendingDiscounts(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, req := range repo.db.discounts {
		if req.Status == discount.StatusPending {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *adminRepository) CountEmailsSentSince(_ context.Context, since time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, n := range repo.db.notifications {
		if !n.SentAt.IsZero() && !n.SentAt.Before(since) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *adminRepository) QueryUsersWithProgress(_ context.Context, search, tier string, limit, offset int, _ ...core.DBExecutor) ([]admincore.UserProgress, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	totalMods := len(repo.db.modules)
	if totalMods == 0 {
		totalMods = 6
	}

	out := make([]admincore.UserProgress, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if search != "" {
			s := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(usr.Name), s) &&
				!strings.Contains(strings.ToLower(usr.Email), s) &&
				!strings.Contains(strings.ToLower(usr.Company), s) {
				continue
			}
		}
		if tier != "" && usr.Tier != tier {
			continue
		}

		up := admincore.UserProgress{User: *usr}
		var lastWatched time.Time
		for _, p := range repo.db.progress {
			if p.UserID != usr.ID {
				continue
			}
			up.WatchTimeSeconds += p.WatchedSeconds
			if p.Completed {
				up.CompletedModules++
			}
			if p.LastWatchedAt.After(lastWatched) {
				lastWatched = p.LastWatchedAt
			}
		}
		if !lastWatched.IsZero() {
			t := lastWatched
			up.LastWatchedAt = &t
		}
		up.OverallPercent = up.CompletedModules * 100 / totalMods
		out = append(out, up)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if limit > 0 {
		if offset >= len(out) {
			return []admincore.UserProgress{}, total, nil
		}
		end := offset + limit
		if end > len(out) {
			end = len(out)
		}
		out = out[offset:end]
	}
	return out, total, nil
}

func (repo *adminRepository) QueryVideoStats(_ context.Context, limit int, _ ...core.DBExecutor) ([]admincore.VideoStats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mods := make([]course.Module, 0, len(repo.db.modules))
	for _, m := range repo.db.modules {
		mods = append(mods, *m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })

	out := make([]admincore.VideoStats, 0, len(mods))
	for _, m := range mods {
		vs := admincore.VideoStats{ModuleID: m.Slug, Title: m.Title}
		viewers := make(map[string]struct{})
		for _, ev := range repo.db.events {
			if ev.ModuleID != m.Slug || ev.EventType != course.EventPlay {
				continue
			}
			vs.Plays++
			viewers[ev.UserID] = struct{}{}
		}
		vs.UniqueViewers = len(viewers)

		var rows, watchSum int
		for _, p := range repo.db.progress {
			if p.ModuleID != m.Slug {
				continue
			}
			rows++
			watchSum += p.WatchedSeconds
			if p.Completed {
				vs.Completions++
			}
		}
		if rows > 0 {
			vs.AvgWatchSeconds = watchSum / rows
			vs.CompletionRate = float64(vs.Completions) / float64(rows) * 100
		}
		out = append(out, vs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Plays > out[j].Plays })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (repo *adminRepository) QueryDropOffSpots(_ context.Context, moduleID string, limit int, _ ...core.DBExecutor) ([]admincore.DropOffSpot, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	buckets := make(map[int]int)
	for _, ev := range repo.db.events {
		if ev.ModuleID != moduleID || ev.EventType != course.EventPause {
			continue
		}
		bucket := int(ev.Position/10) * 10
		buckets[bucket]++
	}

	out := make([]admincore.DropOffSpot, 0, len(buckets))
	for pos, cnt := range buckets {
		out = append(out, admincore.DropOffSpot{PositionSeconds: pos, Count: cnt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PositionSeconds < out[j].PositionSeconds
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (repo *adminRepository) QueryRecentActivity(_ context.Context, limit int, _ ...core.DBExecutor) ([]admincore.Activity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]admincore.Activity, 0)
	for _, usr := range repo.db.users {
		out = append(out, admincore.Activity{
			Type:      "signup",
			UserEmail: usr.Email,
			CreatedAt: usr.CreatedAt,
		})
	}
	for _, ev := range repo.db.events {
		var email string
		if usr, ok := repo.db.users[ev.UserID]; ok {
			email = usr.Email
		}
		out = append(out, admincore.Activity{
			Type:      "video_event",
			UserEmail: email,
			Detail:    ev.EventType + " " + ev.ModuleID,
			CreatedAt: ev.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
