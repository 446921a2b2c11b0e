package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if strings.HasPrefix(n.Type, "milestone_") {
		for _, row := range repo.db.notifications {
			if row.UserID == n.UserID && row.Type == n.Type {
				return notification.Notification{}, notification.ErrAlreadySent
			}
		}
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	repo.db.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) ExistsOfType(_ context.Context, userID, typ string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.notifications {
		if n.UserID == userID && n.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (repo *notificationRepository) QueryPending(_ context.Context, limit int, _ ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.Status == notification.StatusPending {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.notifications[n.ID]; !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	repo.db.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) matches(n notification.Notification, filter *notification.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Status != "" && n.Status != filter.Status {
		return false
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(n.Email), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter *notification.QueryFilter, limit, offset int, _ ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if repo.matches(*n, filter) {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit <= 0 {
		return out, nil
	}
	if offset >= len(out) {
		return []notification.Notification{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (repo *notificationRepository) CountNotifications(_ context.Context, filter *notification.QueryFilter, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, n := range repo.db.notifications {
		if repo.matches(*n, filter) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) CountByStatus(_ context.Context, _ ...core.DBExecutor) (notification.StatusCounts, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var counts notification.StatusCounts
	for _, n := range repo.db.notifications {
		counts.Total++
		switch n.Status {
		case notification.StatusSent:
			counts.Sent++
		case notification.StatusOpened:
			counts.Sent++
			counts.Opened++
		case notification.StatusClicked:
			counts.Sent++
			counts.Opened++
		case notification.StatusPending:
			counts.Pending++
		case notification.StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (repo *notificationRepository) CountSentSince(_ context.Context, t time.Time, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, n := range repo.db.notifications {
		if !n.SentAt.IsZero() && !n.SentAt.Before(t) {
			cnt++
		}
	}
	return cnt, nil
}
