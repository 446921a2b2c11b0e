package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

// SeedModules loads the module table; tests call it to control the
// curriculum size.
func (repo *courseRepository) SeedModules(mods ...course.Module) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range mods {
		m := mods[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		repo.db.modules[m.Slug] = &m
	}
}

func (repo *courseRepository) GetProgress(_ context.Context, userID, moduleID string, _ ...core.DBExecutor) (course.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.progress[progressKey(userID, moduleID)]; ok {
		return *p, nil
	}
	return course.Progress{}, course.ErrNotFound
}

func (repo *courseRepository) QueryProgressByUser(_ context.Context, userID string, _ ...core.DBExecutor) ([]course.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	out := make([]course.Progress, 0)
	for _, p := range repo.db.progress {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

func (repo *courseRepository) UpsertProgress(_ context.Context, p course.Progress, _ ...core.DBExecutor) (course.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := progressKey(p.UserID, p.ModuleID)
	if prev, ok := repo.db.progress[key]; ok {
		p.ID = prev.ID
	} else if p.ID == "" {
		p.ID = uuid.New().String()
	}
	repo.db.progress[key] = &p
	return p, nil
}

func (repo *courseRepository) CountCompletedModules(_ context.Context, userID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, p := range repo.db.progress {
		if p.UserID == userID && p.Completed {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *courseRepository) CountModules(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.modules), nil
}

func (repo *courseRepository) QueryModules(_ context.Context, _ ...core.DBExecutor) ([]course.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	mods := make([]course.Module, 0, len(repo.db.modules))
	for _, m := range repo.db.modules {
		mods = append(mods, *m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })
	return mods, nil
}

func (repo *courseRepository) GetModule(_ context.Context, id string, _ ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.modules[id]; ok {
		return *m, nil
	}
	for _, m := range repo.db.modules {
		if m.ID == id {
			return *m, nil
		}
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *courseRepository) CreateVideoEvent(_ context.Context, ev course.VideoEvent, _ ...core.DBExecutor) (course.VideoEvent, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	repo.db.events = append(repo.db.events, ev)
	return ev, nil
}
