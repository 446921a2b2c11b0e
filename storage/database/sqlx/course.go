package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/course"
)

type progressRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	ModuleID       string    `db:"module_id"`
	WatchedSeconds int       `db:"watched_seconds"`
	MaxPosition    float64   `db:"max_position"`
	CompletionPct  float64   `db:"completion_pct"`
	Completed      bool      `db:"completed"`
	CompletedAt    null.Time `db:"completed_at"`
	LastWatchedAt  time.Time `db:"last_watched_at"`
	CreatedAt      time.Time `db:"created_at"`
}

type moduleRow struct {
	ID       string `db:"id"`
	Slug     string `db:"slug"`
	Title    string `db:"title"`
	Duration int    `db:"duration"`
	Tier     string `db:"tier"`
	Order    int    `db:"ord"`
}

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo courseRepository) pack(p course.Progress) progressRow {
	return progressRow{
		ID:             p.ID,
		UserID:         p.UserID,
		ModuleID:       p.ModuleID,
		WatchedSeconds: p.WatchedSeconds,
		MaxPosition:    p.MaxPosition,
		CompletionPct:  p.CompletionPct,
		Completed:      p.Completed,
		CompletedAt:    null.NewTime(p.CompletedAt.UTC(), !p.CompletedAt.IsZero()),
		LastWatchedAt:  p.LastWatchedAt.UTC(),
		CreatedAt:      p.CreatedAt.UTC(),
	}
}

func (repo courseRepository) unpack(row progressRow) course.Progress {
	return course.Progress{
		ID:             row.ID,
		UserID:         row.UserID,
		ModuleID:       row.ModuleID,
		WatchedSeconds: row.WatchedSeconds,
		MaxPosition:    row.MaxPosition,
		CompletionPct:  row.CompletionPct,
		Completed:      row.Completed,
		CompletedAt:    row.CompletedAt.Time,
		LastWatchedAt:  row.LastWatchedAt,
		CreatedAt:      row.CreatedAt,
	}
}

const progressColumns = `id, user_id, module_id, watched_seconds, max_position,
	completion_pct, completed, completed_at, last_watched_at, created_at`

func (repo courseRepository) GetProgress(ctx context.Context, userID, moduleID string, exec ...core.DBExecutor) (course.Progress, error) {
	var row progressRow
	q := `SELECT ` + progressColumns + ` FROM course_progress WHERE user_id = $1 AND module_id = $2`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, userID, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return course.Progress{}, course.ErrNotFound
		}
		return course.Progress{}, errors.Wrap(err, "finding progress")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) QueryProgressByUser(ctx context.Context, userID string, exec ...core.DBExecutor) ([]course.Progress, error) {
	var rows []progressRow
	q := `SELECT ` + progressColumns + ` FROM course_progress WHERE user_id = $1 ORDER BY module_id`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	out := make([]course.Progress, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.unpack(row))
	}
	return out, nil
}

func (repo courseRepository) UpsertProgress(ctx context.Context, p course.Progress, exec ...core.DBExecutor) (course.Progress, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	row := repo.pack(p)
	q := `
		INSERT INTO course_progress (id, user_id, module_id, watched_seconds, max_position,
			completion_pct, completed, completed_at, last_watched_at, created_at)
		VALUES (:id, :user_id, :module_id, :watched_seconds, :max_position,
			:completion_pct, :completed, :completed_at, :last_watched_at, :created_at)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			watched_seconds = EXCLUDED.watched_seconds,
			max_position = EXCLUDED.max_position,
			completion_pct = EXCLUDED.completion_pct,
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at,
			last_watched_at = EXCLUDED.last_watched_at`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Progress{}, errors.Wrap(err, "saving progress")
	}
	return p, nil
}

func (repo courseRepository) CountCompletedModules(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM course_progress WHERE user_id = $1 AND completed`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, userID); err != nil {
		return 0, errors.Wrap(err, "counting completed modules")
	}
	return cnt, nil
}

func (repo courseRepository) CountModules(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, `SELECT COUNT(*) FROM course_module`); err != nil {
		return 0, errors.Wrap(err, "counting modules")
	}
	return cnt, nil
}

func (repo courseRepository) QueryModules(ctx context.Context, exec ...core.DBExecutor) ([]course.Module, error) {
	var rows []moduleRow
	q := `SELECT id, slug, title, duration, tier, ord FROM course_module ORDER BY ord`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	mods := make([]course.Module, 0, len(rows))
	for _, row := range rows {
		mods = append(mods, course.Module(row))
	}
	return mods, nil
}

func (repo courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	var row moduleRow
	q := `SELECT id, slug, title, duration, tier, ord FROM course_module WHERE id::text = $1 OR slug = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Module{}, course.ErrModuleNotFound
		}
		return course.Module{}, errors.Wrap(err, "finding module")
	}
	return course.Module(row), nil
}

func (repo courseRepository) CreateVideoEvent(ctx context.Context, ev course.VideoEvent, exec ...core.DBExecutor) (course.VideoEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	q := `
		INSERT INTO video_event (id, user_id, module_id, event_type, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.getExec(exec).ExecContext(ctx, q, ev.ID, ev.UserID, ev.ModuleID, ev.EventType, ev.Position, ev.CreatedAt.UTC())
	if err != nil {
		return course.VideoEvent{}, errors.Wrap(err, "recording video event")
	}
	return ev, nil
}
