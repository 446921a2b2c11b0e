package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/intellibus/aimasterclass/core"
	admincore "github.com/intellibus/aimasterclass/core/admin"
)

// adminRepository serves the cross-table aggregates behind the admin pages.
type adminRepository struct {
	exec core.DBExecutor
}

var _ admincore.Repository = (*adminRepository)(nil) // interface compliance check

func NewAdminRepository(exec core.DBExecutor) *adminRepository {
	return &adminRepository{exec: exec}
}

func (repo adminRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo adminRepository) count(ctx context.Context, exec []core.DBExecutor, q string, args ...interface{}) (int, error) {
	var cnt int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, args...)
	return cnt, err
}

func (repo adminRepository) CountUsers(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM "user"`)
	return cnt, errors.Wrap(err, "counting users")
}

func (repo adminRepository) CountUsersActiveSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM "user" WHERE last_login_at >= $1`, since.UTC())
	return cnt, errors.Wrap(err, "counting active users")
}

func (repo adminRepository) CountUsersCreatedSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM "user" WHERE created_at >= $1`, since.UTC())
	return cnt, errors.Wrap(err, "counting new users")
}

func (repo adminRepository) CountUsersByTier(ctx context.Context, exec ...core.DBExecutor) (admincore.TierStats, error) {
	row := struct {
		Free int `db:"free"`
		Paid int `db:"paid"`
	}{}
	q := `
		SELECT
			COUNT(*) FILTER (WHERE tier = 'free') AS free,
			COUNT(*) FILTER (WHERE tier = 'paid') AS paid
		FROM "user"`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q); err != nil {
		return admincore.TierStats{}, errors.Wrap(err, "counting users by tier")
	}
	return admincore.TierStats(row), nil
}

func (repo adminRepository) CountPlayEvents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM video_event WHERE event_type = 'play'`)
	return cnt, errors.Wrap(err, "counting play events")
}

func (repo adminRepository) AvgWatchedSeconds(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var avg null.Float64
	q := `SELECT AVG(watched_seconds) FROM course_progress`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &avg, q); err != nil {
		return 0, errors.Wrap(err, "averaging watch time")
	}
	return int(avg.Float64), nil
}

// CompletionRate is the share of progress rows marked completed, 0..100.
func (repo adminRepository) CompletionRate(ctx context.Context, exec ...core.DBExecutor) (float64, error) {
	row := struct {
		Completed int `db:"completed"`
		Total     int `db:"total"`
	}{}
	q := `
		SELECT
			COUNT(*) FILTER (WHERE completed) AS completed,
			COUNT(*) AS total
		FROM course_progress`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q); err != nil {
		return 0, errors.Wrap(err, "computing completion rate")
	}
	if row.Total == 0 {
		return 0, nil
	}
	return float64(row.Completed) / float64(row.Total) * 100, nil
}

func (repo adminRepository) CountPendingDiscounts(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM discount_request WHERE status = 'pending'`)
	return cnt, errors.Wrap(err, "counting pending discounts")
}

func (repo adminRepository) CountEmailsSentSince(ctx context.Context, since time.Time, exec ...core.DBExecutor) (int, error) {
	cnt, err := repo.count(ctx, exec, `SELECT COUNT(*) FROM email_notification WHERE sent_at >= $1`, since.UTC())
	return cnt, errors.Wrap(err, "counting sent emails")
}

type userProgressRow struct {
	userRow
	CompletedModules int       `db:"completed_modules"`
	TotalModules     int       `db:"total_modules"`
	WatchTime        int       `db:"watch_time"`
	LastWatchedAt    null.Time `db:"last_watched_at"`
}

func (repo adminRepository) QueryUsersWithProgress(ctx context.Context, search, tier string, limit, offset int, exec ...core.DBExecutor) ([]admincore.UserProgress, int, error) {
	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if search != "" {
		val := "%" + search + "%"
		p := arg(val)
		clauses = append(clauses, fmt.Sprintf("(u.name ILIKE %s OR u.email ILIKE %s OR u.company ILIKE %s)", p, p, p))
	}
	if tier != "" {
		clauses = append(clauses, "u.tier = "+arg(tier))
	}
	var where string
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &total, `SELECT COUNT(*) FROM "user" u`+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	q := fmt.Sprintf(`
		SELECT
			u.id, u.name, u.email, u.company, u.job_title, u.tier, u.role, u.email_verified,
			u.paid_at, u.amount_paid, u.created_at, u.updated_at, u.last_login_at,
			COUNT(p.id) FILTER (WHERE p.completed) AS completed_modules,
			(SELECT COUNT(*) FROM course_module) AS total_modules,
			COALESCE(SUM(p.watched_seconds), 0) AS watch_time,
			MAX(p.last_watched_at) AS last_watched_at
		FROM "user" u
		LEFT JOIN course_progress p ON p.user_id = u.id
		%s
		GROUP BY u.id
		ORDER BY u.created_at DESC`, where)
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []userProgressRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying users with progress")
	}

	userRepo := userRepository{}
	out := make([]admincore.UserProgress, 0, len(rows))
	for _, row := range rows {
		up := admincore.UserProgress{
			User:             userRepo.unpack(row.userRow),
			CompletedModules: row.CompletedModules,
			WatchTimeSeconds: row.WatchTime,
		}
		totalMods := row.TotalModules
		if totalMods == 0 {
			totalMods = 6
		}
		up.OverallPercent = int(float64(row.CompletedModules) / float64(totalMods) * 100)
		if row.LastWatchedAt.Valid {
			t := row.LastWatchedAt.Time
			up.LastWatchedAt = &t
		}
		out = append(out, up)
	}
	return out, total, nil
}

type videoStatsRow struct {
	ModuleID        string  `db:"module_id"`
	Title           string  `db:"title"`
	Plays           int     `db:"plays"`
	UniqueViewers   int     `db:"unique_viewers"`
	Completions     int     `db:"completions"`
	AvgWatchSeconds float64 `db:"avg_watch_seconds"`
	ProgressRows    int     `db:"progress_rows"`
}

func (repo adminRepository) QueryVideoStats(ctx context.Context, limit int, exec ...core.DBExecutor) ([]admincore.VideoStats, error) {
	q := `
		SELECT
			m.slug AS module_id,
			m.title,
			COALESCE(e.plays, 0) AS plays,
			COALESCE(e.unique_viewers, 0) AS unique_viewers,
			COALESCE(p.completions, 0) AS completions,
			COALESCE(p.avg_watch_seconds, 0) AS avg_watch_seconds,
			COALESCE(p.progress_rows, 0) AS progress_rows
		FROM course_module m
		LEFT JOIN (
			SELECT module_id,
				COUNT(*) FILTER (WHERE event_type = 'play') AS plays,
				COUNT(DISTINCT user_id) FILTER (WHERE event_type = 'play') AS unique_viewers
			FROM video_event GROUP BY module_id
		) e ON e.module_id = m.slug
		LEFT JOIN (
			SELECT module_id,
				COUNT(*) FILTER (WHERE completed) AS completions,
				AVG(watched_seconds) AS avg_watch_seconds,
				COUNT(*) AS progress_rows
			FROM course_progress GROUP BY module_id
		) p ON p.module_id = m.slug
		ORDER BY plays DESC, m.ord`
	var args []interface{}
	if limit > 0 {
		args = append(args, limit)
		q += " LIMIT $1"
	}

	var rows []videoStatsRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying video stats")
	}

	out := make([]admincore.VideoStats, 0, len(rows))
	for _, row := range rows {
		vs := admincore.VideoStats{
			ModuleID:        row.ModuleID,
			Title:           row.Title,
			Plays:           row.Plays,
			UniqueViewers:   row.UniqueViewers,
			Completions:     row.Completions,
			AvgWatchSeconds: int(row.AvgWatchSeconds),
		}
		if row.ProgressRows > 0 {
			vs.CompletionRate = float64(row.Completions) / float64(row.ProgressRows) * 100
		}
		out = append(out, vs)
	}
	return out, nil
}

// QueryDropOffSpots buckets pause events into 10-second positions and
// ranks the clusters.
func (repo adminRepository) QueryDropOffSpots(ctx context.Context, moduleID string, limit int, exec ...core.DBExecutor) ([]admincore.DropOffSpot, error) {
	q := `
		SELECT (FLOOR(position / 10) * 10)::int AS position_seconds, COUNT(*) AS count
		FROM video_event
		WHERE module_id = $1 AND event_type = 'pause'
		GROUP BY position_seconds
		ORDER BY count DESC
		LIMIT $2`
	rows := []struct {
		PositionSeconds int `db:"position_seconds"`
		Count           int `db:"count"`
	}{}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, moduleID, limit); err != nil {
		return nil, errors.Wrap(err, "querying drop-off spots")
	}
	out := make([]admincore.DropOffSpot, 0, len(rows))
	for _, row := range rows {
		out = append(out, admincore.DropOffSpot(row))
	}
	return out, nil
}

func (repo adminRepository) QueryRecentActivity(ctx context.Context, limit int, exec ...core.DBExecutor) ([]admincore.Activity, error) {
	q := `
		SELECT type, user_email, detail, created_at FROM (
			SELECT 'signup' AS type, email AS user_email, '' AS detail, created_at
			FROM "user"
			UNION ALL
			SELECT 'video_event' AS type, u.email AS user_email,
				e.event_type || ' ' || e.module_id AS detail, e.created_at
			FROM video_event e
			JOIN "user" u ON u.id = e.user_id
		) activity
		ORDER BY created_at DESC
		LIMIT $1`
	rows := []struct {
		Type      string    `db:"type"`
		UserEmail string    `db:"user_email"`
		Detail    string    `db:"detail"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying recent activity")
	}
	out := make([]admincore.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, admincore.Activity(row))
	}
	return out, nil
}
