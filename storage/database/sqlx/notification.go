package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
)

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    null.String `db:"user_id"`
	Email     string      `db:"email"`
	Type      string      `db:"type"`
	Subject   string      `db:"subject"`
	Status    string      `db:"status"`
	Attempts  int         `db:"attempts"`
	SentAt    null.Time   `db:"sent_at"`
	OpenedAt  null.Time   `db:"opened_at"`
	ClickedAt null.Time   `db:"clicked_at"`
	CreatedAt time.Time   `db:"created_at"`
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{exec: exec}
}

func (repo notificationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo notificationRepository) pack(n notification.Notification) notificationRow {
	return notificationRow{
		ID:        n.ID,
		UserID:    null.NewString(n.UserID, n.UserID != ""),
		Email:     n.Email,
		Type:      n.Type,
		Subject:   n.Subject,
		Status:    n.Status,
		Attempts:  n.Attempts,
		SentAt:    null.NewTime(n.SentAt.UTC(), !n.SentAt.IsZero()),
		OpenedAt:  null.NewTime(n.OpenedAt.UTC(), !n.OpenedAt.IsZero()),
		ClickedAt: null.NewTime(n.ClickedAt.UTC(), !n.ClickedAt.IsZero()),
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func (repo notificationRepository) unpack(row notificationRow) notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID.String,
		Email:     row.Email,
		Type:      row.Type,
		Subject:   row.Subject,
		Status:    row.Status,
		Attempts:  row.Attempts,
		SentAt:    row.SentAt.Time,
		OpenedAt:  row.OpenedAt.Time,
		ClickedAt: row.ClickedAt.Time,
		CreatedAt: row.CreatedAt,
	}
}

const notificationColumns = `id, user_id, email, type, subject, status, attempts,
	sent_at, opened_at, clicked_at, created_at`

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	row := repo.pack(n)
	// DO NOTHING so losing a milestone uniqueness race cannot abort the
	// caller's transaction; zero rows inserted signals the duplicate.
	q := `
		INSERT INTO email_notification (id, user_id, email, type, subject, status, attempts,
			sent_at, opened_at, clicked_at, created_at)
		VALUES (:id, :user_id, :email, :type, :subject, :status, :attempts,
			:sent_at, :opened_at, :clicked_at, :created_at)
		ON CONFLICT DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	if nrows, err := res.RowsAffected(); err == nil && nrows == 0 {
		return notification.Notification{}, notification.ErrAlreadySent
	}
	return n, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	q := `SELECT ` + notificationColumns + ` FROM email_notification WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "finding notification")
	}
	return repo.unpack(row), nil
}

func (repo notificationRepository) ExistsOfType(ctx context.Context, userID, typ string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM email_notification WHERE user_id = $1 AND type = $2)`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, q, userID, typ); err != nil {
		return false, errors.Wrap(err, "checking notification existence")
	}
	return exists, nil
}

func (repo notificationRepository) QueryPending(ctx context.Context, limit int, exec ...core.DBExecutor) ([]notification.Notification, error) {
	var rows []notificationRow
	q := `SELECT ` + notificationColumns + ` FROM email_notification
		WHERE status = 'pending' ORDER BY created_at LIMIT $1`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying pending notifications")
	}
	out := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.unpack(row))
	}
	return out, nil
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	row := repo.pack(n)
	q := `
		UPDATE email_notification SET
			status = :status, attempts = :attempts, sent_at = :sent_at,
			opened_at = :opened_at, clicked_at = :clicked_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

func (repo notificationRepository) notificationFilterClauses(filter *notification.QueryFilter) (where string, args []interface{}) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.Search != "" {
		clauses = append(clauses, "email ILIKE "+arg("%"+filter.Search+"%"))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, filter *notification.QueryFilter, limit, offset int, exec ...core.DBExecutor) ([]notification.Notification, error) {
	where, args := repo.notificationFilterClauses(filter)

	q := `SELECT ` + notificationColumns + ` FROM email_notification` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	out := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.unpack(row))
	}
	return out, nil
}

func (repo notificationRepository) CountNotifications(ctx context.Context, filter *notification.QueryFilter, exec ...core.DBExecutor) (int, error) {
	where, args := repo.notificationFilterClauses(filter)
	var cnt int
	q := `SELECT COUNT(*) FROM email_notification` + where
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting notifications")
	}
	return cnt, nil
}

func (repo notificationRepository) CountByStatus(ctx context.Context, exec ...core.DBExecutor) (notification.StatusCounts, error) {
	var counts notification.StatusCounts
	q := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status IN ('sent', 'opened', 'clicked')) AS sent,
			COUNT(*) FILTER (WHERE status IN ('opened', 'clicked')) AS opened,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM email_notification`
	row := struct {
		Total   int `db:"total"`
		Sent    int `db:"sent"`
		Opened  int `db:"opened"`
		Pending int `db:"pending"`
		Failed  int `db:"failed"`
	}{}
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q); err != nil {
		return counts, errors.Wrap(err, "counting notifications by status")
	}
	counts = notification.StatusCounts(row)
	return counts, nil
}

func (repo notificationRepository) CountSentSince(ctx context.Context, t time.Time, exec ...core.DBExecutor) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM email_notification WHERE sent_at >= $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, t.UTC()); err != nil {
		return 0, errors.Wrap(err, "counting sent notifications")
	}
	return cnt, nil
}
