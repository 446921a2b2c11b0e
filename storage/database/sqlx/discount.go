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

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/discount"
)

type discountRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Company   string    `db:"company"`
	JobTitle  string    `db:"job_title"`
	Status    string    `db:"status"`
	Code      string    `db:"code"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type discountRepository struct {
	exec core.DBExecutor
}

var _ discount.Repository = (*discountRepository)(nil) // interface compliance check

func NewDiscountRepository(exec core.DBExecutor) *discountRepository {
	return &discountRepository{exec: exec}
}

func (repo discountRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

const discountColumns = `id, name, email, company, job_title, status, code, created_at, updated_at`

func (repo discountRepository) CreateRequest(ctx context.Context, req discount.Request, exec ...core.DBExecutor) (discount.Request, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	q := `
		INSERT INTO discount_request (id, name, email, company, job_title, status, code, created_at, updated_at)
		VALUES (:id, :name, :email, :company, :job_title, :status, :code, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, discountRow(req)); err != nil {
		return discount.Request{}, errors.Wrap(err, "inserting discount request")
	}
	return req, nil
}

func (repo discountRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (discount.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return discount.Request{}, discount.ErrNotFound
	}
	var row discountRow
	q := `SELECT ` + discountColumns + ` FROM discount_request WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return discount.Request{}, discount.ErrNotFound
		}
		return discount.Request{}, errors.Wrap(err, "finding discount request")
	}
	return discount.Request(row), nil
}

func (repo discountRepository) UpdateRequest(ctx context.Context, req discount.Request, exec ...core.DBExecutor) (discount.Request, error) {
	q := `
		UPDATE discount_request SET
			status = :status, code = :code, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, discountRow(req))
	if err != nil {
		return discount.Request{}, errors.Wrap(err, "updating discount request")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return discount.Request{}, discount.ErrNotFound
	}
	return req, nil
}

func (repo discountRepository) discountFilterClauses(filter *discount.QueryFilter) (where string, args []interface{}) {
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
		val := "%" + filter.Search + "%"
		p := arg(val)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s OR company ILIKE %s)", p, p, p))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (repo discountRepository) QueryRequests(ctx context.Context, filter *discount.QueryFilter, limit, offset int, exec ...core.DBExecutor) ([]discount.Request, error) {
	where, args := repo.discountFilterClauses(filter)

	q := `SELECT ` + discountColumns + ` FROM discount_request` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []discountRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying discount requests")
	}
	out := make([]discount.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, discount.Request(row))
	}
	return out, nil
}

func (repo discountRepository) CountRequests(ctx context.Context, filter *discount.QueryFilter, exec ...core.DBExecutor) (int, error) {
	where, args := repo.discountFilterClauses(filter)
	var cnt int
	q := `SELECT COUNT(*) FROM discount_request` + where
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting discount requests")
	}
	return cnt, nil
}

func (repo discountRepository) CountPendingRequests(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var cnt int
	q := `SELECT COUNT(*) FROM discount_request WHERE status = 'pending'`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q); err != nil {
		return 0, errors.Wrap(err, "counting pending discount requests")
	}
	return cnt, nil
}
