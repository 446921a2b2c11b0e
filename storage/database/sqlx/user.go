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
	"github.com/intellibus/aimasterclass/core/user"
)

type userRow struct {
	ID            string      `db:"id"`
	Name          null.String `db:"name"`
	Email         string      `db:"email"`
	Company       null.String `db:"company"`
	JobTitle      null.String `db:"job_title"`
	Tier          string      `db:"tier"`
	Role          string      `db:"role"`
	EmailVerified bool        `db:"email_verified"`
	PaidAt        null.Time   `db:"paid_at"`
	AmountPaid    int         `db:"amount_paid"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	LastLoginAt   null.Time   `db:"last_login_at"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo userRepository) pack(usr user.User) userRow {
	return userRow{
		ID:            usr.ID,
		Name:          null.NewString(usr.Name, usr.Name != ""),
		Email:         usr.Email,
		Company:       null.NewString(usr.Company, usr.Company != ""),
		JobTitle:      null.NewString(usr.JobTitle, usr.JobTitle != ""),
		Tier:          usr.Tier,
		Role:          usr.Role,
		EmailVerified: usr.EmailVerified,
		PaidAt:        null.NewTime(usr.PaidAt.UTC(), !usr.PaidAt.IsZero()),
		AmountPaid:    usr.AmountPaid,
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLoginAt:   null.NewTime(usr.LastLoginAt.UTC(), !usr.LastLoginAt.IsZero()),
	}
}

func (repo userRepository) unpack(row userRow) user.User {
	return user.User{
		ID:            row.ID,
		Name:          row.Name.String,
		Email:         row.Email,
		Company:       row.Company.String,
		JobTitle:      row.JobTitle.String,
		Tier:          row.Tier,
		Role:          row.Role,
		EmailVerified: row.EmailVerified,
		PaidAt:        row.PaidAt.Time,
		AmountPaid:    row.AmountPaid,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastLoginAt:   row.LastLoginAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userColumns = `id, name, email, company, job_title, tier, role, email_verified,
	paid_at, amount_paid, created_at, updated_at, last_login_at`

// orderableUserColumns whitelists ORDER BY targets; ordering fields come
// from the query string and must never reach the SQL text unchecked.
var orderableUserColumns = map[string]bool{
	"name":          true,
	"email":         true,
	"company":       true,
	"job_title":     true,
	"tier":          true,
	"role":          true,
	"paid_at":       true,
	"created_at":    true,
	"updated_at":    true,
	"last_login_at": true,
}

func userOrderClause(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if !orderableUserColumns[ord.Field] {
			continue
		}
		orderList = append(orderList, ord.String())
	}
	if len(orderList) == 0 {
		return " ORDER BY created_at DESC"
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	usr.UpdatedAt = now

	row := repo.pack(usr)
	q := `
		INSERT INTO "user" (id, name, email, company, job_title, tier, role, email_verified,
			paid_at, amount_paid, created_at, updated_at, last_login_at)
		VALUES (:id, :name, :email, :company, :job_title, :tier, :role, :email_verified,
			:paid_at, :amount_paid, :created_at, :updated_at, :last_login_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE id = $1`, userColumns)
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE LOWER(email) = LOWER($1)`, userColumns)
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, email); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user by email")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) userFilterClauses(filter *user.QueryFilter) (where string, args []interface{}) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		p := arg(val)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s OR company ILIKE %s)", p, p, p))
	}
	if filter.Tier != "" {
		clauses = append(clauses, "tier = "+arg(filter.Tier))
	}
	if filter.Role != "" {
		clauses = append(clauses, "role = "+arg(filter.Role))
	}
	if !filter.CreatedFrom.IsZero() {
		clauses = append(clauses, "created_at >= "+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		clauses = append(clauses, "created_at <= "+arg(filter.CreatedTo.UTC()))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, limit, offset int, exec ...core.DBExecutor) ([]user.User, error) {
	where, args := repo.userFilterClauses(filter)

	q := fmt.Sprintf(`SELECT %s FROM "user"%s`, userColumns, where)
	q += userOrderClause(ordering)
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unpack(row))
	}
	return users, nil
}

func (repo userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) (int, error) {
	where, args := repo.userFilterClauses(filter)
	var cnt int
	q := `SELECT COUNT(*) FROM "user"` + where
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cnt, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return cnt, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()
	row := repo.pack(usr)
	q := `
		UPDATE "user" SET
			name = :name, email = :email, company = :company, job_title = :job_title,
			tier = :tier, role = :role, email_verified = :email_verified,
			paid_at = :paid_at, amount_paid = :amount_paid, updated_at = :updated_at,
			last_login_at = :last_login_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`
		UPDATE "user" SET last_login_at = $1, email_verified = TRUE, updated_at = $2
		WHERE id = $3
		RETURNING %s`, userColumns)
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, t.UTC(), time.Now().UTC(), id)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "recording login")
	}
	return repo.unpack(row), nil
}
