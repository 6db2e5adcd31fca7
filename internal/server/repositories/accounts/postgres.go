package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation  = "23505"
	pgInvalidTextInput = "22P02"
)

const accountColumns = `id, firstname, lastname, login, email, password_hash, is_verified,
		        verification_token, reset_token, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var first, last, verifyToken, resetToken sql.NullString

	err := row.Scan(&a.ID, &first, &last, &a.Login, &a.Email, &a.PasswordHash, &a.IsVerified,
		&verifyToken, &resetToken, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.FirstName = first.String
	a.LastName = last.String
	a.VerificationToken = verifyToken.String
	a.ResetToken = resetToken.String

	return &a, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextInput {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE email = $1
		 `
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE id = $1
		 `
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByLoginOrEmail(ctx context.Context, login, email string) (*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + `
		 FROM accounts
		 WHERE login = $1 OR email = $2
		 LIMIT 1
		 `
	return r.findOne(ctx, query, login, email)
}

// Insert relies on the UNIQUE constraints on login and email, so concurrent
// inserts of the same identity leave exactly one row.
func (r *PostgresRepository) Insert(ctx context.Context, account *models.Account) (string, error) {
	query :=
		`INSERT INTO accounts (firstname, lastname, login, email, password_hash, is_verified, verification_token, reset_token)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.FirstName, account.LastName, account.Login, account.Email, account.PasswordHash,
		account.IsVerified, account.VerificationToken, account.ResetToken,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", fmt.Errorf("%w (%s)", common.ErrConflict, pgErr.ConstraintName)
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return account.ID, nil
}

// setClause renders upd as "col = $n" assignments starting at placeholder
// number next.
func setClause(upd models.AccountUpdate, next int) ([]string, []any) {
	var (
		sets []string
		args []any
	)

	add := func(expr string, arg any) {
		sets = append(sets, fmt.Sprintf(expr, next))
		args = append(args, arg)
		next++
	}

	if upd.PasswordHash != nil {
		add("password_hash = $%d", *upd.PasswordHash)
	}
	if upd.IsVerified != nil && *upd.IsVerified {
		add("is_verified = $%d", true)
	}
	if upd.VerificationToken != nil {
		add("verification_token = NULLIF($%d, '')", *upd.VerificationToken)
	}
	if upd.ResetToken != nil {
		add("reset_token = NULLIF($%d, '')", *upd.ResetToken)
	}

	return sets, args
}

func (r *PostgresRepository) Update(ctx context.Context, email string, upd models.AccountUpdate) error {
	sets, args := setClause(upd, 2)
	if len(sets) == 0 {
		return nil
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + `, updated_at = now() WHERE email = $1`

	if _, err := r.db.ExecContext(ctx, query, append([]any{email}, args...)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CompareAndUpdate(ctx context.Context, email string, guard models.TokenGuard, upd models.AccountUpdate) (bool, error) {
	sets, args := setClause(upd, 2)
	if len(sets) == 0 {
		return false, nil
	}

	where := []string{"email = $1"}
	args = append([]any{email}, args...)

	if guard.VerificationToken != nil {
		if *guard.VerificationToken == "" {
			return false, nil
		}
		args = append(args, *guard.VerificationToken)
		where = append(where, fmt.Sprintf("verification_token = $%d", len(args)))
	}
	if guard.ResetToken != nil {
		if *guard.ResetToken == "" {
			return false, nil
		}
		args = append(args, *guard.ResetToken)
		where = append(where, fmt.Sprintf("reset_token = $%d", len(args)))
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + `, updated_at = now() WHERE ` + strings.Join(where, " AND ")

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	query :=
		`SELECT ` + accountColumns + `
		 FROM accounts
		 ORDER BY created_at
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, email string) error {
	query := `DELETE FROM accounts WHERE email = $1`

	res, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
