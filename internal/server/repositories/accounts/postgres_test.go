package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountRowColumns = []string{
	"id", "firstname", "lastname", "login", "email", "password_hash", "is_verified",
	"verification_token", "reset_token", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("sql expectations: %v", err)
		}
	})
	return NewPostgresRepository(db), mock, db
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(accountRowColumns).
		AddRow("a-1", "Ann", "Lee", "annl", "ann@x.com", "hash", false, "vt", nil, now, now)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`).
		WithArgs("ann@x.com").
		WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
	assert.Equal(t, "Ann", got.FirstName)
	assert.Equal(t, "vt", got.VerificationToken)
	assert.Empty(t, got.ResetToken, "NULL token must map to empty string")
	assert.False(t, got.IsVerified)
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+email`).
		WithArgs("ghost@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByEmail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+email`).
		WithArgs("ann@x.com").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByEmail(context.Background(), "ann@x.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByID_MalformedIDIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: "22P02"})

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByLoginOrEmail(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(accountRowColumns).
		AddRow("a-1", "Ann", "Lee", "annl", "ann@x.com", "hash", true, nil, nil, now, now)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+WHERE\s+login\s*=\s*\$1\s+OR\s+email\s*=\s*\$2\s+LIMIT\s+1`).
		WithArgs("annl", "other@x.com").
		WillReturnRows(rows)

	got, err := repo.FindByLoginOrEmail(context.Background(), "annl", "other@x.com")
	require.NoError(t, err)
	assert.Equal(t, "annl", got.Login)
	assert.True(t, got.IsVerified)
}

const insertQuery = `(?s)^INSERT\s+INTO\s+accounts\s*\(firstname,\s*lastname,\s*login,\s*email,\s*password_hash,\s*is_verified,\s*verification_token,\s*reset_token\)\s*VALUES.*RETURNING\s+id,\s*created_at,\s*updated_at\s*$`

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(insertQuery).
		WithArgs("Ann", "Lee", "annl", "ann@x.com", "hash", false, "vt", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("a-1", now, now))

	a := &models.Account{
		FirstName: "Ann", LastName: "Lee", Login: "annl", Email: "ann@x.com",
		PasswordHash: "hash", VerificationToken: "vt",
	}
	id, err := repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "a-1", id)
	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, now, a.CreatedAt)
}

func TestInsert_UniqueViolationIsConflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := repo.Insert(context.Background(), &models.Account{Login: "annl", Email: "ann@x.com"})
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), "accounts_email_key")
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).WillReturnError(errors.New("db down"))

	_, err := repo.Insert(context.Background(), &models.Account{Login: "annl", Email: "ann@x.com"})
	assert.NotErrorIs(t, err, common.ErrConflict)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdate_BuildsOnlyNamedFields(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE accounts SET is_verified = $2, verification_token = NULLIF($3, ''), updated_at = now() WHERE email = $1`)).
		WithArgs("ann@x.com", true, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "ann@x.com", models.AccountUpdate{
		IsVerified:        models.Ptr(true),
		VerificationToken: models.Ptr(""),
	})
	require.NoError(t, err)
}

func TestUpdate_MissingAccountIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET reset_token = NULLIF($2, ''), updated_at = now() WHERE email = $1`)).
		WithArgs("ghost@x.com", "rt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "ghost@x.com", models.AccountUpdate{ResetToken: models.Ptr("rt")})
	require.NoError(t, err)
}

func TestUpdate_EmptyUpdateSkipsQuery(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	require.NoError(t, repo.Update(context.Background(), "ann@x.com", models.AccountUpdate{}))
	require.NoError(t, repo.Update(context.Background(), "ann@x.com", models.AccountUpdate{IsVerified: models.Ptr(false)}))
}

func TestCompareAndUpdate_Guarded(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.QuoteMeta(`UPDATE accounts SET password_hash = $2, reset_token = NULLIF($3, ''), updated_at = now() WHERE email = $1 AND reset_token = $4`)

	mock.ExpectExec(q).
		WithArgs("ann@x.com", "new-hash", "", "rt").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("ann@x.com", "new-hash", "", "rt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	upd := models.AccountUpdate{PasswordHash: models.Ptr("new-hash"), ResetToken: models.Ptr("")}
	guard := models.TokenGuard{ResetToken: models.Ptr("rt")}

	ok, err := repo.CompareAndUpdate(context.Background(), "ann@x.com", guard, upd)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndUpdate(context.Background(), "ann@x.com", guard, upd)
	require.NoError(t, err)
	assert.False(t, ok, "second consumption must not match")
}

func TestCompareAndUpdate_EmptyGuardTokenNeverMatches(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	ok, err := repo.CompareAndUpdate(context.Background(), "ann@x.com",
		models.TokenGuard{VerificationToken: models.Ptr("")},
		models.AccountUpdate{IsVerified: models.Ptr(true)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(accountRowColumns).
		AddRow("a-1", "Ann", "Lee", "annl", "ann@x.com", "h1", true, nil, nil, now, now).
		AddRow("a-2", nil, nil, "bob", "bob@x.com", "h2", false, "vt", nil, now, now)

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+accounts\s+ORDER\s+BY\s+created_at`).WillReturnRows(rows)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "annl", got[0].Login)
	assert.Empty(t, got[1].FirstName)
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.QuoteMeta(`DELETE FROM accounts WHERE email = $1`)
	mock.ExpectExec(q).WithArgs("ann@x.com").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("ann@x.com").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "ann@x.com"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ann@x.com"), common.ErrorNotFound)
}
