// Package accounts implements the account store: one contract with a
// PostgreSQL variant and an in-memory variant.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository is the account store contract.
//
// Find* methods return common.ErrorNotFound when nothing matches. Insert
// returns common.ErrConflict when the login or the email is taken. Update is
// a silent no-op when no account has the given email.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByLoginOrEmail(ctx context.Context, login, email string) (*models.Account, error)
	Insert(ctx context.Context, account *models.Account) (string, error)
	Update(ctx context.Context, email string, upd models.AccountUpdate) error
	// CompareAndUpdate applies upd only when the stored account satisfies
	// guard, and reports whether it did.
	CompareAndUpdate(ctx context.Context, email string, guard models.TokenGuard, upd models.AccountUpdate) (bool, error)
	List(ctx context.Context) ([]*models.Account, error)
	Delete(ctx context.Context, email string) error
}
