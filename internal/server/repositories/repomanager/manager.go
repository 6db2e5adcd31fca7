// Package repomanager wires the account store variants: it owns the storage
// handle, runs schema migrations and vends repositories.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
)

const (
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

type RepositoryManager interface {
	// Kind names the backend, e.g. KindPostgres.
	Kind() string
	Accounts() accounts.Repository
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
