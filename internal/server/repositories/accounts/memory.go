package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory. It is meant for
// development and tests: data lives as long as the process and is not shared
// between replicas.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.Account
	byEmail map[string]string
	byLogin map[string]string
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*models.Account),
		byEmail: make(map[string]string),
		byLogin: make(map[string]string),
		now:     time.Now,
	}
}

func clone(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) FindByLoginOrEmail(ctx context.Context, login, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byLogin[login]; ok {
		return clone(r.byID[id]), nil
	}
	if id, ok := r.byEmail[email]; ok {
		return clone(r.byID[id]), nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Insert(ctx context.Context, account *models.Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return "", common.ErrConflict
	}
	if _, ok := r.byLogin[account.Login]; ok {
		return "", common.ErrConflict
	}

	now := r.now()
	account.ID = uuid.NewString()
	account.CreatedAt = now
	account.UpdatedAt = now

	r.byID[account.ID] = clone(account)
	r.byEmail[account.Email] = account.ID
	r.byLogin[account.Login] = account.ID

	return account.ID, nil
}

func (r *MemoryRepository) Update(ctx context.Context, email string, upd models.AccountUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil
	}

	a := r.byID[id]
	upd.Apply(a)
	a.UpdatedAt = r.now()

	return nil
}

func (r *MemoryRepository) CompareAndUpdate(ctx context.Context, email string, guard models.TokenGuard, upd models.AccountUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return false, nil
	}

	a := r.byID[id]
	if !guard.Matches(a) {
		return false, nil
	}

	upd.Apply(a)
	a.UpdatedAt = r.now()

	return true, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Account, 0, len(r.byID))
	for _, a := range r.byID {
		result = append(result, clone(a))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Login < result[j].Login
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return common.ErrorNotFound
	}

	a := r.byID[id]
	delete(r.byLogin, a.Login)
	delete(r.byEmail, a.Email)
	delete(r.byID, id)

	return nil
}
