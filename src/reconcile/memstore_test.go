package reconcile

import (
	"context"
	"sync"
	"time"

	"expense-tracker-server/src/models"
)

// memStore is an in-memory RecordStore with the same conditional write
// semantics as the Postgres store.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]*models.Transaction
	categories map[int64]int64
	goneUsers  map[int64]bool
	now        time.Time

	// hooks let tests inject failures or concurrent writers.
	beforeWrite func(id int64)
	findErr     func(clientID string) error
	panicOnFind bool
}

func newMemStore() *memStore {
	return &memStore{
		rows:       make(map[int64]*models.Transaction),
		categories: make(map[int64]int64),
		goneUsers:  make(map[int64]bool),
		now:        time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func clone(tx *models.Transaction) *models.Transaction {
	c := *tx
	if tx.CategoryID != nil {
		v := *tx.CategoryID
		c.CategoryID = &v
	}
	if tx.ClientID != nil {
		v := *tx.ClientID
		c.ClientID = &v
	}
	if tx.Description != nil {
		v := *tx.Description
		c.Description = &v
	}
	if tx.DeletedAt != nil {
		v := *tx.DeletedAt
		c.DeletedAt = &v
	}
	return &c
}

func (s *memStore) FindByID(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnFind {
		panic("store exploded")
	}
	tx, ok := s.rows[id]
	if !ok || tx.UserID != userID {
		return nil, models.ErrNotFound
	}
	return clone(tx), nil
}

func (s *memStore) FindByClientID(ctx context.Context, userID int64, clientID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnFind {
		panic("store exploded")
	}
	if s.findErr != nil {
		if err := s.findErr(clientID); err != nil {
			return nil, err
		}
	}
	for _, tx := range s.rows {
		if tx.UserID == userID && tx.ClientID != nil && *tx.ClientID == clientID {
			return clone(tx), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) clientIDTaken(userID int64, clientID *string, except int64) bool {
	if clientID == nil {
		return false
	}
	for id, tx := range s.rows {
		if id != except && tx.UserID == userID && tx.ClientID != nil && *tx.ClientID == *clientID {
			return true
		}
	}
	return false
}

func (s *memStore) categoryOK(userID int64, categoryID *int64) bool {
	if categoryID == nil {
		return true
	}
	owner, ok := s.categories[*categoryID]
	return ok && owner == userID
}

func (s *memStore) Create(ctx context.Context, n models.NewTransaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goneUsers[n.UserID] {
		return nil, models.ErrOwnerMissing
	}
	if s.clientIDTaken(n.UserID, n.ClientID, 0) {
		return nil, models.ErrDuplicate
	}
	if !s.categoryOK(n.UserID, n.CategoryID) {
		return nil, models.ErrInvalidReference
	}
	s.nextID++
	now := s.tick()
	tx := &models.Transaction{
		ID:          s.nextID,
		UserID:      n.UserID,
		CategoryID:  n.CategoryID,
		ClientID:    n.ClientID,
		Type:        n.Type,
		Amount:      n.Amount,
		Description: n.Description,
		OccurredAt:  n.OccurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.rows[tx.ID] = clone(tx)
	return tx, nil
}

func (s *memStore) guard(userID, id int64, version *time.Time) (*models.Transaction, error) {
	if s.beforeWrite != nil {
		s.beforeWrite(id)
	}
	tx, ok := s.rows[id]
	if !ok || tx.UserID != userID {
		return nil, models.ErrNotFound
	}
	if version != nil && !tx.UpdatedAt.Equal(*version) {
		return nil, models.ErrVersionMismatch
	}
	return tx, nil
}

func (s *memStore) Update(ctx context.Context, userID, id int64, version *time.Time, p models.TransactionPatch) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.guard(userID, id, version)
	if err != nil {
		return nil, err
	}
	if p.ClientID.Set && s.clientIDTaken(userID, p.ClientID.Value, id) {
		return nil, models.ErrDuplicate
	}
	if p.CategoryID.Set && !s.categoryOK(userID, p.CategoryID.Value) {
		return nil, models.ErrInvalidReference
	}
	if p.CategoryID.Set {
		tx.CategoryID = p.CategoryID.Value
	}
	if p.ClientID.Set {
		tx.ClientID = p.ClientID.Value
	}
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Description.Set {
		tx.Description = p.Description.Value
	}
	if p.OccurredAt != nil {
		tx.OccurredAt = *p.OccurredAt
	}
	if p.Restore {
		tx.DeletedAt = nil
	}
	tx.UpdatedAt = s.tick()
	return clone(tx), nil
}

func (s *memStore) SoftDelete(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.guard(userID, id, version)
	if err != nil {
		return nil, err
	}
	if tx.DeletedAt != nil {
		return nil, models.ErrAlreadyDeleted
	}
	now := s.tick()
	tx.DeletedAt = &now
	tx.UpdatedAt = now
	return clone(tx), nil
}

func (s *memStore) Restore(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.guard(userID, id, version)
	if err != nil {
		return nil, err
	}
	tx.DeletedAt = nil
	tx.UpdatedAt = s.tick()
	return clone(tx), nil
}

func (s *memStore) get(id int64) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *clone(s.rows[id])
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memAudit struct {
	mu       sync.Mutex
	attempts []models.SyncAttempt
	err      error
}

func (a *memAudit) Record(ctx context.Context, attempt models.SyncAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.attempts = append(a.attempts, attempt)
	return nil
}
