package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
)

const testUserID int64 = 7

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
	Data    json.RawMessage `json:"data"`
}

// do runs one request against h as testUserID and decodes the envelope.
func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithUserID(req.Context(), testUserID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]*models.User)}
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.ToLower(email) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, email string, name *string, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return nil, models.ErrDuplicate
		}
	}
	f.nextID++
	now := time.Now()
	u := &models.User{ID: f.nextID, Email: email, Name: name, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	f.byID[u.ID] = u
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdateName(_ context.Context, userID int64, name *string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.Name = name
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return models.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[userID]; !ok {
		return models.ErrNotFound
	}
	delete(f.byID, userID)
	return nil
}

type storedToken struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

type fakeTokens struct {
	mu      sync.Mutex
	refresh map[string]*storedToken
	reset   map[string]*storedToken
	users   *fakeUsers
}

func newFakeTokens(users *fakeUsers) *fakeTokens {
	return &fakeTokens{refresh: make(map[string]*storedToken), reset: make(map[string]*storedToken), users: users}
}

func (f *fakeTokens) revokeAll(userID int64) {
	for _, t := range f.refresh {
		if t.userID == userID {
			t.revoked = true
		}
	}
}

func (f *fakeTokens) CreateRefreshToken(_ context.Context, userID int64, hash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeAll(userID)
	f.refresh[hash] = &storedToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeTokens) RotateRefreshToken(_ context.Context, oldHash, newHash string, expiresAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.refresh[oldHash]
	if !ok || t.revoked || time.Now().After(t.expiresAt) {
		return 0, models.ErrNotFound
	}
	f.revokeAll(t.userID)
	f.refresh[newHash] = &storedToken{userID: t.userID, expiresAt: expiresAt}
	return t.userID, nil
}

func (f *fakeTokens) RevokeRefreshToken(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.refresh[hash]; ok {
		t.revoked = true
	}
	return nil
}

func (f *fakeTokens) CreateResetToken(_ context.Context, userID int64, hash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset[hash] = &storedToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeTokens) ResetPassword(ctx context.Context, hash, passwordHash string) (int64, error) {
	f.mu.Lock()
	t, ok := f.reset[hash]
	if !ok || t.revoked || time.Now().After(t.expiresAt) {
		f.mu.Unlock()
		return 0, models.ErrNotFound
	}
	t.revoked = true
	f.revokeAll(t.userID)
	f.mu.Unlock()
	return t.userID, f.users.UpdatePassword(ctx, t.userID, passwordHash)
}

type fakeInvalidator struct {
	calls []int64
}

func (f *fakeInvalidator) InvalidateUser(userID int64) {
	f.calls = append(f.calls, userID)
}

// fakeTransactions keeps transactions in memory with the same version rules
// as the Postgres store: every write moves updated_at forward.
type fakeTransactions struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time
	rows   map[int64]*models.Transaction
}

func newFakeTransactions() *fakeTransactions {
	return &fakeTransactions{
		clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		rows:  make(map[int64]*models.Transaction),
	}
}

func (f *fakeTransactions) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeTransactions) FindByID(_ context.Context, userID, id int64) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.UserID != userID {
		return nil, models.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTransactions) Create(_ context.Context, n models.NewTransaction) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.CategoryID != nil && *n.CategoryID == 404 {
		return nil, models.ErrInvalidReference
	}
	f.nextID++
	now := f.tick()
	t := &models.Transaction{
		ID: f.nextID, UserID: n.UserID, CategoryID: n.CategoryID, ClientID: n.ClientID,
		Type: n.Type, Amount: n.Amount, Description: n.Description, OccurredAt: n.OccurredAt,
		CreatedAt: now, UpdatedAt: now,
	}
	f.rows[t.ID] = t
	c := *t
	return &c, nil
}

func (f *fakeTransactions) Update(_ context.Context, userID, id int64, version *time.Time, p models.TransactionPatch) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.UserID != userID || (!p.Restore && !t.Active()) {
		return nil, models.ErrNotFound
	}
	if version != nil && !t.UpdatedAt.Equal(*version) {
		return nil, models.ErrVersionMismatch
	}
	if p.CategoryID.Set {
		t.CategoryID = p.CategoryID.Value
	}
	if p.ClientID.Set {
		t.ClientID = p.ClientID.Value
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	if p.Restore {
		t.DeletedAt = nil
	}
	t.UpdatedAt = f.tick()
	c := *t
	return &c, nil
}

func (f *fakeTransactions) SoftDelete(_ context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.UserID != userID {
		return nil, models.ErrNotFound
	}
	if version != nil && !t.UpdatedAt.Equal(*version) {
		return nil, models.ErrVersionMismatch
	}
	if !t.Active() {
		return nil, models.ErrAlreadyDeleted
	}
	now := f.tick()
	t.DeletedAt = &now
	t.UpdatedAt = now
	c := *t
	return &c, nil
}

func (f *fakeTransactions) Restore(_ context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.UserID != userID {
		return nil, models.ErrNotFound
	}
	if version != nil && !t.UpdatedAt.Equal(*version) {
		return nil, models.ErrVersionMismatch
	}
	if !t.Active() {
		t.DeletedAt = nil
		t.UpdatedAt = f.tick()
	}
	c := *t
	return &c, nil
}

func (f *fakeTransactions) List(_ context.Context, userID int64, filter models.TransactionFilter) (*models.TransactionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []models.Transaction{}
	for _, t := range f.rows {
		if t.UserID == userID && t.Active() && (filter.Type == nil || t.Type == *filter.Type) {
			items = append(items, *t)
		}
	}
	return &models.TransactionPage{
		Items:      items,
		Pagination: models.Pagination{Total: len(items), Limit: filter.Limit, Offset: filter.Offset},
	}, nil
}

func (f *fakeTransactions) FindByClientID(_ context.Context, userID int64, clientID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.rows {
		if t.UserID == userID && t.ClientID != nil && *t.ClientID == clientID {
			c := *t
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

type fakeAudit struct {
	mu       sync.Mutex
	attempts []models.SyncAttempt
}

func (f *fakeAudit) Record(_ context.Context, a models.SyncAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.attempts) + 1)
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAudit) ListForUser(_ context.Context, userID int64, filter models.SyncAttemptFilter) ([]models.SyncAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.SyncAttempt{}
	for i := len(f.attempts) - 1; i >= 0; i-- {
		a := f.attempts[i]
		if a.UserID != userID || (filter.Status != nil && a.Status != *filter.Status) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
