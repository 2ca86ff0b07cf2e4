package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/herdwatch/herdwatch/internal/database"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is an in-memory implementation of database.DB for testing.
// Query scopes are ignored; filtering relies on ReadingQuery.Match.
type MockDB struct {
	mu sync.RWMutex

	readings      map[uint]*database.Reading
	nextReadingID uint

	accounts      map[string]*database.Account
	nextAccountID uint

	// Now returns the timestamp assigned to new readings.
	Now func() time.Time

	// Error simulation
	CreateReadingError error
	GetReadingsError   error
	DeleteReadingError error
	ListAccountsError  error
	CreateAccountError error
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	return &MockDB{
		readings:      make(map[uint]*database.Reading),
		nextReadingID: 1,
		accounts:      make(map[string]*database.Account),
		nextAccountID: 1,
		Now:           time.Now,
	}
}

func (m *MockDB) Close() error { return nil }

func (m *MockDB) CreateReading(_ context.Context, temperature, imagePath string) (*database.Reading, error) {
	if m.CreateReadingError != nil {
		return nil, m.CreateReadingError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := &database.Reading{
		ID:          m.nextReadingID,
		Temperature: temperature,
		Timestamp:   database.NewTimestamp(m.Now()),
		ImagePath:   imagePath,
	}
	m.readings[r.ID] = r
	m.nextReadingID++

	out := *r
	return &out, nil
}

func (m *MockDB) GetReading(_ context.Context, id uint) (*database.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.readings[id]
	if !ok {
		return nil, database.ErrReadingNotFound
	}
	out := *r
	return &out, nil
}

func (m *MockDB) GetReadings(_ context.Context, query database.ReadingQuery) ([]database.Reading, error) {
	if m.GetReadingsError != nil {
		return nil, m.GetReadingsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	readings := make([]database.Reading, 0, len(m.readings))
	for _, r := range m.readings {
		if query != nil && !query.Match(r) {
			continue
		}
		readings = append(readings, *r)
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].ID > readings[j].ID })
	return readings, nil
}

func (m *MockDB) DeleteReading(_ context.Context, id uint) (*database.Reading, error) {
	if m.DeleteReadingError != nil {
		return nil, m.DeleteReadingError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.readings[id]
	if !ok {
		return nil, database.ErrReadingNotFound
	}
	delete(m.readings, id)
	return r, nil
}

func (m *MockDB) CountAccounts(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.accounts)), nil
}

func (m *MockDB) ListAccounts(_ context.Context) ([]database.Account, error) {
	if m.ListAccountsError != nil {
		return nil, m.ListAccountsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]database.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (m *MockDB) GetAccount(_ context.Context, username string) (*database.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[username]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (m *MockDB) CreateAccount(_ context.Context, username, passwordHash string, role database.Role) (*database.Account, error) {
	if m.CreateAccountError != nil {
		return nil, m.CreateAccountError
	}
	if _, err := database.ParseRole(string(role)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[username]; exists {
		return nil, database.ErrAccountExists
	}
	now := m.Now()
	a := &database.Account{
		ID:        m.nextAccountID,
		Username:  username,
		Password:  passwordHash,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.accounts[username] = a
	m.nextAccountID++

	out := *a
	return &out, nil
}

func (m *MockDB) UpdateAccount(_ context.Context, username, passwordHash string, role database.Role) (*database.Account, error) {
	if _, err := database.ParseRole(string(role)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[username]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	a.Role = role
	if passwordHash != "" {
		a.Password = passwordHash
	}
	a.UpdatedAt = m.Now()

	out := *a
	return &out, nil
}

func (m *MockDB) DeleteAccount(_ context.Context, username, actor string) error {
	if username == actor {
		return database.ErrSelfDelete
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accounts, username)
	return nil
}
