package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"convertbot/internal/models"
	"convertbot/internal/storage"
)

// MockDB is an in-memory implementation of the storage interfaces for testing
// and for running without a database
type MockDB struct {
	mu          sync.RWMutex
	users       map[int64]models.User
	conversions []models.ConversionEvent
	now         func() time.Time
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		users:       make(map[int64]models.User),
		conversions: make([]models.ConversionEvent, 0),
		now:         time.Now,
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// IsRegistered reports whether the user exists
func (m *MockDB) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.users[telegramID]
	return ok, nil
}

// IsAdmin reports whether the user exists and has the admin flag
func (m *MockDB) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.users[telegramID].IsAdmin, nil
}

// Register creates a new non-admin user
func (m *MockDB) Register(ctx context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registerLocked(telegramID)
}

func (m *MockDB) registerLocked(telegramID int64) error {
	if _, ok := m.users[telegramID]; ok {
		return storage.ErrAlreadyRegistered
	}
	m.users[telegramID] = models.User{
		ID:           uint(len(m.users) + 1),
		TelegramID:   telegramID,
		RegisteredAt: m.now().UTC(),
	}
	return nil
}

// SetAdmin sets the admin flag, registering the user first if needed
func (m *MockDB) SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[telegramID]; !ok {
		if err := m.registerLocked(telegramID); err != nil {
			return err
		}
	}
	user := m.users[telegramID]
	user.IsAdmin = isAdmin
	m.users[telegramID] = user
	return nil
}

// GetUser returns a copy of the user
func (m *MockDB) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[telegramID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return &user, nil
}

// LastFile returns the pending file of the user
func (m *MockDB) LastFile(ctx context.Context, telegramID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[telegramID]
	if !ok {
		return "", storage.ErrUserNotFound
	}
	return user.LastFilePath, nil
}

// SetLastFile overwrites the pending file of the user
func (m *MockDB) SetLastFile(ctx context.Context, telegramID int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[telegramID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.LastFilePath = path
	m.users[telegramID] = user
	return nil
}

// PendingFiles returns all non-empty pending file paths sorted by path
func (m *MockDB) PendingFiles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for _, user := range m.users {
		if user.LastFilePath != "" {
			paths = append(paths, user.LastFilePath)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// IncrementUsage adds one to the usage counter of the user
func (m *MockDB) IncrementUsage(ctx context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[telegramID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.UsageCount++
	m.users[telegramID] = user
	return nil
}

// RecordConversion appends a conversion event
func (m *MockDB) RecordConversion(ctx context.Context, event models.ConversionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversions = append(m.conversions, event)
	return nil
}

// RecentConversions returns the last N events of a user, newest first
func (m *MockDB) RecentConversions(ctx context.Context, telegramID int64, limit int) ([]models.ConversionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []models.ConversionEvent
	for i := len(m.conversions) - 1; i >= 0; i-- {
		if m.conversions[i].UserID == telegramID {
			events = append(events, m.conversions[i])
		}
	}

	// Stable on insertion order for equal timestamps
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.After(events[j].Time)
	})

	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
