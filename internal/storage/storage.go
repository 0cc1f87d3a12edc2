package storage

import (
	"context"
	"errors"

	"convertbot/internal/models"
)

var (
	// ErrAlreadyRegistered is returned by Register for an existing user
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrUserNotFound is returned by per-user operations on an unknown id
	ErrUserNotFound = errors.New("user not found")
)

// UserStore defines the persisted registry of authorized users
type UserStore interface {
	// Authorization
	IsRegistered(ctx context.Context, telegramID int64) (bool, error)
	IsAdmin(ctx context.Context, telegramID int64) (bool, error)
	Register(ctx context.Context, telegramID int64) error

	// SetAdmin sets the admin flag, registering the user first if needed
	SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error

	GetUser(ctx context.Context, telegramID int64) (*models.User, error)

	// Pending file operations
	LastFile(ctx context.Context, telegramID int64) (string, error)
	SetLastFile(ctx context.Context, telegramID int64, path string) error

	// PendingFiles returns every non-empty last file path across all users
	PendingFiles(ctx context.Context) ([]string, error)

	IncrementUsage(ctx context.Context, telegramID int64) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// ConversionLog defines the append-only record of conversion attempts
type ConversionLog interface {
	RecordConversion(ctx context.Context, event models.ConversionEvent) error

	// RecentConversions returns up to limit events of a user, newest first
	RecentConversions(ctx context.Context, telegramID int64, limit int) ([]models.ConversionEvent, error)

	Close() error
}
