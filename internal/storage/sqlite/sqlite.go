package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"convertbot/internal/models"
	"convertbot/internal/storage"
)

// Store keeps users in a SQLite database through gorm
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore opens the SQLite database at dsn
func NewStore(dsn string, log *zap.Logger) (*Store, error) {
	if dsn == "" {
		dsn = "database/database.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows a single writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Store{db: db, now: time.Now}, nil
}

// Initialize creates or updates the users table
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *Store) IsRegistered(ctx context.Context, telegramID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count user: %w", err)
	}
	return count > 0, nil
}

func (s *Store) IsAdmin(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.find(ctx, telegramID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// Register inserts a new non-admin user, failing with ErrAlreadyRegistered
// when the id exists
func (s *Store) Register(ctx context.Context, telegramID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.register(tx, telegramID)
	})
}

func (s *Store) register(tx *gorm.DB, telegramID int64) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("telegram_id = ?", telegramID).Count(&count).Error; err != nil {
		return fmt.Errorf("count user: %w", err)
	}
	if count > 0 {
		return storage.ErrAlreadyRegistered
	}
	user := models.User{
		TelegramID:   telegramID,
		RegisteredAt: s.now().UTC(),
	}
	if err := tx.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SetAdmin sets the admin flag, registering the user first if needed
func (s *Store) SetAdmin(ctx context.Context, telegramID int64, isAdmin bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.register(tx, telegramID)
		if err != nil && !errors.Is(err, storage.ErrAlreadyRegistered) {
			return err
		}
		if err := tx.Model(&models.User{}).Where("telegram_id = ?", telegramID).
			Update("is_admin", isAdmin).Error; err != nil {
			return fmt.Errorf("set admin: %w", err)
		}
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.find(ctx, telegramID)
}

func (s *Store) LastFile(ctx context.Context, telegramID int64) (string, error) {
	user, err := s.find(ctx, telegramID)
	if err != nil {
		return "", err
	}
	return user.LastFilePath, nil
}

func (s *Store) SetLastFile(ctx context.Context, telegramID int64, path string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("telegram_id = ?", telegramID).
		Update("last_file_path", path)
	if res.Error != nil {
		return fmt.Errorf("set last file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func (s *Store) PendingFiles(ctx context.Context) ([]string, error) {
	var paths []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("last_file_path <> ?", "").
		Order("last_file_path").
		Pluck("last_file_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("list pending files: %w", err)
	}
	return paths, nil
}

// IncrementUsage bumps the counter in a single statement so concurrent
// deliveries are never lost
func (s *Store) IncrementUsage(ctx context.Context, telegramID int64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("telegram_id = ?", telegramID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
