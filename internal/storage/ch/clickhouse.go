package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"

	"convertbot/internal/models"
	"convertbot/migrations"
)

// ConversionLog stores conversion events in ClickHouse
type ConversionLog struct {
	conn clickhouse.Conn
}

// Options holds ClickHouse connection settings
type Options struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseTLS   bool
}

func (o Options) clickhouseOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", o.Host, o.Port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.User,
			Password: o.Password,
		},
	}
	if o.UseTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// NewConversionLog creates a new ClickHouse connection
func NewConversionLog(opts Options) (*ConversionLog, error) {
	conn, err := clickhouse.Open(opts.clickhouseOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ConversionLog{conn: conn}, nil
}

// Migrate applies the embedded goose migrations
func Migrate(opts Options, command string) error {
	db := clickhouse.OpenDB(opts.clickhouseOptions())
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	return runGoose(db, command)
}

func runGoose(db *sql.DB, command string) error {
	switch command {
	case "up":
		return goose.Up(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// RecordConversion inserts a conversion event
func (l *ConversionLog) RecordConversion(ctx context.Context, event models.ConversionEvent) error {
	err := l.conn.Exec(ctx, `INSERT INTO conversions (event_time, user_id, backend, source_format, target_format, status, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Time, event.UserID, event.Backend, event.SourceFormat, event.TargetFormat, string(event.Status), event.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

// RecentConversions returns the last N events of a user
func (l *ConversionLog) RecentConversions(ctx context.Context, telegramID int64, limit int) ([]models.ConversionEvent, error) {
	rows, err := l.conn.Query(ctx, `SELECT event_time, user_id, backend, source_format, target_format, status, duration_ms FROM conversions WHERE user_id = ? ORDER BY event_time DESC LIMIT ?`,
		telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent conversions: %w", err)
	}
	defer rows.Close()

	var events []models.ConversionEvent
	for rows.Next() {
		var (
			event      models.ConversionEvent
			status     string
			durationMs int64
		)
		if err := rows.Scan(&event.Time, &event.UserID, &event.Backend, &event.SourceFormat, &event.TargetFormat, &status, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		event.Status = models.ConversionStatus(status)
		event.Duration = time.Duration(durationMs) * time.Millisecond
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the database connection
func (l *ConversionLog) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
