package models

import "time"

// User is an authorized bot user. A row exists iff the user may use the bot.
type User struct {
	ID           uint  `gorm:"primaryKey"`
	TelegramID   int64 `gorm:"uniqueIndex"`
	IsAdmin      bool  `gorm:"default:false"`
	UsageCount   int   `gorm:"default:0"`
	RegisteredAt time.Time
	// LastFilePath is the uploaded file awaiting a target format, empty if none
	LastFilePath string
}

// ConversionStatus is the outcome of a single conversion attempt
type ConversionStatus string

const (
	ConversionSucceeded   ConversionStatus = "succeeded"
	ConversionUnsupported ConversionStatus = "unsupported"
	ConversionFailed      ConversionStatus = "failed"
)

// ConversionEvent records one conversion attempt
type ConversionEvent struct {
	Time         time.Time
	UserID       int64
	Backend      string
	SourceFormat string
	TargetFormat string
	Status       ConversionStatus
	Duration     time.Duration
}
