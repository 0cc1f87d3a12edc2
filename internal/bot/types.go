package bot

import (
	"go.uber.org/zap"

	"convertbot/internal/convert"
	"convertbot/internal/phrases"
	"convertbot/internal/storage"
)

// DefaultMaxFileSize is the largest upload accepted for conversion, in bytes
const DefaultMaxFileSize = 2_000_000

// historyLimit is the number of conversions listed by /history
const historyLimit = 5

// Backends groups the three conversion backends. Format selection checks
// them in the order Document, Image, Video, uploads in the order Image,
// Document, Video.
type Backends struct {
	Image    convert.Backend
	Document convert.Backend
	Video    convert.Backend
}

// Bot is the Telegram conversion bot: it classifies each inbound message,
// consults the user store and dispatches conversions
type Bot struct {
	gateway     Gateway
	users       storage.UserStore
	conversions storage.ConversionLog
	backends    Backends
	phrases     *phrases.Table
	workspace   *convert.Workspace
	maxFileSize int
	locks       *userLocks
	logger      *zap.Logger
}

// ActionKind tells which gateway operation an Action maps to
type ActionKind int

const (
	ActionText ActionKind = iota
	ActionDocument
)

// Action is one outbound reply produced while handling a message
type Action struct {
	Kind     ActionKind
	ChatID   int64
	Text     string
	FilePath string
	// Choices are offered as inline keyboard buttons under a text reply
	Choices []string
}
