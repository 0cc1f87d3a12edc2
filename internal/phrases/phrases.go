// Package phrases holds the localized reply texts of the bot.
package phrases

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

// DefaultLanguage is used when a phrase has no text in the configured language
const DefaultLanguage = "eng"

// Phrase keys
const (
	Start               = "start"
	FormatsHeader       = "formats_header"
	FormatsImages       = "formats_images"
	FormatsDocuments    = "formats_documents"
	FormatsVideo        = "formats_video"
	ImageDetected       = "image_detected"
	DocumentDetected    = "document_detected"
	VideoDetected       = "video_detected"
	NotSupportedFormat  = "not_supported_format"
	WrongFormat         = "wrong_format"
	CompressedFile      = "compressed_file"
	UnknownUser         = "unknown_user"
	NoFile              = "no_file"
	FileTooBig          = "file_too_big"
	FeatureNotAvailable = "feature_not_available"
	UnsupportedMessage  = "unsupported_message"
	Error               = "error"
	Converting          = "converting"
	WrongCommand        = "wrong_command"
	WrongCommandFormat  = "wrong_command_format"
	NotValidUser        = "not_valid_user"
	AlreadyRegistered   = "user_already_registered"
	NotAdmin            = "user_not_admin"
	UserRegistered      = "user_registered"
	Stats               = "stats"
	HistoryHeader       = "history_header"
	HistoryEmpty        = "history_empty"
)

//go:embed phrases.json
var defaultTable []byte

// Table maps a phrase key to its text per language
type Table struct {
	texts map[string]map[string]string
	lang  string
}

// Default returns the embedded table for lang
func Default(lang string) (*Table, error) {
	return parse(defaultTable, lang)
}

// Load reads a table from a JSON file shaped {"key": {"lang": "text"}}.
// An empty path falls back to the embedded table.
func Load(path, lang string) (*Table, error) {
	if path == "" {
		return Default(lang)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrases: %w", err)
	}
	return parse(data, lang)
}

func parse(data []byte, lang string) (*Table, error) {
	var texts map[string]map[string]string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("parse phrases: %w", err)
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	return &Table{texts: texts, lang: lang}, nil
}

// Language returns the configured language
func (t *Table) Language() string {
	return t.lang
}

// Lookup returns the text of key in the configured language, falling back
// to DefaultLanguage and then to the key itself
func (t *Table) Lookup(key string) string {
	byLang, ok := t.texts[key]
	if !ok {
		return key
	}
	if text, ok := byLang[t.lang]; ok {
		return text
	}
	if text, ok := byLang[DefaultLanguage]; ok {
		return text
	}
	return key
}

// Format looks up key and formats it with args
func (t *Table) Format(key string, args ...any) string {
	return fmt.Sprintf(t.Lookup(key), args...)
}
