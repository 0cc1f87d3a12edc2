package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Category is the shape of an inbound message
type Category int

const (
	CategoryUnsupported Category = iota
	CategoryCommand
	CategoryPlainText
	CategoryDocument
	CategoryPhoto
	CategoryVideo
	CategorySticker
	CategoryAnimation
	CategoryAudio
)

func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "command"
	case CategoryPlainText:
		return "text"
	case CategoryDocument:
		return "document"
	case CategoryPhoto:
		return "photo"
	case CategoryVideo:
		return "video"
	case CategorySticker:
		return "sticker"
	case CategoryAnimation:
		return "animation"
	case CategoryAudio:
		return "audio"
	default:
		return "unsupported"
	}
}

// Classification is the category of a message plus the fields the
// category carries
type Classification struct {
	Category Category
	// Text is set for commands and plain text
	Text string
	// FileID, FileName and Size are set for documents
	FileID   string
	FileName string
	Size     int
}

// Classify inspects the shape of msg. Text wins over a document, a document
// over media, and media are checked as photo, video, sticker, animation,
// audio.
func Classify(msg *tgbotapi.Message) Classification {
	switch {
	case msg == nil:
		return Classification{Category: CategoryUnsupported}
	case msg.Text != "":
		if strings.HasPrefix(msg.Text, "/") {
			return Classification{Category: CategoryCommand, Text: msg.Text}
		}
		return Classification{Category: CategoryPlainText, Text: msg.Text}
	case msg.Document != nil:
		return Classification{
			Category: CategoryDocument,
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			Size:     msg.Document.FileSize,
		}
	case len(msg.Photo) > 0:
		return Classification{Category: CategoryPhoto}
	case msg.Video != nil:
		return Classification{Category: CategoryVideo}
	case msg.Sticker != nil:
		return Classification{Category: CategorySticker}
	case msg.Animation != nil:
		return Classification{Category: CategoryAnimation}
	case msg.Audio != nil:
		return Classification{Category: CategoryAudio}
	default:
		return Classification{Category: CategoryUnsupported}
	}
}
