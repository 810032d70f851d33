package whatsapp

import (
	"strings"

	"github.com/relaydesk/relaydesk/internal/domain/message"
)

// NormalizePhone canonicalizes a phone number to the provider's wa_id
// format: digits only, no '+', spaces or dashes. The same real-world
// number must always map to the same contact key regardless of how the
// raw payload formats it.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '+':
			return -1
		}
		return r
	}, phone)
}

// ContentType maps the wire message type onto the domain content type.
func (m *Message) ContentType() message.ContentType {
	switch m.Type {
	case "text":
		return message.TypeText
	case "image":
		return message.TypeImage
	case "audio":
		return message.TypeAudio
	case "video":
		return message.TypeVideo
	case "document":
		return message.TypeDocument
	case "sticker":
		return message.TypeSticker
	case "interactive":
		return message.TypeInteractive
	case "button":
		return message.TypeButton
	case "order":
		return message.TypeOrder
	case "system":
		return message.TypeSystem
	default:
		return message.TypeUnknown
	}
}

// ExtractContent returns the text body of a text message verbatim, or the
// fixed placeholder for any other message kind.
func ExtractContent(m *Message) string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	return m.ContentType().Placeholder()
}
