package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MessageType enumerates the closed set of gateway message kinds. Each type maps
// to its own gateway endpoint and payload shape; unknown values fall back to the
// text endpoint at dispatch time.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypePoll     MessageType = "poll"
	MessageTypeList     MessageType = "list"
)

// String returns the string representation of the type
func (t MessageType) String() string {
	return string(t)
}

// Valid checks if the type is one of the known message kinds
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument,
		MessageTypeAudio, MessageTypeSticker, MessageTypeLocation, MessageTypeContact,
		MessageTypePoll, MessageTypeList:
		return true
	default:
		return false
	}
}

// IsMedia reports whether the type carries a media URL
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeDocument, MessageTypeAudio, MessageTypeSticker:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageType
func (t *MessageType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = MessageType(v)
	case []byte:
		*t = MessageType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageType
func (t MessageType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid MessageType: %s", t)
	}
	return string(t), nil
}

// ListSection is one section of a list message
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one selectable row inside a list section
type ListRow struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MessagePayload is the type-specific content of a message, stored as jsonb and
// snapshotted onto queue items at enqueue time. Only the fields relevant to the
// message type are populated.
type MessagePayload struct {
	// Text / caption content
	Text    *string `json:"text,omitempty"`
	Caption *string `json:"caption,omitempty"`

	// Media messages (image, video, document, audio, sticker)
	MediaURL *string `json:"media_url,omitempty"`
	FileName *string `json:"file_name,omitempty"`

	// Location messages
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	LocationName *string  `json:"location_name,omitempty"`

	// Contact messages
	ContactName  *string `json:"contact_name,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty"`

	// Poll messages
	PollQuestion  *string  `json:"poll_question,omitempty"`
	PollOptions   []string `json:"poll_options,omitempty"`
	PollCountable *bool    `json:"poll_countable,omitempty"`

	// List messages
	ListTitle      *string       `json:"list_title,omitempty"`
	ListDesc       *string       `json:"list_description,omitempty"`
	ListButtonText *string       `json:"list_button_text,omitempty"`
	ListSections   []ListSection `json:"list_sections,omitempty"`
}

// Value implements the driver.Valuer interface for MessagePayload
func (p MessagePayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for MessagePayload
func (p *MessagePayload) Scan(value any) error {
	if value == nil {
		*p = MessagePayload{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessagePayload", value)
	}

	return json.Unmarshal(bytes, p)
}

// TextContent returns whatever textual field the payload carries, used by the
// fallback path for unknown message types.
func (p MessagePayload) TextContent() string {
	if p.Text != nil && *p.Text != "" {
		return *p.Text
	}
	if p.Caption != nil && *p.Caption != "" {
		return *p.Caption
	}
	return ""
}
