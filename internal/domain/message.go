package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	Sender         uuid.UUID    `json:"sender"`
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments"`
	SeenBy         []uuid.UUID  `json:"seen_by"`
	DeletedBy      []uuid.UUID  `json:"-"`
	IsForwarded    bool         `json:"is_forwarded"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Attachment - неизменяемое вложение сообщения. ObjectID может разделяться
// несколькими сообщениями (форвард не перезагружает объект в хранилище).
type Attachment struct {
	Type         AttachmentType `json:"type"`
	URL          string         `json:"url,omitempty"` // Только для публичных объектов
	ObjectID     string         `json:"object_id"`
	ResourceKind ResourceKind   `json:"resource_kind"`
	AccessMode   AccessMode     `json:"access_mode"`
	Name         string         `json:"name,omitempty"`
	Size         int64          `json:"size,omitempty"`
	Width        int            `json:"width,omitempty"`
	Height       int            `json:"height,omitempty"`
	Duration     float64        `json:"duration,omitempty"`
	Format       string         `json:"format,omitempty"`
	MimeType     string         `json:"mime_type,omitempty"`
}

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
	AttachmentAudio AttachmentType = "audio"
	AttachmentGIF   AttachmentType = "gif"
)

// Label используется для текста lastMessage, когда сообщение без текста
func (t AttachmentType) Label() string {
	switch t {
	case AttachmentImage:
		return "Image"
	case AttachmentGIF:
		return "GIF"
	case AttachmentVideo:
		return "Video"
	case AttachmentAudio:
		return "Audio"
	default:
		return "File"
	}
}

// ResourceKind - классификация объекта на стороне хранилища
type ResourceKind string

const (
	ResourceImage ResourceKind = "image"
	ResourceVideo ResourceKind = "video"
	ResourceRaw   ResourceKind = "raw"
)

// AccessMode определяет, нужна ли подписанная ссылка для выдачи объекта
type AccessMode string

const (
	AccessPublic        AccessMode = "public"
	AccessAuthenticated AccessMode = "authenticated"
)

func (m *Message) SeenByUser(userID uuid.UUID) bool {
	for _, s := range m.SeenBy {
		if s == userID {
			return true
		}
	}
	return false
}

func (m *Message) DeletedByUser(userID uuid.UUID) bool {
	for _, d := range m.DeletedBy {
		if d == userID {
			return true
		}
	}
	return false
}
