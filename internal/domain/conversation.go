package domain

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID           uuid.UUID    `json:"id"`
	IsGroup      bool         `json:"is_group"`
	Name         string       `json:"name,omitempty"`
	Participants []uuid.UUID  `json:"participants"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	DeletedBy    []uuid.UUID  `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// LastMessage - денормализованная сводка последнего сообщения.
// Кеш best-effort, пересчитывается при создании/редактировании/удалении сообщений.
type LastMessage struct {
	Text      string      `json:"text"`
	Sender    uuid.UUID   `json:"sender"`
	SeenBy    []uuid.UUID `json:"seen_by"`
	MessageID uuid.UUID   `json:"message_id"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ConversationSummary - беседа в списке пользователя вместе со счетчиком непрочитанных
type ConversationSummary struct {
	Conversation
	UnreadCount int `json:"unread_count"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) DeletedByUser(userID uuid.UUID) bool {
	for _, d := range c.DeletedBy {
		if d == userID {
			return true
		}
	}
	return false
}

// DeletedByAll: все текущие участники пометили беседу удаленной - пора чистить физически
func (c *Conversation) DeletedByAll() bool {
	if len(c.Participants) == 0 {
		return false
	}
	for _, p := range c.Participants {
		if !c.DeletedByUser(p) {
			return false
		}
	}
	return true
}
