package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	ListForConversation(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error)
	ListAllForConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	LatestForConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error)
	MarkSeen(ctx context.Context, conversationID, viewerID uuid.UUID) error
	UpdateText(ctx context.Context, id uuid.UUID, newText string) error
	SoftDeleteForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Message, error)
	SoftDeleteAllForUser(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllForConversation(ctx context.Context, conversationID uuid.UUID) error
	CountUnseen(ctx context.Context, conversationID, viewerID uuid.UUID) (int, error)
	ReferencedElsewhere(ctx context.Context, objectID string, excludeMessageID uuid.UUID) (bool, error)
	ReferencedOutsideConversation(ctx context.Context, objectID string, conversationID uuid.UUID) (bool, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `id, conversation_id, sender, text, attachments, seen_by, deleted_by, is_forwarded, created_at, updated_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var attachments []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text,
		&attachments, &msg.SeenBy, &msg.DeletedBy, &msg.IsForwarded,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return msg, nil
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	if message.Text == "" && len(message.Attachments) == 0 {
		return apperrors.ErrEmptyMessage
	}

	attachments, err := json.Marshal(message.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender, text, attachments, seen_by, deleted_by, is_forwarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '{}', $7, $8, $8)
		RETURNING created_at, updated_at
	`

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	err = r.db.QueryRow(ctx, query,
		message.ID, message.ConversationID, message.Sender, message.Text,
		attachments, message.SeenBy, message.IsForwarded, time.Now(),
	).Scan(&message.CreatedAt, &message.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}
	return msg, nil
}

// ListForConversation отдает сообщения по возрастанию времени создания,
// скрывая удаленные наблюдателем "для себя".
func (r *messageRepository) ListForConversation(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND NOT $2 = ANY(deleted_by)
		ORDER BY created_at ASC
	`
	return r.queryMessages(ctx, query, conversationID, viewerID)
}

func (r *messageRepository) ListAllForConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	return r.queryMessages(ctx, query, conversationID)
}

func (r *messageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to query messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *messageRepository) LatestForConversation(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to get latest message", "error", err)
		return nil, err
	}
	return msg, nil
}

// MarkSeen помечает прочитанными все сообщения беседы разом. Повторный вызов - no-op.
func (r *messageRepository) MarkSeen(ctx context.Context, conversationID, viewerID uuid.UUID) error {
	query := `
		UPDATE messages
		SET seen_by = array_append(seen_by, $2)
		WHERE conversation_id = $1 AND NOT $2 = ANY(seen_by)
	`
	_, err := r.db.Exec(ctx, query, conversationID, viewerID)
	if err != nil {
		r.log.Error("Failed to mark messages seen", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) UpdateText(ctx context.Context, id uuid.UUID, newText string) error {
	query := `UPDATE messages SET text = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, newText, time.Now())
	if err != nil {
		r.log.Error("Failed to update message text", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}
	return nil
}

func (r *messageRepository) SoftDeleteForUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET deleted_by = CASE WHEN $2 = ANY(deleted_by) THEN deleted_by ELSE array_append(deleted_by, $2) END
		WHERE id = $1
		RETURNING ` + messageColumns + `
	`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		r.log.Error("Failed to soft delete message", "error", err)
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) SoftDeleteAllForUser(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error {
	query := `
		UPDATE messages
		SET deleted_by = array_append(deleted_by, $2)
		WHERE conversation_id = $1 AND NOT $2 = ANY(deleted_by)
	`
	_, err := r.db.Exec(ctx, query, conversationID, userID)
	if err != nil {
		r.log.Error("Failed to soft delete conversation messages", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) DeleteAllForConversation(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		r.log.Error("Failed to delete conversation messages", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) CountUnseen(ctx context.Context, conversationID, viewerID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM messages
		WHERE conversation_id = $1
		  AND NOT $2 = ANY(deleted_by)
		  AND NOT $2 = ANY(seen_by)
	`

	var count int
	if err := r.db.QueryRow(ctx, query, conversationID, viewerID).Scan(&count); err != nil {
		r.log.Error("Failed to count unseen messages", "error", err)
		return 0, err
	}
	return count, nil
}

// ReferencedElsewhere - ссылается ли на объект хранилища какое-либо еще сообщение.
// Проверка обязана идти до уничтожения объекта: форварды разделяют object_id.
func (r *messageRepository) ReferencedElsewhere(ctx context.Context, objectID string, excludeMessageID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE id <> $2
			  AND attachments @> jsonb_build_array(jsonb_build_object('object_id', $1::text))
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, objectID, excludeMessageID).Scan(&exists); err != nil {
		r.log.Error("Failed to check attachment references", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *messageRepository) ReferencedOutsideConversation(ctx context.Context, objectID string, conversationID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE conversation_id <> $2
			  AND attachments @> jsonb_build_array(jsonb_build_object('object_id', $1::text))
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, objectID, conversationID).Scan(&exists); err != nil {
		r.log.Error("Failed to check attachment references", "error", err)
		return false, err
	}
	return exists, nil
}
