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

type ConversationRepository interface {
	FindDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	CreateDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, bool, error)
	CreateGroup(ctx context.Context, name string, participants []uuid.UUID) (*domain.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	ListIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UpdateLastMessage(ctx context.Context, id uuid.UUID, summary *domain.LastMessage) error
	MarkLastMessageSeen(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	Rename(ctx context.Context, id uuid.UUID, name string) error
	AddParticipant(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	MarkDeletedBy(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Conversation, error)
	ClearDeletedBy(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `id, is_group, name, participants, last_message, deleted_by, created_at, updated_at`

// directKey - каноническая форма неупорядоченной пары участников. Уникальный
// индекс по этому ключу закрывает гонку lookup-then-create при первом контакте.
func directKey(userA, userB uuid.UUID) string {
	a, b := userA.String(), userB.String()
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var lastMessage []byte
	err := row.Scan(
		&conv.ID, &conv.IsGroup, &conv.Name, &conv.Participants,
		&lastMessage, &conv.DeletedBy, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lastMessage) > 0 {
		summary := &domain.LastMessage{}
		if err := json.Unmarshal(lastMessage, summary); err != nil {
			return nil, fmt.Errorf("unmarshal last_message: %w", err)
		}
		conv.LastMessage = summary
	}
	return conv, nil
}

func (r *conversationRepository) FindDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE NOT is_group AND direct_key = $1
	`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, directKey(userA, userB)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find direct conversation", "error", err)
		return nil, err
	}
	return conv, nil
}

// CreateDirect создает 1-1 беседу либо возвращает существующую. Второе
// возвращаемое значение - true, если запись действительно была создана.
func (r *conversationRepository) CreateDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, bool, error) {
	query := `
		INSERT INTO conversations (id, is_group, name, participants, deleted_by, direct_key, created_at, updated_at)
		VALUES ($1, false, '', $2, '{}', $3, $4, $4)
		ON CONFLICT (direct_key) WHERE direct_key IS NOT NULL
		DO UPDATE SET direct_key = EXCLUDED.direct_key
		RETURNING ` + conversationColumns + `, (xmax = 0)
	`

	now := time.Now()
	conv := &domain.Conversation{}
	var lastMessage []byte
	var inserted bool
	err := r.db.QueryRow(ctx, query, uuid.New(), []uuid.UUID{userA, userB}, directKey(userA, userB), now).Scan(
		&conv.ID, &conv.IsGroup, &conv.Name, &conv.Participants,
		&lastMessage, &conv.DeletedBy, &conv.CreatedAt, &conv.UpdatedAt,
		&inserted,
	)
	if err != nil {
		r.log.Error("Failed to create direct conversation", "error", err)
		return nil, false, err
	}
	if len(lastMessage) > 0 {
		summary := &domain.LastMessage{}
		if err := json.Unmarshal(lastMessage, summary); err != nil {
			return nil, false, fmt.Errorf("unmarshal last_message: %w", err)
		}
		conv.LastMessage = summary
	}
	return conv, inserted, nil
}

func (r *conversationRepository) CreateGroup(ctx context.Context, name string, participants []uuid.UUID) (*domain.Conversation, error) {
	query := `
		INSERT INTO conversations (id, is_group, name, participants, deleted_by, created_at, updated_at)
		VALUES ($1, true, $2, $3, '{}', $4, $4)
		RETURNING ` + conversationColumns + `
	`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, uuid.New(), name, participants, time.Now()))
	if err != nil {
		r.log.Error("Failed to create group conversation", "error", err)
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		r.log.Error("Failed to get conversation", "error", err)
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE $1 = ANY(participants) AND NOT $1 = ANY(deleted_by)
		ORDER BY COALESCE((last_message->>'updated_at')::timestamptz, updated_at) DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (r *conversationRepository) ListIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT id FROM conversations WHERE $1 = ANY(participants)`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversation ids", "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *conversationRepository) UpdateLastMessage(ctx context.Context, id uuid.UUID, summary *domain.LastMessage) error {
	var payload []byte
	if summary != nil {
		var err error
		payload, err = json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal last_message: %w", err)
		}
	}

	query := `UPDATE conversations SET last_message = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, payload, time.Now())
	if err != nil {
		r.log.Error("Failed to update last message", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) MarkLastMessageSeen(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	// seenBy в кеше lastMessage - jsonb-массив, добавляем без дублей
	query := `
		UPDATE conversations
		SET last_message = jsonb_set(
			last_message, '{seen_by}',
			(last_message->'seen_by') || to_jsonb($2::text)
		)
		WHERE id = $1
		  AND last_message IS NOT NULL
		  AND NOT last_message->'seen_by' @> to_jsonb($2::text)
	`
	_, err := r.db.Exec(ctx, query, id, userID.String())
	if err != nil {
		r.log.Error("Failed to mark last message seen", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	query := `UPDATE conversations SET name = $2, updated_at = $3 WHERE id = $1 AND is_group`

	tag, err := r.db.Exec(ctx, query, id, name, time.Now())
	if err != nil {
		r.log.Error("Failed to rename group", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotAGroup
	}
	return nil
}

func (r *conversationRepository) AddParticipant(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	// Идемпотентно: уже состоящий участник не добавляется повторно
	query := `
		UPDATE conversations
		SET participants = array_append(participants, $2), updated_at = $3
		WHERE id = $1 AND is_group AND NOT $2 = ANY(participants)
	`
	_, err := r.db.Exec(ctx, query, id, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to add participant", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) RemoveParticipant(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET participants = array_remove(participants, $2), updated_at = $3
		WHERE id = $1 AND is_group
	`
	_, err := r.db.Exec(ctx, query, id, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to remove participant", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) MarkDeletedBy(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*domain.Conversation, error) {
	query := `
		UPDATE conversations
		SET deleted_by = CASE WHEN $2 = ANY(deleted_by) THEN deleted_by ELSE array_append(deleted_by, $2) END
		WHERE id = $1
		RETURNING ` + conversationColumns + `
	`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		r.log.Error("Failed to mark conversation deleted", "error", err)
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) ClearDeletedBy(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := `UPDATE conversations SET deleted_by = array_remove(deleted_by, $2) WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		r.log.Error("Failed to clear conversation deletion mark", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		r.log.Error("Failed to delete conversation", "error", err)
		return err
	}
	return nil
}
