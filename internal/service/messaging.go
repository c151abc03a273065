package service

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/repository"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

// Emitter - то, что сервису нужно от realtime-маршрутизатора. Доставка всегда
// best-effort: офлайн-адресат не ошибка.
type Emitter interface {
	EmitToUser(userID uuid.UUID, event string, data any) bool
	EmitToRoom(conversationID uuid.UUID, event string, data any)
}

type MessagingService interface {
	StartDirect(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error)
	SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, text string, uploads []Upload) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error)
	ListConversations(ctx context.Context, viewerID uuid.UUID) ([]*domain.ConversationSummary, error)
	ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	CreateGroup(ctx context.Context, name string, participants []uuid.UUID, creatorID uuid.UUID) (*domain.Conversation, error)
	RenameGroup(ctx context.Context, conversationID uuid.UUID, name string) (*domain.Conversation, error)
	AddToGroup(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
	RemoveFromGroup(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)

	UpdateMessage(ctx context.Context, messageID, requesterID uuid.UUID, newText string) error
	DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error
	DeleteMessageForMe(ctx context.Context, messageID, requesterID uuid.UUID) (bool, error)
	ForwardMessage(ctx context.Context, senderID, messageID uuid.UUID, recipientIDs []uuid.UUID) ([]*domain.Message, error)
	DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) (bool, error)
	MarkConversationSeen(ctx context.Context, conversationID, viewerID uuid.UUID) error
}

type messagingService struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	attachments AttachmentService
	emitter     Emitter
	log         logger.Logger
}

func NewMessagingService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	attachments AttachmentService,
	emitter Emitter,
	log logger.Logger,
) MessagingService {
	return &messagingService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		attachments: attachments,
		emitter:     emitter,
		log:         log,
	}
}

func (s *messagingService) StartDirect(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if userID == otherUserID {
		return nil, apperrors.ErrValidation
	}
	return s.convRepo.FindDirect(ctx, userID, otherUserID)
}

func (s *messagingService) SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, text string, uploads []Upload) (*domain.Message, error) {
	// Временные файлы не должны пережить запрос ни на одном из исходов
	defer cleanupUploads(uploads)

	text = strings.TrimSpace(text)
	if text == "" && len(uploads) == 0 {
		return nil, apperrors.ErrEmptyMessage
	}
	if senderID == recipientID {
		return nil, apperrors.ErrValidation
	}

	conversation, created, err := s.convRepo.CreateDirect(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	// Новое сообщение воскрешает тред только для инициатора: чужая пометка
	// удаления остается до следующего действия самого пользователя
	if !created && conversation.DeletedByUser(senderID) {
		if err := s.convRepo.ClearDeletedBy(ctx, conversation.ID, senderID); err != nil {
			return nil, err
		}
	}

	var attachments []domain.Attachment
	if len(uploads) > 0 {
		attachments, err = s.attachments.UploadAll(ctx, uploads)
		if err != nil {
			return nil, err
		}
	}

	message := &domain.Message{
		ConversationID: conversation.ID,
		Sender:         senderID,
		Text:           text,
		Attachments:    attachments,
		SeenBy:         []uuid.UUID{senderID},
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.convRepo.UpdateLastMessage(ctx, conversation.ID, summarize(message)); err != nil {
		s.log.Error("Failed to update last message cache", "conversation_id", conversation.ID, "error", err)
	}

	s.emitter.EmitToUser(recipientID, domain.EventNewMessage, message)
	if created {
		s.emitter.EmitToUser(recipientID, domain.EventConversationCreated, conversation)
	}

	return message, nil
}

func (s *messagingService) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error) {
	if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListForConversation(ctx, conversationID, viewerID)
}

func (s *messagingService) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]*domain.ConversationSummary, error) {
	conversations, err := s.convRepo.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := s.messageRepo.CountUnseen(ctx, conv.ID, viewerID)
		if err != nil {
			return nil, err
		}
		// В 1-1 беседах наружу отдается только собеседник
		if !conv.IsGroup {
			others := make([]uuid.UUID, 0, 1)
			for _, p := range conv.Participants {
				if p != viewerID {
					others = append(others, p)
				}
			}
			conv.Participants = others
		}
		summaries = append(summaries, &domain.ConversationSummary{Conversation: *conv, UnreadCount: unread})
	}
	return summaries, nil
}

func (s *messagingService) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.convRepo.ListIDsForUser(ctx, userID)
}

func (s *messagingService) CreateGroup(ctx context.Context, name string, participants []uuid.UUID, creatorID uuid.UUID) (*domain.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(participants) == 0 {
		return nil, apperrors.ErrValidation
	}

	// Создатель всегда входит в группу, даже если клиент его не прислал
	members := make([]uuid.UUID, 0, len(participants)+1)
	seen := map[uuid.UUID]bool{}
	for _, p := range append(participants, creatorID) {
		if !seen[p] {
			seen[p] = true
			members = append(members, p)
		}
	}

	return s.convRepo.CreateGroup(ctx, name, members)
}

func (s *messagingService) RenameGroup(ctx context.Context, conversationID uuid.UUID, name string) (*domain.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrValidation
	}
	if err := s.convRepo.Rename(ctx, conversationID, name); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

func (s *messagingService) AddToGroup(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsGroup {
		return nil, apperrors.ErrNotAGroup
	}
	if err := s.convRepo.AddParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

func (s *messagingService) RemoveFromGroup(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsGroup {
		return nil, apperrors.ErrNotAGroup
	}
	if err := s.convRepo.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

func (s *messagingService) UpdateMessage(ctx context.Context, messageID, requesterID uuid.UUID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return apperrors.ErrValidation
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != requesterID {
		return apperrors.ErrForbidden
	}

	if err := s.messageRepo.UpdateText(ctx, messageID, newText); err != nil {
		return err
	}
	message.Text = newText

	if err := s.refreshLastMessageIfStale(ctx, message.ConversationID, messageID); err != nil {
		s.log.Error("Failed to refresh last message cache", "conversation_id", message.ConversationID, "error", err)
	}

	s.emitter.EmitToRoom(message.ConversationID, domain.EventMessageUpdated, domain.MessageUpdatedEvent{
		ConversationID: message.ConversationID.String(),
		MessageID:      messageID.String(),
		NewText:        newText,
	})
	return nil
}

// DeleteMessage - глобальное удаление, доступно только отправителю. Сообщение
// удаляется физически сразу; объекты вложений уничтожаются только без других ссылок.
func (s *messagingService) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != requesterID {
		return apperrors.ErrForbidden
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return err
	}
	s.releaseUnreferenced(ctx, message)

	if err := s.refreshLastMessageIfStale(ctx, message.ConversationID, messageID); err != nil {
		s.log.Error("Failed to refresh last message cache", "conversation_id", message.ConversationID, "error", err)
	}

	s.emitter.EmitToRoom(message.ConversationID, domain.EventMessageDeleted, domain.MessageDeletedEvent{
		ConversationID: message.ConversationID.String(),
		MessageID:      messageID.String(),
	})
	return nil
}

// DeleteMessageForMe скрывает сообщение из вида пользователя. Когда все текущие
// участники беседы пометили сообщение, оно эскалируется в физическое удаление.
func (s *messagingService) DeleteMessageForMe(ctx context.Context, messageID, requesterID uuid.UUID) (bool, error) {
	message, err := s.messageRepo.SoftDeleteForUser(ctx, messageID, requesterID)
	if err != nil {
		return false, err
	}

	conversation, err := s.convRepo.GetByID(ctx, message.ConversationID)
	if err != nil {
		return false, err
	}
	if !deletedByAllParticipants(message, conversation) {
		return false, nil
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return false, err
	}
	s.releaseUnreferenced(ctx, message)

	if err := s.refreshLastMessageIfStale(ctx, message.ConversationID, messageID); err != nil {
		s.log.Error("Failed to refresh last message cache", "conversation_id", message.ConversationID, "error", err)
	}
	return true, nil
}

// ForwardMessage пересылает сообщение списку получателей. Политика частичного
// отказа: ошибка по одному получателю не откатывает уже доставленные копии.
func (s *messagingService) ForwardMessage(ctx context.Context, senderID, messageID uuid.UUID, recipientIDs []uuid.UUID) ([]*domain.Message, error) {
	original, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var forwarded []*domain.Message
	var lastErr error
	for _, recipientID := range recipientIDs {
		message, err := s.forwardToRecipient(ctx, senderID, recipientID, original)
		if err != nil {
			s.log.Error("Failed to forward message", "recipient_id", recipientID, "error", err)
			lastErr = err
			continue
		}
		forwarded = append(forwarded, message)
	}

	if len(forwarded) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return forwarded, nil
}

func (s *messagingService) forwardToRecipient(ctx context.Context, senderID, recipientID uuid.UUID, original *domain.Message) (*domain.Message, error) {
	if senderID == recipientID {
		return nil, apperrors.ErrValidation
	}

	conversation, created, err := s.convRepo.CreateDirect(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	if !created && conversation.DeletedByUser(senderID) {
		if err := s.convRepo.ClearDeletedBy(ctx, conversation.ID, senderID); err != nil {
			return nil, err
		}
	}

	// Вложения переиспользуют object_id оригинала, без повторной загрузки
	message := &domain.Message{
		ConversationID: conversation.ID,
		Sender:         senderID,
		Text:           original.Text,
		Attachments:    original.Attachments,
		SeenBy:         []uuid.UUID{senderID},
		IsForwarded:    true,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.convRepo.UpdateLastMessage(ctx, conversation.ID, summarize(message)); err != nil {
		s.log.Error("Failed to update last message cache", "conversation_id", conversation.ID, "error", err)
	}

	// Уведомляем обе стороны: другие открытые сессии отправителя тоже должны
	// увидеть пересылку
	for _, userID := range []uuid.UUID{recipientID, senderID} {
		if created {
			s.emitter.EmitToUser(userID, domain.EventConversationCreated, conversation)
		}
		s.emitter.EmitToUser(userID, domain.EventNewMessage, message)
	}

	return message, nil
}

// DeleteConversation помечает беседу и все ее сообщения удаленными для
// инициатора. Когда пометка покрывает всех участников - полная чистка.
func (s *messagingService) DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) (bool, error) {
	conversation, err := s.convRepo.MarkDeletedBy(ctx, conversationID, requesterID)
	if err != nil {
		return false, err
	}
	if err := s.messageRepo.SoftDeleteAllForUser(ctx, conversationID, requesterID); err != nil {
		return false, err
	}

	if !conversation.DeletedByAll() {
		// Локальное удаление незаметно для остальных участников
		s.emitter.EmitToUser(requesterID, domain.EventConversationDeleted, domain.ConversationDeletedEvent{
			ConversationID: conversationID.String(),
		})
		return false, nil
	}

	if err := s.purgeConversation(ctx, conversation); err != nil {
		return false, err
	}
	s.emitter.EmitToRoom(conversationID, domain.EventConversationPurged, domain.ConversationDeletedEvent{
		ConversationID: conversationID.String(),
	})
	return true, nil
}

func (s *messagingService) purgeConversation(ctx context.Context, conversation *domain.Conversation) error {
	messages, err := s.messageRepo.ListAllForConversation(ctx, conversation.ID)
	if err != nil {
		return err
	}

	// Ссылочная проверка идет по всему хранилищу, не только по этой беседе
	for _, message := range messages {
		for _, attachment := range message.Attachments {
			referenced, err := s.messageRepo.ReferencedOutsideConversation(ctx, attachment.ObjectID, conversation.ID)
			if err != nil {
				s.log.Error("Failed to check attachment references", "object_id", attachment.ObjectID, "error", err)
				continue
			}
			if !referenced {
				s.attachments.Release(ctx, attachment)
			}
		}
	}

	if err := s.messageRepo.DeleteAllForConversation(ctx, conversation.ID); err != nil {
		return err
	}
	return s.convRepo.Delete(ctx, conversation.ID)
}

func (s *messagingService) MarkConversationSeen(ctx context.Context, conversationID, viewerID uuid.UUID) error {
	if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
		return err
	}

	if err := s.messageRepo.MarkSeen(ctx, conversationID, viewerID); err != nil {
		return err
	}
	if err := s.convRepo.MarkLastMessageSeen(ctx, conversationID, viewerID); err != nil {
		return err
	}

	s.emitter.EmitToRoom(conversationID, domain.EventMessagesSeen, domain.MessagesSeenEvent{
		ConversationID: conversationID.String(),
		UserID:         viewerID.String(),
	})
	return nil
}

// releaseUnreferenced уничтожает объекты вложений, на которые больше не
// ссылается ни одно сообщение. Сообщение к этому моменту уже удалено.
func (s *messagingService) releaseUnreferenced(ctx context.Context, message *domain.Message) {
	for _, attachment := range message.Attachments {
		referenced, err := s.messageRepo.ReferencedElsewhere(ctx, attachment.ObjectID, message.ID)
		if err != nil {
			s.log.Error("Failed to check attachment references", "object_id", attachment.ObjectID, "error", err)
			continue
		}
		if !referenced {
			s.attachments.Release(ctx, attachment)
		}
	}
}

// refreshLastMessageIfStale пересчитывает кеш lastMessage, если он ссылается
// на затронутое сообщение. Единственная точка пересчета для всех путей мутации.
func (s *messagingService) refreshLastMessageIfStale(ctx context.Context, conversationID, messageID uuid.UUID) error {
	conversation, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.LastMessage == nil || conversation.LastMessage.MessageID != messageID {
		return nil
	}

	latest, err := s.messageRepo.LatestForConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	return s.convRepo.UpdateLastMessage(ctx, conversationID, summarize(latest))
}

// summarize строит денормализованную сводку lastMessage. nil на входе очищает кеш.
func summarize(message *domain.Message) *domain.LastMessage {
	if message == nil {
		return nil
	}

	text := message.Text
	if text == "" && len(message.Attachments) > 0 {
		// При нескольких вложениях побеждает тип последнего
		text = message.Attachments[len(message.Attachments)-1].Type.Label()
	}

	return &domain.LastMessage{
		Text:      text,
		Sender:    message.Sender,
		SeenBy:    message.SeenBy,
		MessageID: message.ID,
		UpdatedAt: time.Now(),
	}
}

func deletedByAllParticipants(message *domain.Message, conversation *domain.Conversation) bool {
	if len(conversation.Participants) == 0 {
		return false
	}
	for _, p := range conversation.Participants {
		if !message.DeletedByUser(p) {
			return false
		}
	}
	return true
}

func cleanupUploads(uploads []Upload) {
	for _, upload := range uploads {
		if err := os.Remove(upload.LocalPath); err != nil && !os.IsNotExist(err) {
			// Файл мог быть уже убран фазой загрузки
			continue
		}
	}
}
