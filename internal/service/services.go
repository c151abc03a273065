package service

import (
	"social_messenger/internal/config"
	"social_messenger/internal/repository"
	"social_messenger/internal/storage"
	"social_messenger/pkg/logger"
)

type Services struct {
	Auth       AuthService
	Attachment AttachmentService
	Messaging  MessagingService
	RateLimit  RateLimitService
}

func NewServices(repos *repository.Repositories, store storage.ObjectStore, emitter Emitter, cfg *config.Config, log logger.Logger) *Services {
	attachments := NewAttachmentService(store, log)

	return &Services{
		Auth:       NewAuthService(cfg.JWT, log),
		Attachment: attachments,
		Messaging:  NewMessagingService(repos.Conversation, repos.Message, attachments, emitter, log),
		RateLimit:  NewRateLimitService(repos.RateLimit, log),
	}
}
