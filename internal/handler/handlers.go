package handler

import (
	"social_messenger/internal/config"
	"social_messenger/internal/realtime"
	"social_messenger/internal/service"
	"social_messenger/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, registry *realtime.Registry, router *realtime.Router, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Conversation: NewConversationHandler(services.Messaging, log),
		Message:      NewMessageHandler(services.Messaging, services.Attachment, cfg.Storage, log),
		WebSocket:    NewWebSocketHandler(registry, router, services.Messaging, log),
	}
}
