package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"social_messenger/internal/realtime"
	"social_messenger/internal/service"
	"social_messenger/pkg/logger"
)

type WebSocketHandler struct {
	registry  *realtime.Registry
	router    *realtime.Router
	messaging service.MessagingService
	upgrader  websocket.Upgrader
	log       logger.Logger
}

func NewWebSocketHandler(registry *realtime.Registry, router *realtime.Router, messaging service.MessagingService, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		registry:  registry,
		router:    router,
		messaging: messaging,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// HandleConnection апгрейдит соединение и держит его до разрыва.
// Повторное подключение того же пользователя закрывает предыдущий сокет.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := realtime.NewClient(userID, conn, h.log)
	h.registry.Register(client)

	// Сразу подписываем клиента на комнаты всех его бесед, чтобы события
	// newMessage приходили без отдельного joinConversationRoom.
	conversationIDs, err := h.messaging.ConversationIDsForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Warn("failed to preload conversation rooms", "user_id", userID, "error", err)
	}
	for _, id := range conversationIDs {
		h.registry.JoinRoom(client, id)
	}

	h.router.BroadcastOnlineUsers()
	h.log.Info("websocket connected", "user_id", userID)

	go client.WritePump()
	client.ReadPump(h.router.Dispatch)

	h.registry.Deregister(client)
	h.router.BroadcastOnlineUsers()
	h.log.Info("websocket disconnected", "user_id", userID)
}
