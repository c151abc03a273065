package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	"social_messenger/internal/middleware"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type MessageHandler struct {
	messaging   service.MessagingService
	attachments service.AttachmentService
	storageCfg  config.StorageConfig
	log         logger.Logger
}

func NewMessageHandler(messaging service.MessagingService, attachments service.AttachmentService, storageCfg config.StorageConfig, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messaging:   messaging,
		attachments: attachments,
		storageCfg:  storageCfg,
		log:         log,
	}
}

// SendMessage обрабатывает multipart-отправку: текст плюс файлы.
// Файлы складываются во временный каталог и передаются сервису,
// который отвечает за их зачистку на любом исходе.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	recipientID, err := uuid.Parse(c.PostForm("recipientId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient ID"})
		return
	}
	text := c.PostForm("message")

	var uploads []service.Upload
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, file := range form.File["files"] {
			tmpPath := filepath.Join(h.storageCfg.TempDir, fmt.Sprintf("upload-%s%s", uuid.New(), filepath.Ext(file.Filename)))
			if err := c.SaveUploadedFile(file, tmpPath); err != nil {
				cleanupTempFiles(uploads)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store uploaded file"})
				return
			}
			uploads = append(uploads, service.Upload{
				LocalPath: tmpPath,
				Name:      file.Filename,
				Size:      file.Size,
				MimeType:  file.Header.Get("Content-Type"),
			})
		}
	}

	message, err := h.messaging.SendMessage(c.Request.Context(), identity.ID, recipientID, text, uploads)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Message sent successfully", "data": message})
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	messages, err := h.messaging.ListMessages(c.Request.Context(), conversationID, identity.ID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type UpdateMessageRequest struct {
	NewText string `json:"newText" binding:"required"`
}

func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.messaging.UpdateMessage(c.Request.Context(), messageID, identity.ID, req.NewText); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message updated successfully", "data": gin.H{"messageId": messageID}})
}

// DeleteMessage - глобальное удаление отправителем
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	if err := h.messaging.DeleteMessage(c.Request.Context(), messageID, identity.ID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully", "data": gin.H{"messageId": messageID}})
}

// DeleteMessageForMe скрывает сообщение только для вызывающего
func (h *MessageHandler) DeleteMessageForMe(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	if _, err := h.messaging.DeleteMessageForMe(c.Request.Context(), messageID, identity.ID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted for you successfully"})
}

type ForwardMessageRequest struct {
	RecipientIDs []string `json:"recipientIds" binding:"required"`
}

func (h *MessageHandler) ForwardMessage(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req ForwardMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.RecipientIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipientIds are required"})
		return
	}

	recipientIDs := make([]uuid.UUID, 0, len(req.RecipientIDs))
	for _, raw := range req.RecipientIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient ID: " + raw})
			return
		}
		recipientIDs = append(recipientIDs, id)
	}

	forwarded, err := h.messaging.ForwardMessage(c.Request.Context(), identity.ID, messageID, recipientIDs)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if len(forwarded) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message forwarding failed. Please try again."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Message forwarded successfully"})
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	if err := h.messaging.MarkConversationSeen(c.Request.Context(), conversationID, identity.ID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Messages seen status updated successfully"})
}

// GetSignedURL выдает временную ссылку на authenticated-объект
func (h *MessageHandler) GetSignedURL(c *gin.Context) {
	objectID := c.Param("publicId")
	if objectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Public ID is required"})
		return
	}

	kind := domain.ResourceKind(c.DefaultQuery("resourceType", string(domain.ResourceVideo)))
	switch kind {
	case domain.ResourceImage, domain.ResourceVideo, domain.ResourceRaw:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource type"})
		return
	}

	format := c.Query("format")
	forceMP3 := strings.EqualFold(c.Query("forceMp3"), "true")

	url, err := h.attachments.SignedURL(objectID, kind, format, forceMP3)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func cleanupTempFiles(uploads []service.Upload) {
	for _, upload := range uploads {
		os.Remove(upload.LocalPath)
	}
}
