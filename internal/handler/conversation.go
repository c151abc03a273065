package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/middleware"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type ConversationHandler struct {
	messaging service.MessagingService
	log       logger.Logger
}

func NewConversationHandler(messaging service.MessagingService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{messaging: messaging, log: log}
}

type StartConversationRequest struct {
	OtherUserID string `json:"otherUserId" binding:"required"`
}

// StartConversation ищет существующую 1-1 беседу. Отсутствие беседы не ошибка:
// клиент получает data: null и создаст тред первым сообщением.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Other user ID is required"})
		return
	}

	otherUserID, err := uuid.Parse(req.OtherUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	conversation, err := h.messaging.StartDirect(c.Request.Context(), identity.ID, otherUserID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation ready", "data": conversation})
}

func (h *ConversationHandler) GetConversations(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversations, err := h.messaging.ListConversations(c.Request.Context(), identity.ID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversations fetched successfully", "conversations": conversations})
}

type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participants, err := parseUUIDs(req.Participants)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.messaging.CreateGroup(c.Request.Context(), req.Name, participants, identity.ID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": "Group creation failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Group created successfully", "data": group})
}

type RenameGroupRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Name           string `json:"name" binding:"required"`
}

func (h *ConversationHandler) RenameGroup(c *gin.Context) {
	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	updated, err := h.messaging.RenameGroup(c.Request.Context(), conversationID, req.Name)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": "Failed to rename group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group renamed successfully", "data": updated})
}

type GroupMemberRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	UserID         string `json:"userId" binding:"required"`
}

func (h *ConversationHandler) AddToGroup(c *gin.Context) {
	h.changeGroupMembership(c, h.messaging.AddToGroup, "Member added successfully", "Failed to add member to group")
}

func (h *ConversationHandler) RemoveFromGroup(c *gin.Context) {
	h.changeGroupMembership(c, h.messaging.RemoveFromGroup, "Member removed successfully", "Failed to remove member from group")
}

func (h *ConversationHandler) changeGroupMembership(
	c *gin.Context,
	op func(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error),
	successMsg, failureMsg string,
) {
	var req GroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	updated, err := op(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": failureMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": successMsg, "data": updated})
}

func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
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

	if _, err := h.messaging.DeleteConversation(c.Request.Context(), conversationID, identity.ID); err != nil {
		c.JSON(apperrors.HTTPStatusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully", "data": gin.H{"conversationId": conversationID}})
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID: %s", value)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
