package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	"social_messenger/internal/middleware"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/jwt"
	"social_messenger/pkg/logger"
)

// stubMessaging - настраиваемая заглушка сервиса для тестов handler-слоя
type stubMessaging struct {
	startDirect        func(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error)
	sendMessage        func(ctx context.Context, senderID, recipientID uuid.UUID, text string, uploads []service.Upload) (*domain.Message, error)
	listMessages       func(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error)
	listConversations  func(ctx context.Context, viewerID uuid.UUID) ([]*domain.ConversationSummary, error)
	createGroup        func(ctx context.Context, name string, participants []uuid.UUID, creatorID uuid.UUID) (*domain.Conversation, error)
	updateMessage      func(ctx context.Context, messageID, requesterID uuid.UUID, newText string) error
	deleteMessage      func(ctx context.Context, messageID, requesterID uuid.UUID) error
	forwardMessage     func(ctx context.Context, senderID, messageID uuid.UUID, recipientIDs []uuid.UUID) ([]*domain.Message, error)
	deleteConversation func(ctx context.Context, conversationID, requesterID uuid.UUID) (bool, error)
}

func (s *stubMessaging) StartDirect(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	return s.startDirect(ctx, userID, otherUserID)
}

func (s *stubMessaging) SendMessage(ctx context.Context, senderID, recipientID uuid.UUID, text string, uploads []service.Upload) (*domain.Message, error) {
	return s.sendMessage(ctx, senderID, recipientID, text, uploads)
}

func (s *stubMessaging) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*domain.Message, error) {
	return s.listMessages(ctx, conversationID, viewerID)
}

func (s *stubMessaging) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]*domain.ConversationSummary, error) {
	return s.listConversations(ctx, viewerID)
}

func (s *stubMessaging) ConversationIDsForUser(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubMessaging) CreateGroup(ctx context.Context, name string, participants []uuid.UUID, creatorID uuid.UUID) (*domain.Conversation, error) {
	return s.createGroup(ctx, name, participants, creatorID)
}

func (s *stubMessaging) RenameGroup(context.Context, uuid.UUID, string) (*domain.Conversation, error) {
	return &domain.Conversation{}, nil
}

func (s *stubMessaging) AddToGroup(context.Context, uuid.UUID, uuid.UUID) (*domain.Conversation, error) {
	return &domain.Conversation{}, nil
}

func (s *stubMessaging) RemoveFromGroup(context.Context, uuid.UUID, uuid.UUID) (*domain.Conversation, error) {
	return &domain.Conversation{}, nil
}

func (s *stubMessaging) UpdateMessage(ctx context.Context, messageID, requesterID uuid.UUID, newText string) error {
	return s.updateMessage(ctx, messageID, requesterID, newText)
}

func (s *stubMessaging) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	return s.deleteMessage(ctx, messageID, requesterID)
}

func (s *stubMessaging) DeleteMessageForMe(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubMessaging) ForwardMessage(ctx context.Context, senderID, messageID uuid.UUID, recipientIDs []uuid.UUID) ([]*domain.Message, error) {
	return s.forwardMessage(ctx, senderID, messageID, recipientIDs)
}

func (s *stubMessaging) DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) (bool, error) {
	return s.deleteConversation(ctx, conversationID, requesterID)
}

func (s *stubMessaging) MarkConversationSeen(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubAttachments struct{}

func (stubAttachments) UploadAll(context.Context, []service.Upload) ([]domain.Attachment, error) {
	return nil, nil
}

func (stubAttachments) Release(context.Context, domain.Attachment) {}

func (stubAttachments) SignedURL(objectID string, kind domain.ResourceKind, format string, forceMP3 bool) (string, error) {
	return "http://media.local/" + string(kind) + "/" + objectID + "?sig=x", nil
}

const testSecret = "test-secret"

func newTestRouter(t *testing.T, messaging service.MessagingService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("error")

	auth := middleware.NewAuthMiddleware(service.NewAuthService(config.JWTConfig{AccessSecret: testSecret}, log), log)
	convHandler := NewConversationHandler(messaging, log)
	msgHandler := NewMessageHandler(messaging, stubAttachments{}, config.StorageConfig{TempDir: t.TempDir()}, log)

	router := gin.New()
	group := router.Group("/api/v1/messages")
	group.Use(auth.RequireAuth())
	{
		group.POST("/conversations/start", convHandler.StartConversation)
		group.GET("/conversations", convHandler.GetConversations)
		group.DELETE("/conversation/:conversationId", convHandler.DeleteConversation)
		group.POST("/group/create", convHandler.CreateGroup)
		group.POST("", msgHandler.SendMessage)
		group.GET("/conversation/:conversationId", msgHandler.GetMessages)
		group.PUT("/update/:messageId", msgHandler.UpdateMessage)
		group.DELETE("/message/:messageId", msgHandler.DeleteMessage)
		group.POST("/message/forward/:messageId", msgHandler.ForwardMessage)
		group.GET("/get-signed-url/:publicId", msgHandler.GetSignedURL)
	}
	return router
}

func authToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userID, "user@example.com", "user", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, router *gin.Engine, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t, &stubMessaging{})

	w := doRequest(t, router, http.MethodGet, "/api/v1/messages/conversations", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/messages/conversations", "garbage", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
}

func TestStartConversationNullWhenAbsent(t *testing.T) {
	userID := uuid.New()
	messaging := &stubMessaging{
		startDirect: func(_ context.Context, gotUser, _ uuid.UUID) (*domain.Conversation, error) {
			if gotUser != userID {
				t.Errorf("caller id must come from the token, got %s", gotUser)
			}
			return nil, nil
		},
	}
	router := newTestRouter(t, messaging)

	body := bytes.NewBufferString(`{"otherUserId":"` + uuid.NewString() + `"}`)
	w := doRequest(t, router, http.MethodPost, "/api/v1/messages/conversations/start", authToken(t, userID), body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), `"data":null`) {
		t.Fatalf("expected data:null for absent conversation, got %s", w.Body)
	}
}

func TestSendMessageMultipart(t *testing.T) {
	userID := uuid.New()
	recipientID := uuid.New()
	var gotText string
	var gotUploads int

	messaging := &stubMessaging{
		sendMessage: func(_ context.Context, senderID, gotRecipient uuid.UUID, text string, uploads []service.Upload) (*domain.Message, error) {
			gotText = text
			gotUploads = len(uploads)
			if senderID != userID || gotRecipient != recipientID {
				t.Errorf("wrong ids: sender=%s recipient=%s", senderID, gotRecipient)
			}
			return &domain.Message{ID: uuid.New(), Text: text}, nil
		},
	}
	router := newTestRouter(t, messaging)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("recipientId", recipientID.String())
	mw.WriteField("message", "привет")
	part, _ := mw.CreateFormFile("files", "pic.png")
	part.Write([]byte("fake-image"))
	mw.Close()

	w := doRequest(t, router, http.MethodPost, "/api/v1/messages", authToken(t, userID), &buf, mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	if gotText != "привет" || gotUploads != 1 {
		t.Fatalf("service got text=%q uploads=%d", gotText, gotUploads)
	}
}

func TestSendMessageBadRecipient(t *testing.T) {
	router := newTestRouter(t, &stubMessaging{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("recipientId", "not-a-uuid")
	mw.Close()

	w := doRequest(t, router, http.MethodPost, "/api/v1/messages", authToken(t, uuid.New()), &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdateMessageErrorMapping(t *testing.T) {
	messaging := &stubMessaging{
		updateMessage: func(context.Context, uuid.UUID, uuid.UUID, string) error {
			return apperrors.ErrForbidden
		},
	}
	router := newTestRouter(t, messaging)

	body := bytes.NewBufferString(`{"newText":"edited"}`)
	w := doRequest(t, router, http.MethodPut, "/api/v1/messages/update/"+uuid.NewString(), authToken(t, uuid.New()), body, "application/json")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign message, got %d", w.Code)
	}
}

func TestDeleteMessageNotFound(t *testing.T) {
	messaging := &stubMessaging{
		deleteMessage: func(context.Context, uuid.UUID, uuid.UUID) error {
			return apperrors.ErrMessageNotFound
		},
	}
	router := newTestRouter(t, messaging)

	w := doRequest(t, router, http.MethodDelete, "/api/v1/messages/message/"+uuid.NewString(), authToken(t, uuid.New()), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestForwardMessageValidation(t *testing.T) {
	forwarded := []*domain.Message{{ID: uuid.New()}}
	messaging := &stubMessaging{
		forwardMessage: func(_ context.Context, _, _ uuid.UUID, recipientIDs []uuid.UUID) ([]*domain.Message, error) {
			if len(recipientIDs) != 2 {
				t.Errorf("expected 2 recipients, got %d", len(recipientIDs))
			}
			return forwarded, nil
		},
	}
	router := newTestRouter(t, messaging)
	token := authToken(t, uuid.New())
	path := "/api/v1/messages/message/forward/" + uuid.NewString()

	w := doRequest(t, router, http.MethodPost, path, token, bytes.NewBufferString(`{"recipientIds":[]}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty recipients, got %d", w.Code)
	}

	w = doRequest(t, router, http.MethodPost, path, token, bytes.NewBufferString(`{"recipientIds":["nope"]}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed recipient, got %d", w.Code)
	}

	body := bytes.NewBufferString(`{"recipientIds":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`)
	w = doRequest(t, router, http.MethodPost, path, token, body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
}

func TestDeleteConversation(t *testing.T) {
	conversationID := uuid.New()
	messaging := &stubMessaging{
		deleteConversation: func(_ context.Context, gotConv, _ uuid.UUID) (bool, error) {
			if gotConv != conversationID {
				t.Errorf("wrong conversation id %s", gotConv)
			}
			return false, nil
		},
	}
	router := newTestRouter(t, messaging)

	w := doRequest(t, router, http.MethodDelete, "/api/v1/messages/conversation/"+conversationID.String(), authToken(t, uuid.New()), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), conversationID.String()) {
		t.Fatalf("response must echo the conversation id: %s", w.Body)
	}
}

func TestGetConversations(t *testing.T) {
	messaging := &stubMessaging{
		listConversations: func(context.Context, uuid.UUID) ([]*domain.ConversationSummary, error) {
			return []*domain.ConversationSummary{
				{Conversation: domain.Conversation{ID: uuid.New()}, UnreadCount: 3},
			}, nil
		},
	}
	router := newTestRouter(t, messaging)

	w := doRequest(t, router, http.MethodGet, "/api/v1/messages/conversations", authToken(t, uuid.New()), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var payload struct {
		Conversations []struct {
			UnreadCount int `json:"unread_count"`
		} `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(payload.Conversations) != 1 || payload.Conversations[0].UnreadCount != 3 {
		t.Fatalf("unexpected payload: %s", w.Body)
	}
}

func TestCreateGroup(t *testing.T) {
	creatorID := uuid.New()
	messaging := &stubMessaging{
		createGroup: func(_ context.Context, name string, participants []uuid.UUID, gotCreator uuid.UUID) (*domain.Conversation, error) {
			if name != "team" || len(participants) != 2 || gotCreator != creatorID {
				t.Errorf("unexpected args: name=%q participants=%d creator=%s", name, len(participants), gotCreator)
			}
			return &domain.Conversation{ID: uuid.New(), IsGroup: true, Name: name}, nil
		},
	}
	router := newTestRouter(t, messaging)

	body := bytes.NewBufferString(`{"name":"team","participants":["` + uuid.NewString() + `","` + uuid.NewString() + `"]}`)
	w := doRequest(t, router, http.MethodPost, "/api/v1/messages/group/create", authToken(t, creatorID), body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
}

func TestGetSignedURL(t *testing.T) {
	router := newTestRouter(t, &stubMessaging{})
	token := authToken(t, uuid.New())

	w := doRequest(t, router, http.MethodGet, "/api/v1/messages/get-signed-url/obj-1?resourceType=raw", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "raw/obj-1") {
		t.Fatalf("unexpected url payload: %s", w.Body)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/messages/get-signed-url/obj-1?resourceType=bogus", token, nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown resource type, got %d", w.Code)
	}
}
