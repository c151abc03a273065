package domain

// События realtime-канала (server -> client)
const (
	EventOnlineUsers         = "getOnlineUsers"
	EventNewMessage          = "newMessage"
	EventConversationCreated = "conversationCreated"
	EventConversationDeleted = "conversationDeleted"
	EventConversationPurged  = "conversationPermanentlyDeleted"
	EventMessageDeleted      = "messageDeleted"
	EventMessageUpdated      = "messageUpdated"
	EventMessagesSeen        = "messagesSeen"
	EventIncomingCall        = "incomingCall"
	EventCallAccepted        = "callAccepted"
	EventCallEnded           = "callEnded"
	EventCallRejected        = "callRejected"
	EventCallFailed          = "callFailed"
)

// События realtime-канала (client -> server)
const (
	EventCallUser     = "callUser"
	EventAnswerCall   = "answerCall"
	EventEndCall      = "endCall"
	EventRejectCall   = "callRejected"
	EventJoinConvRoom = "joinConversationRoom"
)

// CallInvite - приглашение в звонок, пересылается без сохранения состояния
type CallInvite struct {
	UserToCall string `json:"userToCall"`
	RoomID     string `json:"roomID"`
	From       string `json:"from"`
	Name       string `json:"name"`
	CallType   string `json:"callType"`
}

// CallTarget - адресат для answer/end/reject сигналов
type CallTarget struct {
	To string `json:"to"`
}

type JoinConversationRoom struct {
	ConversationID string `json:"conversationId"`
}

type MessageDeletedEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessageUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	NewText        string `json:"newText"`
}

type MessagesSeenEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ConversationDeletedEvent struct {
	ConversationID string `json:"conversationId"`
}
