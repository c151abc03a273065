package realtime

import (
	"encoding/json"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/pkg/logger"
)

// Router доставляет события конкретным пользователям и комнатам бесед и
// пересылает сигналы звонков. Сигналинг без состояния: каждый сигнал - разовая
// пересылка по текущей таблице присутствия, офлайн-адресат молча пропускается.
type Router struct {
	registry *Registry
	log      logger.Logger
}

func NewRouter(registry *Registry, log logger.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// EmitToUser доставляет событие живому соединению пользователя, если оно есть.
// Гарантий доставки нет - долговременность обеспечивает хранилище сообщений.
func (rt *Router) EmitToUser(userID uuid.UUID, event string, data any) bool {
	c, ok := rt.registry.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(event, data)
}

func (rt *Router) EmitToRoom(conversationID uuid.UUID, event string, data any) {
	for _, c := range rt.registry.RoomMembers(conversationID) {
		c.Send(event, data)
	}
}

func (rt *Router) JoinRoom(c *Client, conversationID uuid.UUID) {
	rt.registry.JoinRoom(c, conversationID)
}

func (rt *Router) BroadcastOnlineUsers() {
	ids := rt.registry.OnlineUserIDs()
	for _, c := range rt.registry.AllClients() {
		c.Send(domain.EventOnlineUsers, ids)
	}
}

// Dispatch обрабатывает входящие события клиента realtime-канала
func (rt *Router) Dispatch(c *Client, event string, data json.RawMessage) {
	switch event {
	case domain.EventCallUser:
		var invite domain.CallInvite
		if err := json.Unmarshal(data, &invite); err != nil {
			rt.callFailed(c, "Malformed call invite.")
			return
		}
		rt.callUser(c, invite)
	case domain.EventAnswerCall:
		rt.relayToTarget(c, data, domain.EventCallAccepted, struct{}{})
	case domain.EventEndCall:
		rt.relayToTarget(c, data, domain.EventCallEnded, nil)
	case domain.EventRejectCall:
		rt.relayToTarget(c, data, domain.EventCallRejected, nil)
	case domain.EventJoinConvRoom:
		var join domain.JoinConversationRoom
		if err := json.Unmarshal(data, &join); err != nil {
			return
		}
		conversationID, err := uuid.Parse(join.ConversationID)
		if err != nil {
			return
		}
		rt.registry.JoinRoom(c, conversationID)
	default:
		rt.log.Debug("Unknown realtime event", "event", event, "user_id", c.UserID)
	}
}

func (rt *Router) callUser(caller *Client, invite domain.CallInvite) {
	callee, err := uuid.Parse(invite.UserToCall)
	if err != nil {
		rt.callFailed(caller, "Internal error starting call.")
		return
	}

	// Офлайн-адресат: приглашение не ставится в очередь, просто теряется
	rt.EmitToUser(callee, domain.EventIncomingCall, map[string]string{
		"from":     invite.From,
		"name":     invite.Name,
		"callType": invite.CallType,
		"roomID":   invite.RoomID,
	})
}

func (rt *Router) relayToTarget(from *Client, data json.RawMessage, event string, payload any) {
	var target domain.CallTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return
	}
	to, err := uuid.Parse(target.To)
	if err != nil {
		return
	}
	rt.EmitToUser(to, event, payload)
}

func (rt *Router) callFailed(c *Client, reason string) {
	c.Send(domain.EventCallFailed, map[string]string{"reason": reason})
}
