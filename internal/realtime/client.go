package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"social_messenger/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Event - конверт сообщений realtime-канала в обе стороны
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	UserID uuid.UUID

	conn *websocket.Conn
	send chan Event
	log  logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(userID uuid.UUID, conn *websocket.Conn, log logger.Logger) *Client {
	return &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan Event, sendBufferSize),
		log:    log,
		done:   make(chan struct{}),
	}
}

// Send ставит событие в очередь отправки без блокировки. Доставка best-effort:
// при переполненном буфере или закрытом соединении событие отбрасывается.
func (c *Client) Send(event string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.log.Error("Failed to marshal event payload", "event", event, "error", err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- Event{Event: event, Data: payload}:
		return true
	default:
		c.log.Warn("Dropping event, send buffer full", "event", event, "user_id", c.UserID)
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WritePump сериализует исходящие события в соединение, один писатель на клиента
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// ReadPump читает входящие события и передает их диспетчеру до разрыва соединения
func (c *Client) ReadPump(dispatch func(c *Client, event string, data json.RawMessage)) {
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var event Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected websocket close", "user_id", c.UserID, "error", err)
			}
			return
		}
		dispatch(c, event.Event, event.Data)
	}
}
