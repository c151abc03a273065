package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Registry - процесс-локальная таблица присутствия: userID -> живое соединение,
// плюс членство соединений в комнатах бесед. Переживает только жизнь процесса,
// при рестарте строится заново с подключений.
type Registry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[uuid.UUID]map[*Client]struct{}
	joined  map[*Client]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uuid.UUID]*Client),
		rooms:   make(map[uuid.UUID]map[*Client]struct{}),
		joined:  make(map[*Client]map[uuid.UUID]struct{}),
	}
}

// Register регистрирует соединение пользователя. Политика last-wins: второе
// устройство вытесняет первое, прежнее соединение закрывается.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	prev := r.clients[c.UserID]
	r.clients[c.UserID] = c
	if prev != nil {
		r.removeFromRoomsLocked(prev)
	}
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// Deregister снимает регистрацию, только если запись все еще указывает на это
// соединение: вытесненный клиент не должен затирать своего преемника.
func (r *Registry) Deregister(c *Client) {
	r.mu.Lock()
	if r.clients[c.UserID] == c {
		delete(r.clients, c.UserID)
	}
	r.removeFromRoomsLocked(c)
	r.mu.Unlock()
}

func (r *Registry) removeFromRoomsLocked(c *Client) {
	for roomID := range r.joined[c] {
		delete(r.rooms[roomID], c)
		if len(r.rooms[roomID]) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(r.joined, c)
}

func (r *Registry) Lookup(userID uuid.UUID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id.String())
	}
	return ids
}

func (r *Registry) JoinRoom(c *Client, roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[*Client]struct{})
	}
	r.rooms[roomID][c] = struct{}{}
	if r.joined[c] == nil {
		r.joined[c] = make(map[uuid.UUID]struct{})
	}
	r.joined[c][roomID] = struct{}{}
}

// RoomMembers отдает снапшот комнаты, чтобы не держать блокировку на время записи
func (r *Registry) RoomMembers(roomID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Client, 0, len(r.rooms[roomID]))
	for c := range r.rooms[roomID] {
		members = append(members, c)
	}
	return members
}

func (r *Registry) AllClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}
