package server

import (
	"context"
	"sync"
)

type roomRequest struct {
	client *Client
	chatID string
	join   bool
}

// Hub tracks connected clients and the chat rooms they joined, and fans
// frames out to room members. Membership changes flow through control
// channels consumed by a single Run loop.
type Hub struct {
	mu sync.RWMutex

	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	membership chan roomRequest
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		membership: make(chan roomRequest, 512),
	}
}

// Run consumes membership changes until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.membership:
			if req.join {
				h.joinRoom(req.client, req.chatID)
			} else {
				h.leaveRoom(req.client, req.chatID)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Join subscribes a client to a chat room.
func (h *Hub) Join(client *Client, chatID string) {
	h.membership <- roomRequest{client: client, chatID: chatID, join: true}
}

// Leave unsubscribes a client from a chat room.
func (h *Hub) Leave(client *Client, chatID string) {
	h.membership <- roomRequest{client: client, chatID: chatID, join: false}
}

// Broadcast sends a frame to every member of the room.
func (h *Hub) Broadcast(chatID string, frame []byte) {
	h.mu.RLock()
	for client := range h.rooms[chatID] {
		client.queue(frame)
	}
	h.mu.RUnlock()
}

// RoomSize returns the number of connected members of a room.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for chatID := range client.rooms {
		if members, ok := h.rooms[chatID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
}

func (h *Hub) joinRoom(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][client] = struct{}{}
	client.rooms[chatID] = true
}

func (h *Hub) leaveRoom(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[chatID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(client.rooms, chatID)
}
