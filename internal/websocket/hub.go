package websocket

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/notifier"
)

var _ notifier.Sink = (*Hub)(nil)

// Hub 连接注册表，按 playerId 索引；topic 相当于 queue:PVP、room:{id} 这类订阅分组
type Hub struct {
	clients    map[string]*Client // playerId -> client
	topics     map[string]map[string]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	sendOne    chan sendReq
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	log        *log.Logger

	// OnIncoming runs on the sender's read goroutine, so one player's messages stay ordered.
	OnIncoming func(IncomingMessage)
	// OnDisconnect runs once the player's current connection is gone.
	OnDisconnect func(playerID string)
}

type broadcastReq struct {
	PlayerIDs []string
	Message   OutgoingMessage
}

type sendReq struct {
	PlayerID string
	Message  OutgoingMessage
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		topics:     make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq),
		sendOne:    make(chan sendReq),
		quit:       make(chan struct{}),
		log:        logger.WithPrefix("hub"),
	}
}

func (h *Hub) Run() {
	h.log.Info("hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.PlayerID]; ok && old != c {
				// 同一玩家重复连接，踢掉旧连接
				close(old.Send)
			}
			h.clients[c.PlayerID] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("register", "player", c.PlayerID, "connections", n)

		case c := <-h.unregister:
			h.mu.Lock()
			cur, ok := h.clients[c.PlayerID]
			current := ok && cur == c
			if current {
				delete(h.clients, c.PlayerID)
				close(c.Send)
				for _, members := range h.topics {
					delete(members, c.PlayerID)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			if current {
				h.log.Debug("unregister", "player", c.PlayerID, "connections", n)
				if h.OnDisconnect != nil {
					go h.OnDisconnect(c.PlayerID)
				}
			}

		case req := <-h.broadcast:
			for _, id := range req.PlayerIDs {
				h.deliver(id, req.Message)
			}

		case req := <-h.sendOne:
			h.deliver(req.PlayerID, req.Message)

		case <-h.quit:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.log.Info("hub stopped")
			return
		}
	}
}

// deliver never blocks the hub: a full send buffer drops the message.
func (h *Hub) deliver(playerID string, msg OutgoingMessage) {
	client, ok := h.clients[playerID]
	if !ok {
		return
	}
	select {
	case client.Send <- msg:
	default:
		h.log.Warn("send buffer full, message dropped", "player", playerID, "event", msg.Event)
	}
}

// BroadcastToPlayers to multiple players
func (h *Hub) BroadcastToPlayers(playerIDs []string, msg OutgoingMessage) {
	select {
	case h.broadcast <- broadcastReq{PlayerIDs: playerIDs, Message: msg}:
	case <-h.quit:
	}
}

// SendToPlayer to a single player (safe concurrent)
func (h *Hub) SendToPlayer(playerID string, msg OutgoingMessage) {
	select {
	case h.sendOne <- sendReq{PlayerID: playerID, Message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

func (h *Hub) Subscribe(playerID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]struct{})
		h.topics[topic] = members
	}
	members[playerID] = struct{}{}
}

func (h *Hub) Unsubscribe(playerID, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.topics[topic]; ok {
		delete(members, playerID)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish sends to every subscriber of topic except the given player ("" for none).
func (h *Hub) Publish(topic string, msg OutgoingMessage, except string) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.topics[topic]))
	for id := range h.topics[topic] {
		if id != except {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()
	if len(ids) > 0 {
		h.BroadcastToPlayers(ids, msg)
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// RoomFormed implements notifier.Sink: members stop receiving queue updates and get room-found.
func (h *Hub) RoomFormed(_ context.Context, ev notifier.RoomFormedEvent) {
	for _, id := range ev.Players {
		h.Unsubscribe(id, queueTopic(ev.Mode))
	}
	h.BroadcastToPlayers(ev.Players, OutgoingMessage{Event: EventRoomFound, Data: ev})
	h.log.Debug("room found delivered", "room", ev.RoomID, "players", len(ev.Players))
}
