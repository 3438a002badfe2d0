package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/matchmaker"
	"Matchmaking/internal/room"
)

const eventTimeout = 5 * time.Second

func queueTopic(m domain.Mode) string { return "queue:" + m.String() }
func roomTopic(id string) string      { return "room:" + id }

// Gateway 实时事件分发：客户端事件 -> 匹配/房间服务 -> 回推
type Gateway struct {
	hub     *Hub
	mm      *matchmaker.Service
	rooms   *room.Service
	limiter matchmaker.Limiter
	log     *log.Logger
}

// NewGateway installs itself as the hub's incoming and disconnect callbacks.
func NewGateway(hub *Hub, mm *matchmaker.Service, rooms *room.Service, limiter matchmaker.Limiter, logger *log.Logger) *Gateway {
	g := &Gateway{hub: hub, mm: mm, rooms: rooms, limiter: limiter, log: logger.WithPrefix("gateway")}
	hub.OnIncoming = g.Handle
	hub.OnDisconnect = g.Disconnected
	return g
}

func (g *Gateway) Handle(msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch msg.Event {
	case EventJoinMatchmaking:
		g.joinMatchmaking(ctx, msg)
	case EventLeaveMatchmaking:
		g.leaveMatchmaking(ctx, msg)
	case EventGetStatus:
		g.playerStatus(ctx, msg.From)
	case EventGetQueueInfo:
		g.send(msg.From, EventQueueInfo, g.mm.GetStats(ctx))
	case EventJoinRoom:
		g.joinRoom(ctx, msg)
	case EventLeaveRoom:
		g.leaveRoom(ctx, msg)
	case EventPlayerReady:
		g.playerReady(ctx, msg)
	default:
		g.sendError(msg.From, EventMatchmakingError, "UNKNOWN_EVENT", "unknown event "+msg.Event)
	}
}

func (g *Gateway) send(playerID, event string, data any) {
	g.hub.SendToPlayer(playerID, OutgoingMessage{Event: event, Data: data})
}

func (g *Gateway) sendError(playerID, event, code, message string) {
	g.send(playerID, event, errorPayload{Error: code, Message: message})
}

func (g *Gateway) sendKindError(playerID, event string, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		g.log.Error("event failed", "player", playerID, "event", event, "err", err)
		msg = "internal server error"
	}
	g.sendError(playerID, event, kind.String(), msg)
}

func (g *Gateway) throttled(playerID string) bool {
	if g.limiter == nil || g.limiter.Allow(playerID) {
		return false
	}
	g.log.Warn("socket rate limit exceeded", "player", playerID)
	g.sendError(playerID, EventRateLimitError, "MATCHMAKING_RATE_LIMIT", "too many matchmaking actions, please wait a moment")
	return true
}

func (g *Gateway) decodeMode(msg IncomingMessage) (domain.Mode, bool) {
	var p modePayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		g.sendError(msg.From, EventMatchmakingError, domain.KindValidation.String(), "invalid payload")
		return 0, false
	}
	mode, err := domain.ParseMode(p.Mode)
	if err != nil {
		g.sendError(msg.From, EventMatchmakingError, "INVALID_MODE", err.Error())
		return 0, false
	}
	return mode, true
}

func (g *Gateway) decodeRoom(msg IncomingMessage) (string, bool) {
	var p roomPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		g.sendError(msg.From, EventRoomError, domain.KindValidation.String(), "invalid payload")
		return "", false
	}
	if err := domain.ValidateRoomID(p.RoomID); err != nil {
		g.sendKindError(msg.From, EventRoomError, err)
		return "", false
	}
	return p.RoomID, true
}

func (g *Gateway) joinMatchmaking(ctx context.Context, msg IncomingMessage) {
	if g.throttled(msg.From) {
		return
	}
	mode, ok := g.decodeMode(msg)
	if !ok {
		return
	}
	res, err := g.mm.JoinMatchmaking(ctx, msg.From, mode)
	if err != nil {
		g.sendKindError(msg.From, EventMatchmakingError, err)
		return
	}
	g.hub.Subscribe(msg.From, queueTopic(mode))
	g.send(msg.From, EventMatchmakingJoined, map[string]any{
		"success":        res.Success,
		"message":        res.Message,
		"queuePosition":  res.QueuePosition,
		"waitingPlayers": res.WaitingPlayers,
		"mode":           mode,
	})
	g.hub.Publish(queueTopic(mode), OutgoingMessage{
		Event: EventQueueUpdated,
		Data:  map[string]any{"waitingPlayers": res.WaitingPlayers, "mode": mode},
	}, msg.From)
}

func (g *Gateway) leaveMatchmaking(ctx context.Context, msg IncomingMessage) {
	if g.throttled(msg.From) {
		return
	}
	mode, ok := g.decodeMode(msg)
	if !ok {
		return
	}
	removed, err := g.mm.LeaveMatchmaking(ctx, msg.From, mode)
	if err != nil {
		g.sendKindError(msg.From, EventMatchmakingError, err)
		return
	}
	g.hub.Unsubscribe(msg.From, queueTopic(mode))
	g.send(msg.From, EventMatchmakingLeft, map[string]any{"success": removed, "mode": mode})
	if removed {
		g.queueUpdated(ctx, mode)
	}
}

func (g *Gateway) queueUpdated(ctx context.Context, mode domain.Mode) {
	g.hub.Publish(queueTopic(mode), OutgoingMessage{
		Event: EventQueueUpdated,
		Data:  map[string]any{"waitingPlayers": g.mm.GetQueueSize(ctx, mode), "mode": mode},
	}, "")
}

func (g *Gateway) playerStatus(ctx context.Context, playerID string) {
	st, err := g.mm.GetPlayerStatus(ctx, playerID)
	if err != nil {
		g.sendKindError(playerID, EventMatchmakingError, err)
		return
	}
	g.send(playerID, EventPlayerStatus, st)
}

func (g *Gateway) joinRoom(ctx context.Context, msg IncomingMessage) {
	roomID, ok := g.decodeRoom(msg)
	if !ok {
		return
	}
	r, err := g.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		g.sendKindError(msg.From, EventRoomError, err)
		return
	}
	if !r.HasPlayer(msg.From) {
		g.sendError(msg.From, EventRoomError, "NOT_IN_ROOM", "player is not a member of room "+roomID)
		return
	}
	g.hub.Subscribe(msg.From, roomTopic(roomID))
	g.send(msg.From, EventRoomJoined, map[string]any{
		"roomId":  r.ID,
		"players": r.Players,
		"mode":    r.Mode,
		"status":  r.Status,
	})
}

func (g *Gateway) leaveRoom(ctx context.Context, msg IncomingMessage) {
	roomID, ok := g.decodeRoom(msg)
	if !ok {
		return
	}
	removed, err := g.rooms.RemovePlayerFromRoom(ctx, roomID, msg.From)
	if err != nil {
		g.sendKindError(msg.From, EventRoomError, err)
		return
	}
	g.hub.Unsubscribe(msg.From, roomTopic(roomID))
	g.send(msg.From, EventRoomLeft, map[string]any{"roomId": roomID, "success": removed})
	if removed {
		g.hub.Publish(roomTopic(roomID), OutgoingMessage{
			Event: EventPlayerLeft,
			Data:  map[string]any{"playerId": msg.From, "roomId": roomID},
		}, "")
	}
}

func (g *Gateway) playerReady(ctx context.Context, msg IncomingMessage) {
	roomID, ok := g.decodeRoom(msg)
	if !ok {
		return
	}
	r, err := g.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		g.sendKindError(msg.From, EventRoomError, err)
		return
	}
	if !r.HasPlayer(msg.From) {
		g.sendError(msg.From, EventRoomError, "NOT_IN_ROOM", "player is not a member of room "+roomID)
		return
	}
	g.hub.Publish(roomTopic(roomID), OutgoingMessage{
		Event: EventPlayerReadyUpdate,
		Data:  map[string]any{"playerId": msg.From, "roomId": roomID},
	}, msg.From)
}

// Disconnected 断线：退出所有队列，通知同房间的玩家
func (g *Gateway) Disconnected(playerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	left, err := g.mm.LeaveAllQueues(ctx, playerID)
	if err != nil {
		g.log.Error("leave queues on disconnect", "player", playerID, "err", err)
	}
	for _, m := range left {
		g.queueUpdated(ctx, m)
	}

	r, err := g.rooms.GetPlayerRoom(ctx, playerID)
	if err != nil {
		g.log.Error("lookup room on disconnect", "player", playerID, "err", err)
		return
	}
	if r != nil {
		g.hub.Publish(roomTopic(r.ID), OutgoingMessage{
			Event: EventPlayerDisconnected,
			Data:  map[string]any{"playerId": playerID, "roomId": r.ID},
		}, playerID)
	}
	g.log.Debug("player disconnected", "player", playerID, "queuesLeft", len(left))
}
