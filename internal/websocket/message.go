package websocket

import "encoding/json"

type OutgoingMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// IncomingMessage From is filled by the server with the authenticated player id.
type IncomingMessage struct {
	From  string          `json:"from"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// client -> server
const (
	EventJoinMatchmaking  = "join-matchmaking"
	EventLeaveMatchmaking = "leave-matchmaking"
	EventGetStatus        = "get-status"
	EventGetQueueInfo     = "get-queue-info"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventPlayerReady      = "player-ready"
)

// server -> client
const (
	EventMatchmakingJoined  = "matchmaking-joined"
	EventMatchmakingLeft    = "matchmaking-left"
	EventQueueUpdated       = "queue-updated"
	EventPlayerStatus       = "player-status"
	EventQueueInfo          = "queue-info"
	EventRoomJoined         = "room-joined"
	EventRoomLeft           = "room-left"
	EventPlayerLeft         = "player-left"
	EventPlayerReadyUpdate  = "player-ready-update"
	EventPlayerDisconnected = "player-disconnected"
	EventRoomFound          = "room-found"
	EventMatchmakingError   = "matchmaking-error"
	EventRoomError          = "room-error"
	EventRateLimitError     = "rate-limit-error"
)

type modePayload struct {
	Mode string `json:"mode"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
