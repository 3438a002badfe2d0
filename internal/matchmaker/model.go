package matchmaker

import "Matchmaking/internal/domain"

// JoinRequest 前端提交的匹配请求
type JoinRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Mode     string `json:"mode" binding:"required"` // PVP | BOSS，大小写不敏感
}

// LeaveRequest 取消匹配
type LeaveRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Mode     string `json:"mode" binding:"required"`
}

// JoinResult queuePosition == waitingPlayers == 入队后的队列长度
type JoinResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	QueuePosition  int64  `json:"queuePosition"`
	WaitingPlayers int64  `json:"waitingPlayers"`
}

const (
	StatusInRoom           = "IN_ROOM"
	StatusInQueue          = "IN_QUEUE"
	StatusNotInMatchmaking = "NOT_IN_MATCHMAKING"
)

// PlayerStatus 只填与 Status 对应的字段
type PlayerStatus struct {
	Status     string            `json:"status"`
	RoomID     string            `json:"roomId,omitempty"`
	RoomStatus domain.RoomStatus `json:"roomStatus,omitempty"`
	Players    []string          `json:"players,omitempty"`
	Mode       domain.Mode       `json:"mode,omitempty"`
	Position   int               `json:"position,omitempty"`
	QueueSize  int64             `json:"queueSize,omitempty"`
}

type Stats struct {
	PvpQueueSize  int64 `json:"pvpQueueSize"`
	BossQueueSize int64 `json:"bossQueueSize"`
	TotalRooms    int64 `json:"totalRooms"`
	Timestamp     int64 `json:"timestamp"`
}
