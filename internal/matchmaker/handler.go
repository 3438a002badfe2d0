package matchmaker

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/room"
)

// Limiter throttles join/leave per player.
type Limiter interface {
	Allow(key string) bool
}

type Handler struct {
	svc     *Service
	rooms   *room.Service
	limiter Limiter
	log     *log.Logger
}

func NewHandler(svc *Service, rooms *room.Service, limiter Limiter, logger *log.Logger) *Handler {
	return &Handler{svc: svc, rooms: rooms, limiter: limiter, log: logger.WithPrefix("http")}
}

// Register mounts everything under <group>/matchmaking.
func (h *Handler) Register(rg *gin.RouterGroup) {
	mm := rg.Group("/matchmaking")
	mm.POST("/join", h.Join)
	mm.POST("/leave", h.Leave)
	mm.GET("/status/:playerId", h.Status)
	mm.GET("/queue/:mode", h.Queue)
	mm.GET("/stats", h.Stats)
	mm.GET("/rooms", h.ListRooms)
	mm.GET("/rooms/:roomId", h.GetRoom)
	mm.POST("/rooms/:roomId/start", h.StartRoom)
	mm.POST("/rooms/:roomId/finish", h.FinishRoom)
	mm.DELETE("/rooms/:roomId", h.DeleteRoom)
}

// writeError maps error kinds to status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch kind {
	case domain.KindNotFound:
		status, msg = http.StatusNotFound, err.Error()
	case domain.KindConflict:
		status, msg = http.StatusConflict, err.Error()
	case domain.KindValidation:
		status, msg = http.StatusBadRequest, err.Error()
	default:
		h.log.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"success": false, "error": kind.String(), "message": msg})
}

func (h *Handler) throttled(c *gin.Context, playerID string) bool {
	if h.limiter == nil || h.limiter.Allow(playerID) {
		return false
	}
	h.log.Warn("matchmaking rate limit exceeded", "player", playerID, "path", c.FullPath())
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":   "MATCHMAKING_RATE_LIMIT",
		"message": "too many matchmaking actions, please wait a moment",
	})
	return true
}

// POST /matchmaking/join body: {playerId, mode}
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.Validation("", "%v", err))
		return
	}
	playerID, err := domain.NormalizePlayerID(req.PlayerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.throttled(c, playerID) {
		return
	}
	res, err := h.svc.JoinMatchmaking(c.Request.Context(), playerID, mode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /matchmaking/leave body: {playerId, mode}
func (h *Handler) Leave(c *gin.Context) {
	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.Validation("", "%v", err))
		return
	}
	playerID, err := domain.NormalizePlayerID(req.PlayerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.throttled(c, playerID) {
		return
	}
	removed, err := h.svc.LeaveMatchmaking(c.Request.Context(), playerID, mode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	msg := "left the matchmaking queue"
	if !removed {
		msg = "not in the matchmaking queue"
	}
	c.JSON(http.StatusOK, gin.H{"success": removed, "message": msg})
}

func (h *Handler) Status(c *gin.Context) {
	playerID, err := domain.NormalizePlayerID(c.Param("playerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	st, err := h.svc.GetPlayerStatus(c.Request.Context(), playerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) Queue(c *gin.Context) {
	mode, err := domain.ParseMode(c.Param("mode"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":      mode,
		"queueSize": h.svc.GetQueueSize(c.Request.Context(), mode),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetStats(c.Request.Context()))
}

// GET /matchmaking/rooms?mode=&status=
func (h *Handler) ListRooms(c *gin.Context) {
	var (
		mode   domain.Mode
		status domain.RoomStatus
		err    error
	)
	if q := c.Query("mode"); q != "" {
		if mode, err = domain.ParseMode(q); err != nil {
			h.writeError(c, err)
			return
		}
	}
	if q := c.Query("status"); q != "" {
		if status, err = domain.ParseRoomStatus(q); err != nil {
			h.writeError(c, err)
			return
		}
	}
	rooms, err := h.rooms.ListRooms(c.Request.Context(), mode, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rooms), "rooms": rooms})
}

func (h *Handler) roomID(c *gin.Context) (string, bool) {
	id := c.Param("roomId")
	if err := domain.ValidateRoomID(id); err != nil {
		h.writeError(c, err)
		return "", false
	}
	return id, true
}

func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	r, err := h.rooms.GetRoomByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /matchmaking/rooms/:roomId/start，房间未就绪返回 409
func (h *Handler) StartRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.rooms.MarkInProgress(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.rooms.GetRoomByID(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "match started", "room": r})
}

func (h *Handler) FinishRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.rooms.MarkFinished(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	r, err := h.rooms.GetRoomByID(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "match finished", "room": r})
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	if err := h.rooms.DeleteRoom(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "room " + id + " deleted"})
}
