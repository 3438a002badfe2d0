package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"Matchmaking/internal/matchmaker"
)

const (
	ServiceName = "matchmaking-service"
	Version     = "1.0.0"

	up   = "UP"
	down = "DOWN"
)

// Pinger is the store liveness probe (redis PING, or nil for the memory driver).
type Pinger func(ctx context.Context) error

type Runner interface {
	Running() bool
}

type StatsSource interface {
	GetStats(ctx context.Context) matchmaker.Stats
}

type Handler struct {
	ping    Pinger
	sched   Runner
	stats   StatsSource
	started time.Time
	log     *log.Logger
}

func NewHandler(ping Pinger, sched Runner, stats StatsSource, logger *log.Logger) *Handler {
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}
	return &Handler{ping: ping, sched: sched, stats: stats, started: time.Now(), log: logger.WithPrefix("health")}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/health")
	g.GET("", h.Health)
	g.GET("/live", h.Live)
	g.GET("/ready", h.Ready)
	g.GET("/detailed", h.Detailed)
}

func status(ok bool) string {
	if ok {
		return up
	}
	return down
}

func (h *Handler) probe(c *gin.Context) (storeOK, schedOK bool) {
	if err := h.ping(c.Request.Context()); err != nil {
		h.log.Warn("store ping failed", "err", err)
	} else {
		storeOK = true
	}
	return storeOK, h.sched.Running()
}

func components(storeOK, schedOK bool) gin.H {
	return gin.H{
		"store":     gin.H{"status": status(storeOK)},
		"scheduler": gin.H{"status": status(schedOK)},
	}
}

func code(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// GET /health 存储与调度器都正常才是 UP
func (h *Handler) Health(c *gin.Context) {
	storeOK, schedOK := h.probe(c)
	ok := storeOK && schedOK
	c.JSON(code(ok), gin.H{
		"status":     status(ok),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components(storeOK, schedOK),
	})
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": up, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) Ready(c *gin.Context) {
	if err := h.ping(c.Request.Context()); err != nil {
		h.log.Warn("not ready", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    down,
			"reason":    "store unavailable",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": up, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) Detailed(c *gin.Context) {
	storeOK, schedOK := h.probe(c)
	ok := storeOK && schedOK
	stats := h.stats.GetStats(c.Request.Context())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(code(ok), gin.H{
		"status":    status(ok),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service": gin.H{
			"name":    ServiceName,
			"version": Version,
			"uptime":  time.Since(h.started).Seconds(),
		},
		"components": components(storeOK, schedOK),
		"metrics": gin.H{
			"pvpQueueSize":  stats.PvpQueueSize,
			"bossQueueSize": stats.BossQueueSize,
			"totalRooms":    stats.TotalRooms,
			"goroutines":    runtime.NumGoroutine(),
			"heapAlloc":     mem.HeapAlloc,
		},
	})
}
