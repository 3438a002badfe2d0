package matchmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/utils"
)

type denyAfter struct {
	n     int
	calls int
}

func (d *denyAfter) Allow(string) bool {
	d.calls++
	return d.calls <= d.n
}

func newRouter(f fixture, limiter Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f.svc, f.rooms, limiter, utils.Discard()).Register(r.Group("/api"))
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestHandlerJoinAndLeave(t *testing.T) {
	f := newMemoryFixture(t)
	r := newRouter(f, nil)

	w := do(r, http.MethodPost, "/api/matchmaking/join", gin.H{"playerId": "alice", "mode": "pvp"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["queuePosition"])

	w = do(r, http.MethodPost, "/api/matchmaking/join", gin.H{"playerId": "alice", "mode": "BOSS"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/api/matchmaking/join", gin.H{"playerId": "bob", "mode": "ranked"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/matchmaking/join", gin.H{"mode": "PVP"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/matchmaking/status/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, StatusInQueue, body["status"])
	assert.Equal(t, "PVP", body["mode"])
	assert.Equal(t, float64(1), body["position"])

	w = do(r, http.MethodGet, "/api/matchmaking/queue/Pvp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["queueSize"])

	w = do(r, http.MethodPost, "/api/matchmaking/leave", gin.H{"playerId": "alice", "mode": "PVP"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = do(r, http.MethodPost, "/api/matchmaking/leave", gin.H{"playerId": "alice", "mode": "PVP"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestHandlerRateLimit(t *testing.T) {
	f := newMemoryFixture(t)
	r := newRouter(f, &denyAfter{n: 1})

	w := do(r, http.MethodPost, "/api/matchmaking/join", gin.H{"playerId": "alice", "mode": "PVP"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/matchmaking/leave", gin.H{"playerId": "alice", "mode": "PVP"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "MATCHMAKING_RATE_LIMIT", decode(t, w)["error"])
}

func TestHandlerRooms(t *testing.T) {
	f := newMemoryFixture(t)
	r := newRouter(f, nil)
	ctx := context.Background()

	joinAll(t, f, domain.ModePVP, "a", "b")
	_, err := f.svc.PerformMatching(ctx, domain.ModePVP)
	require.NoError(t, err)
	rooms := f.pub.Rooms()
	require.Len(t, rooms, 1)
	id := rooms[0].ID

	w := do(r, http.MethodGet, "/api/matchmaking/rooms?mode=pvp&status=ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(r, http.MethodGet, "/api/matchmaking/rooms/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, id, body["roomId"])
	assert.Equal(t, "READY", body["status"])

	w = do(r, http.MethodGet, "/api/matchmaking/rooms/not-a-room", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/matchmaking/rooms/room_00000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/matchmaking/rooms/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	room := decode(t, w)["room"].(map[string]any)
	assert.Equal(t, "IN_PROGRESS", room["status"])

	w = do(r, http.MethodPost, "/api/matchmaking/rooms/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "already started")

	w = do(r, http.MethodPost, "/api/matchmaking/rooms/"+id+"/finish", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/matchmaking/rooms/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/matchmaking/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["totalRooms"])
}
