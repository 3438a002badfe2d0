package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/utils"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	repo    Repo
	svc     *Service
	advance func(time.Duration)
}

func backends(t *testing.T) map[string]func(t *testing.T) fixture {
	return map[string]func(t *testing.T) fixture{
		"memory": func(t *testing.T) fixture {
			c := &clock{t: time.Now()}
			repo := NewMemoryRepo(2*time.Hour, c.Now)
			return fixture{
				repo:    repo,
				svc:     NewService(repo, domain.DefaultPolicy(), utils.Discard(), WithClock(c.Now)),
				advance: c.Advance,
			}
		},
		"redis": func(t *testing.T) fixture {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			repo := NewRedisRepo(rdb, DefaultKeys(), 2*time.Hour)
			return fixture{
				repo:    repo,
				svc:     NewService(repo, domain.DefaultPolicy(), utils.Discard()),
				advance: mr.FastForward,
			}
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, f fixture)) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t))
		})
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, err := f.svc.CreateRoom(ctx, domain.ModeBoss)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusForming, room.Status)
		assert.Equal(t, 4, room.MaxPlayers)
		assert.Empty(t, room.Players)

		got, err := f.svc.GetRoomByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, domain.ModeBoss, got.Mode)

		ok, err := f.repo.Exists(ctx, room.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = f.svc.GetRoomByID(ctx, "room_00000000")
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestAddPlayersPromotesToReady(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, err := f.svc.CreateRoom(ctx, domain.ModePVP)
		require.NoError(t, err)

		added, err := f.svc.AddPlayerToRoom(ctx, room.ID, "a")
		require.NoError(t, err)
		assert.True(t, added)

		added, err = f.svc.AddPlayerToRoom(ctx, room.ID, "a")
		require.NoError(t, err)
		assert.False(t, added, "duplicate member")

		ready, err := f.svc.IsRoomReady(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, ready)

		_, err = f.svc.AddPlayerToRoom(ctx, room.ID, "b")
		require.NoError(t, err)
		ready, err = f.svc.IsRoomReady(ctx, room.ID)
		require.NoError(t, err)
		assert.True(t, ready)

		_, err = f.svc.AddPlayerToRoom(ctx, room.ID, "c")
		assert.True(t, domain.IsConflict(err), "full room")

		for _, pid := range []string{"a", "b"} {
			id, err := f.repo.PlayerRoomID(ctx, pid)
			require.NoError(t, err)
			assert.Equal(t, room.ID, id)
		}
		_, err = f.svc.AddPlayerToRoom(ctx, "room_deadbeef", "x")
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestRemoveLastPlayerDeletesRoom(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, _ := f.svc.CreateRoom(ctx, domain.ModePVP)
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "a")
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "b")

		removed, err := f.svc.RemovePlayerFromRoom(ctx, room.ID, "a")
		require.NoError(t, err)
		assert.True(t, removed)

		got, err := f.svc.GetRoomByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusForming, got.Status)
		assert.Equal(t, []string{"b"}, got.Players)

		id, _ := f.repo.PlayerRoomID(ctx, "a")
		assert.Empty(t, id, "departed player loses the pointer")

		removed, err = f.svc.RemovePlayerFromRoom(ctx, room.ID, "b")
		require.NoError(t, err)
		assert.True(t, removed)

		all, err := f.svc.ListRooms(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, all)
		n, err := f.svc.TotalRooms(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		for _, pid := range []string{"a", "b"} {
			id, _ := f.repo.PlayerRoomID(ctx, pid)
			assert.Empty(t, id)
		}

		removed, err = f.svc.RemovePlayerFromRoom(ctx, room.ID, "b")
		require.NoError(t, err)
		assert.False(t, removed, "unknown room")
	})
}

func TestRemoveFromInProgressIsAbandonedMidGame(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, _ := f.svc.CreateRoom(ctx, domain.ModeBoss)
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "a")
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "b")
		require.NoError(t, f.svc.MarkInProgress(ctx, room.ID))

		_, err := f.svc.RemovePlayerFromRoom(ctx, room.ID, "b")
		require.NoError(t, err)
		got, err := f.svc.GetRoomByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusForming, got.Status)
		assert.Equal(t, 1, got.CurrentPlayers)
	})
}

func TestStatusTransitions(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, _ := f.svc.CreateRoom(ctx, domain.ModeBoss)
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "a")

		err := f.svc.MarkInProgress(ctx, room.ID)
		assert.True(t, domain.IsConflict(err), "one player is not ready")

		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "b")
		require.NoError(t, f.svc.MarkInProgress(ctx, room.ID))
		got, _ := f.svc.GetRoomByID(ctx, room.ID)
		assert.Equal(t, domain.StatusInProgress, got.Status)

		_, err = f.svc.AddPlayerToRoom(ctx, room.ID, "c")
		assert.True(t, domain.IsConflict(err), "in progress rooms reject players")

		require.NoError(t, f.svc.MarkFinished(ctx, room.ID))
		got, _ = f.svc.GetRoomByID(ctx, room.ID)
		assert.Equal(t, domain.StatusFinished, got.Status)

		assert.True(t, domain.IsNotFound(f.svc.MarkFinished(ctx, "room_ffffffff")))
	})
}

func TestListRoomsFilters(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		pvp, _ := f.svc.CreateRoom(ctx, domain.ModePVP)
		_, _ = f.svc.AddPlayerToRoom(ctx, pvp.ID, "a")
		_, _ = f.svc.AddPlayerToRoom(ctx, pvp.ID, "b")
		boss, _ := f.svc.CreateRoom(ctx, domain.ModeBoss)

		all, err := f.svc.ListRooms(ctx, 0, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		byMode, err := f.svc.ListRooms(ctx, domain.ModeBoss, 0)
		require.NoError(t, err)
		require.Len(t, byMode, 1)
		assert.Equal(t, boss.ID, byMode[0].ID)

		byStatus, err := f.svc.ListRooms(ctx, 0, domain.StatusReady)
		require.NoError(t, err)
		require.Len(t, byStatus, 1)
		assert.Equal(t, pvp.ID, byStatus[0].ID)

		both, err := f.svc.ListRooms(ctx, domain.ModeBoss, domain.StatusReady)
		require.NoError(t, err)
		assert.Empty(t, both)
	})
}

func TestDeleteRoomIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, _ := f.svc.CreateRoom(ctx, domain.ModePVP)
		_, _ = f.svc.AddPlayerToRoom(ctx, room.ID, "a")

		require.NoError(t, f.svc.DeleteRoom(ctx, room.ID))
		require.NoError(t, f.svc.DeleteRoom(ctx, room.ID))
		require.NoError(t, f.svc.DeleteRoom(ctx, "room_12345678"))

		got, err := f.svc.GetPlayerRoom(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, got)
		n, _ := f.svc.TotalRooms(ctx)
		assert.Zero(t, n)
	})
}

func TestReturnedRoomsAreCopies(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		room, _ := f.svc.CreateRoom(ctx, domain.ModeBoss)
		room.AddPlayer("ghost")

		got, err := f.svc.GetRoomByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Players)
	})
}

func TestRoomsExpireAndIndexIsPruned(t *testing.T) {
	eachBackend(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		old, _ := f.svc.CreateRoom(ctx, domain.ModePVP)
		_, _ = f.svc.AddPlayerToRoom(ctx, old.ID, "a")

		f.advance(2*time.Hour + time.Second)

		got, err := f.repo.FindByID(ctx, old.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
		id, _ := f.repo.PlayerRoomID(ctx, "a")
		assert.Empty(t, id)

		fresh, _ := f.svc.CreateRoom(ctx, domain.ModeBoss)

		pruned, err := f.svc.PruneIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, pruned, "the index expired together with the old record")

		all, err := f.repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, fresh.ID, all[0].ID)
	})
}

func TestPruneIndexDropsDanglingIDs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewRedisRepo(rdb, DefaultKeys(), time.Hour)
	ctx := context.Background()

	r := domain.NewRoom(domain.NewRoomID(), domain.ModePVP, 2, time.Now())
	require.NoError(t, repo.Save(ctx, r))
	_, err := mr.SAdd("rooms:index", "room_gone0000")
	require.NoError(t, err)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pruned, err := repo.PruneIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	ok, _ := mr.SIsMember("rooms:index", r.ID)
	assert.True(t, ok)
	ok, _ = mr.SIsMember("rooms:index", "room_gone0000")
	assert.False(t, ok)
}

func TestRedisKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	repo := NewRedisRepo(rdb, DefaultKeys(), 2*time.Hour)
	ctx := context.Background()

	r := domain.NewRoom("room_abcdef01", domain.ModeBoss, 4, time.Now())
	r.AddPlayer("p1")
	require.NoError(t, repo.Save(ctx, r))

	assert.True(t, mr.Exists("room:room_abcdef01"))
	assert.Equal(t, 2*time.Hour, mr.TTL("room:room_abcdef01"))
	assert.Equal(t, 2*time.Hour, mr.TTL("rooms:index"))
	v, err := mr.Get("player:room:p1")
	require.NoError(t, err)
	assert.Equal(t, "room_abcdef01", v)
	assert.Equal(t, 2*time.Hour, mr.TTL("player:room:p1"))

	// a pointer owned by another room survives this room's deletion
	require.NoError(t, mr.Set("player:room:p1", "room_other000"))
	require.NoError(t, repo.Delete(ctx, r.ID))
	v, _ = mr.Get("player:room:p1")
	assert.Equal(t, "room_other000", v)
	assert.False(t, mr.Exists("room:room_abcdef01"))
}
