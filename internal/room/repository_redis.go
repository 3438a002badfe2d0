package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/domain"
)

type redisRepo struct {
	rdb  redis.UniversalClient
	keys Keys
	ttl  time.Duration
}

// NewRedisRepo key 约定：
//
//	string: room:{id}            -> room JSON, ttl
//	set   : rooms:index          -> {id,...}, ttl 每次 save 刷新
//	string: player:room:{player} -> id, 与房间同 ttl
func NewRedisRepo(rdb redis.UniversalClient, keys Keys, ttl time.Duration) Repo {
	return &redisRepo{rdb: rdb, keys: keys, ttl: ttl}
}

// KEYS[1] = player pointer, ARGV[1] = room id
var releasePointer = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *redisRepo) Save(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return domain.StoreError(err, "encode room")
	}
	p := r.rdb.TxPipeline()
	p.Set(ctx, r.keys.room(room.ID), data, r.ttl)
	p.SAdd(ctx, r.keys.RoomIndex, room.ID)
	p.Expire(ctx, r.keys.RoomIndex, r.ttl)
	for _, pid := range room.Players {
		p.Set(ctx, r.keys.playerRoom(pid), room.ID, r.ttl)
	}
	_, err = p.Exec(ctx)
	return domain.StoreError(err, "save room")
}

func (r *redisRepo) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	data, err := r.rdb.Get(ctx, r.keys.room(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreError(err, "get room")
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, domain.StoreError(err, "decode room")
	}
	return &room, nil
}

func (r *redisRepo) Exists(ctx context.Context, roomID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.keys.room(roomID)).Result()
	if err != nil {
		return false, domain.StoreError(err, "exists room")
	}
	return n == 1, nil
}

func (r *redisRepo) Delete(ctx context.Context, roomID string) error {
	room, err := r.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room != nil {
		for _, pid := range room.Players {
			if err := r.ClearPlayerRoom(ctx, pid, roomID); err != nil {
				return err
			}
		}
	}
	p := r.rdb.TxPipeline()
	p.Del(ctx, r.keys.room(roomID))
	p.SRem(ctx, r.keys.RoomIndex, roomID)
	_, err = p.Exec(ctx)
	return domain.StoreError(err, "delete room")
}

func (r *redisRepo) ListAll(ctx context.Context) ([]*domain.Room, error) {
	ids, err := r.rdb.SMembers(ctx, r.keys.RoomIndex).Result()
	if err != nil {
		return nil, domain.StoreError(err, "list room index")
	}
	if len(ids) == 0 {
		return []*domain.Room{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keys.room(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.StoreError(err, "load rooms")
	}
	rooms := make([]*domain.Room, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// record expired before the index entry
			continue
		}
		var room domain.Room
		if err := json.Unmarshal([]byte(s), &room); err != nil {
			return nil, domain.StoreError(err, "decode room")
		}
		rooms = append(rooms, &room)
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *redisRepo) ListByMode(ctx context.Context, mode domain.Mode) ([]*domain.Room, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterRooms(all, func(room *domain.Room) bool { return room.Mode == mode }), nil
}

func (r *redisRepo) ListByStatus(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return filterRooms(all, func(room *domain.Room) bool { return room.Status == status }), nil
}

func (r *redisRepo) PlayerRoomID(ctx context.Context, playerID string) (string, error) {
	val, err := r.rdb.Get(ctx, r.keys.playerRoom(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", domain.StoreError(err, "get player room")
	}
	return val, nil
}

func (r *redisRepo) ClearPlayerRoom(ctx context.Context, playerID, roomID string) error {
	key := r.keys.playerRoom(playerID)
	if err := releasePointer.Run(ctx, r.rdb, []string{key}, roomID).Err(); err != nil {
		// 脚本不可用时回退为非原子的读后删
		cur, getErr := r.rdb.Get(ctx, key).Result()
		if errors.Is(getErr, redis.Nil) {
			return nil
		}
		if getErr != nil {
			return domain.StoreError(getErr, "clear player room")
		}
		if cur == roomID {
			return domain.StoreError(r.rdb.Del(ctx, key).Err(), "clear player room")
		}
	}
	return nil
}

func (r *redisRepo) UpdateStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	room, err := r.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return domain.NotFound(roomID, "room not found: %s", roomID)
	}
	room.Status = status
	return r.Save(ctx, room)
}

func (r *redisRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.rdb.SCard(ctx, r.keys.RoomIndex).Result()
	if err != nil {
		return 0, domain.StoreError(err, "count rooms")
	}
	return n, nil
}

func (r *redisRepo) PruneIndex(ctx context.Context) (int, error) {
	ids, err := r.rdb.SMembers(ctx, r.keys.RoomIndex).Result()
	if err != nil {
		return 0, domain.StoreError(err, "list room index")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	p := r.rdb.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = p.Exists(ctx, r.keys.room(id))
	}
	if _, err := p.Exec(ctx); err != nil {
		return 0, domain.StoreError(err, "check rooms")
	}
	stale := make([]any, 0)
	for i, c := range checks {
		if c.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.rdb.SRem(ctx, r.keys.RoomIndex, stale...).Err(); err != nil {
		return 0, domain.StoreError(err, "prune room index")
	}
	return len(stale), nil
}
