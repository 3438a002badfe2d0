package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/domain"
)

type redisRepo struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *log.Logger
}

// NewRedisRepo key 约定：
//
//	list: queue:{mode} -> [player JSON, ...]，每次入队刷新 ttl
func NewRedisRepo(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *log.Logger) QueueRepo {
	if prefix == "" {
		prefix = QueueKeyPrefix
	}
	return &redisRepo{rdb: rdb, prefix: prefix, ttl: ttl, log: logger.WithPrefix("queue")}
}

func (r *redisRepo) key(mode domain.Mode) string {
	return r.prefix + mode.String()
}

func (r *redisRepo) Enqueue(ctx context.Context, p domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.StoreError(err, "encode player")
	}
	key := r.key(p.Mode)
	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.ttl)
	_, err = pipe.Exec(ctx)
	return domain.StoreError(err, "enqueue")
}

// DequeueHead pops past undecodable entries; they are already off the list.
func (r *redisRepo) DequeueHead(ctx context.Context, mode domain.Mode) (*domain.Player, error) {
	for {
		raw, err := r.rdb.LPop(ctx, r.key(mode)).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, domain.StoreError(err, "dequeue")
		}
		var p domain.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			r.log.Warn("undecodable queue entry dropped", "mode", mode, "entry", raw, "err", err)
			continue
		}
		return &p, nil
	}
}

func (r *redisRepo) PeekFirst(ctx context.Context, mode domain.Mode, n int) ([]domain.Player, error) {
	raws, err := r.lrange(ctx, mode, n)
	if err != nil {
		return nil, err
	}
	players := make([]domain.Player, 0, len(raws))
	for _, raw := range raws {
		if p, ok := r.decode(ctx, mode, raw); ok {
			players = append(players, p)
		}
	}
	return players, nil
}

// decode 坏数据直接 LREM 掉，一条脏记录不能卡住整个队列
func (r *redisRepo) decode(ctx context.Context, mode domain.Mode, raw string) (domain.Player, bool) {
	var p domain.Player
	err := json.Unmarshal([]byte(raw), &p)
	if err == nil {
		return p, true
	}
	r.log.Warn("undecodable queue entry dropped", "mode", mode, "entry", raw, "err", err)
	if err := r.rdb.LRem(ctx, r.key(mode), 0, raw).Err(); err != nil {
		r.log.Warn("drop undecodable queue entry", "mode", mode, "err", err)
	}
	return domain.Player{}, false
}

func (r *redisRepo) lrange(ctx context.Context, mode domain.Mode, n int) ([]string, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	raws, err := r.rdb.LRange(ctx, r.key(mode), 0, stop).Result()
	if err != nil {
		return nil, domain.StoreError(err, "peek queue")
	}
	return raws, nil
}

func (r *redisRepo) Size(ctx context.Context, mode domain.Mode) (int64, error) {
	n, err := r.rdb.LLen(ctx, r.key(mode)).Result()
	if err != nil {
		return 0, domain.StoreError(err, "queue size")
	}
	return n, nil
}

// RemoveOne LREM 按原始 JSON 精确删除一条，避免误删同一玩家的其他记录
func (r *redisRepo) RemoveOne(ctx context.Context, mode domain.Mode, playerID string) (bool, error) {
	raws, err := r.lrange(ctx, mode, 0)
	if err != nil {
		return false, err
	}
	for _, raw := range raws {
		p, ok := r.decode(ctx, mode, raw)
		if !ok || p.ID != playerID {
			continue
		}
		n, err := r.rdb.LRem(ctx, r.key(mode), 1, raw).Result()
		if err != nil {
			return false, domain.StoreError(err, "remove from queue")
		}
		return n > 0, nil
	}
	return false, nil
}

func (r *redisRepo) Clear(ctx context.Context, mode domain.Mode) error {
	return domain.StoreError(r.rdb.Del(ctx, r.key(mode)).Err(), "clear queue")
}
