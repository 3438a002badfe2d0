package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"Matchmaking/internal/domain"
)

// DefaultChannel shared by every matchmaking process.
const DefaultChannel = "room.notifications"

// RoomFormedEvent wire payload of a room-formed notification.
type RoomFormedEvent struct {
	RoomID    string      `json:"roomId"`
	Players   []string    `json:"players"`
	Mode      domain.Mode `json:"mode"`
	Timestamp int64       `json:"timestamp"`
}

func NewRoomFormedEvent(r *domain.Room, now time.Time) RoomFormedEvent {
	players := append([]string{}, r.Players...)
	return RoomFormedEvent{RoomID: r.ID, Players: players, Mode: r.Mode, Timestamp: now.UnixMilli()}
}

// Sink fans an event out to the players' connections.
type Sink interface {
	RoomFormed(ctx context.Context, ev RoomFormedEvent)
}

// RedisPublisher 通过 PUBLISH 广播，发送失败只记录日志，不重试
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
	now     func() time.Time
	log     *log.Logger
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string, logger *log.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, now: time.Now, log: logger.WithPrefix("notifier")}
}

func (p *RedisPublisher) PublishRoomFormed(ctx context.Context, r *domain.Room) {
	data, err := json.Marshal(NewRoomFormedEvent(r, p.now()))
	if err != nil {
		p.log.Error("encode room notification", "room", r.ID, "err", err)
		return
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, data).Result()
	if err != nil {
		p.log.Error("publish room notification", "room", r.ID, "err", err)
		return
	}
	p.log.Debug("room notification published", "room", r.ID, "receivers", receivers)
}

// LocalPublisher delivers straight to an in-process sink (memory driver).
type LocalPublisher struct {
	sink Sink
	now  func() time.Time
}

func NewLocalPublisher(sink Sink) *LocalPublisher {
	return &LocalPublisher{sink: sink, now: time.Now}
}

func (p *LocalPublisher) PublishRoomFormed(ctx context.Context, r *domain.Room) {
	p.sink.RoomFormed(ctx, NewRoomFormedEvent(r, p.now()))
}

// Subscriber 独立的订阅连接，把事件交给 Sink
type Subscriber struct {
	rdb     redis.UniversalClient
	channel string
	sink    Sink
	log     *log.Logger
}

func NewSubscriber(rdb redis.UniversalClient, channel string, sink Sink, logger *log.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{rdb: rdb, channel: channel, sink: sink, log: logger.WithPrefix("subscriber")}
}

// Run blocks until ctx is done; undecodable payloads are skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return domain.StoreError(err, "subscribe "+s.channel)
	}
	s.log.Info("subscribed", "channel", s.channel)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev RoomFormedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("bad room notification", "payload", msg.Payload, "err", err)
				continue
			}
			s.sink.RoomFormed(ctx, ev)
		}
	}
}
