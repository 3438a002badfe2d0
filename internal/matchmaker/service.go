package matchmaker

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/room"
)

// statusScanLimit bounds the queue prefix scanned for a position lookup.
const statusScanLimit = 1000

// Publisher receives every formed room; failures stay inside the publisher.
type Publisher interface {
	PublishRoomFormed(ctx context.Context, r *domain.Room)
}

type Service struct {
	queue  QueueRepo
	rooms  *room.Service
	pub    Publisher
	policy domain.Policy
	now    func() time.Time
	log    *log.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(queue QueueRepo, rooms *room.Service, pub Publisher, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		queue:  queue,
		rooms:  rooms,
		pub:    pub,
		policy: rooms.Policy(),
		now:    time.Now,
		log:    logger.WithPrefix("matchmaker"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// JoinMatchmaking 入队。玩家同一时间只能在一个队列或一个房间中，否则 Conflict。
func (s *Service) JoinMatchmaking(ctx context.Context, playerID string, mode domain.Mode) (*JoinResult, error) {
	playerID, err := domain.NormalizePlayerID(playerID)
	if err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, domain.Validation(playerID, "invalid mode %d", uint8(mode))
	}

	for _, m := range domain.Modes {
		queued, err := s.queue.PeekFirst(ctx, m, 0)
		if err != nil {
			return nil, err
		}
		if position(queued, playerID) > 0 {
			return nil, domain.Conflict(playerID, "player %s is already in the %s queue", playerID, m)
		}
	}

	existing, err := s.rooms.GetPlayerRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflict(playerID, "player %s is already in room %s", playerID, existing.ID)
	}

	if err := s.queue.Enqueue(ctx, domain.NewPlayer(playerID, mode, s.now())); err != nil {
		return nil, err
	}
	size := s.GetQueueSize(ctx, mode)
	s.log.Info("player joined queue", "player", playerID, "mode", mode, "size", size)

	return &JoinResult{
		Success:        true,
		Message:        fmt.Sprintf("Joined the %s queue", mode.Description()),
		QueuePosition:  size,
		WaitingPlayers: size,
	}, nil
}

// LeaveMatchmaking 不在队列中时返回 false，不视为错误
func (s *Service) LeaveMatchmaking(ctx context.Context, playerID string, mode domain.Mode) (bool, error) {
	removed, err := s.queue.RemoveOne(ctx, mode, playerID)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("player left queue", "player", playerID, "mode", mode)
	}
	return removed, nil
}

// LeaveAllQueues is used when a connection drops; returns the modes left.
func (s *Service) LeaveAllQueues(ctx context.Context, playerID string) ([]domain.Mode, error) {
	var left []domain.Mode
	for _, m := range domain.Modes {
		removed, err := s.LeaveMatchmaking(ctx, playerID, m)
		if err != nil {
			return left, err
		}
		if removed {
			left = append(left, m)
		}
	}
	return left, nil
}

// PerformMatching 按 FIFO 从队首取人成桌，一次 tick 可以成多桌。
// 读长度与出队之间不是原子的，同一模式只能有一个调度器在跑。
func (s *Service) PerformMatching(ctx context.Context, mode domain.Mode) (int, error) {
	size, err := s.queue.Size(ctx, mode)
	if err != nil {
		return 0, err
	}
	minPlayers := int64(s.policy.MinPlayersForRoom)
	capacity := int64(s.policy.Capacity(mode))
	if size < minPlayers {
		s.log.Debug("not enough players", "mode", mode, "size", size)
		return 0, nil
	}

	formed := 0
	for size >= minPlayers {
		batch := min(size, capacity)
		r, err := s.rooms.CreateRoom(ctx, mode)
		if err != nil {
			return formed, err
		}

		added := 0
		for i := int64(0); i < batch; i++ {
			p, err := s.queue.DequeueHead(ctx, mode)
			if err != nil {
				return formed, err
			}
			if p == nil {
				break
			}
			ok, err := s.rooms.AddPlayerToRoom(ctx, r.ID, p.ID)
			if err != nil {
				// already off the queue and not seated
				s.log.Warn("dequeued player dropped", "player", p.ID, "room", r.ID, "mode", mode, "err", err)
				return formed, err
			}
			if !ok {
				s.log.Warn("dequeued player dropped", "player", p.ID, "room", r.ID, "mode", mode, "reason", "duplicate entry")
				continue
			}
			added++
		}

		if added == 0 {
			// queue drained by concurrent leaves between the size read and the pops
			if err := s.rooms.DeleteRoom(ctx, r.ID); err != nil {
				return formed, err
			}
			break
		}

		formedRoom, err := s.rooms.GetRoomByID(ctx, r.ID)
		if err != nil {
			return formed, err
		}
		s.pub.PublishRoomFormed(ctx, formedRoom)
		formed++
		s.log.Info("room formed", "room", formedRoom.ID, "mode", mode, "players", formedRoom.CurrentPlayers, "status", formedRoom.Status)

		if size, err = s.queue.Size(ctx, mode); err != nil {
			return formed, err
		}
	}
	return formed, nil
}

// GetPlayerStatus 先查房间，再按 PVP、BOSS 顺序查队列位置
func (s *Service) GetPlayerStatus(ctx context.Context, playerID string) (*PlayerStatus, error) {
	r, err := s.rooms.GetPlayerRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return &PlayerStatus{
			Status:     StatusInRoom,
			RoomID:     r.ID,
			RoomStatus: r.Status,
			Players:    r.Players,
			Mode:       r.Mode,
		}, nil
	}

	for _, m := range domain.Modes {
		queued, err := s.queue.PeekFirst(ctx, m, statusScanLimit)
		if err != nil {
			return nil, err
		}
		if pos := position(queued, playerID); pos > 0 {
			return &PlayerStatus{
				Status:    StatusInQueue,
				Mode:      m,
				Position:  pos,
				QueueSize: s.GetQueueSize(ctx, m),
			}, nil
		}
	}
	return &PlayerStatus{Status: StatusNotInMatchmaking}, nil
}

// GetQueueSize 诊断读，失败时按 0 处理
func (s *Service) GetQueueSize(ctx context.Context, mode domain.Mode) int64 {
	n, err := s.queue.Size(ctx, mode)
	if err != nil {
		s.log.Warn("queue size unavailable", "mode", mode, "err", err)
		return 0
	}
	return n
}

func (s *Service) GetStats(ctx context.Context) Stats {
	total, err := s.rooms.TotalRooms(ctx)
	if err != nil {
		s.log.Warn("room count unavailable", "err", err)
		total = 0
	}
	return Stats{
		PvpQueueSize:  s.GetQueueSize(ctx, domain.ModePVP),
		BossQueueSize: s.GetQueueSize(ctx, domain.ModeBoss),
		TotalRooms:    total,
		Timestamp:     s.now().UnixMilli(),
	}
}

// position 1-based, 0 when absent.
func position(players []domain.Player, playerID string) int {
	for i, p := range players {
		if p.ID == playerID {
			return i + 1
		}
	}
	return 0
}
