package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/matchmaker"
	"Matchmaking/internal/room"
)

type CleanupConfig struct {
	Interval     time.Duration
	QueueExpiry  time.Duration
	RoomExpiry   time.Duration
	AbandonAfter time.Duration
	// ScanLimit bounds the queue prefix inspected per mode.
	ScanLimit int
}

// SweepStats 单次清理的计数
type SweepStats struct {
	ExpiredPlayers int `json:"expiredPlayers"`
	ExpiredRooms   int `json:"expiredRooms"`
	AbandonedRooms int `json:"abandonedRooms"`
	PrunedIndex    int `json:"prunedIndex"`
}

// CleanupScheduler 清理过期的排队玩家与房间
type CleanupScheduler struct {
	queue  matchmaker.QueueRepo
	rooms  *room.Service
	locker Locker
	cfg    CleanupConfig
	now    func() time.Time
	log    *log.Logger

	running atomic.Bool
	lc      lifecycle
}

func NewCleanupScheduler(queue matchmaker.QueueRepo, rooms *room.Service, locker Locker, cfg CleanupConfig, logger *log.Logger) *CleanupScheduler {
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = 1000
	}
	return &CleanupScheduler{
		queue:  queue,
		rooms:  rooms,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.WithPrefix("cleanup"),
	}
}

func (s *CleanupScheduler) Start(ctx context.Context) {
	if !s.lc.start(ctx, s.Run) {
		s.log.Warn("already running")
	}
}

func (s *CleanupScheduler) Stop() {
	s.lc.stop()
}

func (s *CleanupScheduler) Running() bool {
	return s.running.Load()
}

func (s *CleanupScheduler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.log.Info("started", "interval", s.cfg.Interval)
	every(ctx, s.cfg.Interval, func(ctx context.Context) {
		st, err := s.RunOnce(ctx)
		if err != nil {
			s.log.Error("sweep incomplete", "err", err)
		}
		if st != (SweepStats{}) {
			s.log.Info("sweep done", "players", st.ExpiredPlayers, "expiredRooms", st.ExpiredRooms, "abandonedRooms", st.AbandonedRooms, "pruned", st.PrunedIndex)
		}
	})
	s.log.Info("stopped")
}

// RunOnce 强制执行一次清理。每个模式在该模式的锁内处理，
// 避免与正在成桌的调度器互相踩踏；锁被占用时本轮跳过该模式。
func (s *CleanupScheduler) RunOnce(ctx context.Context) (SweepStats, error) {
	var (
		st   SweepStats
		errs []error
	)
	for _, m := range domain.Modes {
		if err := s.sweepMode(ctx, m, &st); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m, err))
		}
	}
	pruned, err := s.rooms.PruneIndex(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	st.PrunedIndex = pruned
	return st, errors.Join(errs...)
}

func (s *CleanupScheduler) sweepMode(ctx context.Context, mode domain.Mode, st *SweepStats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	release, ok, err := s.locker.TryLock(ctx, mode.String())
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("mode busy, skipped", "mode", mode)
		return nil
	}
	defer release()

	var errs []error
	if err := s.evictPlayers(ctx, mode, st); err != nil {
		errs = append(errs, err)
	}
	if err := s.reapRooms(ctx, mode, st); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *CleanupScheduler) evictPlayers(ctx context.Context, mode domain.Mode, st *SweepStats) error {
	players, err := s.queue.PeekFirst(ctx, mode, s.cfg.ScanLimit)
	if err != nil {
		return err
	}
	now := s.now()
	for _, p := range players {
		if p.WaitTime(now) <= s.cfg.QueueExpiry {
			continue
		}
		removed, err := s.queue.RemoveOne(ctx, mode, p.ID)
		if err != nil {
			return err
		}
		if removed {
			st.ExpiredPlayers++
			s.log.Info("queue entry expired", "player", p.ID, "mode", mode, "waited", p.WaitTime(now).Round(time.Second))
		}
	}
	return nil
}

type reapReason uint8

const (
	keepRoom reapReason = iota
	reapExpired
	reapAbandoned
)

// classify each room is deleted at most once; first matching rule wins.
func (s *CleanupScheduler) classify(r *domain.Room, now time.Time) reapReason {
	age := r.Age(now)
	minPlayers := s.rooms.Policy().MinPlayersForRoom
	switch {
	case r.CurrentPlayers == 0:
		return reapAbandoned
	case r.Status == domain.StatusFinished && age > s.cfg.RoomExpiry:
		return reapExpired
	case r.Status == domain.StatusReady && age > s.cfg.RoomExpiry:
		return reapExpired
	case r.Status == domain.StatusForming && age > s.cfg.AbandonAfter && r.CurrentPlayers < minPlayers:
		return reapAbandoned
	}
	return keepRoom
}

func (s *CleanupScheduler) reapRooms(ctx context.Context, mode domain.Mode, st *SweepStats) error {
	rooms, err := s.rooms.ListRooms(ctx, mode, 0)
	if err != nil {
		return err
	}
	now := s.now()
	var errs []error
	for _, r := range rooms {
		reason := s.classify(r, now)
		if reason == keepRoom {
			continue
		}
		if err := s.rooms.DeleteRoom(ctx, r.ID); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", r.ID, err))
			continue
		}
		if reason == reapExpired {
			st.ExpiredRooms++
		} else {
			st.AbandonedRooms++
		}
		s.log.Info("room reaped", "room", r.ID, "status", r.Status, "players", r.CurrentPlayers, "age", r.Age(now).Round(time.Second))
	}
	return errors.Join(errs...)
}
