package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/domain"
	"Matchmaking/internal/matchmaker"
)

// Matcher is the part of the matchmaking service the scheduler drives.
type Matcher interface {
	PerformMatching(ctx context.Context, mode domain.Mode) (int, error)
	GetStats(ctx context.Context) matchmaker.Stats
}

// MatchScheduler 两个独立触发器：成桌 tick 与统计 tick
type MatchScheduler struct {
	matcher    Matcher
	locker     Locker
	matchEvery time.Duration
	statsEvery time.Duration
	log        *log.Logger

	running atomic.Bool
	lc      lifecycle
}

func NewMatchScheduler(m Matcher, locker Locker, matchEvery, statsEvery time.Duration, logger *log.Logger) *MatchScheduler {
	return &MatchScheduler{
		matcher:    m,
		locker:     locker,
		matchEvery: matchEvery,
		statsEvery: statsEvery,
		log:        logger.WithPrefix("match-scheduler"),
	}
}

// Start is a no-op when already running.
func (s *MatchScheduler) Start(ctx context.Context) {
	if !s.lc.start(ctx, s.Run) {
		s.log.Warn("already running")
	}
}

func (s *MatchScheduler) Stop() {
	s.lc.stop()
}

func (s *MatchScheduler) Running() bool {
	return s.running.Load()
}

// Run blocks until ctx is done.
func (s *MatchScheduler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.log.Info("started", "match", s.matchEvery, "stats", s.statsEvery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		every(ctx, s.matchEvery, func(ctx context.Context) { s.Tick(ctx) })
	}()
	go func() {
		defer wg.Done()
		every(ctx, s.statsEvery, s.logStats)
	}()
	wg.Wait()
	s.log.Info("stopped")
}

// Tick 依次处理每个模式；单个模式失败不影响其他模式
func (s *MatchScheduler) Tick(ctx context.Context) map[domain.Mode]int {
	formed := make(map[domain.Mode]int, len(domain.Modes))
	for _, m := range domain.Modes {
		n, err := s.matchMode(ctx, m)
		if err != nil {
			s.log.Error("matching failed", "mode", m, "err", err)
			continue
		}
		formed[m] = n
	}
	return formed
}

func (s *MatchScheduler) matchMode(ctx context.Context, mode domain.Mode) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	release, ok, err := s.locker.TryLock(ctx, mode.String())
	if err != nil {
		return 0, err
	}
	if !ok {
		s.log.Debug("mode locked by another scheduler", "mode", mode)
		return 0, nil
	}
	defer release()
	return s.matcher.PerformMatching(ctx, mode)
}

func (s *MatchScheduler) logStats(ctx context.Context) {
	st := s.matcher.GetStats(ctx)
	s.log.Info("stats", "pvpQueue", st.PvpQueueSize, "bossQueue", st.BossQueueSize, "rooms", st.TotalRooms)
}
