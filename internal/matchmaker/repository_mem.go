package matchmaker

import (
	"context"
	"slices"
	"sync"
	"time"

	"Matchmaking/internal/domain"
)

type memQueue struct {
	players []domain.Player
	expires time.Time
}

type memRepo struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	queues map[domain.Mode]*memQueue
}

// NewMemoryRepo 内存版，与 Redis 行为对齐：整条队列共享一个过期时间
func NewMemoryRepo(ttl time.Duration, now func() time.Time) QueueRepo {
	if now == nil {
		now = time.Now
	}
	return &memRepo{ttl: ttl, now: now, queues: make(map[domain.Mode]*memQueue)}
}

// live returns nil once the queue has expired.
func (m *memRepo) live(mode domain.Mode) *memQueue {
	q, ok := m.queues[mode]
	if !ok {
		return nil
	}
	if !m.now().Before(q.expires) || len(q.players) == 0 {
		delete(m.queues, mode)
		return nil
	}
	return q
}

func (m *memRepo) Enqueue(ctx context.Context, p domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.live(p.Mode)
	if q == nil {
		q = &memQueue{}
		m.queues[p.Mode] = q
	}
	q.players = append(q.players, p)
	q.expires = m.now().Add(m.ttl)
	return nil
}

func (m *memRepo) DequeueHead(ctx context.Context, mode domain.Mode) (*domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.live(mode)
	if q == nil {
		return nil, nil
	}
	p := q.players[0]
	q.players = q.players[1:]
	return &p, nil
}

func (m *memRepo) PeekFirst(ctx context.Context, mode domain.Mode, n int) ([]domain.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.live(mode)
	if q == nil {
		return []domain.Player{}, nil
	}
	if n <= 0 || n > len(q.players) {
		n = len(q.players)
	}
	return slices.Clone(q.players[:n]), nil
}

func (m *memRepo) Size(ctx context.Context, mode domain.Mode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.live(mode)
	if q == nil {
		return 0, nil
	}
	return int64(len(q.players)), nil
}

func (m *memRepo) RemoveOne(ctx context.Context, mode domain.Mode, playerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.live(mode)
	if q == nil {
		return false, nil
	}
	i := slices.IndexFunc(q.players, func(p domain.Player) bool { return p.ID == playerID })
	if i < 0 {
		return false, nil
	}
	q.players = slices.Delete(q.players, i, i+1)
	return true, nil
}

func (m *memRepo) Clear(ctx context.Context, mode domain.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, mode)
	return nil
}
