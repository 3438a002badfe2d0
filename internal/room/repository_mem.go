package room

import (
	"context"
	"sync"
	"time"

	"Matchmaking/internal/domain"
)

type memRoom struct {
	room    *domain.Room
	expires time.Time
}

type memPointer struct {
	roomID  string
	expires time.Time
}

// memRepo 内存版，过期在读取时惰性判定
type memRepo struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	rooms    map[string]memRoom
	index    map[string]struct{}
	indexExp time.Time
	pointers map[string]memPointer
}

// NewMemoryRepo now may be nil (time.Now).
func NewMemoryRepo(ttl time.Duration, now func() time.Time) Repo {
	if now == nil {
		now = time.Now
	}
	return &memRepo{
		ttl:      ttl,
		now:      now,
		rooms:    make(map[string]memRoom),
		index:    make(map[string]struct{}),
		pointers: make(map[string]memPointer),
	}
}

func (m *memRepo) liveRoom(id string) (*domain.Room, bool) {
	e, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		delete(m.rooms, id)
		return nil, false
	}
	return e.room, true
}

func (m *memRepo) liveIndex() map[string]struct{} {
	if len(m.index) > 0 && !m.now().Before(m.indexExp) {
		m.index = make(map[string]struct{})
	}
	return m.index
}

func (m *memRepo) livePointer(pid string) (string, bool) {
	p, ok := m.pointers[pid]
	if !ok {
		return "", false
	}
	if !m.now().Before(p.expires) {
		delete(m.pointers, pid)
		return "", false
	}
	return p.roomID, true
}

func (m *memRepo) Save(ctx context.Context, room *domain.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := m.now().Add(m.ttl)
	m.rooms[room.ID] = memRoom{room: room.Clone(), expires: exp}
	m.liveIndex()[room.ID] = struct{}{}
	m.indexExp = exp
	for _, pid := range room.Players {
		m.pointers[pid] = memPointer{roomID: room.ID, expires: exp}
	}
	return nil
}

func (m *memRepo) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.liveRoom(roomID)
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *memRepo) Exists(ctx context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.liveRoom(roomID)
	return ok, nil
}

func (m *memRepo) Delete(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.liveRoom(roomID); ok {
		for _, pid := range r.Players {
			if cur, ok := m.livePointer(pid); ok && cur == roomID {
				delete(m.pointers, pid)
			}
		}
	}
	delete(m.rooms, roomID)
	delete(m.liveIndex(), roomID)
	return nil
}

func (m *memRepo) ListAll(ctx context.Context) ([]*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]*domain.Room, 0, len(m.index))
	for id := range m.liveIndex() {
		if r, ok := m.liveRoom(id); ok {
			rooms = append(rooms, r.Clone())
		}
	}
	sortRooms(rooms)
	return rooms, nil
}

func (m *memRepo) ListByMode(ctx context.Context, mode domain.Mode) ([]*domain.Room, error) {
	all, _ := m.ListAll(ctx)
	return filterRooms(all, func(r *domain.Room) bool { return r.Mode == mode }), nil
}

func (m *memRepo) ListByStatus(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error) {
	all, _ := m.ListAll(ctx)
	return filterRooms(all, func(r *domain.Room) bool { return r.Status == status }), nil
}

func (m *memRepo) PlayerRoomID(ctx context.Context, playerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := m.livePointer(playerID)
	return id, nil
}

func (m *memRepo) ClearPlayerRoom(ctx context.Context, playerID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.livePointer(playerID); ok && cur == roomID {
		delete(m.pointers, playerID)
	}
	return nil
}

func (m *memRepo) UpdateStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	r, _ := m.FindByID(ctx, roomID)
	if r == nil {
		return domain.NotFound(roomID, "room not found: %s", roomID)
	}
	r.Status = status
	return m.Save(ctx, r)
}

func (m *memRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.liveIndex())), nil
}

func (m *memRepo) PruneIndex(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	idx := m.liveIndex()
	for id := range idx {
		if _, ok := m.liveRoom(id); !ok {
			delete(idx, id)
			pruned++
		}
	}
	return pruned, nil
}
