package room

import (
	"context"
	"sort"

	"Matchmaking/internal/domain"
)

// Repo 房间存储：记录 + 全局索引 + 玩家指针，三者同步写
type Repo interface {
	// Save upserts the record, indexes the id and refreshes every member's pointer.
	Save(ctx context.Context, room *domain.Room) error
	// FindByID returns nil when absent.
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	Exists(ctx context.Context, roomID string) (bool, error)
	// Delete clears member pointers, the record and the index entry; absent ids are a no-op.
	Delete(ctx context.Context, roomID string) error
	ListAll(ctx context.Context) ([]*domain.Room, error)
	ListByMode(ctx context.Context, mode domain.Mode) ([]*domain.Room, error)
	ListByStatus(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error)
	// PlayerRoomID returns "" when the player has no pointer.
	PlayerRoomID(ctx context.Context, playerID string) (string, error)
	// ClearPlayerRoom drops the pointer only while it still names roomID.
	ClearPlayerRoom(ctx context.Context, playerID, roomID string) error
	// UpdateStatus is a read-modify-write through Save; NotFound when absent.
	UpdateStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	Count(ctx context.Context) (int64, error)
	// PruneIndex removes index ids whose record has expired.
	PruneIndex(ctx context.Context) (int, error)
}

// Keys persisted key layout.
type Keys struct {
	RoomPrefix       string
	RoomIndex        string
	PlayerRoomPrefix string
}

func DefaultKeys() Keys {
	return Keys{RoomPrefix: "room:", RoomIndex: "rooms:index", PlayerRoomPrefix: "player:room:"}
}

func (k Keys) room(id string) string { return k.RoomPrefix + id }
func (k Keys) playerRoom(pid string) string { return k.PlayerRoomPrefix + pid }

func filterRooms(rooms []*domain.Room, keep func(*domain.Room) bool) []*domain.Room {
	out := make([]*domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// sortRooms oldest first, id as tie-break.
func sortRooms(rooms []*domain.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}
