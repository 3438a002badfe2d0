package room

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"Matchmaking/internal/domain"
)

// Service 房间状态机与删除策略
type Service struct {
	repo   Repo
	policy domain.Policy
	now    func() time.Time
	log    *log.Logger
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repo, policy domain.Policy, logger *log.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: policy,
		now:    time.Now,
		log:    logger.WithPrefix("room"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Policy() domain.Policy { return s.policy }

func (s *Service) CreateRoom(ctx context.Context, mode domain.Mode) (*domain.Room, error) {
	if !mode.Valid() {
		return nil, domain.Validation("", "invalid mode %d", uint8(mode))
	}
	room := domain.NewRoom(domain.NewRoomID(), mode, s.policy.Capacity(mode), s.now())
	if err := s.repo.Save(ctx, room); err != nil {
		return nil, err
	}
	s.log.Info("room created", "room", room.ID, "mode", mode)
	return room, nil
}

// GetRoomByID NotFound when the id is unknown or expired.
func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.NotFound(roomID, "room not found: %s", roomID)
	}
	return room, nil
}

// AddPlayerToRoom returns false for an existing member; Conflict when the room
// cannot take anyone.
func (s *Service) AddPlayerToRoom(ctx context.Context, roomID, playerID string) (bool, error) {
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.CanAcceptPlayer() {
		return false, domain.Conflict(roomID, "room %s is full", roomID)
	}
	if !room.AddPlayer(playerID) {
		return false, nil
	}
	room.PromoteIfReady(s.policy.MinPlayersForRoom)
	if err := s.repo.Save(ctx, room); err != nil {
		return false, err
	}
	s.log.Debug("player added", "room", roomID, "player", playerID, "players", room.CurrentPlayers)
	return true, nil
}

// RemovePlayerFromRoom deletes the room once it is empty. Unknown rooms and
// non-members return false.
func (s *Service) RemovePlayerFromRoom(ctx context.Context, roomID, playerID string) (bool, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room == nil || !room.RemovePlayer(playerID) {
		return false, nil
	}

	if room.CurrentPlayers == 0 {
		if err := s.repo.Delete(ctx, roomID); err != nil {
			return false, err
		}
		s.log.Info("room deleted, no players left", "room", roomID)
	} else {
		prev := room.Status
		switch room.DemoteBelowMinimum(s.policy.MinPlayersForRoom) {
		case domain.TransitionRegroup:
			s.log.Info("room regrouping", "room", roomID, "from", prev, "players", room.CurrentPlayers)
		case domain.TransitionAbandonedMidGame:
			// a running match drops back to FORMING; kept until a policy is agreed
			s.log.Warn("room abandoned mid-game", "room", roomID, "players", room.CurrentPlayers)
		}
		if err := s.repo.Save(ctx, room); err != nil {
			return false, err
		}
	}
	if err := s.repo.ClearPlayerRoom(ctx, playerID, roomID); err != nil {
		return false, err
	}
	s.log.Debug("player removed", "room", roomID, "player", playerID)
	return true, nil
}

// MarkInProgress READY -> IN_PROGRESS; Conflict unless the room is ready.
func (s *Service) MarkInProgress(ctx context.Context, roomID string) error {
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsReady() {
		return domain.Conflict(roomID, "room %s is not ready (status %s, %d players)", roomID, room.Status, room.CurrentPlayers)
	}
	if err := s.repo.UpdateStatus(ctx, roomID, domain.StatusInProgress); err != nil {
		return err
	}
	s.log.Info("room in progress", "room", roomID)
	return nil
}

// MarkFinished is unconditional on the current status.
func (s *Service) MarkFinished(ctx context.Context, roomID string) error {
	if err := s.repo.UpdateStatus(ctx, roomID, domain.StatusFinished); err != nil {
		return err
	}
	s.log.Info("room finished", "room", roomID)
	return nil
}

func (s *Service) IsRoomReady(ctx context.Context, roomID string) (bool, error) {
	room, err := s.GetRoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.IsReady(), nil
}

// ListRooms zero mode/status means any.
func (s *Service) ListRooms(ctx context.Context, mode domain.Mode, status domain.RoomStatus) ([]*domain.Room, error) {
	switch {
	case mode != 0 && status != 0:
		rooms, err := s.repo.ListByMode(ctx, mode)
		if err != nil {
			return nil, err
		}
		return filterRooms(rooms, func(r *domain.Room) bool { return r.Status == status }), nil
	case mode != 0:
		return s.repo.ListByMode(ctx, mode)
	case status != 0:
		return s.repo.ListByStatus(ctx, status)
	default:
		return s.repo.ListAll(ctx)
	}
}

// DeleteRoom is a no-op for unknown ids.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.repo.Delete(ctx, roomID); err != nil {
		return err
	}
	s.log.Info("room deleted", "room", roomID)
	return nil
}

// GetPlayerRoom nil when the player has no pointer or the room is gone.
func (s *Service) GetPlayerRoom(ctx context.Context, playerID string) (*domain.Room, error) {
	roomID, err := s.repo.PlayerRoomID(ctx, playerID)
	if err != nil || roomID == "" {
		return nil, err
	}
	return s.repo.FindByID(ctx, roomID)
}

func (s *Service) TotalRooms(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *Service) PruneIndex(ctx context.Context) (int, error) {
	return s.repo.PruneIndex(ctx)
}
