package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room 组桌结果，包含状态机
//
// Invariants after every mutation: CurrentPlayers == len(Players),
// len(Players) <= MaxPlayers, Players has no duplicates.
type Room struct {
	ID             string
	Mode           Mode
	Status         RoomStatus
	Players        []string
	MaxPlayers     int
	CurrentPlayers int
	CreatedAt      time.Time
}

// Transition names what a membership drop did to the room status.
type Transition uint8

const (
	TransitionNone Transition = iota
	// TransitionRegroup: dropped under the minimum before the match started (or after it finished).
	TransitionRegroup
	// TransitionAbandonedMidGame: dropped under the minimum while IN_PROGRESS.
	TransitionAbandonedMidGame
)

func (t Transition) String() string {
	switch t {
	case TransitionRegroup:
		return "regroup"
	case TransitionAbandonedMidGame:
		return "abandoned-mid-game"
	default:
		return "none"
	}
}

// NewRoomID room_ + 8 hex chars
func NewRoomID() string {
	return "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func NewRoom(id string, mode Mode, maxPlayers int, now time.Time) *Room {
	return &Room{
		ID:         id,
		Mode:       mode,
		Status:     StatusForming,
		Players:    []string{},
		MaxPlayers: maxPlayers,
		CreatedAt:  time.UnixMilli(now.UnixMilli()),
	}
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

func (r *Room) CanAcceptPlayer() bool {
	return len(r.Players) < r.MaxPlayers && r.Status != StatusInProgress
}

func (r *Room) HasPlayer(playerID string) bool {
	return slices.Contains(r.Players, playerID)
}

// AddPlayer returns false without mutating when full, in progress or already a member.
func (r *Room) AddPlayer(playerID string) bool {
	if !r.CanAcceptPlayer() || r.HasPlayer(playerID) {
		return false
	}
	r.Players = append(r.Players, playerID)
	r.CurrentPlayers = len(r.Players)
	return true
}

func (r *Room) RemovePlayer(playerID string) bool {
	i := slices.Index(r.Players, playerID)
	if i < 0 {
		return false
	}
	r.Players = slices.Delete(r.Players, i, i+1)
	r.CurrentPlayers = len(r.Players)
	return true
}

// PromoteIfReady FORMING -> READY once membership reaches minPlayers.
func (r *Room) PromoteIfReady(minPlayers int) bool {
	if r.Status != StatusForming {
		return false
	}
	if len(r.Players) < minPlayers || len(r.Players) < 2 {
		return false
	}
	r.Status = StatusReady
	return true
}

// DemoteBelowMinimum resets to FORMING whenever membership is under minPlayers,
// whatever the prior status. From IN_PROGRESS this is reported separately because
// it is unclear whether a running match should really fall back to forming.
func (r *Room) DemoteBelowMinimum(minPlayers int) Transition {
	if len(r.Players) >= minPlayers {
		return TransitionNone
	}
	prev := r.Status
	r.Status = StatusForming
	switch prev {
	case StatusForming:
		return TransitionNone
	case StatusInProgress:
		return TransitionAbandonedMidGame
	default:
		return TransitionRegroup
	}
}

// IsReady >= 2 players and READY
func (r *Room) IsReady() bool {
	return len(r.Players) >= 2 && r.Status == StatusReady
}

func (r *Room) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Clone returns a disposable copy.
func (r *Room) Clone() *Room {
	c := *r
	c.Players = slices.Clone(r.Players)
	if c.Players == nil {
		c.Players = []string{}
	}
	return &c
}

type roomJSON struct {
	RoomID         string     `json:"roomId"`
	Mode           Mode       `json:"mode"`
	Status         RoomStatus `json:"status"`
	Players        []string   `json:"players"`
	MaxPlayers     int        `json:"maxPlayers"`
	CurrentPlayers int        `json:"currentPlayers"`
	CreatedAt      int64      `json:"createdAt"`
}

func (r Room) MarshalJSON() ([]byte, error) {
	players := r.Players
	if players == nil {
		players = []string{}
	}
	return json.Marshal(roomJSON{
		RoomID:         r.ID,
		Mode:           r.Mode,
		Status:         r.Status,
		Players:        players,
		MaxPlayers:     r.MaxPlayers,
		CurrentPlayers: r.CurrentPlayers,
		CreatedAt:      r.CreatedAt.UnixMilli(),
	})
}

func (r *Room) UnmarshalJSON(b []byte) error {
	var w roomJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Players == nil {
		w.Players = []string{}
	}
	*r = Room{
		ID:             w.RoomID,
		Mode:           w.Mode,
		Status:         w.Status,
		Players:        w.Players,
		MaxPlayers:     w.MaxPlayers,
		CurrentPlayers: w.CurrentPlayers,
		CreatedAt:      time.UnixMilli(w.CreatedAt),
	}
	return nil
}
