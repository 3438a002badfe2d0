package domain

import (
	"fmt"
	"strings"
)

// RoomStatus FORMING -> READY -> IN_PROGRESS -> FINISHED
type RoomStatus uint8

const (
	StatusForming RoomStatus = iota + 1
	StatusReady
	StatusInProgress
	StatusFinished
)

var statusTable = map[RoomStatus]struct {
	name        string
	description string
}{
	StatusForming:    {"FORMING", "Room is forming"},
	StatusReady:      {"READY", "Room is ready to start"},
	StatusInProgress: {"IN_PROGRESS", "Match in progress"},
	StatusFinished:   {"FINISHED", "Match finished"},
}

func (s RoomStatus) String() string {
	if e, ok := statusTable[s]; ok {
		return e.name
	}
	return fmt.Sprintf("RoomStatus(%d)", uint8(s))
}

func (s RoomStatus) Description() string {
	return statusTable[s].description
}

func (s RoomStatus) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

func ParseRoomStatus(s string) (RoomStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for st, e := range statusTable {
		if e.name == upper {
			return st, nil
		}
	}
	return 0, Validation("", "invalid room status %q", s)
}

func (s RoomStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid room status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *RoomStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseRoomStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
