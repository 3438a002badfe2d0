package domain

import (
	"encoding/json"
	"time"
)

// Player 排队中的玩家
type Player struct {
	ID       string
	Mode     Mode
	JoinedAt time.Time
}

// NewPlayer truncates joinedAt to milliseconds, the persisted resolution.
func NewPlayer(id string, mode Mode, now time.Time) Player {
	return Player{ID: id, Mode: mode, JoinedAt: time.UnixMilli(now.UnixMilli())}
}

func (p Player) WaitTime(now time.Time) time.Duration {
	return now.Sub(p.JoinedAt)
}

type playerJSON struct {
	PlayerID string `json:"playerId"`
	Mode     Mode   `json:"mode"`
	JoinedAt int64  `json:"joinedAt"`
}

func (p Player) MarshalJSON() ([]byte, error) {
	return json.Marshal(playerJSON{PlayerID: p.ID, Mode: p.Mode, JoinedAt: p.JoinedAt.UnixMilli()})
}

func (p *Player) UnmarshalJSON(b []byte) error {
	var w playerJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Player{ID: w.PlayerID, Mode: w.Mode, JoinedAt: time.UnixMilli(w.JoinedAt)}
	return nil
}
