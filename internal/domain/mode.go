package domain

import (
	"fmt"
	"strings"
)

// Mode 匹配模式，封闭集合
type Mode uint8

const (
	ModePVP Mode = iota + 1
	ModeBoss
)

// Modes fixed iteration order: PVP before BOSS.
var Modes = []Mode{ModePVP, ModeBoss}

var modeTable = map[Mode]struct {
	name        string
	description string
}{
	ModePVP:  {"PVP", "PvP - Player vs Player"},
	ModeBoss: {"BOSS", "Boss - Players vs Boss"},
}

func (m Mode) String() string {
	if e, ok := modeTable[m]; ok {
		return e.name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) Description() string {
	return modeTable[m].description
}

func (m Mode) Valid() bool {
	_, ok := modeTable[m]
	return ok
}

// ParseMode is case-insensitive.
func ParseMode(s string) (Mode, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for m, e := range modeTable {
		if e.name == upper {
			return m, nil
		}
	}
	return 0, Validation("", "invalid mode %q, valid modes: %s", s, strings.Join(ModeNames(), ", "))
}

func ModeNames() []string {
	names := make([]string, 0, len(Modes))
	for _, m := range Modes {
		names = append(names, m.String())
	}
	return names
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
