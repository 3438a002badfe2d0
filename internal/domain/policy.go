package domain

// Policy room sizing shared by matching and the room state machine.
type Policy struct {
	MinPlayersForRoom int
	MaxPlayers        map[Mode]int
}

func DefaultPolicy() Policy {
	return Policy{
		MinPlayersForRoom: 2,
		MaxPlayers:        map[Mode]int{ModePVP: 2, ModeBoss: 4},
	}
}

func (p Policy) Capacity(m Mode) int {
	return p.MaxPlayers[m]
}
