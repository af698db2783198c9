package engine

// NewSession returns a lobby with host seated in slot 1.
func NewSession(host, name, passwordHash string) Session {
	s := Session{
		Name:         name,
		PasswordHash: passwordHash,
		State:        StateLobby,
		Active:       true,
	}
	s.Slots[0] = host
	return s
}

// Host returns the player in slot 1, or "" for an empty session.
func (s Session) Host() string { return s.Slots[0] }

// Occupied counts filled slots. Slots are left-compacted so this is also the
// index of the first empty slot.
func (s Session) Occupied() int {
	n := 0
	for _, p := range s.Slots {
		if p != "" {
			n++
		}
	}
	return n
}

// SlotOf returns the zero-based slot index of player, or -1.
func (s Session) SlotOf(player string) int {
	if player == "" {
		return -1
	}
	for i, p := range s.Slots {
		if p == player {
			return i
		}
	}
	return -1
}

// Players returns the occupied slots in order.
func (s Session) Players() []string {
	out := make([]string, 0, MaxPlayers)
	for _, p := range s.Slots {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s Session) basesPlaced() int {
	n := 0
	for i, placed := range s.BasePlaced {
		if placed && s.Slots[i] != "" {
			n++
		}
	}
	return n
}

// Ready reports whether every seated player has acknowledged the current wave.
func Ready(s Session) bool {
	n := s.Occupied()
	return n > 0 && s.AckCount == n
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
