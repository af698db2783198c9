package engine

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const MaxPlayers = 4

type GameState int

const (
	StateLobby GameState = iota
	StateBasePlacement
	StateActive
	StateEnded
)

var stateNames = [...]string{"Lobby", "BasePlacement", "Active", "Ended"}

func (g GameState) String() string {
	if g < 0 || int(g) >= len(stateNames) {
		return fmt.Sprintf("GameState(%d)", int(g))
	}
	return stateNames[g]
}

func (g GameState) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *GameState) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*g = GameState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown game state %q", b)
}

// Session is the coordination aggregate of one game. It only holds arrays and
// scalars so a plain assignment is a full copy.
type Session struct {
	ID           int64
	Name         string
	PasswordHash string
	State        GameState
	Slots        [MaxPlayers]string
	BasePlaced   [MaxPlayers]bool
	Acked        [MaxPlayers]bool
	AckCount     int
	FinalScore   int
	Active       bool
}

type CommandType string

const (
	CmdJoin      CommandType = "Join"
	CmdLeave     CommandType = "Leave"
	CmdStartGame CommandType = "StartGame"
	CmdPlaceBase CommandType = "PlaceBase"
	CmdRecordAck CommandType = "RecordAck"
	CmdResetAcks CommandType = "ResetAcks"
	CmdAddScore  CommandType = "AddScore"
	CmdEnd       CommandType = "End"
)

type Command struct {
	Type     CommandType
	PlayerID string
	Password string
	Delta    int
}

type EventType string

const (
	EvtPlayerJoined EventType = "PlayerJoined"
	EvtPlayerLeft   EventType = "PlayerLeft"
	EvtHostChanged  EventType = "HostChanged"
	EvtStateChanged EventType = "StateChanged"
	EvtBasePlaced   EventType = "BasePlaced"
	EvtAckRecorded  EventType = "AckRecorded"
	EvtAcksReset    EventType = "AcksReset"
	EvtScoreAdded   EventType = "ScoreAdded"
	EvtSessionEnded EventType = "SessionEnded"
)

type Event struct {
	Type     EventType
	PlayerID string
	Slot     int // 1-based
	From, To GameState
	Value    int
}

// Apply validates cmd against s and returns the resulting session together
// with what changed. On error the returned session is s, untouched.
func Apply(s Session, cmd Command) ([]Event, Session, error) {
	next := s

	switch cmd.Type {
	case CmdJoin:
		if cmd.PlayerID == "" {
			return nil, s, ErrInvalidPlayer
		}
		// Rejoining returns the existing seat without a second starting grant.
		if s.SlotOf(cmd.PlayerID) >= 0 {
			return nil, s, nil
		}
		if s.State != StateLobby || !s.Active {
			return nil, s, ErrSessionStarted
		}
		if !checkPassword(s.PasswordHash, cmd.Password) {
			return nil, s, ErrWrongPassword
		}
		for _, i := range JoinOrder {
			if s.Slots[i] != "" {
				continue
			}
			next.Slots[i] = cmd.PlayerID
			next.BasePlaced[i] = false
			next.Acked[i] = false
			return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID, Slot: i + 1}}, next, nil
		}
		return nil, s, ErrSessionFull

	case CmdLeave:
		idx := s.SlotOf(cmd.PlayerID)
		if idx < 0 {
			return nil, s, ErrPlayerNotFound
		}
		next = compactWithout(s, idx)
		events := []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID, Slot: idx + 1}}

		if idx == 0 && next.Host() != "" {
			events = append(events, Event{Type: EvtHostChanged, PlayerID: next.Host(), Slot: 1})
		}

		switch {
		case next.Occupied() == 0:
			events = append(events, end(&next)...)
		case next.State == StateBasePlacement && next.basesPlaced() == next.Occupied():
			events = append(events, transition(&next, StateActive))
		}
		return events, next, nil

	case CmdStartGame:
		if cmd.PlayerID == "" || s.Host() != cmd.PlayerID {
			return nil, s, ErrNotHost
		}
		switch s.State {
		case StateLobby:
			return []Event{transition(&next, StateBasePlacement)}, next, nil
		case StateBasePlacement:
			return nil, s, nil
		default:
			return nil, s, ErrSessionStarted
		}

	case CmdPlaceBase:
		idx := s.SlotOf(cmd.PlayerID)
		if idx < 0 {
			return nil, s, ErrPlayerNotFound
		}
		if s.State == StateLobby || s.State == StateEnded {
			return nil, s, ErrWrongState
		}
		if s.BasePlaced[idx] {
			return nil, s, nil
		}
		next.BasePlaced[idx] = true
		events := []Event{{Type: EvtBasePlaced, PlayerID: cmd.PlayerID, Slot: idx + 1, Value: next.basesPlaced()}}
		// Whoever completes the set triggers the transition.
		if next.State == StateBasePlacement && next.basesPlaced() == next.Occupied() {
			events = append(events, transition(&next, StateActive))
		}
		return events, next, nil

	case CmdRecordAck:
		if cmd.PlayerID != "" {
			idx := s.SlotOf(cmd.PlayerID)
			if idx < 0 {
				return nil, s, ErrPlayerNotFound
			}
			if s.Acked[idx] {
				return nil, s, nil
			}
			next.Acked[idx] = true
		}
		if next.AckCount < next.Occupied() {
			next.AckCount++
		}
		return []Event{{Type: EvtAckRecorded, PlayerID: cmd.PlayerID, Value: next.AckCount}}, next, nil

	case CmdResetAcks:
		next.AckCount = 0
		next.Acked = [MaxPlayers]bool{}
		return []Event{{Type: EvtAcksReset}}, next, nil

	case CmdAddScore:
		next.FinalScore += cmd.Delta
		return []Event{{Type: EvtScoreAdded, Value: next.FinalScore}}, next, nil

	case CmdEnd:
		return end(&next), next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func transition(s *Session, to GameState) Event {
	ev := Event{Type: EvtStateChanged, From: s.State, To: to}
	s.State = to
	return ev
}

// end deactivates s. Ending an already ended session only makes sure it is
// marked inactive.
func end(s *Session) []Event {
	if s.State == StateEnded && !s.Active {
		return nil
	}
	var events []Event
	if s.State != StateEnded {
		events = append(events, transition(s, StateEnded))
	}
	s.Active = false
	return append(events, Event{Type: EvtSessionEnded, PlayerID: s.Host()})
}

// compactWithout removes slot idx and shifts later players left, carrying
// their base and ack flags with them.
func compactWithout(s Session, idx int) Session {
	next := s
	next.Slots = [MaxPlayers]string{}
	next.BasePlaced = [MaxPlayers]bool{}
	next.Acked = [MaxPlayers]bool{}

	j := 0
	for i := 0; i < MaxPlayers; i++ {
		if i == idx || s.Slots[i] == "" {
			continue
		}
		next.Slots[j] = s.Slots[i]
		next.BasePlaced[j] = s.BasePlaced[i]
		next.Acked[j] = s.Acked[i]
		j++
	}

	if s.Acked[idx] && next.AckCount > 0 {
		next.AckCount--
	}
	if next.AckCount > j {
		next.AckCount = j
	}
	return next
}

func checkPassword(hash, password string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword hashes a session password. An empty password stays empty,
// meaning the session is open.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", nil
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}
