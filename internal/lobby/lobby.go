package lobby

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

type Msg interface{ isLobbyMsg() }

// call runs fn on the lobby goroutine.
type call struct {
	fn func()
}

func (call) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// Observer is told about changes the registry indexes on. Calls are made from
// the lobby goroutine before the triggering request returns.
type Observer interface {
	// ClaimSeat reserves player for session id before a join is written. It
	// fails when player already sits in another active session.
	ClaimSeat(ctx context.Context, id int64, player string) error
	// ReleaseSeat undoes a claim after a failed write or a leave.
	ReleaseSeat(id int64, player string)
	HostChanged(id int64, newHost string)
	SessionEnded(id int64)
}

type Config struct {
	Store        store.Store
	Rules        engine.WaveRules
	StartingItem string
	Rng          *rand.Rand
	Observer     Observer
	Log          *zap.Logger
}

type KillReport struct {
	Wave       engine.Wave `json:"wave"`
	Health     int         `json:"health"`
	IsGameOver bool        `json:"isGameOver"`
}

type HealthReport struct {
	Health     int  `json:"health"`
	IsGameOver bool `json:"isGameOver"`
}

// Lobby owns one game session. Every read and write of the session and its
// wave happens on the loop goroutine, so requests for the same session are
// applied one at a time while different sessions run independently.
type Lobby struct {
	id      int64
	inbox   chan Msg
	session engine.Session
	wave    *engine.Wave
	spawner *engine.Spawner

	store        store.Store
	startingItem string
	observer     Observer
	log          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.Session, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		id:           initial.ID,
		inbox:        make(chan Msg, 64), // Small buffer
		session:      initial,
		spawner:      engine.NewSpawner(rng, cfg.Rules),
		store:        cfg.Store,
		startingItem: cfg.StartingItem,
		observer:     cfg.Observer,
		log:          log.With(zap.Int64("session_id", initial.ID)),
		ctx:          ctx,
		cancel:       cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case call:
				msg.fn()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	l.wave = nil
	l.cancel()
	l.log.Debug("lobby stopped")
}

// Expose the inbox so the registry can stop the lobby.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Close stops the lobby without waiting for queued requests.
func (l *Lobby) Close() { l.cancel() }

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) ID() int64 { return l.id }

// do runs fn on the loop and waits for it. A stopped lobby reports the
// session as gone.
func (l *Lobby) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case l.inbox <- call{fn: func() { fn(); close(finished) }}:
	case <-l.ctx.Done():
		return engine.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.ctx.Done():
		return engine.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply runs cmd through the engine and commits the result.
func (l *Lobby) apply(ctx context.Context, cmd engine.Command) ([]engine.Event, error) {
	events, next, err := engine.Apply(l.session, cmd)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events, l.commit(ctx, next, events)
}

// commit persists next together with grants in one store transaction and
// only then swaps it in. A failed write leaves the lobby exactly as it was.
func (l *Lobby) commit(ctx context.Context, next engine.Session, events []engine.Event, grants ...store.Grant) error {
	if err := l.store.SaveSession(ctx, &next, grants...); err != nil {
		l.log.Warn("session write failed", zap.Error(err), zap.Int("events", len(events)))
		return err
	}
	l.session = next

	for _, ev := range events {
		l.log.Debug("session event",
			zap.String("type", string(ev.Type)),
			zap.String("player", ev.PlayerID),
			zap.Int("slot", ev.Slot),
		)
		if l.observer == nil {
			continue
		}
		switch ev.Type {
		case engine.EvtPlayerLeft:
			l.observer.ReleaseSeat(next.ID, ev.PlayerID)
		case engine.EvtHostChanged:
			l.observer.HostChanged(next.ID, ev.PlayerID)
		case engine.EvtSessionEnded:
			l.log.Info("session ended", zap.Int("final_score", next.FinalScore))
			l.observer.SessionEnded(next.ID)
		}
	}
	return nil
}

func (l *Lobby) ensureWave() *engine.Wave {
	if l.wave == nil {
		w := l.spawner.Initial()
		l.wave = &w
		l.log.Info("wave generated", zap.Int("wave", w.Number), zap.Int("zombies", len(w.Zombies)))
	}
	return l.wave
}

// Session returns a copy of the current session.
func (l *Lobby) Session(ctx context.Context) (engine.Session, error) {
	var s engine.Session
	if err := l.do(ctx, func() { s = l.session }); err != nil {
		return engine.Session{}, err
	}
	return s, nil
}

// Join seats player and grants the starting item in one write. It returns
// the 1-based slot.
func (l *Lobby) Join(ctx context.Context, player, password string) (int, error) {
	var slot int
	var opErr error
	err := l.do(ctx, func() {
		events, next, err := engine.Apply(l.session, engine.Command{Type: engine.CmdJoin, PlayerID: player, Password: password})
		if err != nil {
			opErr = err
			return
		}
		if engine.ContainsEvent(events, engine.EvtPlayerJoined) {
			if l.observer != nil {
				if opErr = l.observer.ClaimSeat(ctx, l.id, player); opErr != nil {
					return
				}
			}
			grant := store.Grant{PlayerID: player, ItemName: l.startingItem}
			if opErr = l.commit(ctx, next, events, grant); opErr != nil {
				if l.observer != nil {
					l.observer.ReleaseSeat(l.id, player)
				}
				return
			}
		}
		slot = l.session.SlotOf(player) + 1
	})
	if err != nil {
		return 0, err
	}
	return slot, opErr
}

func (l *Lobby) Leave(ctx context.Context, player string) error {
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdLeave, PlayerID: player})
	})
	if err != nil {
		return err
	}
	return opErr
}

func (l *Lobby) StartGame(ctx context.Context, caller string) error {
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdStartGame, PlayerID: caller})
	})
	if err != nil {
		return err
	}
	return opErr
}

// PlaceBase marks player's base as placed and returns the session after the
// write, so callers see the transition to Active made by the last base.
func (l *Lobby) PlaceBase(ctx context.Context, player string) (engine.Session, error) {
	var s engine.Session
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdPlaceBase, PlayerID: player})
		s = l.session
	})
	if err != nil {
		return engine.Session{}, err
	}
	return s, opErr
}

// RecordAck counts an acknowledgement of the current wave. With a player id
// repeated acks from the same player count once.
func (l *Lobby) RecordAck(ctx context.Context, player string) (int, error) {
	var count int
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdRecordAck, PlayerID: player})
		count = l.session.AckCount
	})
	if err != nil {
		return 0, err
	}
	return count, opErr
}

func (l *Lobby) IsReady(ctx context.Context) (bool, error) {
	var ready bool
	if err := l.do(ctx, func() { ready = engine.Ready(l.session) }); err != nil {
		return false, err
	}
	return ready, nil
}

func (l *Lobby) AddScore(ctx context.Context, delta int) (int, error) {
	var total int
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdAddScore, Delta: delta})
		total = l.session.FinalScore
	})
	if err != nil {
		return 0, err
	}
	return total, opErr
}

// Kill ends the session whatever state it is in.
func (l *Lobby) Kill(ctx context.Context) error {
	var opErr error
	err := l.do(ctx, func() {
		_, opErr = l.apply(ctx, engine.Command{Type: engine.CmdEnd})
	})
	if err != nil {
		return err
	}
	return opErr
}

// InitialWave returns the session's wave, generating wave 1 on first use.
func (l *Lobby) InitialWave(ctx context.Context) (engine.Wave, error) {
	var w engine.Wave
	if err := l.do(ctx, func() { w = l.ensureWave().Clone() }); err != nil {
		return engine.Wave{}, err
	}
	return w, nil
}

func (l *Lobby) ReportKills(ctx context.Context, ids []string) (KillReport, error) {
	var rep KillReport
	err := l.do(ctx, func() {
		w := engine.ApplyKills(*l.ensureWave(), ids)
		l.wave = &w
		rep = KillReport{Wave: w.Clone(), Health: w.SharedHealth, IsGameOver: w.GameOver()}
	})
	if err != nil {
		return KillReport{}, err
	}
	return rep, nil
}

// AdvanceWave replaces a cleared wave with the next one. While zombies remain,
// or when another client already advanced past requested, the current wave is
// returned unchanged.
func (l *Lobby) AdvanceWave(ctx context.Context, requested int) (engine.Wave, error) {
	var out engine.Wave
	var opErr error
	err := l.do(ctx, func() {
		cur := l.ensureWave()
		next, advanced, err := l.spawner.Next(*cur, requested)
		if err != nil {
			opErr = err
			out = cur.Clone()
			return
		}
		if advanced {
			if _, opErr = l.apply(ctx, engine.Command{Type: engine.CmdResetAcks}); opErr != nil {
				out = cur.Clone()
				return
			}
			l.wave = &next
			l.log.Info("wave generated", zap.Int("wave", next.Number), zap.Int("zombies", len(next.Zombies)))
		}
		out = l.wave.Clone()
	})
	if err != nil {
		return engine.Wave{}, err
	}
	return out, opErr
}

// ReconcileHealth folds a client's view of shared health into the session.
// Reaching zero ends the game.
func (l *Lobby) ReconcileHealth(ctx context.Context, reported int) (HealthReport, error) {
	var rep HealthReport
	var opErr error
	err := l.do(ctx, func() {
		w := l.ensureWave()
		h := engine.Reconcile(w.SharedHealth, reported)
		if h == 0 && l.session.State != engine.StateEnded {
			if _, opErr = l.apply(ctx, engine.Command{Type: engine.CmdEnd}); opErr != nil {
				rep = HealthReport{Health: w.SharedHealth, IsGameOver: w.GameOver()}
				return
			}
		}
		w.SharedHealth = h
		rep = HealthReport{Health: h, IsGameOver: h == 0}
	})
	if err != nil {
		return HealthReport{}, err
	}
	return rep, opErr
}
