package hub

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/lobby"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
)

type HubMsg interface{ isHubMsg() }

type reservation struct {
	existing int64
	ok       bool
}

// claimSeat seats Player in session ID in the index. ID 0 marks a session
// whose row is still being written, so two concurrent creates for the same
// host cannot both succeed.
type claimSeat struct {
	Player string
	ID     int64
	Reply  chan reservation
}

type releaseSeat struct {
	Player string
	ID     int64
}

type registerLobby struct {
	Lobby   *lobby.Lobby
	Name    string
	Players []string
	Reply   chan struct{}
}

type GetLobby struct {
	ID    int64
	Reply chan *lobby.Lobby
}

type ListActive struct {
	Reply chan map[string]int64
}

type sessionEnded struct {
	ID int64
}

type RemoveLobby struct {
	ID int64
}

type ShutdownHub struct{}

func (claimSeat) isHubMsg()     {}
func (releaseSeat) isHubMsg()   {}
func (registerLobby) isHubMsg() {}
func (GetLobby) isHubMsg()      {}
func (ListActive) isHubMsg()    {}
func (sessionEnded) isHubMsg()  {}
func (RemoveLobby) isHubMsg()   {}
func (ShutdownHub) isHubMsg()   {}

type Config struct {
	Rules        engine.WaveRules
	StartingItem string
	PasswordCost int
	// EndedTTL is how long an ended session stays queryable. Zero keeps it
	// until shutdown.
	EndedTTL time.Duration
	Log      *zap.Logger
}

type entry struct {
	lobby  *lobby.Lobby
	name   string
	active bool
}

// Hub is the session registry. Its loop only touches in-memory maps; store
// I/O happens on the caller's goroutine or inside the session's lobby.
//
// A player sits in at most one active session. Host promotion only ever picks
// a player already seated in that session, so the same index also keeps each
// host down to one active session.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[int64]*entry
	seats   map[string]int64 // player -> active session id, 0 while a create is in flight
	store   store.Store
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[int64]*entry),
		seats:   make(map[string]int64),
		store:   st,
		cfg:     cfg,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case claimSeat:
				if cur, taken := h.seats[msg.Player]; taken && (msg.ID == 0 || cur != msg.ID) {
					msg.Reply <- reservation{existing: cur}
					break
				}
				h.seats[msg.Player] = msg.ID
				msg.Reply <- reservation{ok: true}

			case releaseSeat:
				if cur, taken := h.seats[msg.Player]; taken && cur == msg.ID {
					delete(h.seats, msg.Player)
				}

			case registerLobby:
				id := msg.Lobby.ID()
				h.lobbies[id] = &entry{lobby: msg.Lobby, name: msg.Name, active: true}
				for _, p := range msg.Players {
					if cur, taken := h.seats[p]; !taken || cur == 0 {
						h.seats[p] = id
					}
				}
				msg.Reply <- struct{}{}

			case GetLobby:
				if e := h.lobbies[msg.ID]; e != nil {
					msg.Reply <- e.lobby
					break
				}
				msg.Reply <- nil

			case ListActive:
				out := make(map[string]int64)
				for id, e := range h.lobbies {
					if e.active {
						out[e.name] = id
					}
				}
				msg.Reply <- out

			case sessionEnded:
				e := h.lobbies[msg.ID]
				if e == nil || !e.active {
					break
				}
				e.active = false
				for p, id := range h.seats {
					if id == msg.ID {
						delete(h.seats, p)
					}
				}
				if h.cfg.EndedTTL > 0 {
					id := msg.ID
					time.AfterFunc(h.cfg.EndedTTL, func() { _ = h.send(context.Background(), RemoveLobby{ID: id}) })
				}

			case RemoveLobby:
				e := h.lobbies[msg.ID]
				if e == nil || e.active {
					break
				}
				e.lobby.Close()
				delete(h.lobbies, msg.ID)
				h.log.Debug("session removed", zap.Int64("session_id", msg.ID))

			case ShutdownHub:
				h.closeAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) closeAll() {
	for _, e := range h.lobbies {
		e.lobby.Close()
	}
	clear(h.lobbies)
	clear(h.seats)
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub stopped: %w", h.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx, hubCtx context.Context, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-hubCtx.Done():
		return zero, fmt.Errorf("hub stopped: %w", hubCtx.Err())
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) claim(ctx context.Context, player string, id int64) (reservation, error) {
	reply := make(chan reservation, 1)
	if err := h.send(ctx, claimSeat{Player: player, ID: id, Reply: reply}); err != nil {
		return reservation{}, err
	}
	return recv(ctx, h.ctx, reply)
}

// ClaimSeat, ReleaseSeat, HostChanged and SessionEnded implement
// lobby.Observer.
func (h *Hub) ClaimSeat(ctx context.Context, id int64, player string) error {
	res, err := h.claim(ctx, player, id)
	if err != nil {
		return err
	}
	if !res.ok {
		return &engine.AlreadyHostingError{SessionID: res.existing}
	}
	return nil
}

func (h *Hub) ReleaseSeat(id int64, player string) {
	_ = h.send(context.Background(), releaseSeat{Player: player, ID: id})
}

func (h *Hub) HostChanged(id int64, host string) {
	h.log.Info("host promoted", zap.Int64("session_id", id), zap.String("host", host))
}

func (h *Hub) SessionEnded(id int64) {
	_ = h.send(context.Background(), sessionEnded{ID: id})
}

func (h *Hub) lobbyConfig() lobby.Config {
	return lobby.Config{
		Store:        h.store,
		Rules:        h.cfg.Rules,
		StartingItem: h.cfg.StartingItem,
		Rng:          rand.New(rand.NewSource(rand.Int63())),
		Observer:     h,
		Log:          h.log,
	}
}

func (h *Hub) register(ctx context.Context, sess engine.Session) error {
	lb := lobby.NewLobby(h.ctx, sess, h.lobbyConfig())
	reply := make(chan struct{}, 1)
	if err := h.send(ctx, registerLobby{Lobby: lb, Name: sess.Name, Players: sess.Players(), Reply: reply}); err != nil {
		lb.Close()
		return err
	}
	_, err := recv(ctx, h.ctx, reply)
	return err
}

// CreateSession opens a lobby hosted by host and grants the host the starting
// item in the same write. If host already hosts or sits in an active session
// the error is an *engine.AlreadyHostingError carrying that session's id.
func (h *Hub) CreateSession(ctx context.Context, host, name, password string) (int64, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return 0, engine.ErrInvalidPlayer
	}
	if strings.TrimSpace(name) == "" {
		name = host
	}
	hash, err := engine.HashPassword(password, h.cfg.PasswordCost)
	if err != nil {
		return 0, err
	}

	if err := h.ClaimSeat(ctx, 0, host); err != nil {
		return 0, err
	}

	sess := engine.NewSession(host, name, hash)
	if err := h.store.SaveSession(ctx, &sess, store.Grant{PlayerID: host, ItemName: h.cfg.StartingItem}); err != nil {
		h.ReleaseSeat(0, host)
		return 0, fmt.Errorf("create session: %w", err)
	}
	if err := h.register(ctx, sess); err != nil {
		h.ReleaseSeat(0, host)
		return 0, err
	}
	h.log.Info("session created",
		zap.Int64("session_id", sess.ID),
		zap.String("host", host),
		zap.String("name", name),
	)
	return sess.ID, nil
}

// Restore starts a lobby for every active session in the store. Wave state
// is not persisted, so restored sessions generate a fresh wave on demand.
func (h *Hub) Restore(ctx context.Context) (int, error) {
	sessions, err := h.store.LoadActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if err := h.register(ctx, sess); err != nil {
			return 0, err
		}
	}
	h.log.Info("sessions restored", zap.Int("count", len(sessions)))
	return len(sessions), nil
}

// Lobby resolves a session id to its lobby.
func (h *Hub) Lobby(ctx context.Context, id int64) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	lb, err := recv(ctx, h.ctx, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, fmt.Errorf("session %d: %w", id, engine.ErrSessionNotFound)
	}
	return lb, nil
}

func (h *Hub) Session(ctx context.Context, id int64) (engine.Session, error) {
	lb, err := h.Lobby(ctx, id)
	if err != nil {
		return engine.Session{}, err
	}
	return lb.Session(ctx)
}

// ListActiveSessions maps session name to id for every active session.
func (h *Hub) ListActiveSessions(ctx context.Context) (map[string]int64, error) {
	reply := make(chan map[string]int64, 1)
	if err := h.send(ctx, ListActive{Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h.ctx, reply)
}

func (h *Hub) KillSession(ctx context.Context, id int64) error {
	lb, err := h.Lobby(ctx, id)
	if err != nil {
		return err
	}
	return lb.Kill(ctx)
}

func (h *Hub) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	return h.store.Leaderboard(ctx)
}

func (h *Hub) AddInventoryItem(ctx context.Context, id int64, player, itemName string) error {
	return h.store.AddInventoryItem(ctx, id, player, itemName)
}

func (h *Hub) Inventory(ctx context.Context, id int64, player string) ([]store.Item, error) {
	return h.store.Inventory(ctx, id, player)
}

// Shutdown stops every lobby and the hub loop.
func (h *Hub) Shutdown() {
	_ = h.send(context.Background(), ShutdownHub{})
}
