package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/nonetomourn-server/internal/assets"
	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/hub"
	"github.com/DoyleJ11/nonetomourn-server/internal/lobby"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/memstore"
	"github.com/DoyleJ11/nonetomourn-server/pkg/types"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Pistol", AssetPath: "pistol.png"}))
	require.NoError(t, st.EnsureItem(ctx, store.Item{Name: "Shotgun", AssetPath: "shotgun.png"}))

	h := hub.NewHub(ctx, st, hub.Config{
		Rules:        engine.DefaultWaveRules(),
		StartingItem: "Pistol",
		PasswordCost: bcrypt.MinCost,
	})
	t.Cleanup(h.Shutdown)

	files := fstest.MapFS{"pistol.png": {Data: []byte("png")}}
	return SetupRoutes(h, assets.New(files, st), nil)
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler, host, name, password string) int64 {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/sessions", types.CreateSessionRequest{HostID: host, Name: name, Password: password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[types.CreateSessionResponse](t, rec).GameID
}

func TestHealthz(t *testing.T) {
	rec := call(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateJoinAndHostCheck(t *testing.T) {
	h := newTestRouter(t)

	id := createSession(t, h, "alice", "Camp1", "pw")
	assert.Equal(t, int64(1), id)
	base := fmt.Sprintf("/sessions/%d", id)

	rec := call(t, h, http.MethodPost, base+"/players", types.JoinRequest{PlayerID: "bob", Password: "bad"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "WrongPassword", decodeBody[types.ErrorResponse](t, rec).Code)

	rec = call(t, h, http.MethodPost, base+"/players", types.JoinRequest{PlayerID: "bob", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.JoinResponse{DidConnect: true, Slot: 2}, decodeBody[types.JoinResponse](t, rec))

	rec = call(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.HostCheckResponse{Player1: "alice", Player2: "bob"}, decodeBody[types.HostCheckResponse](t, rec))

	rec = call(t, h, http.MethodGet, base+"/inventory/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decodeBody[struct {
		Items []store.Item `json:"items"`
	}](t, rec)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Pistol", inv.Items[0].Name)

	rec = call(t, h, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"Camp1": id}, decodeBody[map[string]int64](t, rec))
}

func TestCreateWhileHosting(t *testing.T) {
	h := newTestRouter(t)
	id := createSession(t, h, "alice", "Camp1", "")

	rec := call(t, h, http.MethodPost, "/sessions", types.CreateSessionRequest{HostID: "alice", Name: "Camp2"})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[types.ErrorResponse](t, rec)
	assert.Equal(t, "AlreadyHosting", body.Code)
	assert.Equal(t, id, body.GameID)
}

func TestErrorStatuses(t *testing.T) {
	h := newTestRouter(t)
	id := createSession(t, h, "alice", "Camp1", "")
	base := fmt.Sprintf("/sessions/%d", id)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/sessions/42", nil, http.StatusNotFound, "SessionNotFound"},
		{"non numeric id", http.MethodGet, "/sessions/abc/state", nil, http.StatusNotFound, "SessionNotFound"},
		{"malformed body", http.MethodPost, base + "/players", "{", http.StatusBadRequest, "BadRequest"},
		{"missing player id", http.MethodPost, base + "/players", types.JoinRequest{}, http.StatusBadRequest, "InvalidPlayer"},
		{"start by non host", http.MethodPost, base + "/start", types.StartGameRequest{HostID: "bob"}, http.StatusConflict, "NotHost"},
		{"base before start", http.MethodPost, base + "/bases/alice", nil, http.StatusBadRequest, "WrongState"},
		{"health missing", http.MethodPost, base + "/health", map[string]any{}, http.StatusBadRequest, "BadRequest"},
		{"unknown item grant", http.MethodPost, base + "/inventory/alice", types.AddItemRequest{ItemName: "Rifle"}, http.StatusNotFound, "ItemNotFound"},
		{"unknown asset", http.MethodGet, "/items/Rifle/asset", nil, http.StatusNotFound, "ItemNotFound"},
		{"missing asset file", http.MethodGet, "/items/Shotgun/asset", nil, http.StatusInternalServerError, "IOError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[types.ErrorResponse](t, rec).Code)
		})
	}
}

func TestGameFlow(t *testing.T) {
	h := newTestRouter(t)
	id := createSession(t, h, "alice", "Camp1", "")
	base := fmt.Sprintf("/sessions/%d", id)

	rec := call(t, h, http.MethodPost, base+"/players", types.JoinRequest{PlayerID: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodPost, base+"/start", types.StartGameRequest{HostID: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Success", decodeBody[types.StatusResponse](t, rec).Status)

	rec = call(t, h, http.MethodPost, base+"/bases/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BasePlacement", decodeBody[types.GameStateResponse](t, rec).GameState)

	rec = call(t, h, http.MethodPost, base+"/bases/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	placed := decodeBody[types.GameStateResponse](t, rec)
	assert.Equal(t, types.GameStateResponse{GameState: "Active", IsActive: true}, placed)

	rec = call(t, h, http.MethodGet, base+"/state", nil)
	assert.Equal(t, placed, decodeBody[types.GameStateResponse](t, rec))

	rec = call(t, h, http.MethodGet, base+"/wave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wave := decodeBody[engine.Wave](t, rec)
	assert.Equal(t, 1, wave.Number)
	require.Len(t, wave.Zombies, engine.InitialZombieCount)

	// Not cleared yet, so advancing returns the same wave whatever number is sent.
	for _, n := range []int{1, 2} {
		rec = call(t, h, http.MethodPost, base+"/wave/advance", types.AdvanceWaveRequest{WaveNumber: n})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		same := decodeBody[engine.Wave](t, rec)
		assert.Equal(t, 1, same.Number)
		assert.Len(t, same.Zombies, engine.InitialZombieCount)
	}

	ids := make([]string, 0, len(wave.Zombies))
	for zid := range wave.Zombies {
		ids = append(ids, zid)
	}
	rec = call(t, h, http.MethodPost, base+"/wave/kills", ids)
	require.Equal(t, http.StatusOK, rec.Code)
	kills := decodeBody[lobby.KillReport](t, rec)
	assert.Empty(t, kills.Wave.Zombies)
	assert.False(t, kills.IsGameOver)

	rec = call(t, h, http.MethodPost, base+"/wave/advance", types.AdvanceWaveRequest{WaveNumber: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "StaleWave", decodeBody[types.ErrorResponse](t, rec).Code)

	for _, p := range []string{"alice", "bob", "alice"} {
		rec = call(t, h, http.MethodPost, base+"/acks", types.AckRequest{PlayerID: p})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, decodeBody[types.AckResponse](t, rec).AckCount)

	rec = call(t, h, http.MethodGet, base+"/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[types.ReadyResponse](t, rec).IsReady)

	rec = call(t, h, http.MethodPost, base+"/wave/advance", types.AdvanceWaveRequest{WaveNumber: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[engine.Wave](t, rec)
	assert.Equal(t, 2, next.Number)
	assert.Len(t, next.Zombies, engine.DefaultWaveRules().Size(1))

	rec = call(t, h, http.MethodGet, base+"/ready", nil)
	assert.False(t, decodeBody[types.ReadyResponse](t, rec).IsReady)

	rec = call(t, h, http.MethodPost, base+"/score", types.ScoreRequest{Delta: 40})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 40, decodeBody[types.ScoreResponse](t, rec).FinalScore)

	zero := 0
	rec = call(t, h, http.MethodPost, base+"/health", types.HealthRequest{Health: &zero})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lobby.HealthReport{Health: 0, IsGameOver: true}, decodeBody[lobby.HealthReport](t, rec))

	rec = call(t, h, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.GameStateResponse{GameState: "Ended", IsActive: false}, decodeBody[types.GameStateResponse](t, rec))

	rec = call(t, h, http.MethodGet, "/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody[[]store.LeaderboardRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 40, rows[0].Score)
	assert.Equal(t, []string{"alice", "bob"}, rows[0].Players)
}

func TestAnonymousAckAndLeave(t *testing.T) {
	h := newTestRouter(t)
	id := createSession(t, h, "alice", "Camp1", "")
	base := fmt.Sprintf("/sessions/%d", id)

	rec := call(t, h, http.MethodPost, base+"/acks", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[types.AckResponse](t, rec).AckCount)

	rec = call(t, h, http.MethodDelete, base+"/players/alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[types.GameStateResponse](t, rec).IsActive)
}

func TestKillSessionAndAsset(t *testing.T) {
	h := newTestRouter(t)
	id := createSession(t, h, "alice", "Camp1", "")

	rec := call(t, h, http.MethodDelete, fmt.Sprintf("/sessions/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, http.MethodGet, "/sessions", nil)
	assert.Empty(t, decodeBody[map[string]int64](t, rec))

	rec = call(t, h, http.MethodGet, "/items/pistol/asset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png", rec.Body.String())
}
