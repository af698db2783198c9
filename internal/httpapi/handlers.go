package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/nonetomourn-server/internal/assets"
	"github.com/DoyleJ11/nonetomourn-server/internal/engine"
	"github.com/DoyleJ11/nonetomourn-server/internal/hub"
	"github.com/DoyleJ11/nonetomourn-server/internal/lobby"
	"github.com/DoyleJ11/nonetomourn-server/pkg/types"
)

const statusSuccess = "Success"

var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindConflict:
		return http.StatusConflict
	case engine.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	body := types.ErrorResponse{Err: err.Error()}
	var status int
	if errors.Is(err, errBadRequest) {
		body.Code, body.Kind = "BadRequest", string(engine.KindValidation)
		status = http.StatusBadRequest
	} else {
		kind := engine.KindOf(err)
		body.Code, body.Kind = engine.Code(err), string(kind)
		status = statusFor(kind)
	}

	var ah *engine.AlreadyHostingError
	if errors.As(err, &ah) {
		body.GameID = ah.SessionID
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		body.Err = "internal error"
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body is allowed when optional.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func sessionID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("session %q: %w", raw, engine.ErrSessionNotFound)
	}
	return id, nil
}

func lobbyFor(h *hub.Hub, r *http.Request) (*lobby.Lobby, error) {
	id, err := sessionID(r)
	if err != nil {
		return nil, err
	}
	return h.Lobby(r.Context(), id)
}

// withLobby resolves the {id} path parameter before calling fn.
func withLobby(h *hub.Hub, log *zap.Logger, fn func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := lobbyFor(h, r)
		if err == nil {
			err = fn(w, r, lb)
		}
		if err != nil {
			writeError(w, log, err)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
		if err := decode(r, &req, false); err != nil {
			writeError(w, log, err)
			return
		}
		id, err := h.CreateSession(r.Context(), req.HostID, req.Name, req.Password)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, types.CreateSessionResponse{GameID: id})
	}
}

func ListSessions(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := h.ListActiveSessions(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, active)
	}
}

func HostCheck(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		sess, err := lb.Session(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.HostCheckResponse{
			Player1: sess.Slots[0],
			Player2: sess.Slots[1],
			Player3: sess.Slots[2],
			Player4: sess.Slots[3],
		})
		return nil
	})
}

func KillSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		if err := lb.Kill(r.Context()); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func JoinSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.JoinRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		slot, err := lb.Join(r.Context(), req.PlayerID, req.Password)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.JoinResponse{DidConnect: true, Slot: slot})
		return nil
	})
}

func LeaveSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		if err := lb.Leave(r.Context(), chi.URLParam(r, "playerId")); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func StartGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.StartGameRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		if err := lb.StartGame(r.Context(), req.HostID); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.StatusResponse{Status: statusSuccess})
		return nil
	})
}

func PlaceBase(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		sess, err := lb.PlaceBase(r.Context(), chi.URLParam(r, "playerId"))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.GameStateResponse{GameState: sess.State.String(), IsActive: sess.Active})
		return nil
	})
}

func GameState(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		sess, err := lb.Session(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.GameStateResponse{GameState: sess.State.String(), IsActive: sess.Active})
		return nil
	})
}

func InitialWave(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		wave, err := lb.InitialWave(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, wave)
		return nil
	})
}

func AdvanceWave(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.AdvanceWaveRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		wave, err := lb.AdvanceWave(r.Context(), req.WaveNumber)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, wave)
		return nil
	})
}

func ReportKills(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.KillsRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		rep, err := lb.ReportKills(r.Context(), req)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rep)
		return nil
	})
}

func RecordAck(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.AckRequest
		if err := decode(r, &req, true); err != nil {
			return err
		}
		count, err := lb.RecordAck(r.Context(), req.PlayerID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.AckResponse{AckCount: count})
		return nil
	})
}

func IsReady(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		ready, err := lb.IsReady(r.Context())
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.ReadyResponse{IsReady: ready})
		return nil
	})
}

func ReconcileHealth(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.HealthRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		if req.Health == nil {
			return fmt.Errorf("%w: health is required", errBadRequest)
		}
		rep, err := lb.ReconcileHealth(r.Context(), *req.Health)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rep)
		return nil
	})
}

func AddScore(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.ScoreRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		total, err := lb.AddScore(r.Context(), req.Delta)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, types.ScoreResponse{FinalScore: total})
		return nil
	})
}

func AddInventoryItem(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		var req types.AddItemRequest
		if err := decode(r, &req, false); err != nil {
			return err
		}
		if err := h.AddInventoryItem(r.Context(), lb.ID(), chi.URLParam(r, "playerId"), req.ItemName); err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, types.StatusResponse{Status: statusSuccess})
		return nil
	})
}

func Inventory(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return withLobby(h, log, func(w http.ResponseWriter, r *http.Request, lb *lobby.Lobby) error {
		items, err := h.Inventory(r.Context(), lb.ID(), chi.URLParam(r, "playerId"))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return nil
	})
}

func Leaderboard(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := h.Leaderboard(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func ItemAsset(a *assets.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := a.Load(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		w.Header().Set("Content-Type", asset.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(asset.Data)
	}
}
