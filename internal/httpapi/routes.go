package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/nonetomourn-server/internal/assets"
	"github.com/DoyleJ11/nonetomourn-server/internal/hub"
)

func SetupRoutes(h *hub.Hub, a *assets.Server, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/leaderboard", Leaderboard(h, log))
	r.Get("/items/{name}/asset", ItemAsset(a, log))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", CreateSession(h, log))
		r.Get("/", ListSessions(h, log))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", HostCheck(h, log))
			r.Delete("/", KillSession(h, log))

			r.Post("/players", JoinSession(h, log))
			r.Delete("/players/{playerId}", LeaveSession(h, log))
			r.Post("/start", StartGame(h, log))
			r.Post("/bases/{playerId}", PlaceBase(h, log))
			r.Get("/state", GameState(h, log))

			r.Get("/wave", InitialWave(h, log))
			r.Post("/wave/advance", AdvanceWave(h, log))
			r.Post("/wave/kills", ReportKills(h, log))
			r.Post("/acks", RecordAck(h, log))
			r.Get("/ready", IsReady(h, log))
			r.Post("/health", ReconcileHealth(h, log))
			r.Post("/score", AddScore(h, log))

			r.Post("/inventory/{playerId}", AddInventoryItem(h, log))
			r.Get("/inventory/{playerId}", Inventory(h, log))
		})
	})
	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
