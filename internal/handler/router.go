package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/rehearsal/backend/internal/handler/live"
	"github.com/zhouzirui/rehearsal/backend/internal/handler/session"
	"github.com/zhouzirui/rehearsal/backend/internal/handler/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/handler/voice"
	"github.com/zhouzirui/rehearsal/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/rehearsal/backend/internal/middleware"
	voiceModel "github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	sessionService "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	"github.com/zhouzirui/rehearsal/backend/pkg/utils"
)

// Deps are the services the HTTP surface is wired to. Speech, Live and Metrics may be nil.
type Deps struct {
	Sessions       sessionService.Store
	Voices         voiceModel.Store
	Exchanges      session.Exchanger
	Coach          session.Coach
	Speech         speech.SpeechService
	Live           *live.Handler
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		voice.New(deps.Voices).RegisterRoutes(api)
		session.New(deps.Sessions, deps.Exchanges, deps.Coach).RegisterRoutes(api)

		if deps.Live != nil {
			deps.Live.RegisterRoutes(api)
		}
		if deps.Speech != nil {
			speech.New(deps.Speech, deps.Voices).RegisterRoutes(api)
		}
	})

	return r
}
