package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/handler"
	"github.com/zhouzirui/rehearsal/backend/internal/handler/live"
	"github.com/zhouzirui/rehearsal/backend/internal/metrics"
	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	"github.com/zhouzirui/rehearsal/backend/internal/service/ai"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	"github.com/zhouzirui/rehearsal/backend/internal/service/feedback"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	"github.com/zhouzirui/rehearsal/backend/internal/service/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open session store: %v", err)
	}
	defer closeStore()

	voices := loadVoices(cfg.Catalog)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("")
	}

	llm, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		log.Printf("warning: failed to initialize AI generator: %v", err)
		log.Println("continuing without AI replies - check the AI_PROVIDER credentials")
		llm = unavailableGenerator{err: err}
	} else {
		log.Printf("AI generator initialized (provider=%s)", providerName(cfg.AI.Provider))
	}

	speechService := speech.NewServiceFromConfig(cfg.Speech)
	log.Printf("Speech service initialized (stt=%s, tts=%s)", speechService.STTProvider(), speechService.TTSProvider())

	exchanges := exchange.New(store, speechService, speechService, llm, voices, exchange.Config{
		Generation:   ai.Options{MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature},
		DefaultVoice: voice.DefaultVoiceID,
		STTProvider:  speechService.STTProvider(),
		TTSProvider:  speechService.TTSProvider(),
		LLMProvider:  providerName(cfg.AI.Provider),
	}, m)

	coach := feedback.New(store, llm,
		ai.Options{MaxTokens: cfg.AI.FeedbackMaxTokens, Temperature: cfg.AI.Temperature},
		providerName(cfg.AI.Provider), m)

	liveHandler := live.New(store, exchanges, turn.Config{
		SampleRate: cfg.Turn.SampleRate,
		Threshold:  cfg.Turn.Threshold,
		Silence:    cfg.Turn.Silence,
		RearmDelay: cfg.Turn.RearmDelay,
	}, cfg.Server.AllowedOrigins, m)

	router := handler.NewRouter(handler.Deps{
		Sessions:       store,
		Voices:         voices,
		Exchanges:      exchanges,
		Coach:          coach,
		Speech:         speechService,
		Live:           liveHandler,
		Metrics:        m,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Rehearsal backend listening on %s", srv.Addr)
	if err := runServer(ctx, srv, liveHandler.Registry()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (sessionsvc.Store, func(), error) {
	if cfg.Driver != config.StorePostgres {
		log.Println("Using in-memory session store")
		return sessionsvc.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store := sessionsvc.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Println("Using PostgreSQL session store")
	return store, pool.Close, nil
}

func loadVoices(cfg config.CatalogConfig) *voice.Catalog {
	if cfg.Path == "" {
		return voice.NewCatalog(voice.Seed(), voice.SeedSounds())
	}
	catalog, err := voice.LoadCatalog(cfg.Path)
	if err != nil {
		log.Printf("warning: %v, falling back to the built-in voices", err)
		return voice.NewCatalog(voice.Seed(), voice.SeedSounds())
	}
	log.Printf("Loaded voice catalog from %s (%d voices)", cfg.Path, len(catalog.List()))
	return catalog
}

func providerName(p string) string {
	if p == "" {
		return config.ProviderArk
	}
	return p
}

// unavailableGenerator keeps the server up when no model is configured; every turn
// then fails with a generation error instead of the process refusing to start.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, ai.Prompt, ai.Options) (string, error) {
	return "", g.err
}

func runServer(ctx context.Context, srv *http.Server, conns *live.Registry) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Hijacked live sockets are not tracked by Shutdown.
		conns.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
