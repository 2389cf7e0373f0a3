package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "AI_PROVIDER", "STT_PROVIDER", "TTS_PROVIDER", "VAD_SILENCE_MS", "AI_MAX_TOKENS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Fatalf("unexpected store driver: %s", cfg.Store.Driver)
	}
	if cfg.AI.Provider != ProviderArk || cfg.AI.MaxTokens != 48 || cfg.AI.Temperature != 0.35 {
		t.Fatalf("unexpected AI defaults: %+v", cfg.AI)
	}
	if cfg.Speech.STTProvider != ProviderWhisper || cfg.Speech.TTSProvider != ProviderElevenLabs {
		t.Fatalf("unexpected speech providers: %s/%s", cfg.Speech.STTProvider, cfg.Speech.TTSProvider)
	}
	if cfg.Turn.Silence != 1800*time.Millisecond || cfg.Turn.RearmDelay != 500*time.Millisecond {
		t.Fatalf("unexpected turn defaults: %+v", cfg.Turn)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("metrics should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example.com")
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("LLAMA_API_KEY", "llama-key")
	t.Setenv("AI_MAX_TOKENS", "96")
	t.Setenv("VAD_SILENCE_MS", "1500")
	t.Setenv("VAD_THRESHOLD", "0.05")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.AI.Provider != ProviderOpenAI || !cfg.AI.Enabled() || cfg.AI.MaxTokens != 96 {
		t.Fatalf("unexpected AI config: %+v", cfg.AI)
	}
	if cfg.Turn.Silence != 1500*time.Millisecond || cfg.Turn.Threshold != 0.05 {
		t.Fatalf("unexpected turn config: %+v", cfg.Turn)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":           "80 80",
		"STORE_DRIVER":   "mongo",
		"AI_PROVIDER":    "gemini",
		"STT_PROVIDER":   "deepgram",
		"VAD_SILENCE_MS": "soon",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}
