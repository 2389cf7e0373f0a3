package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Provider names accepted by the *_PROVIDER variables.
const (
	ProviderArk        = "ark"
	ProviderOpenAI     = "openai"
	ProviderWhisper    = "whisper"
	ProviderElevenLabs = "elevenlabs"
	ProviderVolcengine = "volcengine"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config aggregates every configuration group of the service.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	AI      AIConfig
	Speech  SpeechConfig
	Turn    TurnConfig
	Catalog CatalogConfig
	Metrics MetricsConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	metrics, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Store:   store,
		AI:      ai,
		Speech:  speech,
		Turn:    turn,
		Catalog: CatalogConfig{Path: strings.TrimSpace(os.Getenv("VOICE_CATALOG_PATH"))},
		Metrics: MetricsConfig{Enabled: metrics},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var origins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as is.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver      string
	DatabaseURL string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMemory))
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	switch driver {
	case StoreMemory:
	case StorePostgres:
		if dsn == "" {
			return StoreConfig{}, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}
	return StoreConfig{Driver: driver, DatabaseURL: dsn}, nil
}

// AIConfig describes the language model backends.
type AIConfig struct {
	Provider string

	// Ark (Volcengine) settings.
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	TopP      *float64

	OpenAI OpenAIConfig

	Temperature       float64
	MaxTokens         int
	FeedbackMaxTokens int
}

// OpenAIConfig points at any OpenAI-compatible chat endpoint, the Llama API included.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled reports whether the selected provider has credentials.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAI.APIKey != "" && c.OpenAI.Model != ""
	default:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
}

// NewChatModel builds the Ark chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and ARK_MODEL, or an AK/SK pair")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	feedbackTokens, err := parseOptionalIntEnv("AI_FEEDBACK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:  provider,
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		TopP:      topP,
		OpenAI: OpenAIConfig{
			APIKey:  getEnvOrDefault("LLAMA_API_KEY", strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))),
			BaseURL: getEnvOrDefault("OPENAI_BASE_URL", "https://api.llama.com/compat/v1/"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "Llama-4-Maverick-17B-128E-Instruct-FP8"),
		},
		Temperature:       0.35,
		MaxTokens:         48,
		FeedbackMaxTokens: 400,
	}
	if temperature != nil {
		cfg.Temperature = *temperature
	}
	if maxTokens != nil && *maxTokens > 0 {
		cfg.MaxTokens = *maxTokens
	}
	if feedbackTokens != nil && *feedbackTokens > 0 {
		cfg.FeedbackMaxTokens = *feedbackTokens
	}
	return cfg, nil
}

// SpeechConfig describes the transcription and synthesis backends.
type SpeechConfig struct {
	STTProvider string
	TTSProvider string

	Whisper    WhisperConfig
	ElevenLabs ElevenLabsConfig
	Volcengine VolcengineConfig

	Timeout time.Duration
}

// WhisperConfig targets the OpenAI transcription endpoint.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// ElevenLabsConfig targets the ElevenLabs REST synthesis endpoint.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
	VoiceID string
}

// VolcengineConfig targets the Volcengine (openspeech) WebSocket APIs.
type VolcengineConfig struct {
	AppID          string
	AccessToken    string
	Region         string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
}

// Enabled reports whether Volcengine credentials are present.
func (c VolcengineConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	stt := strings.ToLower(getEnvOrDefault("STT_PROVIDER", ProviderWhisper))
	if stt != ProviderWhisper && stt != ProviderVolcengine {
		return SpeechConfig{}, fmt.Errorf("invalid STT_PROVIDER value %q", stt)
	}
	tts := strings.ToLower(getEnvOrDefault("TTS_PROVIDER", ProviderElevenLabs))
	if tts != ProviderElevenLabs && tts != ProviderVolcengine {
		return SpeechConfig{}, fmt.Errorf("invalid TTS_PROVIDER value %q", tts)
	}

	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		STTProvider: stt,
		TTSProvider: tts,
		Whisper: WhisperConfig{
			APIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL:  getEnvOrDefault("WHISPER_BASE_URL", ""),
			Model:    getEnvOrDefault("WHISPER_MODEL", "whisper-1"),
			Language: getEnvOrDefault("WHISPER_LANGUAGE", "en"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			BaseURL: getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
			ModelID: getEnvOrDefault("ELEVENLABS_MODEL_ID", ""),
			VoiceID: getEnvOrDefault("ELEVENLABS_VOICE_ID", ""),
		},
		Volcengine: VolcengineConfig{
			AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
			AccessToken:    strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN")),
			Region:         getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
			ConcurrentMode: concurrent,
			ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
			TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
			TTSSpeed:       ttsSpeed,
			TTSVolume:      ttsVolume,
			TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		},
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// TurnConfig tunes the live turn controller.
type TurnConfig struct {
	SampleRate int
	Threshold  float64
	Silence    time.Duration
	RearmDelay time.Duration
}

func loadTurnConfig() (TurnConfig, error) {
	cfg := TurnConfig{
		SampleRate: 16000,
		Threshold:  0.02,
		Silence:    1800 * time.Millisecond,
		RearmDelay: 500 * time.Millisecond,
	}

	rate, err := parseOptionalIntEnv("TURN_SAMPLE_RATE")
	if err != nil {
		return TurnConfig{}, err
	}
	if rate != nil {
		if *rate <= 0 {
			return TurnConfig{}, fmt.Errorf("invalid TURN_SAMPLE_RATE value %d", *rate)
		}
		cfg.SampleRate = *rate
	}

	threshold, err := parseOptionalFloatEnv("VAD_THRESHOLD")
	if err != nil {
		return TurnConfig{}, err
	}
	if threshold != nil {
		cfg.Threshold = *threshold
	}

	silence, err := parseOptionalIntEnv("VAD_SILENCE_MS")
	if err != nil {
		return TurnConfig{}, err
	}
	if silence != nil {
		cfg.Silence = time.Duration(*silence) * time.Millisecond
	}

	rearm, err := parseOptionalIntEnv("TURN_REARM_MS")
	if err != nil {
		return TurnConfig{}, err
	}
	if rearm != nil {
		cfg.RearmDelay = time.Duration(*rearm) * time.Millisecond
	}

	return cfg, nil
}

// CatalogConfig points at an optional YAML voice catalog.
type CatalogConfig struct {
	Path string
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
