// Command rehearse exercises the speech providers and the turn pipeline from the
// command line, reading 16-bit mono WAV recordings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/rehearsal/backend/internal/audio/feature"
	"github.com/zhouzirui/rehearsal/backend/internal/audio/wav"
	"github.com/zhouzirui/rehearsal/backend/internal/config"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
	speechmodel "github.com/zhouzirui/rehearsal/backend/internal/model/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/model/voice"
	"github.com/zhouzirui/rehearsal/backend/internal/service/ai"
	"github.com/zhouzirui/rehearsal/backend/internal/service/exchange"
	sessionsvc "github.com/zhouzirui/rehearsal/backend/internal/service/session"
	"github.com/zhouzirui/rehearsal/backend/internal/service/speech"
	"github.com/zhouzirui/rehearsal/backend/internal/turn"
)

// frameMillis matches the browser capture frame size.
const frameMillis = 20

type options struct {
	audioPath string
	text      string
	outPath   string
	language  string
	voice     string
	aiRole    string
	userRole  string
	context   string
	realtime  bool
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] could not load .env, using the process environment: %v", err)
	}

	mode := flag.String("mode", "", "one of: asr, tts, features, turn")
	timeout := flag.Duration("timeout", 90*time.Second, "overall timeout")
	var opts options
	flag.StringVar(&opts.audioPath, "audio", "", "input WAV file (asr, features, turn)")
	flag.StringVar(&opts.text, "text", "", "text to synthesize (tts)")
	flag.StringVar(&opts.outPath, "out", "", "output file (tts) or directory (turn)")
	flag.StringVar(&opts.language, "lang", "", "language code, defaults to the configured one")
	flag.StringVar(&opts.voice, "voice", voice.DefaultVoiceID, "voice id")
	flag.StringVar(&opts.aiRole, "ai-role", "Hiring manager", "AI role for -mode=turn")
	flag.StringVar(&opts.userRole, "user-role", "Candidate", "user role for -mode=turn")
	flag.StringVar(&opts.context, "context", "A first-round job interview.", "scenario context for -mode=turn")
	flag.BoolVar(&opts.realtime, "realtime", false, "pace frames at capture speed so the silence timeout can fire")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *mode == "features" {
		if err := runFeatures(opts); err != nil {
			log.Fatalf("features: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	svc := speech.NewServiceFromConfig(cfg.Speech)

	switch *mode {
	case "asr":
		err = runASR(ctx, svc, opts)
	case "tts":
		err = runTTS(ctx, svc, opts)
	case "turn":
		err = runTurn(ctx, cfg, svc, opts)
	default:
		flag.Usage()
		log.Fatal("choose a mode with -mode=asr|tts|features|turn")
	}
	if err != nil {
		log.Fatalf("%s: %v", *mode, err)
	}
}

func readWAV(path string) ([]byte, int, error) {
	if path == "" {
		return nil, 0, fmt.Errorf("-audio is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return wav.Decode(data)
}

func runASR(ctx context.Context, svc *speech.Service, opts options) error {
	pcm, rate, err := readWAV(opts.audioPath)
	if err != nil {
		return err
	}

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())
	log.Printf("transcribing %s (%d Hz, %d bytes) via %s", opts.audioPath, rate, len(pcm), svc.STTProvider())

	resp, err := svc.TranscribeClip(ctx, sessionID, speechmodel.Clip{Data: pcm, Format: "pcm", SampleRate: rate})
	if err != nil {
		return err
	}
	log.Printf("text=%q confidence=%.2f duration=%dms", resp.Text, resp.Confidence, resp.Duration)
	return nil
}

func runTTS(ctx context.Context, svc *speech.Service, opts options) error {
	if strings.TrimSpace(opts.text) == "" {
		return fmt.Errorf("-text is required")
	}

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())
	resp, err := svc.SynthesizeToBuffer(ctx, sessionID, opts.text, opts.voice, opts.language)
	if err != nil {
		return err
	}

	out := opts.outPath
	if out == "" {
		out = fmt.Sprintf("tts-output-%d%s", time.Now().Unix(), extensionFor(resp.ContentType))
	}
	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %d bytes (%s) to %s via %s", len(resp.AudioData), resp.ContentType, out, svc.TTSProvider())
	return nil
}

// runFeatures prints one metrics line per 100ms of audio.
func runFeatures(opts options) error {
	pcm, rate, err := readWAV(opts.audioPath)
	if err != nil {
		return err
	}

	est := feature.NewEstimator(rate)
	frameBytes := rate * frameMillis / 1000 * 2
	for i, start := 0, 0; start < len(pcm); i, start = i+1, start+frameBytes {
		end := min(start+frameBytes, len(pcm))
		m := est.Push(feature.DecodePCM16LE(pcm[start:end]))
		if i%5 == 4 || end == len(pcm) {
			fmt.Printf("%6dms pitch=%.2f tone=%.2f clarity=%.2f pace=%.2f\n",
				end/2*1000/rate, m.Pitch, m.Tone, m.Clarity, m.Pace)
		}
	}
	return nil
}

// runTurn replays a recording through the turn controller and the full exchange
// pipeline, writing synthesized segments to the output directory.
func runTurn(ctx context.Context, cfg *config.Config, svc *speech.Service, opts options) error {
	pcm, rate, err := readWAV(opts.audioPath)
	if err != nil {
		return err
	}

	llm, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("ai: %w", err)
	}

	outDir := opts.outPath
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	store := sessionsvc.NewMemoryStore()
	sess, err := store.Create(ctx, session.Scenario{
		Type:     "practice",
		UserRole: opts.userRole,
		AIRole:   opts.aiRole,
		Context:  opts.context,
	})
	if err != nil {
		return err
	}

	voices := voice.NewCatalog(voice.Seed(), voice.SeedSounds())
	exchanges := exchange.New(store, svc, svc, llm, voices, exchange.Config{
		Generation:   ai.Options{MaxTokens: cfg.AI.MaxTokens, Temperature: cfg.AI.Temperature},
		DefaultVoice: opts.voice,
		STTProvider:  svc.STTProvider(),
		TTSProvider:  svc.TTSProvider(),
		LLMProvider:  cfg.AI.Provider,
	}, nil)

	done := make(chan struct{}, 1)
	ctrl := turn.NewController(ctx, &fileResponder{exchanges: exchanges, sessionID: sess.ID, outDir: outDir},
		turn.Config{SampleRate: rate, Threshold: cfg.Turn.Threshold, Silence: cfg.Turn.Silence},
		turn.WithObserver(stateLogger{done: done}),
	)
	defer ctrl.Close()

	ctrl.StartRecording()
	frameBytes := rate * frameMillis / 1000 * 2
	for start := 0; start < len(pcm) && ctrl.State() == turn.UserSpeaking; start += frameBytes {
		ctrl.Feed(pcm[start:min(start+frameBytes, len(pcm))])
		if opts.realtime {
			time.Sleep(frameMillis * time.Millisecond)
		}
	}
	ctrl.StopRecording()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	final, err := store.Get(ctx, sess.ID)
	if err != nil {
		return err
	}
	transcript, err := sessionsvc.Export(final, sessionsvc.FormatText)
	if err != nil {
		return err
	}
	fmt.Println(string(transcript.Body))
	return nil
}

type stateLogger struct {
	done chan<- struct{}
}

func (l stateLogger) StateChanged(from, to turn.State) {
	log.Printf("[turn] %s -> %s", from, to)
	if to == turn.Idle && from != turn.Idle {
		select {
		case l.done <- struct{}{}:
		default:
		}
	}
}

func (l stateLogger) TurnFailed(err error) {
	log.Printf("[turn] failed: %v", err)
}

type fileResponder struct {
	exchanges *exchange.Service
	sessionID string
	outDir    string
}

func (r *fileResponder) Respond(ctx context.Context, clip speechmodel.Clip) (turn.Reply, error) {
	result, err := r.exchanges.RunTurn(ctx, r.sessionID, clip)
	if err != nil {
		return nil, err
	}
	log.Printf("user: %s", result.UserText)
	log.Printf("ai:   %s (cues=%v, textOnly=%v)", result.AIText, result.Cues, result.TextOnly)
	return &fileReply{segments: result.Segments, outDir: r.outDir}, nil
}

type fileReply struct {
	segments []exchange.Segment
	outDir   string
}

func (f *fileReply) Empty() bool { return len(f.segments) == 0 }

func (f *fileReply) Play(ctx context.Context) error {
	return exchange.Play(ctx, f.segments, f)
}

func (f *fileReply) PlaySegment(_ context.Context, index int, seg exchange.Segment) error {
	if seg.Asset != "" {
		log.Printf("segment %d: cue %q -> %s", index, seg.Text, seg.Asset)
		return nil
	}
	path := filepath.Join(f.outDir, fmt.Sprintf("segment-%02d%s", index, extensionFor(seg.ContentType)))
	if err := os.WriteFile(path, seg.Audio, 0o644); err != nil {
		return err
	}
	log.Printf("segment %d: %q -> %s", index, seg.Text, path)
	return nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "pcm"):
		return ".pcm"
	default:
		return ".mp3"
	}
}
