// voicetester exercises the voice engine from the command line: transcribe a
// recorded question, run the full ask loop, synthesize text, or page through
// stored history. Credentials come from the environment (.env supported).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/config"
	audiomodel "github.com/greasemonkey-ai/voicecore/internal/model/audio"
	conv "github.com/greasemonkey-ai/voicecore/internal/model/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
	"github.com/greasemonkey-ai/voicecore/internal/service/ask"
	"github.com/greasemonkey-ai/voicecore/internal/service/audio"
	"github.com/greasemonkey-ai/voicecore/internal/service/backend"
	"github.com/greasemonkey-ai/voicecore/internal/service/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/service/garage"
	"github.com/greasemonkey-ai/voicecore/internal/service/prefs"
	"github.com/greasemonkey-ai/voicecore/internal/service/session"
	"github.com/greasemonkey-ai/voicecore/internal/service/synth"
	"github.com/greasemonkey-ai/voicecore/internal/service/transcribe"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed to load")
	}

	mode := flag.String("mode", "", "test mode: ask, stt, tts or history")
	audioPath := flag.String("audio", "", "input WAV file (ask, stt)")
	text := flag.String("text", "", "input text (tts)")
	outPath := flag.String("out", "answer.wav", "output audio file (ask, tts)")
	vehicleID := flag.String("vehicle", "", "vehicle partition id (ask, history)")
	carMake := flag.String("make", "", "vehicle make for the ask context")
	carModel := flag.String("model", "", "vehicle model for the ask context")
	carYear := flag.Int("year", 0, "vehicle year for the ask context")
	carEngine := flag.String("engine", "", "vehicle engine for the ask context")
	timeout := flag.Duration("timeout", 90*time.Second, "overall request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "ask":
		runAsk(ctx, log, cfg, *audioPath, *outPath, *vehicleID, *carMake, *carModel, *carYear, *carEngine)
	case "stt":
		runSTT(ctx, log, cfg, *audioPath)
	case "tts":
		runTTS(ctx, log, cfg, *text, *outPath)
	case "history":
		runHistory(ctx, log, cfg, *vehicleID)
	default:
		flag.Usage()
		log.Fatal().Msg("pick a mode: -mode=ask, -mode=stt, -mode=tts or -mode=history")
	}
}

// fileRecorder replays a pre-recorded WAV file as if it were microphone
// capture, so the full session loop runs without audio hardware.
type fileRecorder struct {
	data []byte
}

func (r *fileRecorder) Start(context.Context) error { return nil }
func (r *fileRecorder) Stop() ([]byte, error)       { return r.data, nil }

// backendAsker adapts the HTTP client to the session's ask contract.
type backendAsker struct {
	client *backend.Client
}

func (a backendAsker) Ask(ctx context.Context, question string, v *vehicle.Vehicle, units vehicle.UnitPreferences) (session.AskReply, error) {
	res, err := a.client.Ask(ctx, question, v, units)
	if err != nil {
		return session.AskReply{}, err
	}
	reply := session.AskReply{Answer: res.Answer}
	// Relative audio paths from the API are not directly playable; let the
	// pipeline synthesize from the answer text instead.
	if strings.HasPrefix(res.AudioURL, "http://") || strings.HasPrefix(res.AudioURL, "https://") {
		reply.Audio = audiomodel.DirectRef(res.AudioURL)
	}
	return reply, nil
}

// directAsker adapts the LLM chain to the session's ask contract.
type directAsker struct {
	svc *ask.Service
}

func (a directAsker) Ask(ctx context.Context, question string, v *vehicle.Vehicle, units vehicle.UnitPreferences) (session.AskReply, error) {
	answer, err := a.svc.Ask(ctx, ask.Request{Question: question, Vehicle: v, Units: units})
	if err != nil {
		return session.AskReply{}, err
	}
	return session.AskReply{Answer: answer}, nil
}

func runAsk(ctx context.Context, log zerolog.Logger, cfg *config.Config, audioPath, outPath, vehicleID, carMake, carModel string, carYear int, carEngine string) {
	if audioPath == "" {
		log.Fatal().Msg("-mode=ask needs -audio pointing at a recorded WAV question")
	}
	recording, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", audioPath).Msg("could not read recording")
	}

	asker, transcriber, synthesizer, remote := buildCollaborators(ctx, log, cfg)

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", outPath).Msg("could not create output file")
	}
	defer out.Close()

	host, err := audio.NewResourceHost(log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start the resource host")
	}
	pipeline := audio.NewPipeline(
		synthesizer,
		audio.NewStreamPlayer(out, 30*time.Second),
		audio.NewWAVSink(out),
		host,
		audio.PipelineOptions{CacheCapacity: cfg.Session.AudioHistory},
		log, nil,
	)

	roster := buildRoster(vehicleID, carMake, carModel, carYear, carEngine)
	store := conversation.NewStore(remote, cfg.Session.PageSize, log, nil)
	prefStore := prefs.NewMemoryStore()
	if vehicleID != "" {
		if err := prefStore.Save(prefs.Preferences{VehicleID: vehicleID, PlaybackSpeed: 1.0, Autoplay: true}); err != nil {
			log.Fatal().Err(err).Msg("could not seed preferences")
		}
	}
	selector := garage.NewSelector(roster, prefStore, cfg.Session.SelectQuiet, nil, log)

	s, err := session.New(session.Deps{
		Recorder:    &fileRecorder{data: recording},
		Transcriber: transcriber,
		Asker:       asker,
		Pipeline:    pipeline,
		Store:       store,
		Remote:      remote,
		Selector:    selector,
		Prefs:       prefStore,
		Notify:      func(notice string) { log.Warn().Msg(notice) },
		Log:         log,
	}, session.Options{Throttle: cfg.Session.AskThrottle})
	if err != nil {
		log.Fatal().Err(err).Msg("could not build session")
	}
	s.Start(ctx)
	defer s.Close(context.Background())

	if err := s.StartRecording(ctx); err != nil {
		log.Fatal().Err(err).Msg("recording rejected")
	}
	msg, err := s.StopRecordingAndAsk(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("interaction failed")
	}

	fmt.Printf("Q: %s\nA: %s\n", msg.Question, msg.Answer)
	log.Info().Str("out", outPath).Msg("answer audio written")
}

func runSTT(ctx context.Context, log zerolog.Logger, cfg *config.Config, audioPath string) {
	if audioPath == "" {
		log.Fatal().Msg("-mode=stt needs -audio")
	}
	recording, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", audioPath).Msg("could not read recording")
	}

	transcriber := buildTranscriber(log, cfg)
	text, err := transcriber.Transcribe(ctx, recording, audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("transcription failed")
	}
	fmt.Println(text)
}

func runTTS(ctx context.Context, log zerolog.Logger, cfg *config.Config, text, outPath string) {
	if text == "" {
		log.Fatal().Msg("-mode=tts needs -text")
	}

	synthesizer := buildSynthesizer(log, cfg)
	data, mime, err := synthesizer.Synthesize(ctx, text)
	if err != nil {
		log.Fatal().Err(err).Msg("synthesis failed")
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outPath).Msg("could not write audio")
	}
	log.Info().Str("out", outPath).Str("mime", mime).Int("bytes", len(data)).Msg("audio written")
}

func runHistory(ctx context.Context, log zerolog.Logger, cfg *config.Config, vehicleID string) {
	if !cfg.Backend.Enabled() {
		log.Fatal().Msg("-mode=history needs GM_BACKEND_URL and GM_BACKEND_API_KEY")
	}
	client, err := backend.NewClient(cfg.Backend, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build backend client")
	}

	store := conversation.NewStore(client, cfg.Session.PageSize, log, nil)
	store.SetActive(vehicleID)
	if err := store.LoadInitial(ctx, vehicleID); err != nil {
		log.Fatal().Err(err).Msg("initial page load failed")
	}

	for {
		cursor := store.Cursor(vehicleID)
		fmt.Printf("-- loaded %d of %d --\n", cursor.LoadedCount, cursor.TotalCount)
		if !cursor.HasMore {
			break
		}
		if err := store.LoadMore(ctx, vehicleID); err != nil {
			log.Fatal().Err(err).Msg("page load failed")
		}
	}

	for _, msg := range store.Messages(vehicleID) {
		fmt.Printf("[%s] Q: %s\n    A: %s\n", msg.CreatedAt.Format(time.DateTime), msg.Question, msg.Answer)
	}
}

// buildCollaborators prefers the hosted backend when configured and falls
// back to the direct integrations otherwise.
func buildCollaborators(ctx context.Context, log zerolog.Logger, cfg *config.Config) (session.Asker, session.Transcriber, audio.Synthesizer, conversation.Remote) {
	if cfg.Backend.Enabled() {
		client, err := backend.NewClient(cfg.Backend, log)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build backend client")
		}
		return backendAsker{client: client}, client, synthAdapter{client}, client
	}

	askSvc, err := ask.NewService(ctx, cfg.AI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("no backend configured and the direct asker is unavailable")
	}
	return directAsker{svc: askSvc}, buildTranscriber(log, cfg), buildSynthesizer(log, cfg), newMemoryRemote()
}

// memoryRemote keeps history for the process lifetime when no backend is
// configured, so the session loop still has a durable-store stand-in.
type memoryRemote struct {
	mu   sync.Mutex
	rows map[string][]conv.Message
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{rows: make(map[string][]conv.Message)}
}

func (r *memoryRemote) Query(_ context.Context, vehicleID string, offset, limit int) (conv.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.rows[vehicleID]
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return conv.Page{
		Messages:   append([]conv.Message(nil), all[offset:end]...),
		TotalCount: len(all),
	}, nil
}

func (r *memoryRemote) Insert(_ context.Context, msg conv.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[msg.VehicleID] = append([]conv.Message{msg}, r.rows[msg.VehicleID]...)
	return nil
}

func (r *memoryRemote) DeletePartition(_ context.Context, vehicleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, vehicleID)
	return nil
}

func (r *memoryRemote) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[string][]conv.Message)
	return nil
}

func buildTranscriber(log zerolog.Logger, cfg *config.Config) session.Transcriber {
	svc, err := transcribe.NewWhisperService(cfg.OpenAI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("transcription unavailable")
	}
	return svc
}

func buildSynthesizer(log zerolog.Logger, cfg *config.Config) *synth.ElevenLabsService {
	svc, err := synth.NewElevenLabsService(cfg.ElevenLabs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("synthesis unavailable")
	}
	return svc
}

// synthAdapter lets the backend /tts endpoint serve as the pipeline's
// synthesizer.
type synthAdapter struct {
	client *backend.Client
}

func (a synthAdapter) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	return a.client.Synthesize(ctx, text)
}

func buildRoster(vehicleID, carMake, carModel string, carYear int, carEngine string) vehicle.Roster {
	if vehicleID == "" {
		return vehicle.NewMemoryRoster(nil)
	}
	if carMake == "" && carModel == "" {
		carMake, carModel = "Unknown", "Vehicle"
	}
	return vehicle.NewMemoryRoster([]vehicle.Vehicle{{
		ID:     vehicleID,
		Make:   carMake,
		Model:  carModel,
		Year:   carYear,
		Engine: carEngine,
	}})
}
