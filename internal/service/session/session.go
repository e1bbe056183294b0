// Package session orchestrates one voice interaction at a time: record,
// transcribe, ask, remember, speak. A session owns its pipeline, detector
// and caches; its lifetime runs from login to logout.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greasemonkey-ai/voicecore/internal/metrics"
	audiomodel "github.com/greasemonkey-ai/voicecore/internal/model/audio"
	conv "github.com/greasemonkey-ai/voicecore/internal/model/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/model/vehicle"
	"github.com/greasemonkey-ai/voicecore/internal/service/audio"
	"github.com/greasemonkey-ai/voicecore/internal/service/conversation"
	"github.com/greasemonkey-ai/voicecore/internal/service/garage"
	"github.com/greasemonkey-ai/voicecore/internal/service/prefs"
	"github.com/greasemonkey-ai/voicecore/internal/service/wakeword"
)

// DefaultAskThrottle is the minimum gap between submissions. Rapid repeated
// taps would otherwise file duplicate questions.
const DefaultAskThrottle = time.Second

// State is the per-session interaction stage.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateAsking
	StatePlayingAudio
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateAsking:
		return "asking"
	case StatePlayingAudio:
		return "playing_audio"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ListeningMode selects how a recording is initiated. Exactly one mode is
// active at a time.
type ListeningMode int

const (
	ModePushToTalk ListeningMode = iota
	ModeWakeWord
)

// Recorder captures microphone audio. Start fails when capture is not
// permitted; Stop returns everything captured since Start.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
}

// Transcriber converts a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// AskReply is one answered question. Audio may be empty, a direct URL, or a
// deferred synthesis reference.
type AskReply struct {
	Answer string
	Audio  audiomodel.Ref
}

// Asker answers one question given the vehicle context.
type Asker interface {
	Ask(ctx context.Context, question string, v *vehicle.Vehicle, units vehicle.UnitPreferences) (AskReply, error)
}

// Deps are the collaborators one session is built from.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Asker       Asker
	Pipeline    *audio.Pipeline
	Store       *conversation.Store
	Remote      conversation.Remote
	Selector    *garage.Selector
	Prefs       prefs.Store
	Detector    *wakeword.Detector // nil when the platform has no frame source
	Notify      func(notice string)
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

// Options tune a session.
type Options struct {
	Throttle time.Duration
	Units    vehicle.UnitPreferences
}

// Session drives the record→transcribe→ask→play loop.
type Session struct {
	deps  Deps
	units vehicle.UnitPreferences
	log   zerolog.Logger
	met   *metrics.Metrics

	throttle time.Duration

	mu         sync.Mutex
	state      State
	mode       ListeningMode
	wakeActive bool
	settings   prefs.Preferences
	lastAsk    time.Time
	closed     bool
}

func New(deps Deps, opts Options) (*Session, error) {
	switch {
	case deps.Recorder == nil:
		return nil, fmt.Errorf("session requires a recorder")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("session requires a transcriber")
	case deps.Asker == nil:
		return nil, fmt.Errorf("session requires an asker")
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("session requires an audio pipeline")
	case deps.Store == nil:
		return nil, fmt.Errorf("session requires a conversation store")
	case deps.Selector == nil:
		return nil, fmt.Errorf("session requires a vehicle selector")
	case deps.Prefs == nil:
		return nil, fmt.Errorf("session requires a preference store")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultAskThrottle
	}
	if opts.Units == (vehicle.UnitPreferences{}) {
		opts.Units = vehicle.DefaultUnitPreferences()
	}

	settings, err := deps.Prefs.Load()
	if err != nil {
		deps.Log.Warn().Err(err).Msg("preferences unreadable, starting from defaults")
		settings = prefs.Default()
	}

	sess := &Session{
		deps:     deps,
		units:    opts.Units,
		log:      deps.Log.With().Str("component", "session").Logger(),
		met:      deps.Metrics,
		throttle: opts.Throttle,
		state:    StateIdle,
		mode:     ModePushToTalk,
		settings: settings,
	}
	deps.Selector.OnSettle(sess.onVehicleSettled)
	return sess, nil
}

// onVehicleSettled runs on every settled selection, including the restore at
// startup. Retargeting the store before the fetch arms the stale-result
// discard for anything still in flight against the previous vehicle.
func (s *Session) onVehicleSettled(vehicleID string) {
	s.deps.Store.SetActive(vehicleID)
	if err := s.deps.Store.LoadInitial(context.Background(), vehicleID); err != nil {
		s.log.Warn().Err(err).Str("vehicle", vehicleID).Msg("history load for settled vehicle failed")
	}
}

// Start restores the persisted vehicle selection and listening mode. The
// selector settles immediately, which retargets the store and loads the
// restored partition before the first question.
func (s *Session) Start(ctx context.Context) {
	s.deps.Selector.Restore()
	s.deps.Pipeline.SetSpeed(s.playbackSpeed())

	if s.settingsSnapshot().WakeWord {
		if err := s.EnableWakeWord(); err != nil {
			s.log.Warn().Err(err).Msg("wake word unavailable at startup")
		}
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() ListeningMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// EnableWakeWord switches to hands-free listening. If the detector is
// missing or refuses to start, the session stays in push-to-talk and raises
// a notice instead of silently listening to nothing.
func (s *Session) EnableWakeWord() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.mode == ModeWakeWord {
		s.mu.Unlock()
		return nil
	}
	detector := s.deps.Detector
	s.mu.Unlock()

	var startErr error
	if detector == nil {
		startErr = fmt.Errorf("wake word detection is not available on this device")
	} else {
		startErr = detector.Start(s.onWake)
	}

	if startErr != nil {
		s.notify("Hands-free listening is unavailable, staying on push-to-talk.")
		s.persistWakeWord(false)
		return startErr
	}

	s.mu.Lock()
	s.mode = ModeWakeWord
	s.wakeActive = true
	s.mu.Unlock()
	s.persistWakeWord(true)
	s.log.Info().Msg("wake word listening enabled")
	return nil
}

// EnablePushToTalk switches back to explicit recording control.
func (s *Session) EnablePushToTalk() {
	s.mu.Lock()
	wasActive := s.wakeActive
	s.mode = ModePushToTalk
	s.wakeActive = false
	s.mu.Unlock()

	if wasActive && s.deps.Detector != nil {
		s.deps.Detector.Close()
	}
	s.persistWakeWord(false)
}

// FeedAmbient forwards one captured window to the wake detector. The UI's
// capture loop calls this continuously while hands-free mode is on; in
// push-to-talk mode the window is dropped.
func (s *Session) FeedAmbient(samples []int16) {
	s.mu.Lock()
	active := s.wakeActive
	s.mu.Unlock()
	if !active || s.deps.Detector == nil {
		return
	}
	if _, err := s.deps.Detector.Feed(samples); err != nil {
		s.log.Debug().Err(err).Msg("dropped ambient window")
	}
}

// onWake runs on the capture goroutine when the detector fires.
func (s *Session) onWake() {
	if err := s.StartRecording(context.Background()); err != nil {
		s.log.Debug().Err(err).Msg("wake trigger ignored")
	}
}

// StartRecording begins capturing a question. Only one interaction runs at
// a time.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.state != StateIdle {
		current := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start recording while %s", current)
	}
	s.state = StateRecording
	s.mu.Unlock()

	if err := s.deps.Recorder.Start(ctx); err != nil {
		s.setState(StateIdle)
		return &PermissionError{Err: err}
	}
	return nil
}

// StopRecordingAndAsk finishes the capture and drives it through
// transcription, the ask collaborator, history and autoplay. Every failure
// returns the session to idle with a typed error; none of them corrupts
// already-loaded history.
func (s *Session) StopRecordingAndAsk(ctx context.Context) (conv.Message, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		current := s.state
		s.mu.Unlock()
		return conv.Message{}, fmt.Errorf("no recording in progress (session is %s)", current)
	}

	captured, err := s.deps.Recorder.Stop()
	if err != nil || len(captured) == 0 {
		s.state = StateIdle
		s.mu.Unlock()
		s.rearm()
		return conv.Message{}, &EmptyRecordingError{}
	}

	if wait := s.throttle - time.Since(s.lastAsk); !s.lastAsk.IsZero() && wait > 0 {
		s.state = StateIdle
		s.mu.Unlock()
		s.met.AsksThrottled.Inc()
		s.rearm()
		return conv.Message{}, &ThrottleError{Wait: wait}
	}
	s.state = StateTranscribing
	s.mu.Unlock()

	transcript, err := s.deps.Transcriber.Transcribe(ctx, captured, "question.wav")
	if err != nil || transcript == "" {
		s.met.TranscriptionFailures.Inc()
		s.setState(StateIdle)
		s.rearm()
		if err == nil {
			err = fmt.Errorf("empty transcript")
		}
		return conv.Message{}, &TranscriptionError{Err: err}
	}
	s.met.Transcriptions.Inc()

	s.mu.Lock()
	s.state = StateAsking
	s.lastAsk = time.Now()
	s.mu.Unlock()

	var vptr *vehicle.Vehicle
	partition := conv.PartitionNone
	if v, ok := s.deps.Selector.ActiveVehicle(); ok {
		vv := v
		vptr = &vv
		partition = v.ID
	}

	s.met.AsksSubmitted.Inc()
	askStart := time.Now()
	reply, err := s.deps.Asker.Ask(ctx, transcript, vptr, s.units)
	if err != nil {
		s.met.AskFailures.Inc()
		s.setState(StateIdle)
		s.rearm()
		return conv.Message{}, &AskError{Err: err}
	}
	s.met.AskDuration.Observe(time.Since(askStart).Seconds())

	msg := conv.Message{
		ID:        uuid.NewString(),
		VehicleID: partition,
		Question:  transcript,
		Answer:    reply.Answer,
		CreatedAt: time.Now().UTC(),
	}
	if !reply.Audio.Deferred() {
		msg.AudioURL = reply.Audio.URL
	}

	// Durable write first so a reload cannot lose the exchange; the local
	// append is deduplicated by id if the row also arrives via a fetch.
	if s.deps.Remote != nil {
		if err := s.deps.Remote.Insert(ctx, msg); err != nil {
			s.log.Warn().Err(err).Msg("history insert failed, keeping message locally")
		}
	}
	s.deps.Store.Append(msg)

	s.playAnswer(ctx, msg, reply)

	s.setState(StateIdle)
	s.rearm()
	return msg, nil
}

// playAnswer autoplays the answer when enabled and a vehicle is active.
// Audio trouble degrades to text-only with a notice; the ask itself has
// already succeeded.
func (s *Session) playAnswer(ctx context.Context, msg conv.Message, reply AskReply) {
	if !s.settingsSnapshot().Autoplay || msg.VehicleID == conv.PartitionNone {
		return
	}

	ref := reply.Audio
	if ref.Empty() {
		ref = audiomodel.DeferredRef(reply.Answer)
	}

	s.setState(StatePlayingAudio)
	url, err := s.deps.Pipeline.Resolve(ctx, ref)
	if err != nil {
		s.log.Warn().Err(err).Msg("answer audio unavailable")
		s.notify("Audio is unavailable for this answer.")
		return
	}
	if err := s.deps.Pipeline.Play(ctx, url); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("answer playback failed")
		s.notify("Could not play the answer audio.")
	}
}

// SelectVehicle routes a selector toggle through the debounce window.
func (s *Session) SelectVehicle(vehicleID string) {
	s.deps.Selector.Select(vehicleID)
}

// SetAutoplay persists whether answers start playing on arrival.
func (s *Session) SetAutoplay(enabled bool) {
	s.mu.Lock()
	s.settings.Autoplay = enabled
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
}

// SetPlaybackSpeed adjusts and persists the playback rate.
func (s *Session) SetPlaybackSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	s.deps.Pipeline.SetSpeed(speed)
	s.mu.Lock()
	s.settings.PlaybackSpeed = speed
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
}

// ClearHistory wipes the conversation for the active vehicle, remotely first
// so a failed delete leaves the local list intact.
func (s *Session) ClearHistory(ctx context.Context) error {
	partition := conv.PartitionNone
	if v, ok := s.deps.Selector.ActiveVehicle(); ok {
		partition = v.ID
	}
	if s.deps.Remote != nil {
		if err := s.deps.Remote.DeletePartition(ctx, partition); err != nil {
			return fmt.Errorf("deleting stored history: %w", err)
		}
	}
	s.deps.Store.Clear(partition)
	return nil
}

// ClearAllHistory wipes every partition.
func (s *Session) ClearAllHistory(ctx context.Context) error {
	if s.deps.Remote != nil {
		if err := s.deps.Remote.DeleteAll(ctx); err != nil {
			return fmt.Errorf("deleting stored history: %w", err)
		}
	}
	s.deps.Store.ClearAll()
	return nil
}

// Close tears the session down: detector, playback, hosted resources. The
// session cannot be reused afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasActive := s.wakeActive
	s.wakeActive = false
	s.mu.Unlock()

	if wasActive && s.deps.Detector != nil {
		s.deps.Detector.Close()
	}
	s.deps.Selector.Close()
	return s.deps.Pipeline.Close(ctx)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// rearm lets the wake detector fire again once the interaction is over.
func (s *Session) rearm() {
	s.mu.Lock()
	active := s.wakeActive
	s.mu.Unlock()
	if active && s.deps.Detector != nil {
		s.deps.Detector.Rearm()
	}
}

func (s *Session) settingsSnapshot() prefs.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) playbackSpeed() float64 {
	speed := s.settingsSnapshot().PlaybackSpeed
	if speed <= 0 {
		speed = 1.0
	}
	return speed
}

func (s *Session) persistWakeWord(enabled bool) {
	s.mu.Lock()
	s.settings.WakeWord = enabled
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
}

func (s *Session) persist(settings prefs.Preferences) {
	// The selector owns the persisted vehicle id; never clobber it with the
	// snapshot taken at session start.
	if current, err := s.deps.Prefs.Load(); err == nil {
		settings.VehicleID = current.VehicleID
	}
	if err := s.deps.Prefs.Save(settings); err != nil {
		s.log.Warn().Err(err).Msg("could not persist preferences")
	}
}

func (s *Session) notify(notice string) {
	if s.deps.Notify != nil {
		s.deps.Notify(notice)
	}
}
