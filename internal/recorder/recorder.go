package recorder

import (
	"os"
	"sync"
	"time"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/eventbus"
)

const (
	// defaultWarmupBytes is the minimum file size before any transition out
	// of IDLE is considered, so noise in the first RTP packets of a call
	// (comfort noise, line click) doesn't masquerade as speech.
	defaultWarmupBytes = 10 * 1024
	// historyLen bounds the recent-RMS ring buffer kept for diagnostics.
	historyLen = 10
)

// Format is the on-disk recording format written at Stop.
type Format string

const (
	FormatPCM Format = "pcm"
	FormatWAV Format = "wav"
)

// Options configures a Recorder.
type Options struct {
	// Path is the final recording path the caller wants on disk. When
	// Format is FormatWAV, the Recorder writes raw PCM to a sibling
	// ".pcm" file during the call (so the segmenter's byte arithmetic
	// always operates on headerless PCM) and wraps it in a RIFF/WAVE
	// header at Stop.
	Path                   string
	Format                 Format
	SampleRate             int
	Width                  audio.SampleWidth
	SilenceAmplitudeThresh float64
	SilenceDurationMs      int64
	MinPollSpacing         time.Duration
	WindowSeconds          float64
	WarmupBytes            int64
	Clock                  func() time.Time
}

// Recorder watches Path (a growing PCM file) and drives the speech
// segmentation state machine described by Advance. Poll is the IO-bound
// entry point a media-thread tick loop calls; Advance is the pure state
// transition function, exercised directly by tests with synthetic RMS
// sequences.
type Recorder struct {
	mu sync.Mutex

	finalPath   string
	path        string // raw-PCM path the segmenter and sink both operate on
	format      Format
	sampleRate  int
	width       audio.SampleWidth
	threshold   float64
	silenceMs   int64
	minSpacing  time.Duration
	windowSecs  float64
	warmupBytes int64
	clock       func() time.Time

	startedAt    time.Time
	lastPollAt   time.Time
	paused       bool
	stopped      bool
	state        State
	speechStart  int64
	silenceStart int64

	sink *os.File

	history  []float64
	segments []Segment

	events *eventbus.Scoped
	callID string
	logger commons.Logger
}

// New creates a Recorder in the Idle state. Zero-valued Options fields
// fall back to spec defaults (500ms poll spacing, 10KB warm-up, 1s
// analysis window).
func New(o Options, events *eventbus.Scoped, callID string, logger commons.Logger) *Recorder {
	if o.MinPollSpacing == 0 {
		o.MinPollSpacing = 500 * time.Millisecond
	}
	if o.WindowSeconds == 0 {
		o.WindowSeconds = 1.0
	}
	if o.WarmupBytes == 0 {
		o.WarmupBytes = defaultWarmupBytes
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Format == "" {
		o.Format = FormatPCM
	}

	rawPath := o.Path
	if o.Format == FormatWAV {
		rawPath = rawPCMSiblingPath(o.Path)
	}

	return &Recorder{
		finalPath:   o.Path,
		path:        rawPath,
		format:      o.Format,
		sampleRate:  o.SampleRate,
		width:       o.Width,
		threshold:   o.SilenceAmplitudeThresh,
		silenceMs:   o.SilenceDurationMs,
		minSpacing:  o.MinPollSpacing,
		windowSecs:  o.WindowSeconds,
		warmupBytes: o.WarmupBytes,
		clock:       o.Clock,
		state:       Idle,
		events:      events,
		callID:      callID,
		logger:      logger,
	}
}

func rawPCMSiblingPath(path string) string {
	if n := len(path); n > 4 && path[n-4:] == ".wav" {
		return path[:n-4] + ".pcm"
	}
	return path + ".pcm"
}

// Start opens the raw-PCM sink for writing and marks the recording start
// time, which elapsed-millisecond arguments to Advance are measured
// relative to. Emits RECORDING_STARTED.
func (r *Recorder) Start() error {
	r.mu.Lock()
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.sink = f
	r.startedAt = r.clock()
	r.lastPollAt = time.Time{}
	r.mu.Unlock()

	r.emit(eventbus.RecordingStarted, 0)
	return nil
}

// Write appends audio bytes arriving from the call's media path to the
// sink. It is a no-op while paused, per the "stop transmitting call audio
// into the sink" semantics of Pause.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused || r.sink == nil {
		return len(p), nil
	}
	return r.sink.Write(p)
}

// Pause suspends writes to the sink without resetting any state-machine
// timers; the elapsed-ms clock keeps flowing through a pause (spec: time
// is not frozen while paused).
func (r *Recorder) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
	r.emit(eventbus.RecordingPaused, 0)
}

// Resume undoes Pause.
func (r *Recorder) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	r.emit(eventbus.RecordingResumed, 0)
}

// Stop flushes and closes the sink, finalizes a WAV header when configured
// for FormatWAV, and emits RECORDING_STOPPED. An I/O error is logged and
// swallowed; in-memory state is cleared regardless so the owning Call can
// be released.
func (r *Recorder) Stop() {
	r.mu.Lock()
	sink := r.sink
	r.sink = nil
	r.stopped = true
	format := r.format
	rawPath, finalPath := r.path, r.finalPath
	sampleRate, width := r.sampleRate, r.width
	r.mu.Unlock()

	if sink != nil {
		if err := sink.Close(); err != nil && r.logger != nil {
			r.logger.Warnw("recorder: close sink failed", "call_id", r.callID, "error", err)
		}
	}

	if format == FormatWAV {
		if err := finalizeWAV(rawPath, finalPath, sampleRate, width); err != nil && r.logger != nil {
			r.logger.Warnw("recorder: wav finalize failed", "call_id", r.callID, "error", err)
		}
	}

	r.emit(eventbus.RecordingStopped, 0)
}

func finalizeWAV(rawPath, finalPath string, sampleRate int, width audio.SampleWidth) error {
	pcm, err := os.ReadFile(rawPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(finalPath, audio.WriteWAV(pcm, sampleRate, width), 0o644); err != nil {
		return err
	}
	return os.Remove(rawPath)
}

// State returns the current segmentation state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Segments returns a copy of all segments completed so far.
func (r *Recorder) Segments() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Poll is the tick-driven entry point: it enforces the minimum
// inter-analysis spacing, reads the tail RMS of the growing file, and
// advances the state machine. It is a no-op while paused or before the
// minimum spacing has elapsed, and returns false in either case.
func (r *Recorder) Poll() bool {
	r.mu.Lock()
	if r.paused {
		r.mu.Unlock()
		return false
	}
	now := r.clock()
	if !r.lastPollAt.IsZero() && now.Sub(r.lastPollAt) < r.minSpacing {
		r.mu.Unlock()
		return false
	}
	path, sampleRate, width, windowSecs := r.path, r.sampleRate, r.width, r.windowSecs
	startedAt := r.startedAt
	r.mu.Unlock()

	rms := audio.RMSOfTail(path, sampleRate, width, windowSecs)
	elapsedMs := now.Sub(startedAt).Milliseconds()

	r.mu.Lock()
	r.lastPollAt = now
	r.mu.Unlock()

	// Warm-up: ignore everything until the file holds enough bytes that a
	// momentary line transient at call setup can't be mistaken for speech.
	if !r.pastWarmup(path) {
		return true
	}

	r.Advance(elapsedMs, rms)
	return true
}

func (r *Recorder) pastWarmup(path string) bool {
	info, err := statSize(path)
	if err != nil {
		return false
	}
	return info >= r.warmupBytes
}

// Advance is the pure state transition function. nowMs is elapsed
// milliseconds since Start; rms is the most recently measured tail level.
// It emits events on the Scoped bus and appends a Segment exactly once per
// completed utterance.
func (r *Recorder) Advance(nowMs int64, rms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushHistory(rms)
	above := rms >= r.threshold

	switch r.state {
	case Idle:
		if above {
			r.state = InSpeech
			r.speechStart = nowMs
			r.emit(eventbus.SpeechDetected, nowMs)
		}

	case InSpeech:
		if !above {
			r.state = InSilencePending
			r.silenceStart = nowMs
		}

	case InSilencePending:
		if above {
			// False alarm: the dip didn't last. Return to InSpeech without
			// emitting anything; the original SPEECH_DETECTED still stands.
			r.state = InSpeech
			r.silenceStart = 0
			return
		}
		if nowMs-r.silenceStart >= r.silenceMs {
			r.state = InSilence
			r.emit(eventbus.SilenceDetected, nowMs)

			seg := newSegment(r.speechStart, r.silenceStart, r.sampleRate, r.width)
			r.segments = append(r.segments, seg)
			r.emitSegment(seg)
		}

	case InSilence:
		if above {
			r.state = InSpeech
			r.speechStart = nowMs
			r.emit(eventbus.SilenceEnded, nowMs)
		}
	}
}

func (r *Recorder) pushHistory(rms float64) {
	r.history = append(r.history, rms)
	if len(r.history) > historyLen {
		r.history = r.history[len(r.history)-historyLen:]
	}
}

func (r *Recorder) emit(tag eventbus.Tag, nowMs int64) {
	if r.events == nil {
		return
	}
	r.events.Emit(tag, map[string]interface{}{
		"call_id": r.callID,
		"at_ms":   nowMs,
	})
}

func (r *Recorder) emitSegment(seg Segment) {
	if r.events == nil {
		return
	}
	r.events.Emit(eventbus.SpeechSegmentComplete, map[string]interface{}{
		"call_id":        r.callID,
		"segment":        seg,
		"path":           r.path,
		"start_ms":       seg.StartMs,
		"end_ms":         seg.EndMs,
		"duration_ms":    seg.DurationMs,
		"pcm_start_byte": seg.PCMStartByte,
		"pcm_end_byte":   seg.PCMEndByte,
	})
}
