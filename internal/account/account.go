// Package account implements the Account: the container of active Calls
// that handles incoming-call notifications from the SIP library and
// exposes the Command-Queue-routed play-to-call primitive.
package account

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/callmodel"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/player"
	"github.com/chris17453/echomatrix/internal/queue"
	"github.com/chris17453/echomatrix/internal/recorder"
	"github.com/chris17453/echomatrix/internal/sipiface"
)

// Options configures recording/playback behavior shared by every call the
// Account answers.
type Options struct {
	RecordingDir              string
	AudioFormat               recorder.Format
	SampleRate                int
	Width                     audio.SampleWidth
	SilenceAmplitudeThreshold float64
	SilenceDurationMs         int64
	Clock                     func() time.Time

	// WelcomeWavPath, if set, is played WelcomeDelayMs after a call is
	// confirmed; WelcomeMessageDurationCapMs (if set) cuts it off if it is
	// still playing after that long.
	WelcomeWavPath              string
	WelcomeDelayMs              int64
	WelcomeMessageDurationCapMs int64

	// DisconnectWavPath, if set, is played when MaxCallLengthSec is
	// reached, immediately before the call is force-disconnected.
	DisconnectWavPath string
	MaxCallLengthSec  int64
}

// callEntry bundles a Call with the media objects the Account manages on
// its behalf; only the media thread touches these fields.
type callEntry struct {
	call     *callmodel.Call
	recorder *recorder.Recorder
	player   *player.Manager
	sink     io.WriteCloser
}

// Account is the container of active calls for one SIP Agent. All methods
// are intended to run on the media thread only, matching the invariant
// that Call/Recorder/Player objects are exclusively owned by the Account.
type Account struct {
	mu      sync.Mutex
	lib     sipiface.Library
	handle  sipiface.AccountHandle
	calls   map[string]*callEntry
	order   []string // call ids in arrival order, for the "first active call" default
	opts    Options
	events  *eventbus.Scoped
	queue   *queue.CommandQueue
	players *player.Manager
	logger  commons.Logger
}

// New creates an Account bound to lib/handle. players is the shared
// playback manager the Agent's tick loop polls for completions.
func New(lib sipiface.Library, handle sipiface.AccountHandle, opts Options, events *eventbus.Scoped, q *queue.CommandQueue, players *player.Manager, logger commons.Logger) *Account {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Account{
		lib:     lib,
		handle:  handle,
		calls:   make(map[string]*callEntry),
		opts:    opts,
		events:  events,
		queue:   q,
		players: players,
		logger:  logger,
	}
}

// OnIncomingCall implements the sipiface.Callbacks half of call setup: it
// constructs a Call, appends it to the Account's list, and answers
// immediately with a 200 response.
func (a *Account) OnIncomingCall(call sipiface.CallHandle, remoteURI string) {
	id := fmt.Sprintf("%v", call)

	c := callmodel.New(id, remoteURI)
	c.State = callmodel.StateIncoming

	a.mu.Lock()
	a.calls[id] = &callEntry{call: c}
	a.order = append(a.order, id)
	a.mu.Unlock()

	if err := a.lib.Answer(call, 200); err != nil {
		a.logger.Errorw("account: answer failed", "call_id", id, "error", err)
	}
}

// OnCallState implements the confirmed/disconnected halves of §4.6: on
// CONFIRMED it starts the Call's Recorder and emits CALL_ANSWERED; on
// DISCONNECTED it stops and detaches Recorder/Player, emits
// CALL_DISCONNECTED, writes the transcript, and removes the Call.
func (a *Account) OnCallState(call sipiface.CallHandle, state sipiface.CallState) {
	id := fmt.Sprintf("%v", call)

	switch state {
	case sipiface.CallStateConfirmed:
		a.onConfirmed(call, id)
	case sipiface.CallStateDisconnected:
		a.onDisconnected(call, id)
	}
}

// OnCallMediaState is invoked once media is attached; no lifecycle action
// is required beyond what OnCallState(CONFIRMED) already did.
func (a *Account) OnCallMediaState(call sipiface.CallHandle) {}

func (a *Account) onConfirmed(call sipiface.CallHandle, id string) {
	a.mu.Lock()
	entry, ok := a.calls[id]
	a.mu.Unlock()
	if !ok {
		return
	}

	entry.call.State = callmodel.StateConnected
	entry.call.StartTime = a.opts.Clock()

	a.events.Emit(eventbus.CallAnswered, map[string]interface{}{"call_id": id, "remote_uri": entry.call.RemoteURI})

	path := recordingPath(a.opts.RecordingDir, id, a.opts.AudioFormat, entry.call.StartTime)
	entry.call.RecordingPath = path

	rec := recorder.New(recorder.Options{
		Path:                   path,
		Format:                 a.opts.AudioFormat,
		SampleRate:             a.opts.SampleRate,
		Width:                  a.opts.Width,
		SilenceAmplitudeThresh: a.opts.SilenceAmplitudeThreshold,
		SilenceDurationMs:      a.opts.SilenceDurationMs,
		Clock:                  a.opts.Clock,
	}, a.events, id, a.logger)

	if err := rec.Start(); err != nil {
		a.logger.Errorw("account: recorder start failed", "call_id", id, "error", err)
		return
	}

	sink, err := a.lib.AttachRecorderSink(call)
	if err != nil {
		a.logger.Errorw("account: attach recorder sink failed", "call_id", id, "error", err)
	} else if pipeable, ok := sink.(interface{ PipeTo(io.Writer) }); ok {
		pipeable.PipeTo(rec)
	}

	a.mu.Lock()
	entry.recorder = rec
	entry.sink = sink
	a.mu.Unlock()

	if a.opts.WelcomeWavPath != "" {
		go a.scheduleWelcome(id)
	}
	if a.opts.MaxCallLengthSec > 0 {
		go a.scheduleMaxCallLength(call, id)
	}
}

// scheduleWelcome replaces the source's sleep-then-play welcome message
// with a library-scheduled timer: it waits WelcomeDelayMs, then enqueues
// the welcome WAV like any other play_wav command, then (if configured)
// waits WelcomeMessageDurationCapMs more and supersedes it if it is still
// playing.
func (a *Account) scheduleWelcome(id string) {
	_, done := a.lib.ScheduleTimer(time.Duration(a.opts.WelcomeDelayMs) * time.Millisecond)
	<-done

	if a.Call(id) == nil {
		return
	}
	if err := a.PlayWavToCall(a.opts.WelcomeWavPath, id); err != nil {
		a.logger.Warnw("account: welcome playback failed", "call_id", id, "error", err)
		return
	}

	if a.opts.WelcomeMessageDurationCapMs <= 0 {
		return
	}
	_, capDone := a.lib.ScheduleTimer(time.Duration(a.opts.WelcomeMessageDurationCapMs) * time.Millisecond)
	<-capDone
	a.players.Stop(id)
}

// scheduleMaxCallLength force-disconnects a call that runs past
// MaxCallLengthSec, playing DisconnectWavPath first if configured.
// sipiface.Library exposes no explicit hangup/BYE primitive, so the forced
// teardown is driven the same way a library-detected far-end hangup is:
// through OnCallState(DISCONNECTED).
func (a *Account) scheduleMaxCallLength(call sipiface.CallHandle, id string) {
	_, done := a.lib.ScheduleTimer(time.Duration(a.opts.MaxCallLengthSec) * time.Second)
	<-done

	if a.Call(id) == nil {
		return
	}
	a.logger.Infow("account: max call length reached", "call_id", id)

	if a.opts.DisconnectWavPath != "" {
		if err := a.PlayWavToCall(a.opts.DisconnectWavPath, id); err != nil {
			a.logger.Warnw("account: disconnect playback failed", "call_id", id, "error", err)
		} else if d, err := audio.WAVDuration(a.opts.DisconnectWavPath); err == nil {
			time.Sleep(d)
		}
	}

	a.OnCallState(call, sipiface.CallStateDisconnected)
}

func (a *Account) onDisconnected(call sipiface.CallHandle, id string) {
	a.mu.Lock()
	entry, ok := a.calls[id]
	delete(a.calls, id)
	for i, cid := range a.order {
		if cid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	if entry.recorder != nil {
		entry.recorder.Stop()
	}
	if entry.sink != nil {
		entry.sink.Close()
	}
	if a.players != nil {
		a.players.Stop(id)
	}
	if err := a.lib.Detach(call); err != nil {
		a.logger.Warnw("account: detach failed", "call_id", id, "error", err)
	}

	entry.call.State = callmodel.StateDisconnected
	entry.call.EndTime = a.opts.Clock()

	if a.opts.RecordingDir != "" {
		if _, err := entry.call.WriteTranscript(a.opts.RecordingDir); err != nil {
			a.logger.Warnw("account: write transcript failed", "call_id", id, "error", err)
		}
	}

	a.events.Emit(eventbus.CallDisconnected, map[string]interface{}{
		"call_id":  id,
		"duration": entry.call.EndTime.Sub(entry.call.StartTime).Seconds(),
	})
}

// PlayWavToCall is the single permissible cross-thread entry point into
// media: it enqueues a play_wav command rather than invoking the Player
// directly. callID may be empty, in which case the first active call is
// targeted.
func (a *Account) PlayWavToCall(path, callID string) error {
	a.mu.Lock()
	if callID == "" {
		if len(a.order) == 0 {
			a.mu.Unlock()
			return errs.New(errs.NoActiveMedia, "account: no active call to play to")
		}
		callID = a.order[0]
	}
	_, ok := a.calls[callID]
	a.mu.Unlock()
	if !ok {
		return errs.New(errs.NoActiveMedia, fmt.Sprintf("account: unknown call %s", callID))
	}

	return a.queue.Submit(queue.Command{Kind: queue.PlayWav, CallID: callID, FilePath: path})
}

// Call returns the Call for id, or nil if it is not currently active.
func (a *Account) Call(id string) *callmodel.Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.calls[id]
	if !ok {
		return nil
	}
	return entry.call
}

// Recorder returns the Recorder for id, or nil.
func (a *Account) Recorder(id string) *recorder.Recorder {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.calls[id]
	if !ok {
		return nil
	}
	return entry.recorder
}

// ActiveCallIDs returns every call id currently tracked, in arrival order.
func (a *Account) ActiveCallIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// PollRecorders calls Poll on every active call's Recorder; the Agent tick
// loop calls this once per tick.
func (a *Account) PollRecorders() {
	a.mu.Lock()
	recs := make([]*recorder.Recorder, 0, len(a.calls))
	for _, e := range a.calls {
		if e.recorder != nil {
			recs = append(recs, e.recorder)
		}
	}
	a.mu.Unlock()
	for _, r := range recs {
		r.Poll()
	}
}

func recordingPath(dir, callID string, format recorder.Format, at time.Time) string {
	ext := "wav"
	if format == recorder.FormatPCM {
		ext = "pcm"
	}
	return fmt.Sprintf("%s/%s_%s.%s", dir, at.Format("20060102-150405"), callID, ext)
}
