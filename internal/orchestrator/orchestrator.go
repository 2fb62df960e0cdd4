// Package orchestrator implements the Dialogue Orchestrator: the
// consumer of completed speech segments that drives transcription, reply
// generation, and speech synthesis, then hands playback back to the media
// thread through the Command Queue.
//
// The Orchestrator never touches the media thread directly. Every effect
// it has on a call lands through Account.PlayWavToCall (which itself only
// submits to the Command Queue) or through the Event Bus.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chris17453/echomatrix/collab"
	"github.com/chris17453/echomatrix/internal/account"
	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/callmodel"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/recorder"
)

// Options configures the Orchestrator's collaborators and concurrency
// posture.
type Options struct {
	Transcriber collab.Transcriber
	Replier     collab.Replier
	Synthesizer collab.Synthesizer

	PromptName string // defaults to "generic"
	Voice      string
	Model      string

	SampleRate int // PCM format of the recordings the Recorder writes
	Width      audio.SampleWidth

	// Workers bounds how many segments are processed concurrently across
	// all calls, so one slow collaborator call cannot starve the others.
	// Defaults to 4.
	Workers int

	Clock func() time.Time
}

// Orchestrator subscribes to SPEECH_SEGMENT_COMPLETE and drives the
// transcribe -> reply -> synthesize -> play pipeline for each segment on a
// bounded worker pool.
type Orchestrator struct {
	account *account.Account
	events  *eventbus.Scoped
	opts    Options
	logger  commons.Logger

	mu      sync.Mutex
	group   *errgroup.Group
	unsub   func()
}

// New creates an Orchestrator bound to acct and events. Call Start to begin
// consuming segments and Stop to wait for in-flight work to drain.
func New(acct *account.Account, events *eventbus.Scoped, opts Options, logger commons.Logger) *Orchestrator {
	if opts.PromptName == "" {
		opts.PromptName = collab.GenericTemplate.Name
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	group := &errgroup.Group{}
	group.SetLimit(opts.Workers)

	return &Orchestrator{
		account: acct,
		events:  events,
		opts:    opts,
		logger:  logger,
		group:   group,
	}
}

// Start subscribes to SPEECH_SEGMENT_COMPLETE. Each event is dispatched to
// the worker pool; Start itself returns immediately.
func (o *Orchestrator) Start() {
	o.unsub = o.events.Subscribe(eventbus.SpeechSegmentComplete, o.onSegmentComplete)
}

// Stop unsubscribes and waits for every in-flight segment to finish
// processing.
func (o *Orchestrator) Stop() error {
	if o.unsub != nil {
		o.unsub()
	}
	return o.group.Wait()
}

func (o *Orchestrator) onSegmentComplete(ev eventbus.Event) {
	callID, _ := ev.Get("call_id").(string)
	if callID == "" {
		return
	}
	segment, ok := ev.Get("segment").(recorder.Segment)
	if !ok {
		return
	}
	path, _ := ev.Get("path").(string)
	if path == "" {
		return
	}

	o.group.Go(func() error {
		o.process(context.Background(), callID, path, segment)
		return nil
	})
}

// process implements spec.md §4.8 steps 1-8 for a single completed
// segment. Every failure is logged and drops only the current segment; the
// call continues.
func (o *Orchestrator) process(ctx context.Context, callID, path string, segment recorder.Segment) {
	call := o.account.Call(callID)
	if call == nil {
		return
	}

	raw, err := audio.ExtractRange(path, segment.PCMStartByte, segment.PCMEndByte)
	if err != nil {
		o.logger.Warnw("orchestrator: extract range failed", "call_id", callID, "error", err)
		return
	}

	transcript, err := o.opts.Transcriber.Transcribe(ctx, raw, o.opts.SampleRate, int(o.opts.Width))
	if err != nil {
		o.logger.Warnw("orchestrator: transcribe failed", "call_id", callID, "error", err)
		return
	}
	if transcript == "" {
		return
	}

	now := o.opts.Clock()
	call.AppendChat(callmodel.RoleCaller, transcript, now)

	tail := call.UnprocessedTail()
	lines := make([]string, 0, len(tail))
	for _, entry := range tail {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, entry.Text))
	}

	reply, err := o.opts.Replier.Reply(ctx, o.opts.PromptName, map[string]string{
		"transcript": collab.BuildTranscriptVariable(lines),
	})
	if err != nil {
		o.logger.Warnw("orchestrator: reply failed", "call_id", callID, "error", err)
		return
	}
	call.ClearUnprocessed()
	call.AppendChat(callmodel.RoleSystem, reply, o.opts.Clock())

	wavPath, err := o.opts.Synthesizer.Synthesize(ctx, reply, o.opts.Voice, o.opts.Model)
	if err != nil {
		o.logger.Warnw("orchestrator: synthesize failed", "call_id", callID, "error", err)
		return
	}

	if err := o.account.PlayWavToCall(wavPath, callID); err != nil {
		o.logger.Warnw("orchestrator: play_wav submit failed", "call_id", callID, "error", err)
		return
	}
	call.AppendAction("play_wav", wavPath, o.opts.Clock())
}
