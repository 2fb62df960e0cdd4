package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chris17453/echomatrix/internal/account"
	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/player"
	"github.com/chris17453/echomatrix/internal/queue"
	"github.com/chris17453/echomatrix/internal/recorder"
	"github.com/chris17453/echomatrix/internal/sipiface"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Name() string { return "fake" }
func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, sampleRate, sampleWidth int) (string, error) {
	return f.text, f.err
}

type fakeReplier struct {
	reply string
	err   error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeReplier) Name() string { return "fake" }
func (f *fakeReplier) Reply(ctx context.Context, promptName string, variables map[string]string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, promptName)
	f.mu.Unlock()
	return f.reply, f.err
}

type fakeSynthesizer struct {
	dir string
	err error
}

func (f *fakeSynthesizer) Name() string { return "fake" }
func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voice, model string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "reply.wav")
	if err := os.WriteFile(path, audio.WriteWAV([]byte{0, 0, 0, 0}, 8000, audio.Width16), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

// fakeLibrary implements sipiface.Library with no real network I/O, enough
// to drive OnIncomingCall/OnCallState through an Account in isolation.
type fakeLibrary struct{}

func (fakeLibrary) Create(cfg sipiface.LibraryConfig) error { return nil }
func (fakeLibrary) Init(cfg sipiface.LibraryConfig) error   { return nil }
func (fakeLibrary) Start() error                            { return nil }
func (fakeLibrary) Destroy() error                          { return nil }
func (fakeLibrary) HandleEvents(timeout time.Duration) int  { return 0 }
func (fakeLibrary) CreateTransport(ip string, port int, bound string) error {
	return nil
}
func (fakeLibrary) CreateAccount(cfg sipiface.AccountConfig) (sipiface.AccountHandle, error) {
	return "acct-1", nil
}
func (fakeLibrary) Answer(call sipiface.CallHandle, status int) error { return nil }
func (fakeLibrary) AttachRecorderSink(call sipiface.CallHandle) (io.WriteCloser, error) {
	return nopWriteCloser{}, nil
}
func (fakeLibrary) AttachPlayerSource(call sipiface.CallHandle, r io.Reader, sampleRate int) error {
	return nil
}
func (fakeLibrary) Detach(call sipiface.CallHandle) error                { return nil }
func (fakeLibrary) SetCodecPriority(codec string, priority int) error    { return nil }
func (fakeLibrary) SetNullAudioDevice() error                            { return nil }
func (fakeLibrary) ScheduleTimer(d time.Duration) (int, <-chan struct{}) {
	done := make(chan struct{})
	close(done)
	return 0, done
}

func setup(t *testing.T) (*account.Account, *eventbus.Scoped) {
	t.Helper()
	bus := eventbus.New(commons.NewNopLogger())
	scoped := eventbus.NewScoped(bus, "agent-1")
	q := queue.New()
	players := player.NewManager(scoped)

	opts := account.Options{
		RecordingDir:              t.TempDir(),
		AudioFormat:               recorder.FormatWAV,
		SampleRate:                8000,
		Width:                     audio.Width16,
		SilenceAmplitudeThreshold: 100,
		SilenceDurationMs:         1000,
	}
	a := account.New(fakeLibrary{}, "acct-1", opts, scoped, q, players, commons.NewNopLogger())
	return a, scoped
}

func TestProcessSegmentPlaysReply(t *testing.T) {
	a, scoped := setup(t)
	a.OnIncomingCall("call-1", "sip:alice@example.com")
	a.OnCallState("call-1", sipiface.CallStateConfirmed)

	recordingPath := a.Call("call-1").RecordingPath
	if err := os.WriteFile(recordingPath, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("seed recording: %v", err)
	}

	replier := &fakeReplier{reply: "hello back"}
	orc := New(a, scoped, Options{
		Transcriber: &fakeTranscriber{text: "hello"},
		Replier:     replier,
		Synthesizer: &fakeSynthesizer{dir: t.TempDir()},
		SampleRate:  8000,
		Width:       audio.Width16,
		Workers:     2,
	}, commons.NewNopLogger())

	seg := recorder.Segment{StartMs: 0, EndMs: 500, DurationMs: 500, PCMStartByte: 0, PCMEndByte: 80}
	orc.onSegmentComplete(eventbus.Event{
		AgentID: "agent-1",
		Tag:     eventbus.SpeechSegmentComplete,
		Fields: map[string]interface{}{
			"call_id": "call-1",
			"segment": seg,
			"path":    recordingPath,
		},
	})

	if err := orc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	call := a.Call("call-1")
	if len(call.Chat) != 2 {
		t.Fatalf("expected 2 chat entries, got %d", len(call.Chat))
	}
	if call.Chat[0].Text != "hello" || call.Chat[1].Text != "hello back" {
		t.Fatalf("unexpected chat: %+v", call.Chat)
	}
	if call.UnprocessedCount != 0 {
		t.Fatalf("expected transcript fully processed, got %d unprocessed", call.UnprocessedCount)
	}
	if len(call.Actions) != 1 || call.Actions[0].Kind != "play_wav" {
		t.Fatalf("expected a play_wav action, got %+v", call.Actions)
	}

	replier.mu.Lock()
	defer replier.mu.Unlock()
	if len(replier.prompts) != 1 || replier.prompts[0] != "generic" {
		t.Fatalf("expected one generic prompt call, got %v", replier.prompts)
	}
}

func TestProcessSegmentDropsOnTranscribeFailure(t *testing.T) {
	a, scoped := setup(t)
	a.OnIncomingCall("call-1", "sip:alice@example.com")
	a.OnCallState("call-1", sipiface.CallStateConfirmed)

	recordingPath := a.Call("call-1").RecordingPath
	if err := os.WriteFile(recordingPath, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("seed recording: %v", err)
	}

	orc := New(a, scoped, Options{
		Transcriber: &fakeTranscriber{err: fmt.Errorf("boom")},
		Replier:     &fakeReplier{reply: "unused"},
		Synthesizer: &fakeSynthesizer{dir: t.TempDir()},
		SampleRate:  8000,
		Width:       audio.Width16,
	}, commons.NewNopLogger())

	seg := recorder.Segment{StartMs: 0, EndMs: 500, DurationMs: 500, PCMStartByte: 0, PCMEndByte: 80}
	orc.onSegmentComplete(eventbus.Event{
		AgentID: "agent-1",
		Tag:     eventbus.SpeechSegmentComplete,
		Fields: map[string]interface{}{
			"call_id": "call-1",
			"segment": seg,
			"path":    recordingPath,
		},
	})
	if err := orc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	call := a.Call("call-1")
	if len(call.Chat) != 0 {
		t.Fatalf("expected no chat entries after transcribe failure, got %d", len(call.Chat))
	}
}

func TestProcessSegmentDropsUnknownCall(t *testing.T) {
	a, scoped := setup(t)

	orc := New(a, scoped, Options{
		Transcriber: &fakeTranscriber{text: "hi"},
		Replier:     &fakeReplier{reply: "hi"},
		Synthesizer: &fakeSynthesizer{dir: t.TempDir()},
		SampleRate:  8000,
		Width:       audio.Width16,
	}, commons.NewNopLogger())

	orc.onSegmentComplete(eventbus.Event{
		AgentID: "agent-1",
		Tag:     eventbus.SpeechSegmentComplete,
		Fields: map[string]interface{}{
			"call_id": "no-such-call",
			"segment": recorder.Segment{StartMs: 0, EndMs: 500},
			"path":    "/tmp/does-not-matter.pcm",
		},
	})
	if err := orc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
