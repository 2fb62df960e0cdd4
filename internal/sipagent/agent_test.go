package sipagent

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/config"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/queue"
	"github.com/chris17453/echomatrix/internal/sipiface"
)

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

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

// errorCountingLogger counts Errorw calls and discards everything else.
type errorCountingLogger struct {
	commons.Logger
	mu     sync.Mutex
	errors int
}

func (l *errorCountingLogger) Errorw(msg string, kv ...interface{}) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func (l *errorCountingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

func testConfig(t *testing.T) *config.AgentConfig {
	t.Helper()
	return &config.AgentConfig{
		PublicIP:                  "127.0.0.1",
		PublicPort:                15060,
		BoundAddress:              "0.0.0.0",
		SIPUsername:               "agent",
		SIPPassword:               "secret",
		SIPDomain:                 "example.com",
		ClockRate:                 8000,
		SndClockRate:              8000,
		ChannelCount:              1,
		PTimeMs:                   20,
		SilenceAmplitudeThreshold: 100,
		SilenceDurationMs:         1000,
		SilenceCheckIntervalMs:    500,
		AudioFormat:               "wav",
		RecordingDir:              t.TempDir(),
		TickInterval:              5 * time.Millisecond,
		CommandsPerTick:           8,
		StartTimeout:              time.Second,
		StopTimeout:               time.Second,
		OrchestratorWorkers:       2,
	}
}

func TestStartNonblockingSignalsInitialized(t *testing.T) {
	bus := eventbus.New(commons.NewNopLogger())
	a := New("agent-1", testConfig(t), fakeLibrary{}, bus, commons.NewNopLogger())

	if err := a.StartNonblocking(time.Second); err != nil {
		t.Fatalf("start nonblocking: %v", err)
	}
	if a.Account() == nil {
		t.Fatalf("expected account to be created")
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStopEmitsStoppingAndStopped(t *testing.T) {
	bus := eventbus.New(commons.NewNopLogger())
	var tags []eventbus.Tag
	bus.Subscribe(eventbus.AgentStopping, func(e eventbus.Event) { tags = append(tags, e.Tag) })
	bus.Subscribe(eventbus.AgentStopped, func(e eventbus.Event) { tags = append(tags, e.Tag) })

	a := New("agent-1", testConfig(t), fakeLibrary{}, bus, commons.NewNopLogger())
	if err := a.StartNonblocking(time.Second); err != nil {
		t.Fatalf("start nonblocking: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(tags) != 2 || tags[0] != eventbus.AgentStopping || tags[1] != eventbus.AgentStopped {
		t.Fatalf("unexpected event order: %v", tags)
	}
}

func TestQueuePlayWavWithoutActiveCallLogsError(t *testing.T) {
	bus := eventbus.New(commons.NewNopLogger())
	logger := &errorCountingLogger{Logger: commons.NewNopLogger()}
	a := New("agent-1", testConfig(t), fakeLibrary{}, bus, logger)
	if err := a.StartNonblocking(time.Second); err != nil {
		t.Fatalf("start nonblocking: %v", err)
	}
	defer a.Stop()

	cmd := queue.Command{Kind: queue.PlayWav, CallID: "call-missing", FilePath: "/tmp/x.wav"}
	if err := a.Queue().Submit(cmd); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for logger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logger.count() == 0 {
		t.Fatalf("expected play_wav for an unknown call to be logged as an error")
	}
}

func TestQueuePlayWavFailsWhenCallNotConfirmed(t *testing.T) {
	bus := eventbus.New(commons.NewNopLogger())
	a := New("agent-1", testConfig(t), fakeLibrary{}, bus, commons.NewNopLogger())
	if err := a.StartNonblocking(time.Second); err != nil {
		t.Fatalf("start nonblocking: %v", err)
	}
	defer a.Stop()

	a.OnIncomingCall("call-1", "sip:alice@example.com")

	if err := a.playWav("call-1", "/tmp/x.wav"); err == nil {
		t.Fatalf("expected CallNotReady error for a call not yet confirmed")
	}
}
