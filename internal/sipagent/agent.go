// Package sipagent implements the Agent: the owner of the dedicated media
// thread that is the only goroutine permitted to touch the SIP/RTP library,
// the Account, and every Call, Player and Recorder beneath it.
package sipagent

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chris17453/echomatrix/internal/account"
	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/callmodel"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/config"
	"github.com/chris17453/echomatrix/internal/errs"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/player"
	"github.com/chris17453/echomatrix/internal/queue"
	"github.com/chris17453/echomatrix/internal/recorder"
	"github.com/chris17453/echomatrix/internal/sipiface"
)

// Agent owns one dedicated media thread per spec: a single goroutine that
// is the only caller of any sipiface.Library method, and the only mutator
// of its Account.
type Agent struct {
	id     string
	cfg    *config.AgentConfig
	lib    sipiface.Library
	bus    *eventbus.Bus
	events *eventbus.Scoped
	queue  *queue.CommandQueue
	logger commons.Logger

	account *account.Account
	players *player.Manager

	running     atomic.Bool
	initialized chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
}

// New creates an Agent. lib is expected uninitialized; the Agent drives
// Create/Init/Start/Destroy on it as part of its own lifecycle.
func New(id string, cfg *config.AgentConfig, lib sipiface.Library, bus *eventbus.Bus, logger commons.Logger) *Agent {
	scoped := eventbus.NewScoped(bus, id)
	return &Agent{
		id:          id,
		cfg:         cfg,
		lib:         lib,
		bus:         bus,
		events:      scoped,
		queue:       queue.New(),
		logger:      logger,
		players:     player.NewManager(scoped),
		initialized: make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Account returns the Agent's Account, valid once Start has completed
// library/account setup (after the initialized-flag signals).
func (a *Agent) Account() *account.Account { return a.account }

// Queue returns the Agent's Command Queue, the sole channel application
// threads may use to affect the media thread.
func (a *Agent) Queue() *queue.CommandQueue { return a.queue }

// Events returns the Agent's agent-scoped event bus view, for application
// handlers (such as the Dialogue Orchestrator) that need to subscribe to
// this Agent's lifecycle events without crosstalk from other Agents
// sharing the same underlying Bus.
func (a *Agent) Events() *eventbus.Scoped { return a.events }

// SampleRate and SampleWidth report the PCM format this Agent's Recorders and
// the Audio Analyzer use, so an application handler reading a segment's
// raw bytes knows how to interpret them.
func (a *Agent) SampleRate() int           { return a.cfg.ClockRate }
func (a *Agent) SampleWidth() audio.SampleWidth { return audio.Width16 }

// Start runs the full lifecycle on the calling goroutine: create the
// endpoint, create the transport, create the Account, signal initialized,
// emit AGENT_STARTED, then run the tick loop until Stop is called.
func (a *Agent) Start() error {
	libCfg := sipiface.LibraryConfig{
		PublicIP:     a.cfg.PublicIP,
		PublicPort:   a.cfg.PublicPort,
		BoundAddress: a.cfg.BoundAddress,
	}

	if err := a.lib.Create(libCfg); err != nil {
		return errs.Wrap(errs.LibraryInitFailed, "sipagent: create library", err)
	}
	if err := a.lib.Init(libCfg); err != nil {
		return errs.Wrap(errs.LibraryInitFailed, "sipagent: init library", err)
	}
	for i, id := range a.cfg.CodecIDs {
		priority := 128
		if i < len(a.cfg.CodecPriorities) {
			priority = a.cfg.CodecPriorities[i]
		}
		if err := a.lib.SetCodecPriority(id, priority); err != nil {
			a.logger.Warnw("sipagent: set codec priority failed", "codec", id, "error", err)
		}
	}
	if err := a.lib.SetNullAudioDevice(); err != nil {
		a.logger.Warnw("sipagent: set null audio device failed", "error", err)
	}
	if err := a.lib.CreateTransport(a.cfg.PublicIP, a.cfg.PublicPort, a.cfg.BoundAddress); err != nil {
		return errs.Wrap(errs.TransportFailed, "sipagent: create transport", err)
	}
	if err := a.lib.Start(); err != nil {
		return errs.Wrap(errs.TransportFailed, "sipagent: start library", err)
	}

	acctHandle, err := a.lib.CreateAccount(sipiface.AccountConfig{
		ID:             a.id,
		SIPDomain:      a.cfg.SIPDomain,
		SIPUser:        a.cfg.SIPUsername,
		SIPPassword:    a.cfg.SIPPassword,
		RegistrarURI:   a.cfg.ContactURI,
		OutboundProxy:  a.cfg.OutboundProxy,
		TransportProto: "udp",
	})
	if err != nil {
		return errs.Wrap(errs.LibraryInitFailed, "sipagent: create account", err)
	}

	format := recorder.FormatWAV
	if a.cfg.AudioFormat == string(recorder.FormatPCM) {
		format = recorder.FormatPCM
	}
	a.account = account.New(a.lib, acctHandle, account.Options{
		RecordingDir:              a.cfg.RecordingDir,
		AudioFormat:               format,
		SampleRate:                a.cfg.ClockRate,
		Width:                     audio.Width16,
		SilenceAmplitudeThreshold: a.cfg.SilenceAmplitudeThreshold,
		SilenceDurationMs:         a.cfg.SilenceDurationMs,

		WelcomeWavPath:              a.cfg.WelcomeWavPath,
		WelcomeDelayMs:              a.cfg.WelcomeDelayMs,
		WelcomeMessageDurationCapMs: a.cfg.WelcomeMessageDurationCapMs,
		DisconnectWavPath:           a.cfg.DisconnectWavPath,
		MaxCallLengthSec:            a.cfg.MaxCallLengthSec,
	}, a.events, a.queue, a.players, a.logger)

	// Set the run-flag before signalling initialized, so a Stop issued as
	// soon as StartNonblocking returns cannot be overwritten by it.
	a.running.Store(true)
	close(a.initialized)

	a.events.Emit(eventbus.AgentStarted, nil)

	a.loop()
	return nil
}

// StartNonblocking spawns Start on a new goroutine and waits up to timeout
// (falling back to the Agent's configured StartTimeout) for the
// initialized-flag.
func (a *Agent) StartNonblocking(timeout time.Duration) error {
	if timeout == 0 {
		timeout = a.cfg.StartTimeout
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start()
	}()

	select {
	case <-a.initialized:
		return nil
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return errs.New(errs.Timeout, "sipagent: initialization timed out")
	}
}

func (a *Agent) loop() {
	interval := a.cfg.TickInterval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(a.stopped)
	defer a.queue.Close()

	for a.running.Load() {
		<-ticker.C
		a.lib.HandleEvents(interval)

		for _, cmd := range a.queue.Drain(a.cfg.CommandsPerTick) {
			a.handleCommand(cmd)
		}

		if a.account != nil {
			a.account.PollRecorders()
		}
		a.players.PollCompletions()
	}

	if a.account != nil {
		for _, id := range a.account.ActiveCallIDs() {
			a.account.OnCallState(id, sipiface.CallStateDisconnected)
		}
	}
	if err := a.lib.Destroy(); err != nil {
		a.logger.Warnw("sipagent: destroy library failed", "error", err)
	}
	a.events.Emit(eventbus.AgentStopped, nil)
}

func (a *Agent) handleCommand(cmd queue.Command) {
	switch cmd.Kind {
	case queue.PlayWav:
		if err := a.playWav(cmd.CallID, cmd.FilePath); err != nil {
			a.logger.Errorw("sipagent: play_wav failed", "call_id", cmd.CallID, "error", err)
		}
	default:
		a.logger.Warnw("sipagent: unknown command", "kind", cmd.Kind)
	}
}

func (a *Agent) playWav(callID, path string) error {
	call := a.account.Call(callID)
	if call == nil || call.State != callmodel.StateConnected {
		return errs.New(errs.CallNotReady, fmt.Sprintf("sipagent: call %s not ready", callID))
	}

	if _, err := a.players.Play(callID, path, func() (*player.Player, error) {
		return player.New(callID, path, time.Now)
	}); err != nil {
		return err
	}

	pcm, err := audio.OpenWAVPCM(path)
	if err != nil {
		return errs.Wrap(errs.FileNotFound, path, err)
	}
	if err := a.lib.AttachPlayerSource(callID, pcm, a.cfg.ClockRate); err != nil {
		pcm.Close()
		return err
	}
	return nil
}

// Stop emits AGENT_STOPPING, clears the run-flag, and waits (bounded by the
// Agent's configured StopTimeout) for the media thread to exit.
func (a *Agent) Stop() error {
	a.stopOnce.Do(func() {
		a.events.Emit(eventbus.AgentStopping, nil)
		a.running.Store(false)
	})

	timeout := a.cfg.StopTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-a.stopped:
		return nil
	case <-time.After(timeout):
		return errs.New(errs.Timeout, "sipagent: stop timed out waiting for media thread")
	}
}

// Agent implements sipiface.Callbacks itself rather than handing the
// Account directly to the Library: the Account doesn't exist yet at
// Binding-construction time (it's created partway through Start, once the
// library has an AccountHandle to attach it to), and OnTimer/
// OnAccountRegistered are Agent-level concerns the Account has no opinion
// about.

// OnIncomingCall forwards to the Account once one exists. A call reported
// before CreateAccount has completed (possible only if a binding starts
// accepting transport traffic early) is dropped.
func (a *Agent) OnIncomingCall(call sipiface.CallHandle, remoteURI string) {
	if a.account != nil {
		a.account.OnIncomingCall(call, remoteURI)
	}
}

// OnCallState forwards to the Account.
func (a *Agent) OnCallState(call sipiface.CallHandle, state sipiface.CallState) {
	if a.account != nil {
		a.account.OnCallState(call, state)
	}
}

// OnCallMediaState forwards to the Account.
func (a *Agent) OnCallMediaState(call sipiface.CallHandle) {
	if a.account != nil {
		a.account.OnCallMediaState(call)
	}
}

// OnTimer is the library's generic timer-fired callback. This engine
// schedules its own timers through Library.ScheduleTimer's done channel
// rather than polling OnTimer, so there is nothing to dispatch here.
func (a *Agent) OnTimer(timerID int) {}

// OnAccountRegistered emits ACCOUNT_REGISTERED carrying the library's
// reported SIP registration status.
func (a *Agent) OnAccountRegistered(status int) {
	a.events.Emit(eventbus.AccountRegistered, map[string]interface{}{"status": status})
}
