// Package sipiface is the boundary between the call-lifecycle engine and
// whatever SIP/RTP library actually talks to the wire. It exists so the
// engine can be exercised against a fake Library in tests without a real
// UDP transport, and so the concrete binding (sipgoua, built on
// emiago/sipgo) can be swapped without touching account/sipagent.
package sipiface

import (
	"io"
	"time"
)

// CallState mirrors the states a SIP library reports for an in-progress
// dialog. Only the transitions the engine cares about are named; a real
// binding may observe others (e.g. EARLY, RINGING) and simply not emit a
// Callbacks call for them.
type CallState int

const (
	CallStateEarly CallState = iota
	CallStateConfirmed
	CallStateDisconnected
)

func (s CallState) String() string {
	switch s {
	case CallStateEarly:
		return "EARLY"
	case CallStateConfirmed:
		return "CONFIRMED"
	case CallStateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// CallHandle identifies one in-progress call to the library. Concrete
// bindings are free to make this any comparable value (sipgoua uses the
// INVITE's Call-ID header value, a string, boxed behind this type).
type CallHandle interface{}

// AccountHandle identifies a registered SIP account/identity.
type AccountHandle interface{}

// LibraryConfig configures library-wide state: the UDP transport and
// global codec/media posture. CreateTransport is a separate Library call
// so a binding can validate the config before binding a socket.
type LibraryConfig struct {
	PublicIP     string
	PublicPort   int
	BoundAddress string
}

// AccountConfig configures one SIP account/identity to register or accept
// calls for.
type AccountConfig struct {
	ID             string
	SIPDomain      string
	SIPUser        string
	SIPPassword    string
	RegistrarURI   string
	OutboundProxy  string
	TransportProto string
}

// Library is everything the engine can ask a SIP/RTP implementation to do.
// A single goroutine — the Agent's media thread — is the only caller of
// any Library method for the lifetime of an Agent; implementations need
// not be safe for concurrent use from multiple goroutines.
type Library interface {
	Create(cfg LibraryConfig) error
	Init(cfg LibraryConfig) error
	Start() error
	Destroy() error

	// HandleEvents pumps the library's internal event loop for up to
	// timeout and returns the number of events processed.
	HandleEvents(timeout time.Duration) int

	CreateTransport(publicIP string, publicPort int, boundAddr string) error
	CreateAccount(cfg AccountConfig) (AccountHandle, error)

	Answer(call CallHandle, status int) error
	AttachRecorderSink(call CallHandle) (io.WriteCloser, error)
	AttachPlayerSource(call CallHandle, r io.Reader, sampleRate int) error
	Detach(call CallHandle) error

	SetCodecPriority(codec string, priority int) error
	SetNullAudioDevice() error

	// ScheduleTimer asks the library to deliver OnTimer(timerID) after d
	// elapses. done closes at the same moment OnTimer fires, so a caller
	// that only needs "wake me up" semantics (rather than the callback)
	// can select on it directly.
	ScheduleTimer(d time.Duration) (timerID int, done <-chan struct{})
}

// Callbacks is how a Library reports events back into the engine. A real
// binding invokes these from whatever goroutine the underlying transport
// library delivers them on; the engine is responsible for getting back
// onto the media thread (via the CommandQueue) before touching any Library
// method in response.
type Callbacks interface {
	OnIncomingCall(call CallHandle, remoteURI string)
	OnCallState(call CallHandle, state CallState)
	OnCallMediaState(call CallHandle)
	OnTimer(timerID int)
	OnAccountRegistered(status int)
}
