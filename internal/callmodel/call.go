// Package callmodel holds the Call data model and the end-of-call
// transcript it accumulates.
package callmodel

import "time"

// State is the lifecycle state of a Call.
type State string

const (
	StateIncoming     State = "incoming"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Role identifies the speaker of one transcript turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleSystem Role = "system"
)

// ChatEntry is one turn of the conversation transcript. Processed is
// cleared when a caller turn is appended and set once the orchestrator has
// produced (and appended) the system reply covering it.
type ChatEntry struct {
	Role      Role      `yaml:"role"`
	Text      string    `yaml:"text"`
	Timestamp time.Time `yaml:"timestamp"`
	Processed bool      `yaml:"processed"`
}

// ActionEntry records a side effect taken during the call (e.g. a WAV
// played to the caller).
type ActionEntry struct {
	Kind      string    `yaml:"kind"`
	Detail    string    `yaml:"detail"`
	Timestamp time.Time `yaml:"timestamp"`
}

// Call is the in-memory record of one SIP call's lifecycle and
// conversation so far.
type Call struct {
	ID        string
	RemoteURI string
	State     State
	StartTime time.Time
	EndTime   time.Time

	RecordingPath string

	Chat    []ChatEntry
	Actions []ActionEntry

	UnprocessedCount   int
	OutgoingAudioCount int
	Metadata           map[string]string
}

// New creates a Call in the Incoming state.
func New(id, remoteURI string) *Call {
	return &Call{
		ID:        id,
		RemoteURI: remoteURI,
		State:     StateIncoming,
		Metadata:  map[string]string{},
	}
}

// AppendChat records one chat turn. A caller turn starts out unprocessed
// and increments UnprocessedCount; a system turn is always processed, since
// it is itself the orchestrator's reply.
func (c *Call) AppendChat(role Role, text string, at time.Time) {
	entry := ChatEntry{Role: role, Text: text, Timestamp: at, Processed: role != RoleCaller}
	c.Chat = append(c.Chat, entry)
	if role == RoleCaller {
		c.UnprocessedCount++
	}
}

// ClearUnprocessed marks every caller turn processed once the orchestrator
// has produced a reply covering everything accumulated so far.
func (c *Call) ClearUnprocessed() {
	for i := range c.Chat {
		c.Chat[i].Processed = true
	}
	c.UnprocessedCount = 0
}

// UnprocessedTail returns the caller turns not yet covered by a reply, in
// chronological order.
func (c *Call) UnprocessedTail() []ChatEntry {
	var out []ChatEntry
	for _, e := range c.Chat {
		if e.Role == RoleCaller && !e.Processed {
			out = append(out, e)
		}
	}
	return out
}

// AppendAction records a non-chat side effect.
func (c *Call) AppendAction(kind, detail string, at time.Time) {
	c.Actions = append(c.Actions, ActionEntry{Kind: kind, Detail: detail, Timestamp: at})
	if kind == "play_wav" {
		c.OutgoingAudioCount++
	}
}
