// Package eventbus implements the synchronous publish/subscribe bus the
// call-lifecycle engine uses to decouple the media thread from everything
// that reacts to call state: the Dialogue Orchestrator, transcript writer,
// and anything else observing a running Agent.
package eventbus

import "time"

// Tag is the closed set of event types the bus carries.
type Tag string

const (
	AgentStarted         Tag = "AGENT_STARTED"
	AgentStopping        Tag = "AGENT_STOPPING"
	AgentStopped         Tag = "AGENT_STOPPED"
	AccountRegistered    Tag = "ACCOUNT_REGISTERED"
	CallAnswered         Tag = "CALL_ANSWERED"
	CallDisconnected     Tag = "CALL_DISCONNECTED"
	RecordingStarted     Tag = "RECORDING_STARTED"
	RecordingPaused      Tag = "RECORDING_PAUSED"
	RecordingResumed     Tag = "RECORDING_RESUMED"
	RecordingStopped     Tag = "RECORDING_STOPPED"
	AudioPlaying         Tag = "AUDIO_PLAYING"
	AudioEnded           Tag = "AUDIO_ENDED"
	SpeechDetected       Tag = "SPEECH_DETECTED"
	SilenceDetected      Tag = "SILENCE_DETECTED"
	SilenceEnded         Tag = "SILENCE_ENDED"
	SpeechSegmentComplete Tag = "SPEECH_SEGMENT_COMPLETE"
)

// Event is the payload carried by every subscriber callback. AgentID and
// Timestamp are always present; Fields carries tag-specific data.
type Event struct {
	AgentID   string
	Timestamp time.Time
	Tag       Tag
	Fields    map[string]interface{}
}

// Get returns a field value, or nil if absent.
func (e Event) Get(key string) interface{} {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}
