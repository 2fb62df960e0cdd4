// Package recorder implements the speech-segmentation state machine that
// watches a growing PCM recording file and reports when the caller starts
// and stops talking.
package recorder

import "github.com/chris17453/echomatrix/internal/audio"

// State is one of the four segmentation states.
type State int

const (
	Idle State = iota
	InSpeech
	InSilencePending
	InSilence
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case InSpeech:
		return "IN_SPEECH"
	case InSilencePending:
		return "IN_SILENCE_PENDING"
	case InSilence:
		return "IN_SILENCE"
	default:
		return "UNKNOWN"
	}
}

// Segment describes one completed speech utterance in both milliseconds
// (relative to recording start) and PCM byte offsets into the recording
// file. Invariant: StartMs < EndMs and PCMStartByte < PCMEndByte <=
// file size at completion time.
type Segment struct {
	StartMs      int64
	EndMs        int64
	DurationMs   int64
	PCMStartByte int64
	PCMEndByte   int64
}

func newSegment(startMs, endMs int64, sampleRate int, width audio.SampleWidth) Segment {
	return Segment{
		StartMs:      startMs,
		EndMs:        endMs,
		DurationMs:   endMs - startMs,
		PCMStartByte: audio.MsToByteOffset(startMs, sampleRate, width),
		PCMEndByte:   audio.MsToByteOffset(endMs, sampleRate, width),
	}
}
