// Package collab defines the three external collaborator contracts the
// Dialogue Orchestrator depends on: transcription, language-model reply
// generation, and speech synthesis. Concrete providers live in the
// transcriber, tts, and llm subpackages, one directory per named provider,
// mirroring the teacher's internal/transformer/<provider> layout.
package collab

import "context"

// Transcriber turns a window of raw PCM audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, sampleRate, sampleWidth int) (string, error)
}

// Replier produces a reply from a named prompt template and the variables
// that fill it.
type Replier interface {
	Name() string
	Reply(ctx context.Context, promptName string, variables map[string]string) (string, error)
}

// Synthesizer renders text to speech and returns the path of a locally
// readable WAV file. The caller owns the returned file and is responsible
// for deleting it.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice, model string) (wavPath string, err error)
}
