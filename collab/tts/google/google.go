// Package google implements collab.Synthesizer against Cloud Text-to-Speech
// v1, grounded on the teacher's TextToSpeechOptions defaults (voice
// "en-US-Chirp-HD-F", PCM encoding) adapted from a streaming config to the
// single-shot SynthesizeSpeech call the Orchestrator needs per reply.
package google

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

const defaultVoice = "en-US-Chirp-HD-F"

// Config selects the output directory and sample rate baked into every
// synthesized WAV file.
type Config struct {
	OutputDir  string
	SampleRate int // defaults to 8000, matching telephony call audio
}

// Synthesizer implements collab.Synthesizer via Cloud Text-to-Speech v1.
type Synthesizer struct {
	client *texttospeech.Client
	cfg    Config
	logger commons.Logger
}

// New builds a Synthesizer. credential carries the same API-key /
// service-account-JSON keys as the transcriber package.
func New(ctx context.Context, logger commons.Logger, credential map[string]string, cfg Config) (*Synthesizer, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}

	var opts []option.ClientOption
	if key := credential["key"]; key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if sa := credential["service_account_key"]; sa != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(sa)))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.CollaboratorFailed, "google synthesizer: new client", err)
	}
	return &Synthesizer{client: client, cfg: cfg, logger: logger}, nil
}

func (s *Synthesizer) Name() string { return "google" }

// Synthesize renders text to speech as LINEAR16 audio and writes the
// returned WAV bytes unchanged under Config.OutputDir.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, model string) (string, error) {
	if voice == "" {
		voice = defaultVoice
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			Name:         voice,
			LanguageCode: languageCodeFromVoice(voice),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(s.cfg.SampleRate),
		},
	}

	resp, err := s.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "google synthesizer: synthesize", err)
	}

	// SynthesizeSpeechResponse with LINEAR16 encoding already returns a
	// well-formed WAV; WriteWAV is skipped to avoid double-wrapping.
	path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("tts-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, resp.AudioContent, 0o644); err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "google synthesizer: write wav", err)
	}
	return path, nil
}

func languageCodeFromVoice(voice string) string {
	// Voice names are "<lang>-<region>-...", e.g. "en-US-Chirp-HD-F".
	parts := []rune(voice)
	count := 0
	for i, r := range parts {
		if r == '-' {
			count++
			if count == 2 {
				return string(parts[:i])
			}
		}
	}
	return "en-US"
}

// Close releases the underlying gRPC connection.
func (s *Synthesizer) Close() error { return s.client.Close() }
