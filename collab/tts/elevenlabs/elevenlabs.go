// Package elevenlabs implements collab.Synthesizer against the ElevenLabs
// text-to-speech REST API via go-resty, since (unlike Google and OpenAI)
// the pack carries no official ElevenLabs Go SDK. The voice/model options
// struct mirrors the shape the teacher's own elevenlabs normalizer package
// carries alongside its text-preprocessing pipeline.
package elevenlabs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_turbo_v2_5"
)

// Config selects the output directory, default model used when Synthesize
// is called without one, and the output sample rate.
type Config struct {
	BaseURL      string
	OutputDir    string
	DefaultModel string
	SampleRate   int // defaults to 8000, matching telephony call audio
}

// outputFormat maps a sample rate to the ElevenLabs pcm_<rate> output
// format string. A rate ElevenLabs does not offer falls back to
// pcm_16000, and Synthesize then stamps 16000 into the WAV header.
func outputFormat(sampleRate int) string {
	switch sampleRate {
	case 8000, 16000, 22050, 24000, 44100:
		return fmt.Sprintf("pcm_%d", sampleRate)
	default:
		return "pcm_16000"
	}
}

// Synthesizer implements collab.Synthesizer via the ElevenLabs REST API.
type Synthesizer struct {
	http   *resty.Client
	apiKey string
	cfg    Config
	logger commons.Logger
}

// New builds a Synthesizer authenticated with apiKey from
// credential["key"].
func New(logger commons.Logger, credential map[string]string, cfg Config) (*Synthesizer, error) {
	apiKey := credential["key"]
	if apiKey == "" {
		return nil, errs.New(errs.CollaboratorFailed, "elevenlabs synthesizer: missing credential key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultModel
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("xi-api-key", apiKey).
		SetTimeout(30 * time.Second)

	return &Synthesizer{http: client, apiKey: apiKey, cfg: cfg, logger: logger}, nil
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

type synthesizeRequest struct {
	Text          string  `json:"text"`
	ModelID       string  `json:"model_id"`
	OutputFormat  string  `json:"output_format,omitempty"`
}

// Synthesize posts text to the ElevenLabs "text-to-speech/{voice_id}"
// endpoint, requesting a WAV-compatible PCM output format, and writes the
// response body to a file under Config.OutputDir.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice, model string) (string, error) {
	if voice == "" {
		return "", errs.New(errs.CollaboratorFailed, "elevenlabs synthesizer: voice is required")
	}
	if model == "" {
		model = s.cfg.DefaultModel
	}

	format := outputFormat(s.cfg.SampleRate)
	rate := s.cfg.SampleRate
	if format != fmt.Sprintf("pcm_%d", rate) {
		rate = 16000
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(synthesizeRequest{Text: text, ModelID: model, OutputFormat: format}).
		Post(fmt.Sprintf("/v1/text-to-speech/%s", voice))
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "elevenlabs synthesizer: request", err)
	}
	if resp.IsError() {
		return "", errs.New(errs.CollaboratorFailed, fmt.Sprintf("elevenlabs synthesizer: status %d: %s", resp.StatusCode(), resp.String()))
	}

	// the pcm_<rate> output formats return headerless 16-bit PCM at that
	// rate; wrap it in a WAV header at the same rate so playback and the
	// Player's duration probe agree with what the call actually plays at.
	wav := audio.WriteWAV(resp.Body(), rate, audio.Width16)

	path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("tts-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "elevenlabs synthesizer: write wav", err)
	}
	return path, nil
}
