// Package deepgram implements collab.Transcriber against Deepgram's
// prerecorded transcription API via deepgram-go-sdk/v3. It wraps each
// segment's PCM bytes in a WAV header (Deepgram's prerecorded endpoint
// needs a self-describing container, unlike Google's explicit decoding
// config) before handing the buffer to the SDK.
package deepgram

import (
	"bytes"
	"context"

	dgiface "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/prerecorded"

	"github.com/chris17453/echomatrix/internal/audio"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

// Config selects the Deepgram model and language used for every request.
type Config struct {
	Model    string // defaults to "nova-2"
	Language string // defaults to "en"
}

// Transcriber implements collab.Transcriber via Deepgram's prerecorded API.
type Transcriber struct {
	client *prerecorded.Client
	cfg    Config
	logger commons.Logger
}

// New builds a Transcriber authenticated with apiKey from credential["key"].
func New(logger commons.Logger, credential map[string]string, cfg Config) (*Transcriber, error) {
	apiKey := credential["key"]
	if apiKey == "" {
		return nil, errs.New(errs.CollaboratorFailed, "deepgram transcriber: missing credential key")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	client := prerecorded.New(apiKey, &dgiface.ClientOptions{})
	return &Transcriber{client: client, cfg: cfg, logger: logger}, nil
}

func (t *Transcriber) Name() string { return "deepgram" }

// Transcribe wraps the raw PCM in a WAV container and submits it for
// prerecorded transcription.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, sampleRate, sampleWidth int) (string, error) {
	wav := audio.WriteWAV(pcm, sampleRate, audio.SampleWidth(sampleWidth))

	opts := &dgiface.PreRecordedTranscriptionOptions{
		Model:      t.cfg.Model,
		Language:   t.cfg.Language,
		Punctuate:  true,
		SmartFormat: true,
	}

	res, err := t.client.FromStream(ctx, bytes.NewReader(wav), opts)
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "deepgram transcriber: transcribe", err)
	}

	channels := res.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return "", nil
	}
	return channels[0].Alternatives[0].Transcript, nil
}
