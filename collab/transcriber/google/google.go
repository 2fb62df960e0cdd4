// Package google implements collab.Transcriber against Cloud Speech-to-Text
// v2, using an explicit LINEAR16 decoding config the way the teacher's own
// SpeechToTextOptions does for streaming recognition — adapted here to the
// synchronous Recognize call the Orchestrator needs for one already-
// segmented utterance rather than a live stream.
package google

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"

	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

// Config selects the project/region and recognizer used for every
// Transcribe call.
type Config struct {
	ProjectID    string
	Region       string // "global" or a regional endpoint name
	LanguageCode string // defaults to "en-US"
	Model        string // defaults to "long"
}

// Transcriber implements collab.Transcriber via Cloud Speech-to-Text v2.
type Transcriber struct {
	client *speech.Client
	cfg    Config
	logger commons.Logger
}

// New builds a Transcriber. credential carries API-key or service-account
// JSON under the keys "key" / "service_account_key", mirroring the
// teacher's VaultCredential map shape.
func New(ctx context.Context, logger commons.Logger, credential map[string]string, cfg Config) (*Transcriber, error) {
	if cfg.Region == "" {
		cfg.Region = "global"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Model == "" {
		cfg.Model = "long"
	}

	var opts []option.ClientOption
	if key := credential["key"]; key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if sa := credential["service_account_key"]; sa != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(sa)))
	}
	if cfg.Region != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:443", cfg.Region)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.CollaboratorFailed, "google transcriber: new client", err)
	}
	return &Transcriber{client: client, cfg: cfg, logger: logger}, nil
}

func (t *Transcriber) Name() string { return "google" }

// Transcribe recognizes one complete utterance of raw PCM audio. sampleWidth
// is only used to assert the caller is handing over 16-bit PCM, the only
// width this explicit decoding config accepts.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, sampleRate, sampleWidth int) (string, error) {
	if sampleWidth != 2 {
		return "", errs.New(errs.CollaboratorFailed, fmt.Sprintf("google transcriber: unsupported sample width %d (want 16-bit PCM)", sampleWidth))
	}

	req := &speechpb.RecognizeRequest{
		Recognizer: t.recognizerName(),
		Config: &speechpb.RecognitionConfig{
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(sampleRate),
					AudioChannelCount: 1,
				},
			},
			Features: &speechpb.RecognitionFeatures{
				EnableAutomaticPunctuation: true,
			},
			LanguageCodes: []string{t.cfg.LanguageCode},
			Model:         t.cfg.Model,
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: audio},
	}

	resp, err := t.client.Recognize(ctx, req)
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "google transcriber: recognize", err)
	}

	var text string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text != "" {
			text += " "
		}
		text += alts[0].GetTranscript()
	}
	return text, nil
}

func (t *Transcriber) recognizerName() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.cfg.ProjectID, t.cfg.Region)
}

// Close releases the underlying gRPC connection.
func (t *Transcriber) Close() error { return t.client.Close() }
