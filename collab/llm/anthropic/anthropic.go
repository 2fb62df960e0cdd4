// Package anthropic implements collab.Replier against the Claude Messages
// API via anthropic-sdk-go, offered alongside the openai provider as a
// second swappable Replier implementation.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chris17453/echomatrix/collab"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

// Config selects the model used for every Reply call.
type Config struct {
	Model     string // defaults to anthropic.ModelClaude3_5HaikuLatest
	MaxTokens int64  // defaults to 256
}

// Replier implements collab.Replier via the Claude Messages API.
type Replier struct {
	client    anthropic.Client
	cfg       Config
	templates *collab.Templates
	logger    commons.Logger
}

// New builds a Replier authenticated with apiKey from credential["key"].
func New(logger commons.Logger, credential map[string]string, cfg Config, templates *collab.Templates) (*Replier, error) {
	apiKey := credential["key"]
	if apiKey == "" {
		return nil, errs.New(errs.CollaboratorFailed, "anthropic replier: missing credential key")
	}
	if cfg.Model == "" {
		cfg.Model = anthropic.ModelClaude3_5HaikuLatest
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}
	if templates == nil {
		templates = collab.NewTemplates()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Replier{client: client, cfg: cfg, templates: templates, logger: logger}, nil
}

func (r *Replier) Name() string { return "anthropic" }

// Reply renders promptName against variables and submits it as a single
// user message.
func (r *Replier) Reply(ctx context.Context, promptName string, variables map[string]string) (string, error) {
	prompt, err := r.templates.Render(promptName, variables)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.cfg.Model),
		MaxTokens: r.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "anthropic replier: messages.new", err)
	}
	if len(resp.Content) == 0 {
		return "", errs.New(errs.CollaboratorFailed, "anthropic replier: empty content")
	}
	return resp.Content[0].Text, nil
}
