// Package openai implements collab.Replier against the OpenAI chat
// completions API via openai-go, following the client-construction and
// request-building shape the pack's own OpenAI provider uses.
package openai

import (
	"context"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chris17453/echomatrix/collab"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/errs"
)

// Config selects the model used for every Reply call.
type Config struct {
	Model string // defaults to "gpt-4o-mini"
}

// Replier implements collab.Replier via OpenAI chat completions.
type Replier struct {
	client    oai.Client
	model     string
	templates *collab.Templates
	logger    commons.Logger
}

// New builds a Replier authenticated with apiKey from credential["key"].
func New(logger commons.Logger, credential map[string]string, cfg Config, templates *collab.Templates) (*Replier, error) {
	apiKey := credential["key"]
	if apiKey == "" {
		return nil, errs.New(errs.CollaboratorFailed, "openai replier: missing credential key")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if templates == nil {
		templates = collab.NewTemplates()
	}

	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &Replier{client: client, model: cfg.Model, templates: templates, logger: logger}, nil
}

func (r *Replier) Name() string { return "openai" }

// Reply renders promptName against variables and submits it as a single
// user message.
func (r *Replier) Reply(ctx context.Context, promptName string, variables map[string]string) (string, error) {
	prompt, err := r.templates.Render(promptName, variables)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(r.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.CollaboratorFailed, "openai replier: chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.CollaboratorFailed, "openai replier: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
