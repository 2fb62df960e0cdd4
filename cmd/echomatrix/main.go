// Command echomatrix runs one SIP Agent: it loads configuration, wires the
// SIP/RTP binding, the Dialogue Orchestrator and its collaborator
// providers, and serves calls until it receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/chris17453/echomatrix/collab"
	anthropicllm "github.com/chris17453/echomatrix/collab/llm/anthropic"
	openaillm "github.com/chris17453/echomatrix/collab/llm/openai"
	deepgramtranscriber "github.com/chris17453/echomatrix/collab/transcriber/deepgram"
	googletranscriber "github.com/chris17453/echomatrix/collab/transcriber/google"
	elevenlabstts "github.com/chris17453/echomatrix/collab/tts/elevenlabs"
	googletts "github.com/chris17453/echomatrix/collab/tts/google"
	"github.com/chris17453/echomatrix/internal/commons"
	"github.com/chris17453/echomatrix/internal/config"
	"github.com/chris17453/echomatrix/internal/eventbus"
	"github.com/chris17453/echomatrix/internal/orchestrator"
	"github.com/chris17453/echomatrix/internal/sipagent"
	"github.com/chris17453/echomatrix/internal/sipgoua"
)

func main() {
	cfg, err := config.Load(os.Getenv("ENV_PATH"))
	if err != nil {
		log.Fatalf("echomatrix: load config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name("echomatrix"),
		commons.Path(cfg.LogDir),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("echomatrix: build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.AgentConfig, logger commons.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	portAlloc, err := buildPortAllocator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("echomatrix: build rtp port allocator: %w", err)
	}

	binding := sipgoua.NewBinding(portAlloc, nil, logger)
	bus := eventbus.New(logger)

	agentID := fmt.Sprintf("%s@%s", cfg.SIPUsername, cfg.SIPDomain)
	agent := sipagent.New(agentID, cfg, binding, bus, logger)
	binding.SetCallbacks(agent)

	transcriber, closeTranscriber, err := buildTranscriber(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("echomatrix: build transcriber: %w", err)
	}
	defer closeTranscriber()

	synthesizer, closeSynthesizer, err := buildSynthesizer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("echomatrix: build synthesizer: %w", err)
	}
	defer closeSynthesizer()

	replier, err := buildReplier(cfg, logger)
	if err != nil {
		return fmt.Errorf("echomatrix: build replier: %w", err)
	}

	if err := agent.StartNonblocking(cfg.StartTimeout); err != nil {
		return fmt.Errorf("echomatrix: start agent: %w", err)
	}

	orc := orchestrator.New(agent.Account(), agent.Events(), orchestrator.Options{
		Transcriber: transcriber,
		Replier:     replier,
		Synthesizer: synthesizer,
		PromptName:  cfg.PromptName,
		Voice:       cfg.TTSVoice,
		SampleRate:  agent.SampleRate(),
		Width:       agent.SampleWidth(),
		Workers:     cfg.OrchestratorWorkers,
	}, logger)
	orc.Start()

	logger.Infow("echomatrix agent started",
		"agent_id", agentID,
		"public_addr", fmt.Sprintf("%s:%d", cfg.PublicIP, cfg.PublicPort),
		"transcriber", cfg.TranscriberProvider,
		"tts", cfg.TTSProvider,
		"llm", cfg.LLMProvider,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("echomatrix: shutdown signal received")
	if err := orc.Stop(); err != nil {
		logger.Warnw("echomatrix: orchestrator stop", "error", err)
	}
	if err := agent.Stop(); err != nil {
		return fmt.Errorf("echomatrix: stop agent: %w", err)
	}
	return nil
}

func buildPortAllocator(ctx context.Context, cfg *config.AgentConfig, logger commons.Logger) (sipgoua.PortAllocator, error) {
	if cfg.RedisURL == "" {
		alloc := sipgoua.NewLocalPortAllocator(cfg.RTPPortRangeStart, cfg.RTPPortRangeEnd)
		return alloc, alloc.Init(ctx)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	alloc := sipgoua.NewRedisPortAllocator(client, logger, cfg.RTPPortRangeStart, cfg.RTPPortRangeEnd)
	return alloc, alloc.Init(ctx)
}

func buildTranscriber(ctx context.Context, cfg *config.AgentConfig, logger commons.Logger) (collab.Transcriber, func(), error) {
	switch cfg.TranscriberProvider {
	case "deepgram":
		t, err := deepgramtranscriber.New(logger, map[string]string{"key": cfg.DeepgramAPIKey}, deepgramtranscriber.Config{})
		return t, func() {}, err
	default:
		t, err := googletranscriber.New(ctx, logger, map[string]string{
			"key":                  cfg.GoogleAPIKey,
			"service_account_key": cfg.GoogleServiceAccountKey,
		}, googletranscriber.Config{ProjectID: cfg.GoogleProjectID, Region: cfg.GoogleRegion})
		if err != nil {
			return nil, func() {}, err
		}
		return t, func() { t.Close() }, nil
	}
}

func buildSynthesizer(ctx context.Context, cfg *config.AgentConfig, logger commons.Logger) (collab.Synthesizer, func(), error) {
	switch cfg.TTSProvider {
	case "elevenlabs":
		s, err := elevenlabstts.New(logger, map[string]string{"key": cfg.ElevenLabsAPIKey}, elevenlabstts.Config{OutputDir: cfg.TTSOutputDir, SampleRate: cfg.ClockRate})
		return s, func() {}, err
	default:
		s, err := googletts.New(ctx, logger, map[string]string{
			"key":                  cfg.GoogleAPIKey,
			"service_account_key": cfg.GoogleServiceAccountKey,
		}, googletts.Config{OutputDir: cfg.TTSOutputDir, SampleRate: cfg.ClockRate})
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { s.Close() }, nil
	}
}

func buildReplier(cfg *config.AgentConfig, logger commons.Logger) (collab.Replier, error) {
	templates := collab.NewTemplates()
	switch cfg.LLMProvider {
	case "anthropic":
		return anthropicllm.New(logger, map[string]string{"key": cfg.AnthropicAPIKey}, anthropicllm.Config{Model: cfg.AnthropicModel}, templates)
	default:
		return openaillm.New(logger, map[string]string{"key": cfg.OpenAIAPIKey}, openaillm.Config{Model: cfg.OpenAIModel}, templates)
	}
}

