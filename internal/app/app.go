// Package app wires configuration and credentials into a ready pipeline
// session. The CLI and the NATS service share it.
package app

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/config"
	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/llm"
	"github.com/book-expert/voice-outreach/internal/observe"
	"github.com/book-expert/voice-outreach/internal/pipeline"
	"github.com/book-expert/voice-outreach/internal/publish"
	"github.com/book-expert/voice-outreach/internal/tts"
	"github.com/book-expert/voice-outreach/internal/tts/text"
	"github.com/book-expert/voice-outreach/internal/tts/voice"
)

// Overrides replaces composer settings for a single run. Empty fields keep
// the configured value.
type Overrides struct {
	Mode       string
	Template   string
	SenderName string
}

// Apply returns a copy of cfg with the overrides applied. Switching to
// generate mode without a template selects the default prompt.
func (o Overrides) Apply(cfg config.Config) config.Config {
	if o.Mode != "" && o.Mode != cfg.Composer.Mode {
		cfg.Composer.Mode = o.Mode

		if o.Template == "" && cfg.Composer.TemplateFile == "" {
			cfg.Composer.Template = ""
			cfg.ApplyDefaults()
		}
	}

	if o.Template != "" {
		cfg.Composer.Template = o.Template
	}

	if o.SenderName != "" {
		cfg.Composer.SenderName = o.SenderName
	}

	return cfg
}

// Deps carries the process-wide collaborators of a session.
type Deps struct {
	Logger  *logger.Logger
	Metrics *observe.Metrics
}

// NewComposer builds the composer for cfg, with an OpenAI generator in
// generate mode.
func NewComposer(cfg config.Config, secrets config.Secrets) (*compose.Composer, error) {
	mode := compose.Mode(cfg.Composer.Mode)

	var generator core.Generator

	if mode == compose.ModeGenerate {
		client, err := llm.New(llm.Config{
			APIKey:  secrets.OpenAIAPIKey,
			Model:   cfg.Generation.Model,
			BaseURL: cfg.Generation.BaseURL,
			Timeout: cfg.GenerationTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create generation client: %w", err)
		}

		generator = client
	}

	composer, err := compose.New(compose.Options{
		Mode:            mode,
		Template:        cfg.Composer.Template,
		SenderName:      cfg.Composer.SenderName,
		Temperature:     cfg.Generation.Temperature,
		MaxTokens:       cfg.Generation.MaxTokens,
		SignatureMarker: cfg.Composer.SignatureMarker,
	}, generator)
	if err != nil {
		return nil, fmt.Errorf("failed to create composer: %w", err)
	}

	return composer, nil
}

// NewSpeechClient builds the ElevenLabs client for cfg.
func NewSpeechClient(cfg config.Config, secrets config.Secrets) (*tts.HTTPClient, error) {
	client, err := tts.NewHTTPClient(tts.ClientConfig{
		BaseURL:      cfg.Synthesis.BaseURL,
		APIKey:       secrets.ElevenLabsAPIKey,
		VoiceID:      cfg.Synthesis.VoiceID,
		ModelID:      cfg.Synthesis.ModelID,
		OutputFormat: cfg.Synthesis.OutputFormat,
		Timeout:      cfg.SynthesisTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return client, nil
}

// NewStage builds the synthesis stage on top of synthesizer.
func NewStage(cfg config.Config, synthesizer core.SpeechSynthesizer) (*tts.Stage, error) {
	policy, err := voice.FromConfig(cfg.Voice)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice policy: %w", err)
	}

	stage, err := tts.NewStage(synthesizer, text.NewPacer(cfg.Pacing), policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis stage: %w", err)
	}

	return stage, nil
}

// NewPublisher builds the GitHub publisher for cfg.
func NewPublisher(ctx context.Context, cfg config.Config, secrets config.Secrets) (*publish.GitHubPublisher, error) {
	publisher, err := publish.NewGitHubPublisher(ctx, publish.Config{
		APIBaseURL:    cfg.Publish.APIBaseURL,
		Owner:         cfg.Publish.Owner,
		Repo:          cfg.Publish.Repo,
		Branch:        cfg.Publish.Branch,
		PathPrefix:    cfg.Publish.PathPrefix,
		PublicBaseURL: cfg.Publish.PublicBaseURL,
		Timeout:       cfg.PublishTimeout(),
	}, secrets.GitHubToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	return publisher, nil
}

// NewSession validates cfg and secrets and wires a session. A publisher is
// only created when publishing is requested.
func NewSession(
	ctx context.Context,
	cfg config.Config,
	secrets config.Secrets,
	publishing bool,
	deps Deps,
) (*pipeline.Session, error) {
	if publishing {
		cfg.Publish.Enabled = true
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	err = secrets.Require(compose.Mode(cfg.Composer.Mode), publishing)
	if err != nil {
		return nil, err
	}

	composer, err := NewComposer(cfg, secrets)
	if err != nil {
		return nil, err
	}

	speech, err := NewSpeechClient(cfg, secrets)
	if err != nil {
		return nil, err
	}

	stage, err := NewStage(cfg, speech)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Composer:    composer,
		Synthesizer: stage,
		Limiter:     pipeline.NewLimiter(cfg.Synthesis.RequestsPerMinute),
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}

	if publishing {
		publisher, pubErr := NewPublisher(ctx, cfg, secrets)
		if pubErr != nil {
			return nil, pubErr
		}

		opts.Publisher = publisher
	}

	session, err := pipeline.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}
