package app_test

import (
	"context"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/config"
	"github.com/book-expert/voice-outreach/internal/pipeline"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Synthesis.VoiceID = "voice-1"
	cfg.ApplyDefaults()

	return cfg
}

func testDeps(t *testing.T) app.Deps {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return app.Deps{Logger: log}
}

func TestOverrides_Apply(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	require.Equal(t, compose.DefaultTemplate, cfg.Composer.Template)

	generated := app.Overrides{Mode: string(compose.ModeGenerate), SenderName: "Riley"}.Apply(cfg)
	assert.Equal(t, string(compose.ModeGenerate), generated.Composer.Mode)
	assert.Equal(t, compose.DefaultPrompt, generated.Composer.Template)
	assert.Equal(t, "Riley", generated.Composer.SenderName)

	custom := app.Overrides{Mode: string(compose.ModeGenerate), Template: "Write to {first_name}."}.Apply(cfg)
	assert.Equal(t, "Write to {first_name}.", custom.Composer.Template)

	unchanged := app.Overrides{}.Apply(cfg)
	assert.Equal(t, cfg, unchanged)
	assert.Equal(t, string(compose.ModeTemplate), cfg.Composer.Mode, "input is not modified")
}

func TestNewSession_MissingSecrets(t *testing.T) {
	t.Parallel()

	_, err := app.NewSession(context.Background(), testConfig(), config.Secrets{}, false, testDeps(t))
	require.ErrorIs(t, err, config.ErrMissingSecret)
	assert.Contains(t, err.Error(), "ELEVENLABS_API_KEY")

	cfg := app.Overrides{Mode: string(compose.ModeGenerate)}.Apply(testConfig())
	_, err = app.NewSession(context.Background(), cfg, config.Secrets{ElevenLabsAPIKey: "k"}, false, testDeps(t))
	require.ErrorIs(t, err, config.ErrMissingSecret)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Synthesis.VoiceID = ""

	_, err := app.NewSession(context.Background(), cfg, config.Secrets{ElevenLabsAPIKey: "k"}, false, testDeps(t))
	require.ErrorIs(t, err, config.ErrVoiceIDEmpty)
}

func TestNewSession_PublishRequiresTarget(t *testing.T) {
	t.Parallel()

	secrets := config.Secrets{ElevenLabsAPIKey: "k", GitHubToken: "t"}

	_, err := app.NewSession(context.Background(), testConfig(), secrets, true, testDeps(t))
	require.ErrorIs(t, err, config.ErrPublishIncomplete)
}

func TestNewSession_Success(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Publish.Owner = "acme"
	cfg.Publish.Repo = "voices"
	cfg.Publish.PublicBaseURL = "https://acme.github.io/voices"

	secrets := config.Secrets{ElevenLabsAPIKey: "k", OpenAIAPIKey: "o", GitHubToken: "t"}

	session, err := app.NewSession(context.Background(), cfg, secrets, true, testDeps(t))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateIdle, session.State())
}
