// Package config_test tests the configuration loading for voice-outreach.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/config"
	"github.com/book-expert/voice-outreach/internal/tts/voice"
)

const tomlData = `
[paths]
base_logs_dir = "/var/log/outreach"
output_dir = "out"

[nats]
url = "nats://127.0.0.1:4222"
batch_requested_subject = "outreach.batch.requested"
audio_chunk_created_subject = "audio.chunk.created"
object_store_bucket = "OUTREACH_FILES"

[composer]
mode = "generate"
template = "Write to {first_name} at {company_name}."
sender_name = "Riley"

[generation]
model = "gpt-4o-mini"
temperature = 0.7
max_tokens = 300
timeout_seconds = 45

[synthesis]
voice_id = "voice-123"
timeout_seconds = 90
requests_per_minute = 30

[voice]
strategy = "rotate"
stability = 0.5
similarity_boost = 0.75
style = 0.3
use_speaker_boost = true
rotate_styles = [0.2, 0.35, 0.5]

[pacing]
split_threshold = 15
sentence_pause = "<break time=\"0.6s\" />"
trigger_phrases = ["quick question"]

[publish]
enabled = true
owner = "acme"
repo = "voices"
public_base_url = "https://voices.example.com"

[metrics]
enabled = true
listen_addr = ":9100"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/outreach", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "outreach.batch.requested", cfg.NATS.BatchRequestedSubject)
	assert.Equal(t, "OUTREACH_FILES", cfg.NATS.ObjectStoreBucket)
	assert.Equal(t, "generate", cfg.Composer.Mode)
	assert.Equal(t, "Riley", cfg.Composer.SenderName)
	assert.InEpsilon(t, 0.7, cfg.Generation.Temperature, 0.001)
	assert.Equal(t, 300, cfg.Generation.MaxTokens)
	assert.Equal(t, "voice-123", cfg.Synthesis.VoiceID)
	assert.Equal(t, 30, cfg.Synthesis.RequestsPerMinute)
	assert.Equal(t, voice.StrategyRotate, cfg.Voice.Strategy)
	assert.Equal(t, []float64{0.2, 0.35, 0.5}, cfg.Voice.RotateStyles)
	assert.Equal(t, 15, cfg.Pacing.SplitThreshold)
	assert.Equal(t, `<break time="0.6s" />`, cfg.Pacing.SentencePause)
	assert.Equal(t, []string{"quick question"}, cfg.Pacing.TriggerPhrases)
	assert.True(t, cfg.Publish.Enabled)
	assert.Equal(t, "https://voices.example.com", cfg.Publish.PublicBaseURL)
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddr)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile(writeFile(t, "config.toml", tomlData))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "out", cfg.Paths.OutputDir)
	assert.Equal(t, config.DefaultArchiveName, cfg.Paths.ArchiveName, "unset values keep defaults")
	assert.Equal(t, "main", cfg.Publish.Branch)
	assert.Equal(t, "public/voices", cfg.Publish.PathPrefix)
	assert.Equal(t, 45, int(cfg.GenerationTimeout().Seconds()))
	assert.Equal(t, 90, int(cfg.SynthesisTimeout().Seconds()))
}

func TestLoadFile_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, string(compose.ModeTemplate), cfg.Composer.Mode)
	assert.Equal(t, compose.DefaultTemplate, cfg.Composer.Template)
	assert.Equal(t, voice.StrategyFixed, cfg.Voice.Strategy)
	assert.False(t, cfg.Publish.Enabled)

	require.ErrorIs(t, cfg.Validate(), config.ErrVoiceIDEmpty)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = config.LoadFile(writeFile(t, "bad.toml", "[composer\nmode = "))
	require.Error(t, err)
}

func TestResolveTemplateFile(t *testing.T) {
	t.Parallel()

	templatePath := writeFile(t, "template.txt", "  Hi {first_name}!\n")
	configPath := writeFile(t, "config.toml", "[composer]\ntemplate_file = \""+filepath.ToSlash(templatePath)+"\"\n")

	cfg, err := config.LoadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "Hi {first_name}!", cfg.Composer.Template)
}

func TestApplyDefaults_GenerateModeUsesPrompt(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Composer: config.ComposerConfig{Mode: string(compose.ModeGenerate)}}
	cfg.ApplyDefaults()

	assert.Equal(t, compose.DefaultPrompt, cfg.Composer.Template)
	assert.Equal(t, config.DefaultBatchRequestedSubject, cfg.NATS.BatchRequestedSubject)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		target error
	}{
		{
			name:   "unknown mode",
			mutate: func(c *config.Config) { c.Composer.Mode = "voice" },
			target: config.ErrInvalidMode,
		},
		{
			name:   "temperature too high",
			mutate: func(c *config.Config) { c.Generation.Temperature = 3 },
			target: config.ErrInvalidTemperature,
		},
		{
			name:   "zero max tokens",
			mutate: func(c *config.Config) { c.Generation.MaxTokens = 0 },
			target: config.ErrInvalidMaxTokens,
		},
		{
			name:   "negative rate",
			mutate: func(c *config.Config) { c.Synthesis.RequestsPerMinute = -1 },
			target: config.ErrNegativeValue,
		},
		{
			name:   "publish without target",
			mutate: func(c *config.Config) { c.Publish.Enabled = true },
			target: config.ErrPublishIncomplete,
		},
		{
			name:   "voice out of range",
			mutate: func(c *config.Config) { c.Voice.Style = 2 },
			target: voice.ErrOutOfRange,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.Synthesis.VoiceID = "voice-123"
			require.NoError(t, cfg.Validate())

			testCase.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), testCase.target)
		})
	}
}
