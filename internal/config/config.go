// Package config provides the configuration structure for voice-outreach.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/llm"
	"github.com/book-expert/voice-outreach/internal/publish"
	"github.com/book-expert/voice-outreach/internal/tts"
	"github.com/book-expert/voice-outreach/internal/tts/text"
	"github.com/book-expert/voice-outreach/internal/tts/voice"
)

// Defaults that are not owned by a domain package.
const (
	DefaultBaseLogsDir              = "logs"
	DefaultOutputDir                = "voice_notes"
	DefaultArchiveName              = "voice_notes.zip"
	DefaultNATSURL                  = "nats://127.0.0.1:4222"
	DefaultBatchRequestedSubject    = "outreach.batch.requested"
	DefaultAudioChunkCreatedSubject = "audio.chunk.created"
	DefaultObjectStoreBucket        = "OUTREACH_FILES"
	DefaultMetricsListenAddr        = ":9464"
	DefaultSplitThreshold           = 25
)

var (
	// ErrInvalidMode is returned for an unknown composer mode.
	ErrInvalidMode = errors.New("composer.mode must be \"template\" or \"generate\"")
	// ErrInvalidTemperature is returned when the generation temperature is outside [0, 2].
	ErrInvalidTemperature = errors.New("generation.temperature must be between 0 and 2")
	// ErrInvalidMaxTokens is returned for a non-positive output cap.
	ErrInvalidMaxTokens = errors.New("generation.max_tokens must be positive")
	// ErrNegativeValue is returned for a negative count or timeout.
	ErrNegativeValue = errors.New("value must not be negative")
	// ErrPublishIncomplete is returned when publishing is enabled without a target.
	ErrPublishIncomplete = errors.New("publish requires owner, repo and public_base_url")
	// ErrVoiceIDEmpty is returned when no synthesis voice is configured.
	ErrVoiceIDEmpty = errors.New("synthesis.voice_id cannot be empty")
)

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
	ArchiveName string `toml:"archive_name"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	BatchRequestedSubject    string `toml:"batch_requested_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	ObjectStoreBucket        string `toml:"object_store_bucket"`
}

// ComposerConfig holds the message composition settings.
type ComposerConfig struct {
	Mode            string `toml:"mode"`
	Template        string `toml:"template"`
	TemplateFile    string `toml:"template_file"`
	SenderName      string `toml:"sender_name"`
	SignatureMarker string `toml:"signature_marker"`
}

// GenerationConfig holds the language-model settings.
type GenerationConfig struct {
	Model          string  `toml:"model"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// SynthesisConfig holds the text-to-speech API settings.
type SynthesisConfig struct {
	BaseURL           string `toml:"base_url"`
	VoiceID           string `toml:"voice_id"`
	ModelID           string `toml:"model_id"`
	OutputFormat      string `toml:"output_format"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// PublishConfig holds the GitHub publishing settings.
type PublishConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIBaseURL     string `toml:"api_base_url"`
	Owner          string `toml:"owner"`
	Repo           string `toml:"repo"`
	Branch         string `toml:"branch"`
	PathPrefix     string `toml:"path_prefix"`
	PublicBaseURL  string `toml:"public_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Config is the root configuration structure.
type Config struct {
	Paths      PathsConfig      `toml:"paths"`
	NATS       NATSConfig       `toml:"nats"`
	Composer   ComposerConfig   `toml:"composer"`
	Generation GenerationConfig `toml:"generation"`
	Synthesis  SynthesisConfig  `toml:"synthesis"`
	Voice      voice.Config     `toml:"voice"`
	Pacing     text.Config      `toml:"pacing"`
	Publish    PublishConfig    `toml:"publish"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			BaseLogsDir: DefaultBaseLogsDir,
			OutputDir:   DefaultOutputDir,
			ArchiveName: DefaultArchiveName,
		},
		NATS: NATSConfig{
			URL:                      DefaultNATSURL,
			BatchRequestedSubject:    DefaultBatchRequestedSubject,
			AudioChunkCreatedSubject: DefaultAudioChunkCreatedSubject,
			ObjectStoreBucket:        DefaultObjectStoreBucket,
		},
		Composer: ComposerConfig{
			Mode:            string(compose.ModeTemplate),
			SignatureMarker: compose.DefaultSignatureMarker,
		},
		Generation: GenerationConfig{
			Model:          llm.DefaultModel,
			Temperature:    compose.DefaultTemperature,
			MaxTokens:      compose.DefaultMaxTokens,
			TimeoutSeconds: int(llm.DefaultTimeout / time.Second),
		},
		Synthesis: SynthesisConfig{
			BaseURL:        tts.DefaultBaseURL,
			ModelID:        tts.DefaultModelID,
			OutputFormat:   tts.DefaultOutputFormat,
			TimeoutSeconds: int(tts.DefaultTimeout / time.Second),
		},
		Voice: voice.DefaultConfig(),
		Pacing: text.Config{
			SplitThreshold: DefaultSplitThreshold,
		},
		Publish: PublishConfig{
			APIBaseURL:     publish.DefaultAPIBaseURL,
			Branch:         publish.DefaultBranch,
			PathPrefix:     publish.DefaultPathPrefix,
			TimeoutSeconds: int(publish.DefaultTimeout / time.Second),
		},
		Metrics: MetricsConfig{
			ListenAddr: DefaultMetricsListenAddr,
		},
	}
}

// Load loads the service configuration through the configurator.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file. An empty path yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.ResolveTemplate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills empty values that the configuration file cleared.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	setDefault(&c.Paths.BaseLogsDir, defaults.Paths.BaseLogsDir)
	setDefault(&c.Paths.OutputDir, defaults.Paths.OutputDir)
	setDefault(&c.Paths.ArchiveName, defaults.Paths.ArchiveName)
	setDefault(&c.NATS.URL, defaults.NATS.URL)
	setDefault(&c.NATS.BatchRequestedSubject, defaults.NATS.BatchRequestedSubject)
	setDefault(&c.NATS.AudioChunkCreatedSubject, defaults.NATS.AudioChunkCreatedSubject)
	setDefault(&c.NATS.ObjectStoreBucket, defaults.NATS.ObjectStoreBucket)
	setDefault(&c.Composer.Mode, defaults.Composer.Mode)
	setDefault(&c.Composer.SignatureMarker, defaults.Composer.SignatureMarker)
	setDefault(&c.Generation.Model, defaults.Generation.Model)
	setDefault(&c.Synthesis.BaseURL, defaults.Synthesis.BaseURL)
	setDefault(&c.Synthesis.ModelID, defaults.Synthesis.ModelID)
	setDefault(&c.Synthesis.OutputFormat, defaults.Synthesis.OutputFormat)
	setDefault(&c.Voice.Strategy, defaults.Voice.Strategy)
	setDefault(&c.Publish.APIBaseURL, defaults.Publish.APIBaseURL)
	setDefault(&c.Publish.Branch, defaults.Publish.Branch)
	setDefault(&c.Publish.PathPrefix, defaults.Publish.PathPrefix)
	setDefault(&c.Metrics.ListenAddr, defaults.Metrics.ListenAddr)

	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = defaults.Generation.MaxTokens
	}

	if c.Composer.Template == "" && c.Composer.TemplateFile == "" {
		if compose.Mode(c.Composer.Mode) == compose.ModeGenerate {
			c.Composer.Template = compose.DefaultPrompt
		} else {
			c.Composer.Template = compose.DefaultTemplate
		}
	}
}

// ResolveTemplate reads composer.template_file into composer.template.
func (c *Config) ResolveTemplate() error {
	if c.Composer.TemplateFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.Composer.TemplateFile)
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", c.Composer.TemplateFile, err)
	}

	c.Composer.Template = strings.TrimSpace(string(data))

	return nil
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error

	if !compose.Mode(c.Composer.Mode).IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMode, c.Composer.Mode))
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidTemperature, c.Generation.Temperature))
	}

	if c.Generation.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.Generation.MaxTokens))
	}

	if strings.TrimSpace(c.Synthesis.VoiceID) == "" {
		errs = append(errs, ErrVoiceIDEmpty)
	}

	for name, value := range map[string]int{
		"generation.timeout_seconds":    c.Generation.TimeoutSeconds,
		"synthesis.timeout_seconds":     c.Synthesis.TimeoutSeconds,
		"synthesis.requests_per_minute": c.Synthesis.RequestsPerMinute,
		"publish.timeout_seconds":       c.Publish.TimeoutSeconds,
		"pacing.split_threshold":        c.Pacing.SplitThreshold,
	} {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%d", ErrNegativeValue, name, value))
		}
	}

	voiceErr := c.Voice.Validate()
	if voiceErr != nil {
		errs = append(errs, voiceErr)
	}

	if c.Publish.Enabled && (c.Publish.Owner == "" || c.Publish.Repo == "" || c.Publish.PublicBaseURL == "") {
		errs = append(errs, ErrPublishIncomplete)
	}

	return errors.Join(errs...)
}

// GenerationTimeout returns the per-call generation timeout.
func (c *Config) GenerationTimeout() time.Duration {
	return seconds(c.Generation.TimeoutSeconds)
}

// SynthesisTimeout returns the per-call synthesis timeout.
func (c *Config) SynthesisTimeout() time.Duration {
	return seconds(c.Synthesis.TimeoutSeconds)
}

// PublishTimeout returns the per-call publish timeout.
func (c *Config) PublishTimeout() time.Duration {
	return seconds(c.Publish.TimeoutSeconds)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
