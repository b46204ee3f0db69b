package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/book-expert/voice-outreach/internal/compose"
)

// ErrMissingSecret is returned when a credential required by the run is unset.
var ErrMissingSecret = errors.New("missing secret")

// Secrets holds the credentials read from the environment. They never live in
// the TOML file.
type Secrets struct {
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	GitHubToken      string `env:"GITHUB_TOKEN"`
	GitHubOwner      string `env:"GITHUB_USERNAME"`
	GitHubRepo       string `env:"GITHUB_REPO"`
	GitHubBranch     string `env:"GITHUB_BRANCH"`
}

// LoadSecrets loads envFile (or ./.env when empty and present) into the
// process environment without overriding set variables, then parses Secrets.
func LoadSecrets(envFile string) (Secrets, error) {
	var secrets Secrets

	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil {
			return secrets, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return secrets, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	err := env.Parse(&secrets)
	if err != nil {
		return secrets, fmt.Errorf("failed to parse environment: %w", err)
	}

	return secrets, nil
}

// MergeSecrets lets the GitHub target from the environment override the file.
func (c *Config) MergeSecrets(secrets Secrets) {
	if secrets.GitHubOwner != "" {
		c.Publish.Owner = secrets.GitHubOwner
	}

	if secrets.GitHubRepo != "" {
		c.Publish.Repo = secrets.GitHubRepo
	}

	if secrets.GitHubBranch != "" {
		c.Publish.Branch = secrets.GitHubBranch
	}
}

// Require checks that the credentials needed for a run in mode, with or
// without publishing, are present.
func (s Secrets) Require(mode compose.Mode, publishing bool) error {
	var errs []error

	if s.ElevenLabsAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: ELEVENLABS_API_KEY", ErrMissingSecret))
	}

	if mode == compose.ModeGenerate && s.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingSecret))
	}

	if publishing && s.GitHubToken == "" {
		errs = append(errs, fmt.Errorf("%w: GITHUB_TOKEN", ErrMissingSecret))
	}

	return errors.Join(errs...)
}
