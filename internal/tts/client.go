// Package tts turns composed messages into audio artifacts through a remote
// text-to-speech API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/voice-outreach/internal/core"
)

// API endpoints and paths.
const (
	apiTextToSpeech = "/v1/text-to-speech/"
	apiVoices       = "/v1/voices"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "xi-api-key"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Default values.
const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"
	DefaultTimeout      = 120 * time.Second
)

// Error messages.
const (
	errFmtServiceError       = "synthesis service error (%s): %s"
	errFmtServiceNonOKStatus = "synthesis service returned non-OK status: %s, body: %s"
)

var (
	// ErrAPIKeyEmpty is returned when no API key is configured.
	ErrAPIKeyEmpty = errors.New("synthesis API key cannot be empty")
	// ErrVoiceIDEmpty is returned when no voice is configured.
	ErrVoiceIDEmpty = errors.New("voice ID cannot be empty")
	// ErrTextEmpty is returned for a blank message.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio is returned when the service answers 200 with no body.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Timeout      time.Duration
}

// HTTPClient is a client for the ElevenLabs text-to-speech REST API.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	voiceID      string
	modelID      string
	outputFormat string
}

var _ core.SpeechSynthesizer = (*HTTPClient)(nil)

// SpeechRequest is the JSON payload of a synthesis request.
type SpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// VoiceSettings is the wire form of core.VoiceSettings.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// ErrorResponse is the structured error body. Detail is either an object with
// status and message or a plain string.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewHTTPClient validates cfg and creates a client. The timeout applies to
// every request.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyEmpty
	}

	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, ErrVoiceIDEmpty
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &HTTPClient{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		voiceID:      cfg.VoiceID,
		modelID:      cfg.ModelID,
		outputFormat: cfg.OutputFormat,
	}, nil
}

// Synthesize sends text with the given voice settings and returns the raw
// audio payload.
func (c *HTTPClient) Synthesize(ctx context.Context, text string, settings core.VoiceSettings) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	requestBody, err := json.Marshal(SpeechRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: VoiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
			Style:           settings.Style,
			UseSpeakerBoost: settings.UseSpeakerBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + apiTextToSpeech + url.PathEscape(c.voiceID) +
		"?" + url.Values{"output_format": {c.outputFormat}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to synthesis service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies the API key by listing the account's voices.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	return nil
}

// parseErrorResponse decodes the structured error body and falls back to the
// raw body when it is not JSON.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	if json.Unmarshal(body, &errorResp) == nil && len(errorResp.Detail) > 0 {
		var detail errorDetail
		if json.Unmarshal(errorResp.Detail, &detail) == nil && detail.Message != "" {
			if detail.Status != "" {
				return fmt.Errorf(errFmtServiceError, resp.Status, detail.Status+": "+detail.Message)
			}

			return fmt.Errorf(errFmtServiceError, resp.Status, detail.Message)
		}

		var message string
		if json.Unmarshal(errorResp.Detail, &message) == nil && message != "" {
			return fmt.Errorf(errFmtServiceError, resp.Status, message)
		}
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}
