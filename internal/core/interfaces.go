// Package core defines the shared types and the narrow capability interfaces
// the outreach pipeline talks to.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// GenerationRequest holds the parameters of a single prompt submission.
type GenerationRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator submits a prompt to a language-generation backend and returns
// the text of the first completion.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// VoiceSettings holds the synthesis parameters applied to one message.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// SpeechSynthesizer turns text into an encoded audio payload.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, settings VoiceSettings) ([]byte, error)
}

// Artifact is one accepted voice note.
type Artifact struct {
	// ID is the first name plus the zero-based row index, e.g. "Sam_0".
	ID string
	// Index is the zero-based input row the artifact was produced from.
	Index int
	// FileName is the base name used inside the archive and on the remote host.
	FileName string
	Data     []byte
}

// Publisher copies an artifact to a remote hosting location and returns the
// public link it is served from.
type Publisher interface {
	Publish(ctx context.Context, artifact Artifact) (string, error)
}
