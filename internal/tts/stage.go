package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/fsutil"
	"github.com/book-expert/voice-outreach/internal/tts/text"
	"github.com/book-expert/voice-outreach/internal/tts/voice"
)

// MinPayloadBytes is the largest payload still treated as a failed synthesis.
const MinPayloadBytes = 5000

var (
	// ErrPayloadTooSmall is returned when the service answers with a payload of
	// at most MinPayloadBytes.
	ErrPayloadTooSmall = errors.New("audio payload too small")
	// ErrSynthesizerRequired is returned by NewStage without a synthesizer.
	ErrSynthesizerRequired = errors.New("speech synthesizer is required")
)

// SynthesisError reports a row whose audio could not be produced.
type SynthesisError struct {
	Row int
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for row %d: %v", e.Row, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Stage runs pacing, voice selection, and the remote call for one message.
type Stage struct {
	synthesizer core.SpeechSynthesizer
	pacer       *text.Pacer
	policy      voice.Policy
}

// NewStage creates a Stage. A nil pacer disables pacing and a nil policy uses
// the default fixed voice.
func NewStage(synthesizer core.SpeechSynthesizer, pacer *text.Pacer, policy voice.Policy) (*Stage, error) {
	if synthesizer == nil {
		return nil, ErrSynthesizerRequired
	}

	if pacer == nil {
		pacer = text.NewPacer(text.Config{})
	}

	if policy == nil {
		policy = voice.NewFixed(voice.DefaultConfig().Base())
	}

	return &Stage{synthesizer: synthesizer, pacer: pacer, policy: policy}, nil
}

// ArtifactID names the artifact of a row: the sanitized first name and the
// zero-based row index.
func ArtifactID(firstName string, row int) string {
	return fsutil.SanitizeFilename(firstName) + "_" + strconv.Itoa(row)
}

// Synthesize produces the audio artifact for one row. Every failure is a
// *SynthesisError.
func (s *Stage) Synthesize(ctx context.Context, row int, firstName, message string) (core.Artifact, error) {
	paced := s.pacer.Process(message)

	audio, err := s.synthesizer.Synthesize(ctx, paced, s.policy.Settings(row))
	if err != nil {
		return core.Artifact{}, &SynthesisError{Row: row, Err: err}
	}

	if len(audio) <= MinPayloadBytes {
		return core.Artifact{}, &SynthesisError{
			Row: row,
			Err: fmt.Errorf("%w: %d bytes", ErrPayloadTooSmall, len(audio)),
		}
	}

	id := ArtifactID(firstName, row)

	return core.Artifact{
		ID:       id,
		Index:    row,
		FileName: id + fsutil.AudioExt,
		Data:     audio,
	}, nil
}
