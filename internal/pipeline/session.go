// Package pipeline runs the outreach batch: resolve variables, compose a
// message, synthesize a voice note, archive, and optionally publish, one row
// at a time in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/time/rate"

	"github.com/book-expert/voice-outreach/internal/archive"
	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/leads"
	"github.com/book-expert/voice-outreach/internal/observe"
	"github.com/book-expert/voice-outreach/internal/resolve"
)

var (
	// ErrComposerRequired is returned by New without a composer.
	ErrComposerRequired = errors.New("composer is required")
	// ErrSynthesizerRequired is returned by SynthesizeVoices without a
	// synthesis stage.
	ErrSynthesizerRequired = errors.New("synthesis stage is required")
	// ErrLoggerRequired is returned by New without a logger.
	ErrLoggerRequired = errors.New("logger is required")
	// ErrNoPublisher is returned by PublishArtifacts when no publisher is configured.
	ErrNoPublisher = errors.New("no publisher configured")
)

// Composer turns resolved variables into a message.
type Composer interface {
	Compose(ctx context.Context, vars resolve.Variables) compose.Result
	Mode() compose.Mode
}

// Synthesizer produces the audio artifact of one row.
type Synthesizer interface {
	Synthesize(ctx context.Context, row int, firstName, message string) (core.Artifact, error)
}

// Options wires the collaborators of a Session.
type Options struct {
	Composer Composer
	// Synthesizer may be nil for a session that only composes.
	Synthesizer Synthesizer
	// Publisher is optional; PublishArtifacts fails without it.
	Publisher core.Publisher
	// AliasTable defaults to resolve.DefaultAliasTable.
	AliasTable resolve.AliasTable
	// Limiter paces every remote call. Nil means unlimited.
	Limiter *rate.Limiter
	// Metrics defaults to no-op instruments.
	Metrics *observe.Metrics
	Logger  *logger.Logger
}

// Message is the composed message of one row.
type Message struct {
	Row       int
	Variables resolve.Variables
	Text      string
	Err       error
}

// Link is the public link of a published artifact.
type Link struct {
	Row        int    `json:"row"`
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
}

// Result is a snapshot of a Session.
type Result struct {
	State     State
	Rows      int
	Messages  []Message
	Artifacts []core.Artifact
	Archive   []byte
	Links     []Link
	Warnings  []Warning
}

// Session holds one run. It is not safe for concurrent use; every action
// replaces the output of that stage and clears everything downstream.
type Session struct {
	composer    Composer
	synthesizer Synthesizer
	publisher   core.Publisher
	aliases     resolve.AliasTable
	limiter     *rate.Limiter
	metrics     *observe.Metrics
	log         *logger.Logger

	state     State
	records   []leads.Record
	messages  []Message
	artifacts []core.Artifact
	archive   []byte
	links     []Link

	composeWarnings    []Warning
	synthesizeWarnings []Warning
	publishWarnings    []Warning
}

// New creates an idle Session.
func New(opts Options) (*Session, error) {
	if opts.Composer == nil {
		return nil, ErrComposerRequired
	}

	if opts.Logger == nil {
		return nil, ErrLoggerRequired
	}

	if opts.AliasTable == nil {
		opts.AliasTable = resolve.DefaultAliasTable()
	}

	if opts.Metrics == nil {
		opts.Metrics = observe.Noop()
	}

	return &Session{
		composer:    opts.Composer,
		synthesizer: opts.Synthesizer,
		publisher:   opts.Publisher,
		aliases:     opts.AliasTable,
		limiter:     opts.Limiter,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		state:       StateIdle,
	}, nil
}

// NewLimiter returns a limiter allowing requestsPerMinute calls per minute,
// or nil for zero.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// LoadRows replaces the rows of the session and discards every later output.
func (s *Session) LoadRows(records []leads.Record) {
	s.records = records
	s.messages = nil
	s.composeWarnings = nil
	s.clearSynthesis()
	s.state = StateRowsLoaded

	s.log.Info("Loaded %d rows.", len(records))
}

// ComposeMessages composes one message per row. Every composition error is a
// row warning, never an error.
func (s *Session) ComposeMessages(ctx context.Context) error {
	err := s.state.require(StateRowsLoaded, "compose")
	if err != nil {
		return err
	}

	start := time.Now()
	defer s.metrics.RecordStageDuration(ctx, observe.StageCompose, start)

	mode := s.composer.Mode()
	messages := make([]Message, 0, len(s.records))
	warnings := []Warning{}

	for row, record := range s.records {
		vars := resolve.Resolve(record, s.aliases)

		if mode == compose.ModeGenerate {
			waitErr := s.wait(ctx)
			if waitErr != nil {
				return waitErr
			}
		}

		result := s.composer.Compose(ctx, vars)
		messages = append(messages, Message{Row: row, Variables: vars, Text: result.Text, Err: result.Err})
		s.metrics.RecordRowComposed(ctx, string(mode))

		warnings = append(warnings, s.classify(ctx, row, result.Err)...)
	}

	s.messages = messages
	s.composeWarnings = warnings
	s.clearSynthesis()
	s.state = StateMessagesComposed

	s.log.Info("Composed %d messages with %d warnings in %s mode.", len(messages), len(warnings), mode)

	return nil
}

// SynthesizeVoices synthesizes every composed message. Rows whose composition
// failed for any reason other than a missing variable are skipped; a failed or
// degenerate synthesis omits the artifact.
func (s *Session) SynthesizeVoices(ctx context.Context) error {
	err := s.state.require(StateMessagesComposed, "synthesize")
	if err != nil {
		return err
	}

	if s.synthesizer == nil {
		return ErrSynthesizerRequired
	}

	start := time.Now()
	defer s.metrics.RecordStageDuration(ctx, observe.StageSynthesize, start)

	artifacts := make([]core.Artifact, 0, len(s.messages))
	warnings := []Warning{}

	for _, message := range s.messages {
		if !speakable(message.Err) {
			s.log.Info("Row %d: skipping synthesis of a failed composition.", message.Row)

			continue
		}

		waitErr := s.wait(ctx)
		if waitErr != nil {
			return waitErr
		}

		firstName := message.Variables[resolve.FirstName]

		artifact, synthErr := s.synthesizer.Synthesize(ctx, message.Row, firstName, message.Text)
		if synthErr != nil {
			warnings = append(warnings, s.warn(ctx, message.Row, KindSynthesisFailure, synthErr.Error()))

			continue
		}

		artifacts = append(artifacts, artifact)
		s.metrics.RecordArtifactAccepted(ctx)
	}

	s.clearSynthesis()
	s.artifacts = artifacts
	s.synthesizeWarnings = warnings
	s.state = StateVoicesSynthesized

	s.log.Info("Synthesized %d of %d messages.", len(artifacts), len(s.messages))

	return nil
}

// classify turns a composition error into row warnings. Errors that are
// neither a missing variable nor a failed generation still surface.
func (s *Session) classify(ctx context.Context, row int, err error) []Warning {
	if err == nil {
		return nil
	}

	var warnings []Warning

	var missing *compose.MissingVariableError
	if errors.As(err, &missing) {
		warnings = append(warnings, s.warn(ctx, row, KindMissingVariable, missing.Error()))
	}

	if errors.Is(err, compose.ErrGeneration) {
		warnings = append(warnings, s.warn(ctx, row, KindGenerationFailure, err.Error()))
	}

	if len(warnings) == 0 {
		warnings = append(warnings, s.warn(ctx, row, KindCompositionFailure, err.Error()))
	}

	return warnings
}

// speakable reports whether a composed message may be synthesized. The
// unformatted template of a missing variable is; error placeholders and
// malformed templates are not.
func speakable(err error) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, compose.ErrGeneration) {
		return false
	}

	var missing *compose.MissingVariableError

	return errors.As(err, &missing)
}

// BuildArchive bundles the accepted artifacts into one zip archive.
func (s *Session) BuildArchive(ctx context.Context) ([]byte, error) {
	err := s.state.require(StateVoicesSynthesized, "archive")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer s.metrics.RecordStageDuration(ctx, observe.StageArchive, start)

	data, err := archive.Build(s.artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to build archive: %w", err)
	}

	s.archive = data
	s.state = StateArchived

	s.log.Info("Built archive with %d entries.", len(s.artifacts))

	return data, nil
}

// PublishArtifacts publishes every accepted artifact. A failed publish is a
// row warning and the artifact stays in the archive.
func (s *Session) PublishArtifacts(ctx context.Context) ([]Link, error) {
	err := s.state.require(StateVoicesSynthesized, "publish")
	if err != nil {
		return nil, err
	}

	if s.publisher == nil {
		return nil, ErrNoPublisher
	}

	start := time.Now()
	defer s.metrics.RecordStageDuration(ctx, observe.StagePublish, start)

	links := make([]Link, 0, len(s.artifacts))
	warnings := []Warning{}

	for _, artifact := range s.artifacts {
		waitErr := s.wait(ctx)
		if waitErr != nil {
			return nil, waitErr
		}

		url, publishErr := s.publisher.Publish(ctx, artifact)
		if publishErr != nil {
			warnings = append(warnings, s.warn(ctx, artifact.Index, KindPublishFailure, publishErr.Error()))

			continue
		}

		links = append(links, Link{Row: artifact.Index, ArtifactID: artifact.ID, URL: url})
		s.metrics.RecordArtifactPublished(ctx)
	}

	s.links = links
	s.publishWarnings = warnings

	s.log.Info("Published %d of %d artifacts.", len(links), len(s.artifacts))

	return links, nil
}

// Run executes every action in order on records.
func (s *Session) Run(ctx context.Context, records []leads.Record, publish bool) (Result, error) {
	s.LoadRows(records)

	err := s.ComposeMessages(ctx)
	if err != nil {
		return s.Result(), err
	}

	err = s.SynthesizeVoices(ctx)
	if err != nil {
		return s.Result(), err
	}

	_, err = s.BuildArchive(ctx)
	if err != nil {
		return s.Result(), err
	}

	if publish {
		_, err = s.PublishArtifacts(ctx)
		if err != nil {
			return s.Result(), err
		}
	}

	return s.Result(), nil
}

// Result returns a snapshot of the session.
func (s *Session) Result() Result {
	warnings := make([]Warning, 0, len(s.composeWarnings)+len(s.synthesizeWarnings)+len(s.publishWarnings))
	warnings = append(warnings, s.composeWarnings...)
	warnings = append(warnings, s.synthesizeWarnings...)
	warnings = append(warnings, s.publishWarnings...)

	return Result{
		State:     s.state,
		Rows:      len(s.records),
		Messages:  append([]Message(nil), s.messages...),
		Artifacts: append([]core.Artifact(nil), s.artifacts...),
		Archive:   s.archive,
		Links:     append([]Link(nil), s.links...),
		Warnings:  warnings,
	}
}

func (s *Session) clearSynthesis() {
	s.artifacts = nil
	s.archive = nil
	s.links = nil
	s.synthesizeWarnings = nil
	s.publishWarnings = nil
}

func (s *Session) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}

	err := s.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	return nil
}

func (s *Session) warn(ctx context.Context, row int, kind WarningKind, detail string) Warning {
	warning := Warning{Row: row, Kind: kind, Detail: detail}

	s.log.Warn("Row %d: %s: %s", row, kind, detail)
	s.metrics.RecordRowFailure(ctx, string(kind))

	return warning
}
