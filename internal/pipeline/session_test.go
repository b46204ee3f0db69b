package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/book-expert/voice-outreach/internal/archive"
	"github.com/book-expert/voice-outreach/internal/compose"
	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/leads"
	"github.com/book-expert/voice-outreach/internal/observe"
	"github.com/book-expert/voice-outreach/internal/pipeline"
	"github.com/book-expert/voice-outreach/internal/resolve"
	"github.com/book-expert/voice-outreach/internal/tts"
)

const substitutionTemplate = "Hi {first_name}, {company_name} needs a {hiring_for_job_title}."

var (
	errMockGenerate = errors.New("mock generation error")
	errMockSynth    = errors.New("mock synthesis error: 500 Internal Server Error")
	errMockPublish  = errors.New("mock publish error")
)

// mockGenerator fails on the call numbers listed in failCalls.
type mockGenerator struct {
	failCalls map[int]bool
	calls     int
}

func (m *mockGenerator) Generate(_ context.Context, req core.GenerationRequest) (string, error) {
	call := m.calls
	m.calls++

	if m.failCalls[call] {
		return "", errMockGenerate
	}

	return "Generated: " + req.Prompt, nil
}

// mockSynthesizer returns a payload of goodSize bytes unless the text
// contains failOn or smallOn.
type mockSynthesizer struct {
	failOn  string
	smallOn string
	texts   []string
}

func (m *mockSynthesizer) Synthesize(_ context.Context, text string, _ core.VoiceSettings) ([]byte, error) {
	m.texts = append(m.texts, text)

	switch {
	case m.failOn != "" && strings.Contains(text, m.failOn):
		return nil, errMockSynth
	case m.smallOn != "" && strings.Contains(text, m.smallOn):
		return bytes.Repeat([]byte{1}, tts.MinPayloadBytes), nil
	default:
		return bytes.Repeat([]byte{1}, tts.MinPayloadBytes+1), nil
	}
}

// mockPublisher fails for the artifact IDs listed in failIDs.
type mockPublisher struct {
	failIDs   map[string]bool
	published []string
}

func (m *mockPublisher) Publish(_ context.Context, artifact core.Artifact) (string, error) {
	if m.failIDs[artifact.ID] {
		return "", errMockPublish
	}

	m.published = append(m.published, artifact.ID)

	return "https://voices.example.com/" + artifact.ID, nil
}

// formatOnlyComposer formats its template without validating it first, so a
// malformed template reaches the session as a row error.
type formatOnlyComposer struct {
	template string
}

func (c formatOnlyComposer) Compose(_ context.Context, vars resolve.Variables) compose.Result {
	text, err := compose.Format(c.template, vars)
	if err != nil {
		return compose.Result{Text: c.template, Err: err}
	}

	return compose.Result{Text: text}
}

func (formatOnlyComposer) Mode() compose.Mode {
	return compose.ModeTemplate
}

type fixture struct {
	composer    compose.Options
	custom      pipeline.Composer
	generator   *mockGenerator
	synthesizer *mockSynthesizer
	publisher   core.Publisher
	metrics     *observe.Metrics
}

func newSession(t *testing.T, f fixture) *pipeline.Session {
	t.Helper()

	if f.synthesizer == nil {
		f.synthesizer = &mockSynthesizer{}
	}

	var generator core.Generator
	if f.generator != nil {
		generator = f.generator
	}

	var composer pipeline.Composer = f.custom
	if composer == nil {
		built, err := compose.New(f.composer, generator)
		require.NoError(t, err)

		composer = built
	}

	stage, err := tts.NewStage(f.synthesizer, nil, nil)
	require.NoError(t, err)

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	session, err := pipeline.New(pipeline.Options{
		Composer:    composer,
		Synthesizer: stage,
		Publisher:   f.publisher,
		Metrics:     f.metrics,
		Logger:      log,
	})
	require.NoError(t, err)

	return session
}

func samRecord() leads.Record {
	return leads.Record{
		"first_name":           "Sam",
		"company_name":         "Acme",
		"position":             "Engineer",
		"hiring_for_job_title": "Backend Dev",
		"job_description":      "build APIs",
	}
}

func alexRecord() leads.Record {
	return leads.Record{
		"first_name":   "Alex Morgan",
		"company_name": "Globex",
		"job_title":    "Data Engineer",
	}
}

func warningKinds(warnings []pipeline.Warning) []pipeline.WarningKind {
	kinds := make([]pipeline.WarningKind, 0, len(warnings))
	for _, warning := range warnings {
		kinds = append(kinds, warning.Kind)
	}

	return kinds
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := pipeline.New(pipeline.Options{})
	require.ErrorIs(t, err, pipeline.ErrComposerRequired)
}

func TestSession_ComposeOnly(t *testing.T) {
	t.Parallel()

	composer, err := compose.New(compose.Options{Mode: compose.ModeTemplate, Template: substitutionTemplate}, nil)
	require.NoError(t, err)

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	session, err := pipeline.New(pipeline.Options{Composer: composer, Logger: log})
	require.NoError(t, err)

	session.LoadRows([]leads.Record{samRecord()})
	require.NoError(t, session.ComposeMessages(context.Background()))
	assert.Equal(t, "Hi Sam, Acme needs a Backend Dev.", session.Result().Messages[0].Text)

	require.ErrorIs(t, session.SynthesizeVoices(context.Background()), pipeline.ErrSynthesizerRequired)
}

func TestRun_SubstitutionScenario(t *testing.T) {
	t.Parallel()

	session := newSession(t, fixture{
		composer: compose.Options{Mode: compose.ModeTemplate, Template: substitutionTemplate},
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord()}, false)
	require.NoError(t, err)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Hi Sam, Acme needs a Backend Dev.", result.Messages[0].Text)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, pipeline.StateArchived, result.State)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "Sam_0", result.Artifacts[0].ID)
}

func TestRun_GenerationFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	generator := &mockGenerator{failCalls: map[int]bool{0: true}}
	synthesizer := &mockSynthesizer{}
	session := newSession(t, fixture{
		composer:    compose.Options{Mode: compose.ModeGenerate, Template: "Write to {first_name} at {company_name}."},
		generator:   generator,
		synthesizer: synthesizer,
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord(), alexRecord()}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, generator.calls, "second row still processed")
	require.Len(t, result.Messages, 2)
	assert.Contains(t, result.Messages[0].Text, compose.GPTErrorMarker)
	assert.Equal(t, "Generated: Write to Alex at Globex.", result.Messages[1].Text)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, pipeline.KindGenerationFailure, result.Warnings[0].Kind)
	assert.Equal(t, 0, result.Warnings[0].Row)
	assert.Contains(t, result.Warnings[0].Detail, "mock generation error")

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "Alex_1", result.Artifacts[0].ID)
	assert.Len(t, synthesizer.texts, 1, "error placeholders are not synthesized")
}

func TestRun_ArchiveContainsAcceptedArtifacts(t *testing.T) {
	t.Parallel()

	session := newSession(t, fixture{
		composer: compose.Options{Mode: compose.ModeTemplate, Template: "Hi {first_name}."},
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord(), alexRecord()}, false)
	require.NoError(t, err)

	names, err := archive.Entries(result.Archive)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Sam_0.mp3", "Alex_1.mp3"}, names)
}

func TestRun_SynthesisFailuresOmitArtifacts(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := observe.NewMetrics(provider)
	require.NoError(t, err)

	session := newSession(t, fixture{
		composer:    compose.Options{Mode: compose.ModeTemplate, Template: "Hi {first_name}."},
		synthesizer: &mockSynthesizer{failOn: "Alex", smallOn: "Jo"},
		metrics:     metrics,
	})

	records := []leads.Record{samRecord(), alexRecord(), {"first_name": "Jo"}}

	result, err := session.Run(context.Background(), records, false)
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "Sam_0", result.Artifacts[0].ID)

	require.Len(t, result.Warnings, 2)
	assert.Equal(t, pipeline.Warning{
		Row:    1,
		Kind:   pipeline.KindSynthesisFailure,
		Detail: "synthesis failed for row 1: mock synthesis error: 500 Internal Server Error",
	}, result.Warnings[0])
	assert.Equal(t, 2, result.Warnings[1].Row)
	assert.Contains(t, result.Warnings[1].Detail, tts.ErrPayloadTooSmall.Error())

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var failures int64

	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok && met.Name == "outreach.row.failures" {
				for _, dp := range sum.DataPoints {
					failures += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), failures)
}

func TestRun_MissingVariableFallsBackToTemplate(t *testing.T) {
	t.Parallel()

	template := "Hi {first_name}, loved {podcast_name}."
	synthesizer := &mockSynthesizer{}
	session := newSession(t, fixture{
		composer:    compose.Options{Mode: compose.ModeTemplate, Template: template},
		synthesizer: synthesizer,
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord()}, false)
	require.NoError(t, err)

	assert.Equal(t, template, result.Messages[0].Text)
	assert.Equal(t, []pipeline.WarningKind{pipeline.KindMissingVariable}, warningKinds(result.Warnings))
	assert.Len(t, result.Artifacts, 1)
}

func TestRun_MalformedTemplateIsWarned(t *testing.T) {
	t.Parallel()

	template := "Hi {first_name}, see you }"
	synthesizer := &mockSynthesizer{}
	session := newSession(t, fixture{
		custom:      formatOnlyComposer{template: template},
		synthesizer: synthesizer,
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord()}, false)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, 0, result.Warnings[0].Row)
	assert.Equal(t, pipeline.KindCompositionFailure, result.Warnings[0].Kind)
	assert.Contains(t, result.Warnings[0].Detail, compose.ErrMalformedTemplate.Error())

	require.ErrorIs(t, result.Messages[0].Err, compose.ErrMalformedTemplate)
	assert.Empty(t, result.Artifacts)
	assert.Empty(t, synthesizer.texts)
}

func TestRun_PublishFailureKeepsArtifact(t *testing.T) {
	t.Parallel()

	publisher := &mockPublisher{failIDs: map[string]bool{"Sam_0": true}}
	session := newSession(t, fixture{
		composer:  compose.Options{Mode: compose.ModeTemplate, Template: "Hi {first_name}."},
		publisher: publisher,
	})

	result, err := session.Run(context.Background(), []leads.Record{samRecord(), alexRecord()}, true)
	require.NoError(t, err)

	assert.Equal(t, []pipeline.Link{{Row: 1, ArtifactID: "Alex_1", URL: "https://voices.example.com/Alex_1"}}, result.Links)
	assert.Equal(t, []pipeline.WarningKind{pipeline.KindPublishFailure}, warningKinds(result.Warnings))

	names, err := archive.Entries(result.Archive)
	require.NoError(t, err)
	assert.Len(t, names, 2, "failed publish keeps the artifact in the archive")
}

func TestSession_Transitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	session := newSession(t, fixture{
		composer: compose.Options{Mode: compose.ModeTemplate, Template: "Hi {first_name}."},
	})

	assert.Equal(t, pipeline.StateIdle, session.State())
	require.ErrorIs(t, session.ComposeMessages(ctx), pipeline.ErrInvalidTransition)
	require.ErrorIs(t, session.SynthesizeVoices(ctx), pipeline.ErrInvalidTransition)

	_, err := session.BuildArchive(ctx)
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)

	session.LoadRows([]leads.Record{samRecord()})
	require.ErrorIs(t, session.SynthesizeVoices(ctx), pipeline.ErrInvalidTransition)
	require.NoError(t, session.ComposeMessages(ctx))

	_, err = session.BuildArchive(ctx)
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)

	require.NoError(t, session.SynthesizeVoices(ctx))

	_, err = session.PublishArtifacts(ctx)
	require.ErrorIs(t, err, pipeline.ErrNoPublisher)

	_, err = session.BuildArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateArchived, session.State())

	require.NoError(t, session.ComposeMessages(ctx), "composing again is allowed")
	assert.Equal(t, pipeline.StateMessagesComposed, session.State())

	result := session.Result()
	assert.Len(t, result.Messages, 1)
	assert.Empty(t, result.Artifacts, "recomposing discards artifacts")
	assert.Nil(t, result.Archive)
}

func TestSession_CanceledContext(t *testing.T) {
	t.Parallel()

	session := newSession(t, fixture{
		composer: compose.Options{Mode: compose.ModeTemplate, Template: "Hi {first_name}."},
	})
	session.LoadRows([]leads.Record{samRecord()})
	require.NoError(t, session.ComposeMessages(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, session.SynthesizeVoices(ctx), context.Canceled)
	assert.Equal(t, pipeline.StateMessagesComposed, session.State())
}

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	assert.Nil(t, pipeline.NewLimiter(0))

	limiter := pipeline.NewLimiter(120)
	require.NotNil(t, limiter)
	assert.InDelta(t, 2.0, float64(limiter.Limit()), 1e-9)
}

func TestWarning_String(t *testing.T) {
	t.Parallel()

	warning := pipeline.Warning{Row: 3, Kind: pipeline.KindPublishFailure, Detail: "403"}
	assert.Equal(t, "row 3: publish_failure: 403", warning.String())
	assert.Equal(t, "voices_synthesized", pipeline.StateVoicesSynthesized.String())
}
