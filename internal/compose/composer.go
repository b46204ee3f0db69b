// Package compose turns resolved lead variables into one outreach message,
// either by direct template substitution or through a generation backend.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/resolve"
)

// Mode selects how a message is produced.
type Mode string

const (
	// ModeTemplate interpolates the template directly.
	ModeTemplate Mode = "template"
	// ModeGenerate sends the interpolated template as a prompt.
	ModeGenerate Mode = "generate"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeTemplate || m == ModeGenerate
}

// SenderNameVar is the variable the configured sender name is exposed as.
const SenderNameVar = "sender_name"

// GPTErrorMarker prefixes the message of a row whose generation call failed.
const GPTErrorMarker = "[GPT Error]"

// Defaults.
const (
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 300
	DefaultSignatureMarker = "cheers"

	DefaultTemplate = "Hi {first_name}, I saw that {company_name} is hiring for a {hiring_for_job_title}. " +
		"We help teams like yours find strong candidates fast, so I recorded this quick note for you. " +
		"Would you be open to a short chat this week?"

	DefaultPrompt = "Write a short, friendly voice-note script of at most 80 words addressed to {first_name}, " +
		"the {position} at {company_name}. They are hiring for a {hiring_for_job_title}. " +
		"Job description: {job_description}. Sound like a real person leaving a casual voice message, " +
		"mention the role, and end with a light call to action. Do not add a sign-off or placeholders."
)

const signatureFormat = "\n\nCheers, %s"

var (
	// ErrGeneration marks a row whose generation call failed.
	ErrGeneration = errors.New("generation failed")
	// ErrUnsupportedMode is returned for an unknown Mode.
	ErrUnsupportedMode = errors.New("unsupported compose mode")
	// ErrGeneratorRequired is returned when ModeGenerate has no backend.
	ErrGeneratorRequired = errors.New("generate mode requires a generator")
)

// Options configures a Composer.
type Options struct {
	Mode Mode
	// Template is the substitution template or the generation prompt.
	Template   string
	SenderName string
	// Temperature is sent as is. Zero is a valid, deterministic setting.
	Temperature float64
	// MaxTokens defaults to DefaultMaxTokens when zero.
	MaxTokens       int
	SignatureMarker string
}

// Result is the composed message of one row. Err is set when the row hit a
// recoverable condition; Text is always usable.
type Result struct {
	Text string
	Err  error
}

// Composer produces one message per resolved row.
type Composer struct {
	opts      Options
	generator core.Generator
}

// New validates opts and returns a Composer. generator may be nil in
// ModeTemplate.
func New(opts Options, generator core.Generator) (*Composer, error) {
	if !opts.Mode.IsValid() {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedMode, opts.Mode)
	}

	if opts.Mode == ModeGenerate && generator == nil {
		return nil, ErrGeneratorRequired
	}

	_, err := Placeholders(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	if opts.SignatureMarker == "" {
		opts.SignatureMarker = DefaultSignatureMarker
	}

	opts.SenderName = strings.TrimSpace(opts.SenderName)

	return &Composer{opts: opts, generator: generator}, nil
}

// Mode returns the configured mode.
func (c *Composer) Mode() Mode {
	return c.opts.Mode
}

// Compose builds the message for vars. A missing placeholder falls back to the
// unformatted template; a failed generation call yields a visible
// GPTErrorMarker message. Neither aborts the caller's batch.
func (c *Composer) Compose(ctx context.Context, vars resolve.Variables) Result {
	vars = c.withSender(vars)

	text, formatErr := Format(c.opts.Template, vars)
	if formatErr != nil {
		text = c.opts.Template
	}

	if c.opts.Mode == ModeGenerate {
		generated, genErr := c.generator.Generate(ctx, core.GenerationRequest{
			Prompt:      text,
			Temperature: c.opts.Temperature,
			MaxTokens:   c.opts.MaxTokens,
		})
		if genErr != nil {
			return Result{
				Text: fmt.Sprintf("%s %v", GPTErrorMarker, genErr),
				Err:  errors.Join(formatErr, fmt.Errorf("%w: %w", ErrGeneration, genErr)),
			}
		}

		text = replaceNamePlaceholders(strings.TrimSpace(generated), vars[resolve.FirstName], c.opts.SenderName)
	}

	return Result{Text: c.appendSignature(text), Err: formatErr}
}

func (c *Composer) withSender(vars resolve.Variables) resolve.Variables {
	if c.opts.SenderName == "" {
		return vars
	}

	out := vars.Clone()
	out[SenderNameVar] = c.opts.SenderName

	return out
}

func (c *Composer) appendSignature(text string) string {
	if c.opts.SenderName == "" {
		return text
	}

	if strings.Contains(strings.ToLower(text), strings.ToLower(c.opts.SignatureMarker)) {
		return text
	}

	return text + fmt.Sprintf(signatureFormat, c.opts.SenderName)
}

var (
	recipientTokens = []string{"[Name]", "[First Name]", "[Recipient Name]", "[Recipient's Name]"}
	senderTokens    = []string{"[Your Name]", "[Sender Name]", "[My Name]"}
)

// replaceNamePlaceholders swaps generic name tokens a generator tends to emit
// for the real names.
func replaceNamePlaceholders(text, firstName, senderName string) string {
	pairs := make([]string, 0, 2*(len(recipientTokens)+len(senderTokens)))

	if firstName != "" {
		for _, token := range recipientTokens {
			pairs = append(pairs, token, firstName)
		}
	}

	if senderName != "" {
		for _, token := range senderTokens {
			pairs = append(pairs, token, senderName)
		}
	}

	if len(pairs) == 0 {
		return text
	}

	return strings.NewReplacer(pairs...).Replace(text)
}
