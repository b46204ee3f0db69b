// Package text provides the text transforms applied to a message before it is
// sent for speech synthesis: typographic normalization, long-sentence
// splitting, and pause-marker insertion.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	whitespaceRegexPattern   = `\s+`
	abbreviationRegexPattern = `\b(Mr|Mrs|Ms|Dr|St|Co|Ltd|Corp|Inc)\.`
)

var abbreviations = map[string]string{
	"Mr":   "Mister",
	"Mrs":  "Misses",
	"Ms":   "Miss",
	"Dr":   "Doctor",
	"St":   "Saint",
	"Co":   "Company",
	"Ltd":  "Limited",
	"Corp": "Corporation",
	"Inc":  "Incorporated",
}

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Default pause markers and trigger phrases.
const (
	DefaultSentencePause = `<break time="0.6s" />`
	DefaultClausePause   = `<break time="0.3s" />`
)

// DefaultTriggerPhrases lists phrases that read better with a pause after them.
var DefaultTriggerPhrases = []string{
	"by the way",
	"quick question",
	"to be honest",
	"no pressure",
	"the reason I'm reaching out",
}

// Config holds the pacing options. The zero value disables every transform.
type Config struct {
	// SplitThreshold is the word count above which a sentence is split in
	// two. Zero disables splitting.
	SplitThreshold int `toml:"split_threshold"`
	// SentencePause is inserted after sentence ends and trigger phrases.
	SentencePause string `toml:"sentence_pause"`
	// ClausePause is inserted after ',', ';' and ':'.
	ClausePause    string   `toml:"clause_pause"`
	TriggerPhrases []string `toml:"trigger_phrases"`
	// ExpandAbbreviations spells out titles such as "Dr." so they are not
	// mistaken for sentence ends.
	ExpandAbbreviations bool `toml:"expand_abbreviations"`
}

// Pacer applies the configured transforms.
type Pacer struct {
	cfg                 Config
	whitespacePattern   *regexp.Regexp
	typographyReplacer  *strings.Replacer
	abbreviationPattern *regexp.Regexp
	markers             []string
}

// NewPacer creates a Pacer with precompiled patterns and replacers.
func NewPacer(cfg Config) *Pacer {
	var markers []string

	for _, marker := range []string{cfg.SentencePause, cfg.ClausePause} {
		if marker != "" {
			markers = append(markers, marker)
		}
	}

	// Longest marker first so a marker that prefixes another is not matched early.
	if len(markers) == 2 && len(markers[1]) > len(markers[0]) {
		markers[0], markers[1] = markers[1], markers[0]
	}

	return &Pacer{
		cfg:               cfg,
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		typographyReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		abbreviationPattern: regexp.MustCompile(abbreviationRegexPattern),
		markers:             markers,
	}
}

// IsNoop reports whether Process returns its input unchanged.
func (p *Pacer) IsNoop() bool {
	return p.cfg.SplitThreshold <= 0 &&
		len(p.markers) == 0 &&
		!p.cfg.ExpandAbbreviations
}

// Process runs the enabled transforms in order: normalization, abbreviation
// expansion, sentence splitting, pause insertion.
func (p *Pacer) Process(text string) string {
	if p.IsNoop() {
		return text
	}

	processed := p.Normalize(text)

	if p.cfg.ExpandAbbreviations {
		processed = p.ExpandAbbreviations(processed)
	}

	if p.cfg.SplitThreshold > 0 {
		processed = p.SplitLongSentences(processed)
	}

	if len(p.markers) > 0 {
		processed = p.InsertPauses(processed)
	}

	return processed
}

// Normalize collapses whitespace and replaces typographic quotes, dashes and
// ellipses with their ASCII forms.
func (p *Pacer) Normalize(text string) string {
	text = p.typographyReplacer.Replace(text)
	text = p.whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// ExpandAbbreviations spells out the known titles and company suffixes.
func (p *Pacer) ExpandAbbreviations(text string) string {
	return p.abbreviationPattern.ReplaceAllStringFunc(text, func(match string) string {
		return abbreviations[strings.TrimSuffix(match, ".")]
	})
}

// SplitLongSentences splits every sentence longer than the threshold in two
// and terminates the first half so it is read as its own sentence.
func (p *Pacer) SplitLongSentences(text string) string {
	sentences := Sentences(text)
	out := make([]string, 0, len(sentences))

	for _, sentence := range sentences {
		parts := SplitSentence(sentence, p.cfg.SplitThreshold)
		if len(parts) == 1 {
			out = append(out, sentence)

			continue
		}

		out = append(out, terminate(parts[0]), parts[1])
	}

	return strings.Join(out, " ")
}

// SplitSentence returns sentence unchanged when it has at most threshold
// words (or threshold is not positive); otherwise it returns the two halves
// split at the midpoint word boundary. The halves keep the original word
// order and together contain every word exactly once.
func SplitSentence(sentence string, threshold int) []string {
	words := strings.Fields(sentence)
	if threshold <= 0 || len(words) <= threshold {
		return []string{sentence}
	}

	mid := len(words) / 2

	return []string{
		strings.Join(words[:mid], " "),
		strings.Join(words[mid:], " "),
	}
}

// Sentences splits text after each run of '.', '!' or '?' that is followed by
// whitespace or the end of the text.
func Sentences(text string) []string {
	var (
		sentences []string
		start     int
	)

	for i, r := range text {
		if !isSentenceEnd(r) {
			continue
		}

		next := i + utf8.RuneLen(r)
		if next < len(text) {
			nextRune, _ := utf8.DecodeRuneInString(text[next:])
			if !unicode.IsSpace(nextRune) {
				continue
			}
		}

		if sentence := strings.TrimSpace(text[start:next]); sentence != "" {
			sentences = append(sentences, sentence)
		}

		start = next
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	return sentences
}

// InsertPauses adds the sentence pause after sentence ends and trigger
// phrases and the clause pause after clause punctuation. A pause is only
// inserted between words, never at the end, and never where a marker is
// already present, so the transform is idempotent.
func (p *Pacer) InsertPauses(text string) string {
	var out strings.Builder

	out.Grow(len(text))

	for i := 0; i < len(text); {
		if marker := p.markerAt(text, i); marker != "" {
			out.WriteString(marker)

			i += len(marker)

			continue
		}

		if phrase := p.triggerAt(text, i); phrase != "" {
			out.WriteString(text[i : i+len(phrase)])

			i += len(phrase)
			p.pauseAfter(&out, text, i, p.cfg.SentencePause)

			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		out.WriteRune(r)

		i += size

		switch {
		case isSentenceEnd(r):
			p.pauseAfter(&out, text, i, p.cfg.SentencePause)
		case isClauseEnd(r):
			p.pauseAfter(&out, text, i, p.cfg.ClausePause)
		}
	}

	return out.String()
}

func (p *Pacer) pauseAfter(out *strings.Builder, text string, pos int, marker string) {
	if marker == "" || pos >= len(text) {
		return
	}

	r, _ := utf8.DecodeRuneInString(text[pos:])
	if !unicode.IsSpace(r) {
		return
	}

	next := pos + len(text[pos:]) - len(strings.TrimLeftFunc(text[pos:], unicode.IsSpace))
	if next >= len(text) || p.markerAt(text, next) != "" {
		return
	}

	out.WriteString(" " + marker)
}

func (p *Pacer) markerAt(text string, pos int) string {
	for _, marker := range p.markers {
		if strings.HasPrefix(text[pos:], marker) {
			return marker
		}
	}

	return ""
}

func (p *Pacer) triggerAt(text string, pos int) string {
	if p.cfg.SentencePause == "" {
		return ""
	}

	if pos > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:pos])
		if isWordRune(prev) {
			return ""
		}
	}

	for _, phrase := range p.cfg.TriggerPhrases {
		end := pos + len(phrase)
		if phrase == "" || end > len(text) || !strings.EqualFold(text[pos:end], phrase) {
			continue
		}

		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if isWordRune(next) {
				continue
			}
		}

		return phrase
	}

	return ""
}

func terminate(sentence string) string {
	last, _ := utf8.DecodeLastRuneInString(sentence)
	if unicode.IsPunct(last) {
		return sentence
	}

	return sentence + "."
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClauseEnd(r rune) bool {
	return r == ',' || r == ';' || r == ':'
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
