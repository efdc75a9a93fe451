package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"quizforge-backend/internal/models"
)

const defaultMinUnitRunes = 20

// Candidate is a unit produced by a strategy. Marker is the numbering text
// that opened the unit, if any.
type Candidate struct {
	Text   string
	Marker string
}

// Strategy splits raw document text into candidate question units.
type Strategy interface {
	Name() string
	Split(text string) []Candidate
}

var (
	choiceMarkerRe = regexp.MustCompile(`(?m)(?:[①-⑳]|^[ \t　]*[(（]?(?:[A-Ha-hＡ-Ｈ]|[アイウエオ]|[0-9０-９]{1,2})[)）\.．、:：])`)
	explanationRe  = regexp.MustCompile(`解説|正解|答え|解答|(?i:answer|explanation)`)
	interrogRe     = regexp.MustCompile(`[?？]|ですか|ますか|どれ|何|なぜ|選べ|選びなさい|(?i:\b(?:which|what|why|how|when|who|choose|select)\b)`)
	paragraphRe    = regexp.MustCompile(`\n[ \t　]*\n`)
)

// markerStrategy cuts text at every match of a numbering pattern. Only
// matches whose number advances past the previous accepted one are used, so
// numbered choice lists inside a question do not restart the sequence.
type markerStrategy struct {
	name string
	re   *regexp.Regexp
}

func NewMarkerStrategy(name, pattern string) Strategy {
	return &markerStrategy{name: name, re: regexp.MustCompile(pattern)}
}

func (m *markerStrategy) Name() string { return m.name }

func (m *markerStrategy) Split(text string) []Candidate {
	matches := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return nil
	}

	var starts [][2]int
	last := -1
	for _, loc := range matches {
		n := -1
		if len(loc) >= 4 && loc[2] >= 0 {
			n = parseNumber(text[loc[2]:loc[3]])
		}
		if n >= 0 && n <= last {
			continue
		}
		if n >= 0 {
			last = n
		}
		starts = append(starts, [2]int{loc[0], loc[1]})
	}
	if len(starts) < 2 {
		return nil
	}

	out := make([]Candidate, 0, len(starts))
	for i, st := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		out = append(out, Candidate{
			Text:   strings.TrimSpace(text[st[0]:end]),
			Marker: strings.TrimSpace(text[st[0]:st[1]]),
		})
	}
	return out
}

type paragraphStrategy struct{}

func (paragraphStrategy) Name() string { return "paragraph" }

func (paragraphStrategy) Split(text string) []Candidate {
	var out []Candidate
	for _, p := range paragraphRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, Candidate{Text: p})
		}
	}
	return out
}

// DefaultStrategies returns the numbering conventions in order of preference.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewMarkerStrategy("bracket_mon", `【\s*問\s*([0-9０-９]+)\s*】`),
		NewMarkerStrategy("mon_dot", `問\s*([0-9０-９]+)\s*[\.．。、:：)）]`),
		NewMarkerStrategy("dai_mon", `第\s*([0-9０-９]+)\s*問`),
		NewMarkerStrategy("q_number", `(?i)\bQ\s*([0-9]+)\s*[\.．:：)]`),
		NewMarkerStrategy("bare_number", `(?m)^[ \t　]*([0-9０-９]{1,3})[\.．][ \t　]*\S`),
	}
}

type SegmenterOption func(*Segmenter)

func WithStrategies(strategies ...Strategy) SegmenterOption {
	return func(s *Segmenter) { s.strategies = strategies }
}

func WithMinUnitRunes(n int) SegmenterOption {
	return func(s *Segmenter) {
		if n > 0 {
			s.minUnitRunes = n
		}
	}
}

// Segmenter picks the numbering strategy that yields the most plausible
// question units. It holds no state between calls.
type Segmenter struct {
	strategies   []Strategy
	fallback     Strategy
	minUnitRunes int
}

func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		strategies:   DefaultStrategies(),
		fallback:     paragraphStrategy{},
		minUnitRunes: defaultMinUnitRunes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Segmenter) Segment(raw string) []string {
	text := normalizeNewlines(raw)
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < s.minUnitRunes {
		return nil
	}

	var best []string
	for _, st := range s.strategies {
		var units []string
		for _, c := range st.Split(text) {
			if s.plausibleUnit(c) {
				units = append(units, c.Text)
			}
		}
		// ties keep the earlier, more specific convention
		if len(units) >= 2 && len(units) > len(best) {
			best = units
		}
	}
	if len(best) > 0 {
		return best
	}

	var paragraphs []string
	for _, c := range s.fallback.Split(text) {
		if s.plausibleParagraph(c.Text) {
			paragraphs = append(paragraphs, c.Text)
		}
	}
	if len(paragraphs) > 0 {
		return paragraphs
	}

	return []string{trimmed}
}

// Candidates wraps Segment output with its position in the sequence.
func (s *Segmenter) Candidates(raw string) []models.ExtractionCandidate {
	units := s.Segment(raw)
	out := make([]models.ExtractionCandidate, len(units))
	for i, u := range units {
		out[i] = models.ExtractionCandidate{RawText: u, SourceIndex: i}
	}
	return out
}

func (s *Segmenter) plausibleUnit(c Candidate) bool {
	if utf8.RuneCountInString(c.Text) < s.minUnitRunes {
		return false
	}
	rest := strings.TrimPrefix(c.Text, c.Marker)
	return choiceMarkerRe.MatchString(rest) || explanationRe.MatchString(rest)
}

func (s *Segmenter) plausibleParagraph(p string) bool {
	if utf8.RuneCountInString(p) < s.minUnitRunes {
		return false
	}
	return interrogRe.MatchString(p) || choiceMarkerRe.MatchString(p)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// parseNumber reads half- or full-width digits; -1 when not a number.
func parseNumber(s string) int {
	n, err := strconv.Atoi(width.Narrow.String(strings.TrimSpace(s)))
	if err != nil {
		return -1
	}
	return n
}
