package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"quizforge-backend/internal/models"
)

const (
	minFallbackRunes   = 10
	defaultTitle       = "抽出問題"
	placeholderChoices = 4
	degenerateBodyMax  = 200
)

var (
	titleLineRe = regexp.MustCompile(`^(?:【\s*問\s*([0-9０-９]+)\s*】|問\s*([0-9０-９]+)\s*[\.．。、:：)）]?|第\s*([0-9０-９]+)\s*問|[QqＱ]\s*([0-9０-９]+)\s*[\.．:：)）])\s*(.*)$`)
	bareTitleRe = regexp.MustCompile(`^([0-9０-９]{1,3})[\.．]\s*(.*)$`)

	circledChoiceRe = regexp.MustCompile(`^([①-⑳])\s*(.*)$`)
	parenChoiceRe   = regexp.MustCompile(`^[(（]([A-Za-zＡ-Ｚａ-ｚ]|[アイウエオ]|[0-9０-９]{1,2})[)）]\s*(.*)$`)
	letterChoiceRe  = regexp.MustCompile(`^([A-Za-zＡ-Ｚａ-ｚ]|[アイウエオ])[\.．、:：)）]\s*(.*)$`)
	numberChoiceRe  = regexp.MustCompile(`^([0-9０-９]{1,2})([\.．、:：)）])(.*)$`)

	// Marker words must be bracketed, followed by a delimiter, or directly
	// followed by a label, so body text such as "答えなさい" stays body text.
	answerLineRes = []*regexp.Regexp{
		regexp.MustCompile(`^[(（【\[]\s*(?:正解|答え|解答|(?i:answer))\s*[)）】\]]\s*[:：は]?\s*(.*)$`),
		regexp.MustCompile(`^(?:正解|答え|解答|(?i:answer))\s*[:：は]\s*(.*)$`),
		regexp.MustCompile(`^(?:正解|解答)\s*([①-⑳].*)$`),
	}
	// "正解 B": only counts when a choice label follows the space
	bareAnswerRe = regexp.MustCompile(`^(?:正解|答え|解答|(?i:answer))\s+(.+)$`)
	explanationLineRes = []*regexp.Regexp{
		regexp.MustCompile(`^[(（【\[]\s*(?:解説|説明|(?i:explanation))\s*[)）】\]]\s*[:：]?\s*(.*)$`),
		regexp.MustCompile(`^(?:解説|説明|(?i:explanation))\s*[:：]\s*(.*)$`),
		regexp.MustCompile(`^(?:解説|(?i:explanation))(?:\s+(.*))?$`),
	}

	answerTokenSepRe = regexp.MustCompile(`[,、，・/／\s]+|と|および`)
	answerIDRe       = regexp.MustCompile(`^(?:[①-⑳]|[A-Za-zＡ-Ｚａ-ｚ]|[アイウエオ]|[0-9０-９]{1,2})$`)
	circledAnywhere  = regexp.MustCompile(`[①-⑳]`)
	answerPrefixRe   = regexp.MustCompile(`^([A-Za-zＡ-Ｚ]|[アイウエオ]|[0-9０-９]{1,2})`)
)

// FallbackParser recovers a question from a unit with line rules alone. It
// never calls out and never returns an error; text it cannot make sense of
// becomes a degenerate record for the validator to judge.
type FallbackParser struct {
	MultipleAnswer bool
	Difficulty     models.Difficulty
}

type parsedChoice struct {
	ordinal int
	text    string
}

type section int

const (
	sectionBody section = iota
	sectionChoices
	sectionExplanation
)

// Parse returns false only when the unit is too short to hold a question.
func (p FallbackParser) Parse(unit string) (models.ExtractedStructure, bool) {
	text := strings.TrimSpace(normalizeNewlines(unit))
	if utf8.RuneCountInString(text) < minFallbackRunes {
		return models.ExtractedStructure{}, false
	}

	var (
		title       string
		body        []string
		choices     []parsedChoice
		explanation []string
		answerIDs   []int
		answerTexts []string
		sec         = sectionBody
	)

	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if title == "" && i < 3 && sec == sectionBody && len(body) == 0 {
			if num, rest, ok := matchTitle(line, i == 0); ok {
				title = "問題" + strconv.Itoa(num)
				if rest != "" {
					body = append(body, rest)
				}
				continue
			}
		}

		rest, ok := matchFirst(answerLineRes, line)
		if !ok {
			rest, ok = matchBareAnswer(line)
		}
		if ok {
			ids, remainder := parseAnswerIDs(rest)
			answerIDs = append(answerIDs, ids...)
			switch {
			case len(ids) == 0 && remainder != "":
				answerTexts = append(answerTexts, remainder)
			case remainder != "":
				explanation = append(explanation, remainder)
			}
			sec = sectionExplanation
			continue
		}
		if rest, ok := matchFirst(explanationLineRes, line); ok {
			if rest != "" {
				explanation = append(explanation, rest)
			}
			sec = sectionExplanation
			continue
		}

		if sec == sectionExplanation {
			explanation = append(explanation, line)
			continue
		}

		if ord, content, ok := matchChoice(line); ok {
			choices = append(choices, parsedChoice{ordinal: ord, text: content})
			sec = sectionChoices
			continue
		}

		switch sec {
		case sectionChoices:
			last := &choices[len(choices)-1]
			last.text = strings.TrimSpace(last.text + " " + line)
		default:
			body = append(body, line)
		}
	}

	out := models.ExtractedStructure{
		Title:        title,
		QuestionText: strings.Join(body, "\n"),
		Explanation:  strings.Join(explanation, "\n"),
		Difficulty:   p.Difficulty,
	}
	if out.Title == "" {
		out.Title = defaultTitle
	}
	if out.Difficulty == "" {
		out.Difficulty = models.DifficultyMedium
	}

	if !p.MultipleAnswer && len(answerIDs) > 1 {
		answerIDs = answerIDs[:1]
	}
	out.Choices = make([]models.ExtractedChoice, len(choices))
	for i, c := range choices {
		out.Choices[i] = models.ExtractedChoice{Text: c.text, IsCorrect: containsInt(answerIDs, c.ordinal)}
	}
	// an answer given as the choice wording rather than its label
	for _, at := range answerTexts {
		matched := false
		for i := range out.Choices {
			if out.CorrectCount() > 0 && !p.MultipleAnswer {
				break
			}
			if out.Choices[i].Text == at {
				out.Choices[i].IsCorrect = true
				matched = true
			}
		}
		if !matched {
			out.Explanation = strings.TrimSpace(at + "\n" + out.Explanation)
		}
	}

	if out.QuestionText == "" || len(out.Choices) < 2 {
		out.Degenerate = true
		if out.QuestionText == "" {
			out.QuestionText = truncateRunes(strings.Join(strings.Fields(text), " "), degenerateBodyMax)
		}
		for i := len(out.Choices); i < placeholderChoices; i++ {
			out.Choices = append(out.Choices, models.ExtractedChoice{Text: "選択肢" + strconv.Itoa(i+1)})
		}
	}

	if out.CorrectCount() == 0 {
		out.Choices[0].IsCorrect = true
	}
	return out, true
}

func matchTitle(line string, first bool) (int, string, bool) {
	if m := titleLineRe.FindStringSubmatch(line); m != nil {
		for _, g := range m[1:5] {
			if g != "" {
				return parseNumber(g), strings.TrimSpace(m[5]), true
			}
		}
	}
	if first {
		if m := bareTitleRe.FindStringSubmatch(line); m != nil {
			rest := strings.TrimSpace(m[2])
			// a short remainder is more likely a numbered choice than a question
			if utf8.RuneCountInString(rest) >= 10 {
				return parseNumber(m[1]), rest, true
			}
		}
	}
	return 0, "", false
}

func matchFirst(res []*regexp.Regexp, line string) (string, bool) {
	for _, re := range res {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func matchBareAnswer(line string) (string, bool) {
	m := bareAnswerRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	rest := strings.TrimSpace(m[1])
	first := answerTokenSepRe.Split(rest, 2)[0]
	if !answerIDRe.MatchString(strings.Trim(first, "()（）.．[]【】「」")) {
		return "", false
	}
	return rest, true
}

func matchChoice(line string) (int, string, bool) {
	if m := circledChoiceRe.FindStringSubmatch(line); m != nil {
		return ordinal(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := parenChoiceRe.FindStringSubmatch(line); m != nil {
		return ordinal(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := letterChoiceRe.FindStringSubmatch(line); m != nil {
		return ordinal(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := numberChoiceRe.FindStringSubmatch(line); m != nil {
		rest := m[3]
		// "1.5" is a decimal, not a numbered choice
		if (m[2] == "." || m[2] == "．") && startsWithDigit(rest) {
			return 0, "", false
		}
		return ordinal(m[1]), strings.TrimSpace(rest), true
	}
	return 0, "", false
}

// parseAnswerIDs reads choice identifiers from the text after an answer
// marker and returns any trailing prose separately.
func parseAnswerIDs(rest string) ([]int, string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil, ""
	}

	var ids []int
	pos := 0
	for _, tok := range answerTokenSepRe.Split(rest, -1) {
		t := strings.Trim(tok, "()（）.．[]【】「」")
		if t == "" {
			continue
		}
		if !answerIDRe.MatchString(t) {
			break
		}
		ids = append(ids, ordinal(t))
		pos += strings.Index(rest[pos:], tok) + len(tok)
	}
	if len(ids) > 0 {
		return ids, strings.TrimSpace(strings.TrimLeft(rest[pos:], ",、，・/／ "))
	}

	if c := circledAnywhere.FindString(rest); c != "" {
		return []int{ordinal(c)}, ""
	}
	if m := answerPrefixRe.FindStringSubmatch(width.Fold.String(rest)); m != nil {
		return []int{ordinal(m[1])}, ""
	}
	return nil, rest
}

// ordinal maps a choice label to its 1-based position.
func ordinal(label string) int {
	r, _ := utf8.DecodeRuneInString(label)
	if r >= '①' && r <= '⑳' {
		return int(r-'①') + 1
	}
	if i := strings.IndexRune("アイウエオ", r); i >= 0 {
		return i/utf8.RuneLen('ア') + 1
	}
	narrow := width.Narrow.String(label)
	if n, err := strconv.Atoi(narrow); err == nil {
		return n
	}
	r, _ = utf8.DecodeRuneInString(strings.ToLower(narrow))
	if r >= 'a' && r <= 'z' {
		return int(r-'a') + 1
	}
	return 0
}

func startsWithDigit(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return (r >= '0' && r <= '9') || (r >= '０' && r <= '９')
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
