package models

type Mode string

const (
	ModeGenerate        Mode = "generate"
	ModeExtractVerbatim Mode = "extract_verbatim"
)

func (m Mode) Valid() bool {
	return m == ModeGenerate || m == ModeExtractVerbatim
}

// ExtractionCandidate is one unit of raw text believed to hold a single question.
type ExtractionCandidate struct {
	RawText     string `json:"raw_text"`
	SourceIndex int    `json:"source_index"`
}

type ExtractedChoice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type ExtractedStructure struct {
	Title        string            `json:"title"`
	QuestionText string            `json:"question_text"`
	Choices      []ExtractedChoice `json:"choices"`
	Explanation  string            `json:"explanation"`
	Difficulty   Difficulty        `json:"difficulty"`
	// Degenerate marks a record synthesized from unparseable text.
	Degenerate bool `json:"degenerate,omitempty"`
}

func (s ExtractedStructure) CorrectCount() int {
	n := 0
	for _, c := range s.Choices {
		if c.IsCorrect {
			n++
		}
	}
	return n
}
