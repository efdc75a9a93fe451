package extraction

import (
	"fmt"
	"strings"

	"quizforge-backend/internal/models"
)

const systemMessage = "You are an expert exam author and a careful transcriber of exam material. You always answer with a single JSON object and nothing else."

const schemaBlock = `
JSON schema:
{"title": "string", "question": "string", "choices": [{"text": "string", "is_correct": true|false}], "explanation": "string", "difficulty": "easy"|"medium"|"hard"}
`

// Options carries the per-request settings the prompts depend on.
type Options struct {
	Category     string
	Difficulty   models.Difficulty
	Topic        string
	SingleAnswer bool
	// Variation distinguishes repeated passes over the same chunk.
	Variation int
}

func buildGeneratePrompt(content string, opts Options) string {
	var b strings.Builder

	b.WriteString("Create ONE original multiple-choice exam question from the content below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")

	if opts.Category != "" {
		b.WriteString(fmt.Sprintf("Category: %s\n", opts.Category))
	}
	if opts.Topic != "" {
		b.WriteString(fmt.Sprintf("Focus on: %s\n", opts.Topic))
	}

	b.WriteString(fmt.Sprintf("Difficulty: %s\n", difficultyOrDefault(opts.Difficulty)))
	switch opts.Difficulty {
	case models.DifficultyEasy:
		b.WriteString("Easy = direct recall of a fact stated in the content.\n")
	case models.DifficultyHard:
		b.WriteString("Hard = analysis or inference beyond what is explicitly stated.\n")
	default:
		b.WriteString("Medium = application of a concept from the content.\n")
	}

	if opts.SingleAnswer {
		b.WriteString("Provide exactly 4 choices with exactly one correct choice.\n")
	} else {
		b.WriteString("Provide 4 or 5 choices; two or more of them are correct.\n")
	}
	if opts.Variation > 0 {
		b.WriteString(fmt.Sprintf("This is variation %d for this content: test a different point than a typical first question would.\n", opts.Variation+1))
	}
	b.WriteString("Write the question, choices and explanation in the same language as the content.\n")
	b.WriteString("The title is a short label (3 to 30 characters) naming what the question tests.\n")

	b.WriteString(schemaBlock)

	b.WriteString("\n---CONTENT---\n")
	b.WriteString(content)
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildVerbatimPrompt(unit string, opts Options) string {
	var b strings.Builder

	b.WriteString("The text below is ONE question copied from an existing exam. Convert it into the JSON schema WITHOUT rewording anything.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")

	b.WriteString(`Rules:
- Copy the question text and every choice exactly as written; drop only the choice labels (①, A., ア. and the like)
- Keep the choices in their original order
- Mark the choices named by the answer line (正解, 答え, 解答, Answer) as correct
- Copy the explanation (解説, Explanation) verbatim; use an empty string if there is none
- The title is the question number label if present (for example "問題3"), otherwise a short label of at least 3 characters
`)
	if opts.SingleAnswer {
		b.WriteString("- Exactly one choice is correct\n")
	} else {
		b.WriteString("- More than one choice may be correct\n")
	}

	b.WriteString(schemaBlock)

	b.WriteString("\n---QUESTION---\n")
	b.WriteString(unit)
	b.WriteString("\n---END---\n")

	return b.String()
}

func difficultyOrDefault(d models.Difficulty) models.Difficulty {
	if d == "" {
		return models.DifficultyMedium
	}
	return d
}
