package audio

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"quizforge-backend/internal/models"
)

const (
	// sentences compared on each side of a join
	overlapWindow   = 3
	minOverlapRunes = 3
)

var sentenceRe = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]*`)

// Merge joins successful segment transcripts in index order, dropping the
// leading sentences of each segment that repeat the end of the text so far.
func Merge(transcripts []models.SegmentTranscript) models.MergedTranscript {
	ordered := append([]models.SegmentTranscript(nil), transcripts...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var (
		out       models.MergedTranscript
		text      string
		total     time.Duration
		languages []string
	)
	for _, t := range ordered {
		if !t.Success {
			out.FailedSegments++
			continue
		}
		out.SucceededSegments++
		total += t.Duration
		if t.Language != "" {
			languages = append(languages, t.Language)
		}

		incoming := strings.TrimSpace(t.Text)
		if incoming == "" {
			continue
		}
		if text == "" {
			text = incoming
			continue
		}
		incoming = dropOverlap(text, incoming)
		if incoming != "" {
			text += " " + incoming
		}
	}

	out.Success = out.SucceededSegments > 0
	out.Text = text
	out.Duration = total
	out.Language = mostFrequent(languages)
	return out
}

func dropOverlap(merged, incoming string) string {
	tail := lastN(splitSentences(merged), overlapWindow)

	cut := 0
	checked := 0
	for _, loc := range sentenceRe.FindAllStringIndex(incoming, -1) {
		raw := incoming[loc[0]:loc[1]]
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		if checked == overlapWindow {
			break
		}
		whole, prefixRunes := overlapWith(sentence, tail)
		if whole {
			checked++
			cut = loc[1]
			continue
		}
		if prefixRunes > 0 {
			start := loc[0] + strings.Index(raw, sentence)
			cut = start + runeOffset(sentence, prefixRunes)
		}
		break
	}
	return strings.TrimLeft(strings.TrimSpace(incoming[cut:]), "、，, ")
}

// overlapWith reports whether sentence is wholly repeated by a tail sentence,
// otherwise how many of its leading runes repeat one. Sentences shorter than
// minOverlapRunes on either side never count.
func overlapWith(sentence string, tail []string) (bool, int) {
	s := normalizeSentence(sentence)
	if utf8.RuneCountInString(s) < minOverlapRunes {
		return false, 0
	}
	prefix := 0
	for _, t := range tail {
		n := normalizeSentence(t)
		runes := utf8.RuneCountInString(n)
		if runes < minOverlapRunes {
			continue
		}
		if strings.Contains(n, s) {
			return true, 0
		}
		if strings.HasPrefix(s, n) && runes > prefix {
			prefix = runes
		}
	}
	return false, prefix
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}

func splitSentences(s string) []string {
	var out []string
	for _, m := range sentenceRe.FindAllString(s, -1) {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func normalizeSentence(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!?。！？ ")
}

func lastN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// mostFrequent returns the most common value, preferring the earliest on ties.
func mostFrequent(xs []string) string {
	counts := make(map[string]int, len(xs))
	best, bestCount := "", 0
	for _, x := range xs {
		counts[x]++
	}
	for _, x := range xs {
		if counts[x] > bestCount {
			best, bestCount = x, counts[x]
		}
	}
	return best
}
