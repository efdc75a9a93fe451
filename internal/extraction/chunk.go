package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkRunes = 3000
	minSectionRunes   = 200
)

var headingRe = regexp.MustCompile(`(?m)^[ \t　]*(?:第\s*[0-9０-９一二三四五六七八九十]+\s*[章節部]|#{1,6}[ \t]|[■◆●]|(?i:chapter|section)\s+[0-9]+|[0-9０-９]{1,2}(?:[\.．][0-9０-９]{1,2})*[\.．]?[ \t　]+\S)`)

// ChunkContent splits source material into pieces of at most maxRunes for
// question generation. Section headings are preferred cut points; long
// sections are packed paragraph by paragraph.
func ChunkContent(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultChunkRunes
	}
	text = strings.TrimSpace(normalizeNewlines(text))
	if text == "" {
		return nil
	}

	var chunks []string
	for _, sec := range splitSections(text) {
		if utf8.RuneCountInString(sec) <= maxRunes {
			chunks = append(chunks, sec)
			continue
		}
		chunks = append(chunks, packParagraphs(sec, maxRunes)...)
	}
	return chunks
}

func splitSections(text string) []string {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	var cuts []int
	if locs[0][0] > 0 {
		cuts = append(cuts, 0)
	}
	for _, l := range locs {
		cuts = append(cuts, l[0])
	}

	var sections []string
	for i, c := range cuts {
		end := len(text)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		sec := strings.TrimSpace(text[c:end])
		if sec == "" {
			continue
		}
		// fold tiny sections (a lone heading, a short intro) into the previous one
		if n := len(sections); n > 0 && utf8.RuneCountInString(sections[n-1]) < minSectionRunes {
			sections[n-1] = sections[n-1] + "\n\n" + sec
			continue
		}
		sections = append(sections, sec)
	}
	return sections
}

func packParagraphs(sec string, maxRunes int) []string {
	var (
		out     []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
			size = 0
		}
	}

	for _, p := range paragraphRe.Split(sec, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n > maxRunes {
			flush()
			out = append(out, splitRunes(p, maxRunes)...)
			continue
		}
		if size > 0 && size+2+n > maxRunes {
			flush()
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(p)
		size += n
	}
	flush()
	return out
}

func splitRunes(s string, n int) []string {
	r := []rune(s)
	var out []string
	for i := 0; i < len(r); i += n {
		end := i + n
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[i:end]))
	}
	return out
}
