package chunk

import (
	"strings"
	"unicode"
)

// RecursiveChunker splits along document structure: heading sections first,
// paragraphs next, sentences last. Small pieces merge into their neighbor,
// oversized pieces are re-split at the next level down.
type RecursiveChunker struct{}

func (RecursiveChunker) Name() string { return "recursive" }

func (RecursiveChunker) Chunk(text string, opts Options) []Chunk {
	opts = opts.normalized()
	text = strings.TrimSpace(text)
	if len(text) <= opts.Threshold {
		return singleChunk(text)
	}

	var pieces []string
	if sections := splitSections(text); len(sections) > 1 {
		pieces = chunkSections(sections, opts)
	} else {
		pieces = chunkParagraphs(text, opts)
	}
	return toChunks(applyOverlap(pieces, opts.Overlap))
}

// splitSections cuts markdown text at heading lines. Text without headings
// comes back as a single section.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current strings.Builder
	for _, line := range lines {
		if isHeading(line) && strings.TrimSpace(current.String()) != "" {
			sections = append(sections, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sections = append(sections, s)
	}
	return sections
}

func isHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	rest := strings.TrimLeft(line, "#")
	return len(line)-len(rest) <= 6 && strings.HasPrefix(rest, " ")
}

// chunkSections keeps each section intact where possible. Sections under
// MinSize merge into the previous chunk, sections over MaxSize fall through
// to paragraph splitting.
func chunkSections(sections []string, opts Options) []string {
	var chunks []string
	for _, section := range sections {
		switch {
		case len(section) > opts.MaxSize:
			chunks = append(chunks, chunkParagraphs(section, opts)...)
		case len(section) < opts.MinSize && len(chunks) > 0:
			chunks[len(chunks)-1] += "\n\n" + section
		default:
			chunks = append(chunks, section)
		}
	}
	return chunks
}

// chunkParagraphs packs paragraphs up to MaxSize per chunk. A single
// paragraph over MaxSize is split at sentence boundaries.
func chunkParagraphs(content string, opts Options) []string {
	paragraphs := strings.Split(content, "\n\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > opts.MaxSize {
			flush()
			chunks = append(chunks, chunkSentences(para, opts)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > opts.MaxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

// chunkSentences packs whole sentences up to TargetSize per chunk.
func chunkSentences(text string, opts Options) []string {
	sentences := splitSentences(text)

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > opts.TargetSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// splitSentences breaks text at sentence-ending punctuation followed by a
// space. A period after a single uppercase letter is treated as an
// abbreviation, not a sentence end.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if r == '.' && i >= 2 && unicode.IsUpper(runes[i-1]) && runes[i-2] == ' ' {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
