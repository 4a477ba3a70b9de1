package chunk

import "strings"

// SentenceChunker packs whole sentences up to the target size, ignoring
// document structure.
type SentenceChunker struct{}

func (SentenceChunker) Name() string { return "sentence" }

func (SentenceChunker) Chunk(text string, opts Options) []Chunk {
	opts = opts.normalized()
	text = strings.TrimSpace(text)
	if len(text) <= opts.Threshold {
		return singleChunk(text)
	}
	// Collapse paragraph breaks so sentence packing sees a single stream.
	flat := strings.Join(strings.Fields(text), " ")
	return toChunks(applyOverlap(chunkSentences(flat, opts), opts.Overlap))
}
