package chunk

import "strings"

// FixedChunker cuts hard windows of TargetSize characters. Cuts snap back
// to the nearest word boundary and adjacent windows share Overlap
// characters.
type FixedChunker struct{}

func (FixedChunker) Name() string { return "fixed" }

func (FixedChunker) Chunk(text string, opts Options) []Chunk {
	opts = opts.normalized()
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= opts.TargetSize || len(text) <= opts.Threshold {
		return singleChunk(text)
	}

	window := opts.TargetSize

	var pieces []string
	for start := 0; start < len(runes); {
		end := start + window
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}
		cut := end
		for i := end - 1; i > start+window/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		pieces = append(pieces, string(runes[start:cut]))
		// The next window starts relative to the actual cut, so a snapped
		// cut never drops the text between it and a fixed stride.
		next := cut - opts.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return toChunks(pieces)
}
