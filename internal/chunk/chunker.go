// Package chunk splits extracted document text into retrieval-sized pieces.
// Three strategies are offered: recursive (structure-aware), sentence and
// fixed windows.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknown means the requested chunker name is not registered.
var ErrUnknown = errors.New("unknown chunker")

// Chunk is one piece of a chunked document.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Chars int    `json:"chars"`
}

// Options control chunk sizing. Zero fields fall back to defaults.
type Options struct {
	// Threshold: only chunk when content exceeds this length.
	Threshold int `json:"threshold,omitempty"`
	// TargetSize: ideal chunk size.
	TargetSize int `json:"target_size,omitempty"`
	// MinSize: smaller chunks merge with their neighbor.
	MinSize int `json:"min_size,omitempty"`
	// MaxSize: larger chunks split at sentence boundaries.
	MaxSize int `json:"max_size,omitempty"`
	// Overlap: character overlap between adjacent chunks. Negative
	// disables overlap entirely.
	Overlap int `json:"overlap,omitempty"`
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
		Overlap:    100,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = def.Threshold
	}
	if o.TargetSize <= 0 {
		o.TargetSize = def.TargetSize
	}
	if o.MinSize <= 0 {
		o.MinSize = def.MinSize
	}
	if o.MaxSize <= 0 {
		o.MaxSize = def.MaxSize
	}
	if o.MaxSize < o.TargetSize {
		o.MaxSize = o.TargetSize
	}
	if o.Overlap == 0 {
		o.Overlap = def.Overlap
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.TargetSize {
		o.Overlap = o.TargetSize / 2
	}
	return o
}

// Chunker splits one document's text.
type Chunker interface {
	Name() string
	Chunk(text string, opts Options) []Chunk
}

// Registry returns the available chunkers in display order.
func Registry() []Chunker {
	return []Chunker{RecursiveChunker{}, SentenceChunker{}, FixedChunker{}}
}

// Get returns the chunker with the given name.
func Get(name string) (Chunker, error) {
	for _, c := range Registry() {
		if c.Name() == name {
			return c, nil
		}
	}
	names := make([]string, 0, 3)
	for _, c := range Registry() {
		names = append(names, c.Name())
	}
	return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknown, name, strings.Join(names, ", "))
}

func singleChunk(text string) []Chunk {
	text = strings.TrimSpace(text)
	return []Chunk{{Index: 0, Text: text, Chars: len(text)}}
}

func toChunks(pieces []string) []Chunk {
	out := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, Chunk{Index: len(out), Text: p, Chars: len(p)})
	}
	if len(out) == 0 {
		return singleChunk("")
	}
	return out
}

// applyOverlap prefixes every chunk after the first with the tail of its
// predecessor. The tail starts at a sentence boundary when one falls inside
// the overlap window, else at a word boundary.
func applyOverlap(pieces []string, overlap int) []string {
	if overlap <= 0 || len(pieces) <= 1 {
		return pieces
	}

	out := make([]string, len(pieces))
	copy(out, pieces)

	for i := 1; i < len(out); i++ {
		prev := pieces[i-1]
		if len(prev) <= overlap {
			continue
		}
		tail := prev[len(prev)-overlap:]
		if idx := lastSentenceStart(tail); idx > 0 {
			tail = tail[idx:]
		} else if spaceIdx := strings.Index(tail, " "); spaceIdx >= 0 {
			tail = tail[spaceIdx+1:]
		}
		tail = strings.TrimSpace(tail)
		if tail == "" {
			continue
		}
		out[i] = tail + " " + out[i]
	}
	return out
}

// lastSentenceStart returns the index just past the last ". ", "! " or "? "
// in s, or -1 when none exists.
func lastSentenceStart(s string) int {
	best := -1
	for i := 0; i+1 < len(s); i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') && s[i+1] == ' ' {
			best = i + 2
		}
	}
	if best >= len(s) {
		return -1
	}
	return best
}
