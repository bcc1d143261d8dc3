// Package chunker splits text into the pieces stored as individual nodes.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	apperrors "trails/backend/pkg/errors"
)

// Names accepted by New.
const (
	NameParagraph = "paragraph"
	NameRecursive = "recursive"
	NameTokens    = "tokens"

	DefaultEncoding = "cl100k_base"
)

// Chunker splits text into ordered, non-empty chunks.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Func adapts a plain function to Chunker.
type Func func(text string) ([]string, error)

func (f Func) Chunk(text string) ([]string, error) { return f(text) }

// New returns the chunker registered under name.
func New(name string, size, overlap int) (Chunker, error) {
	switch name {
	case "", NameParagraph:
		return Paragraphs{}, nil
	case NameRecursive:
		return NewRecursive(size, overlap), nil
	case NameTokens:
		return NewTokens(DefaultEncoding, size, overlap)
	}
	return nil, apperrors.NewConfigValidationFailed("TEXT_PROCESSING_CHUNKER", fmt.Sprintf("unknown chunker %q", name))
}

// Paragraphs splits on blank lines.
type Paragraphs struct{}

func (Paragraphs) Chunk(text string) ([]string, error) {
	return clean(strings.Split(text, "\n\n")), nil
}

// Recursive splits on paragraphs, then lines, then words until every chunk
// fits the size.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursive creates a recursive splitter. size and overlap count runes.
func NewRecursive(size, overlap int) Recursive {
	return Recursive{splitter: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)}
}

func (r Recursive) Chunk(text string) ([]string, error) {
	chunks, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return clean(chunks), nil
}

// Tokens cuts text into windows of size tokens, consecutive windows sharing
// overlap tokens. Window edges never split a character.
type Tokens struct {
	enc     encoder
	size    int
	overlap int
}

type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// NewTokens loads the named encoding.
func NewTokens(encoding string, size, overlap int) (*Tokens, error) {
	if size <= 0 {
		return nil, apperrors.NewConfigValidationFailed("TEXT_PROCESSING_CHUNK_SIZE", "must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, apperrors.NewConfigValidationFailed("TEXT_PROCESSING_CHUNK_OVERLAP", "must be in [0, chunk size)")
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tokens{enc: enc, size: size, overlap: overlap}, nil
}

func (t *Tokens) Chunk(text string) ([]string, error) {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return []string{}, nil
	}

	// offsets[i] is the byte offset in text where token i starts. A single
	// token may hold part of a multi-byte character, so only offsets that
	// start a rune are usable as cut points.
	offsets := make([]int, len(tokens)+1)
	for i, tok := range tokens {
		offsets[i+1] = offsets[i] + len(t.enc.Decode([]int{tok}))
	}
	if offsets[len(tokens)] != len(text) {
		return nil, fmt.Errorf("token offsets cover %d of %d bytes", offsets[len(tokens)], len(text))
	}
	cut := func(i int) bool {
		return i == 0 || i == len(tokens) || utf8.RuneStart(text[offsets[i]])
	}

	var chunks []string
	for start := 0; start < len(tokens); {
		end := start + t.size
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			for end > start && !cut(end) {
				end--
			}
			if end == start {
				// One character wider than the window.
				end = start + t.size
				for !cut(end) {
					end++
				}
			}
		}
		chunks = append(chunks, text[offsets[start]:offsets[end]])
		if end == len(tokens) {
			break
		}

		next := end - t.overlap
		for next > start && !cut(next) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return clean(chunks), nil
}

func clean(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
