package services

import (
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
)

// ---------------------------------------------------------------------------
// Text chunking for the synthesis provider's per-call byte limit.
// The provider rejects any request whose content exceeds 5000 encoded bytes,
// so long input is split into segments at sentence boundaries where possible,
// falling back to word/clause and finally rune-level splits.
// ---------------------------------------------------------------------------

const (
	// MaxRequestBytes is the provider's hard per-call limit on the content field.
	MaxRequestBytes = 5000

	// ChunkByteCeiling is the safety margin chunking enforces, strictly below
	// MaxRequestBytes so the markup envelope added per call still fits.
	ChunkByteCeiling = 4500
)

// ByteSize returns the number of bytes a string occupies in UTF-8, which is
// exactly what the synthesis provider counts toward its limit.
func ByteSize(s string) int {
	return len(s)
}

// Chunker splits request content into provider-legal segments.
type Chunker struct {
	ceiling int
}

func NewChunker() *Chunker {
	return &Chunker{ceiling: ChunkByteCeiling}
}

// NewChunkerWithCeiling creates a chunker with a custom byte ceiling.
func NewChunkerWithCeiling(ceiling int) *Chunker {
	return &Chunker{ceiling: ceiling}
}

// Chunk splits plain text into ordinal-numbered segments, each at or under
// the ceiling. Sentence units are kept intact whenever possible; segments
// concatenated in order reproduce the input exactly.
func (c *Chunker) Chunk(content string) []models.TextSegment {
	if ByteSize(content) <= c.ceiling {
		return toSegments([]string{content})
	}

	log.Printf("[Chunker] Content exceeds limit: %d bytes, splitting at sentence boundaries...", ByteSize(content))

	units := splitSentences(content)
	chunks := c.pack(units)

	log.Printf("[Chunker] Created %d chunks from %d sentence units", len(chunks), len(units))
	return toSegments(chunks)
}

// ChunkOpaque splits markup content without sentence detection. Markup is
// treated as opaque text: token-level splitting only, so tags are never
// given boundary preference.
func (c *Chunker) ChunkOpaque(content string) []models.TextSegment {
	if ByteSize(content) <= c.ceiling {
		return toSegments([]string{content})
	}

	log.Printf("[Chunker] Markup content exceeds limit: %d bytes, splitting as opaque text...", ByteSize(content))
	return toSegments(c.splitOversized(content))
}

func toSegments(chunks []string) []models.TextSegment {
	segments := make([]models.TextSegment, len(chunks))
	for i, chunk := range chunks {
		segments[i] = models.TextSegment{
			Ordinal:  i,
			Payload:  chunk,
			ByteSize: ByteSize(chunk),
		}
	}
	return segments
}

// pack greedily appends units to the current chunk while the result stays
// under the ceiling. A unit that alone exceeds the ceiling is handed to the
// finer-grained splitter.
func (c *Chunker) pack(units []string) []string {
	var chunks []string
	var cur strings.Builder

	for _, unit := range units {
		if ByteSize(unit) > c.ceiling {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			chunks = append(chunks, c.splitOversized(unit)...)
			continue
		}

		if cur.Len() > 0 && cur.Len()+ByteSize(unit) > c.ceiling {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(unit)
	}

	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitOversized splits a single unit that exceeds the ceiling into runs
// delimited by whitespace or commas, greedily packed. A single run that
// still exceeds the ceiling is hard-split at rune boundaries so chunking
// always terminates, even for no-whitespace scripts.
func (c *Chunker) splitOversized(unit string) []string {
	var parts []string
	var cur strings.Builder

	for _, token := range splitTokens(unit) {
		if ByteSize(token) > c.ceiling {
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, splitRunes(token, c.ceiling)...)
			continue
		}

		if cur.Len() > 0 && cur.Len()+ByteSize(token) > c.ceiling {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(token)
	}

	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// splitSentences splits text into sentence-like units on Latin and CJK
// terminators. Trailing quotes/brackets and whitespace stay with the unit
// that precedes them; a final fragment with no terminator is its own unit.
// Concatenating the units reproduces the input byte for byte.
func splitSentences(text string) []string {
	var units []string
	var b strings.Builder

	runes := []rune(text)
	i := 0
	for i < len(runes) {
		b.WriteRune(runes[i])
		terminated := isSentenceTerminator(runes[i])
		i++

		if !terminated {
			continue
		}

		for i < len(runes) && isSentenceTerminator(runes[i]) {
			b.WriteRune(runes[i])
			i++
		}
		for i < len(runes) && isTrailingQuote(runes[i]) {
			b.WriteRune(runes[i])
			i++
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			b.WriteRune(runes[i])
			i++
		}

		units = append(units, b.String())
		b.Reset()
	}

	if b.Len() > 0 {
		units = append(units, b.String())
	}
	return units
}

// splitTokens splits a string into runs, each a maximal stretch of
// non-delimiter runes plus the delimiter run that follows it, so that
// concatenating the tokens reproduces the input.
func splitTokens(s string) []string {
	var tokens []string
	var b strings.Builder

	inDelim := false
	for _, r := range s {
		d := isTokenDelimiter(r)
		if inDelim && !d && b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
		b.WriteRune(r)
		inDelim = d
	}

	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// splitRunes hard-splits a token at rune boundaries. Last resort for a
// single token over the ceiling; never cuts inside a multi-byte rune.
func splitRunes(s string, ceiling int) []string {
	var parts []string
	var b strings.Builder

	for _, r := range s {
		if b.Len()+utf8.RuneLen(r) > ceiling && b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
		b.WriteRune(r)
	}

	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isTrailingQuote(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '）', '】', '》', '」', '』':
		return true
	}
	return false
}

func isTokenDelimiter(r rune) bool {
	return unicode.IsSpace(r) || r == ',' || r == '，'
}
