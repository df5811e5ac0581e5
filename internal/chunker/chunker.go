package chunker

import (
	"errors"
	"strings"
	"unicode"

	"docuchat/internal/model"
)

// ErrInvalidConfig is returned when the chunking parameters cannot produce a
// terminating sequence of chunks.
var ErrInvalidConfig = errors.New("chunker: max size must be positive and overlap must be in [0, max size)")

// Chunk splits text into ordered, overlapping chunks of at most maxSize runes.
// The next chunk re-includes the trailing overlap runes of the previous one.
// Cuts prefer paragraph boundaries, then sentence ends, within the second half
// of the size window; otherwise the cut is a hard one at maxSize. The result
// is deterministic: the same input always yields the same chunk boundaries.
//
// Empty or whitespace-only text yields no chunks and no error.
func Chunk(documentID, text string, maxSize, overlap int) ([]model.Chunk, error) {
	if maxSize <= 0 || overlap < 0 || overlap >= maxSize {
		return nil, ErrInvalidConfig
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	minCut := maxSize / 2
	if minCut < overlap {
		// Every cut must land beyond the overlap, otherwise the next chunk
		// could not re-include the full overlap while still advancing.
		minCut = overlap
	}

	var chunks []model.Chunk
	start := 0
	ordinal := 0
	for {
		end := start + maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start+minCut, end)
		}

		chunks = append(chunks, model.Chunk{
			ID:         model.ChunkID(documentID, ordinal),
			DocumentID: documentID,
			Ordinal:    ordinal,
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		})

		if end == len(runes) {
			break
		}

		// cutPoint returns a position past start+minCut, so this always
		// advances.
		start = end - overlap
		ordinal++
	}
	return chunks, nil
}

// cutPoint picks the cut position in (low, high]. It prefers the end of the
// last paragraph break, then the position right after the last sentence
// terminator, falling back to the hard limit.
func cutPoint(runes []rune, low, high int) int {
	for j := high; j > low; j-- {
		if j >= 2 && runes[j-1] == '\n' && runes[j-2] == '\n' {
			return j
		}
	}
	for j := high; j > low; j-- {
		if isSentenceEnd(runes[j-1]) && j < len(runes) && unicode.IsSpace(runes[j]) {
			return j
		}
	}
	return high
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
