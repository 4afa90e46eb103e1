package services

import (
	"fmt"
	"log"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
)

// MergeAudio concatenates per-segment audio buffers in the given order into
// one playable MP3. MP3 frames are self-framing, so byte-level concatenation
// of independently encoded segments plays back continuously with no
// re-encoding. This does not hold for container formats with global headers.
//
// Zero segments is an error; a single segment is returned unchanged.
func MergeAudio(segments []models.AudioSegment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no audio segments to merge")
	}

	if len(segments) == 1 {
		return segments[0].Bytes, nil
	}

	total := 0
	for _, seg := range segments {
		total += len(seg.Bytes)
	}

	merged := make([]byte, 0, total)
	for _, seg := range segments {
		merged = append(merged, seg.Bytes...)
	}

	log.Printf("[Merger] Merged %d audio segments into %d bytes", len(segments), total)
	return merged, nil
}
