package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// idLength is the width of a segment id in hex characters.
const idLength = 16

// SegmentID derives the stable identity of a transcript segment from the
// owning playlist, the reviewed version, the speaker, and the exact
// absolute start time string as the provider sent it. Two arrivals sharing
// all four inputs are the same logical segment regardless of text: provider
// output for one utterance grows as recognition completes, and later
// arrivals overwrite earlier ones in place.
func SegmentID(playlistID, versionID int64, speaker, startTime string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s|%s", playlistID, versionID, speaker, startTime)))
	return hex.EncodeToString(sum[:])[:idLength]
}
