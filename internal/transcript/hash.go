package transcript

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"
)

// ContentHash returns a blake3 digest over the turns and layout inputs.
// Identical inputs paginate to identical lines. Title data is not part of
// the hash.
func ContentHash(turns []Turn, audioDuration float64, opts Options) (string, error) {
	h := blake3.New(32, nil)
	enc := json.NewEncoder(h)
	if err := enc.Encode(turns); err != nil {
		return "", fmt.Errorf("hash turns: %w", err)
	}
	fmt.Fprintf(h, "%g|%d|%g|%t", audioDuration, opts.LinesPerPage, opts.MinLineDuration, opts.EnforceMinDuration)
	return hex.EncodeToString(h.Sum(nil)), nil
}
