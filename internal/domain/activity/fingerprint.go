package activity

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
)

// fingerprintPrefix marks derived keys so they never collide with producer ids.
const fingerprintPrefix = "fp:"

// Fingerprint derives a stable idempotency key from the event content.
// Two deliveries of the same fact hash identically; the payload is compacted
// first so whitespace differences between producers do not matter.
func Fingerprint(e Event) string {
	h, _ := blake2b.New(16, nil) // 16-byte digest; New only fails on bad size/key

	h.Write([]byte(e.UserID))
	h.Write([]byte{0})
	h.Write([]byte(e.Kind))
	h.Write([]byte{0})
	h.Write([]byte(e.OccurredAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})

	var compact bytes.Buffer
	if len(e.Payload) > 0 && json.Compact(&compact, e.Payload) == nil {
		h.Write(compact.Bytes())
	} else {
		h.Write(e.Payload)
	}

	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil))
}
