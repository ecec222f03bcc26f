package facttypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash computes the deterministic dedup hash of a triple: SHA-256 over
// subject, predicate, object, and the canonical source anchor, each
// trimmed of surrounding whitespace and separated by "|" so no two
// distinct fields can collide by concatenation alone, and so " A" and
// "A" hash identically (§4.3 step 1, §5, §9).
func Hash(subject, predicate, object string, anchor SourceAnchor) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s",
		strings.TrimSpace(subject), strings.TrimSpace(predicate), strings.TrimSpace(object), canonicalAnchor(anchor))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func canonicalAnchor(a SourceAnchor) string {
	return fmt.Sprintf("%s|%d|%s", strings.TrimSpace(a.DocID), a.Page, strings.TrimSpace(a.RegionID))
}
