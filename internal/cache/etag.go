package cache

import (
	"crypto/sha256"
	"fmt"
)

// ETagFor computes a strong entity tag for a response body.
func ETagFor(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:16]))
}
