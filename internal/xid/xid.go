// Package xid generates prefixed identifiers for products, batches,
// sales, and audit entries, e.g. "prd-1756600000000000000-a1b2c3d4e5f6a7b8".
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a fresh identifier with the given prefix. The random
// suffix is dropped only if the system entropy source fails.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
