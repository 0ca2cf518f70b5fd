// Package xid mints the prefixed identifiers the ledger hands out: sale-,
// ret-, sess-, po-, pay-, credit- and audit- records all share the same
// shape so log lines and report exports stay greppable by record kind.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns "<prefix>-<unixnano>-<random>". The timestamp keeps ids roughly
// sortable by creation time; the random suffix disambiguates records minted
// in the same nanosecond. If the random source fails the timestamp alone is
// used, which is still unique enough for a single register.
func New(prefix string) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
