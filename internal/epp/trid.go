package epp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewServerTRID builds "<prefix>-<unix seconds>-<10 hex chars>".
func NewServerTRID(prefix string, now time.Time) string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s-%d-%s", prefix, now.Unix(), hex.EncodeToString(b[:]))
}
