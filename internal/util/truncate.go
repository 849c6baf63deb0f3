package util

import (
	"fmt"
	"sync/atomic"
)

// DefaultLogMaxLen caps body excerpts in verbose logs (1KB)
const DefaultLogMaxLen = 1024

var verbose atomic.Bool

// SetVerbose toggles request/response body logging in the API client.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// IsVerbose reports whether body logging is on.
func IsVerbose() bool {
	return verbose.Load()
}

// TruncateLog shortens s to maxLen bytes and notes the original size.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for []byte with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
