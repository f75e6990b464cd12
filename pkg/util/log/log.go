// Package log provides the structured logger shared by pkg/dict and
// pkg/quicklist. It mirrors the teacher's pkg/util/log: a swappable
// package-level go-kit/log.Logger plus a rate-limited wrapper for
// high-frequency diagnostic paths.
package log

import (
	"os"
	"sync"

	"github.com/go-kit/log"
)

// Logger is the package-wide logger. Replace it with SetLogger before any
// core operation runs if you want output routed somewhere other than
// stdout logfmt.
var Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))

var mu sync.Mutex

// SetLogger swaps the package-wide logger. The lock serializes SetLogger
// calls only; reads of Logger are not synchronized with it.
func SetLogger(l log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Logger = l
}
