package log

import (
	"time"

	"github.com/go-kit/log"
	"golang.org/x/time/rate"
)

// RateLimitedLogger drops log lines once a caller exceeds logsPerSecond.
// Adapted from the teacher's vendored pkg/util/log.RateLimitedLogger;
// used by pkg/dict's rehash-step tracing and pkg/quicklist's
// compress/decompress tracing, both of which can fire thousands of times
// a second on a hot list.
type RateLimitedLogger struct {
	limiter *rate.Limiter
	logger  log.Logger
}

// NewRateLimitedLogger wraps logger so it emits at most logsPerSecond lines.
func NewRateLimitedLogger(logsPerSecond int, logger log.Logger) *RateLimitedLogger {
	return &RateLimitedLogger{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
	}
}

// Log implements go-kit/log.Logger, silently dropping calls over budget.
func (l *RateLimitedLogger) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		return nil
	}

	return l.logger.Log(keyvals...)
}
