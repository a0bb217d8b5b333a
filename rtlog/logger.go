// Package rtlog carries a leveled logger through a context.Context, the
// way the registry's internal/dcontext package does. A logger is installed
// once per process via WithLogger; code that wants a contextual logger
// calls GetLogger, which falls back to a package-level default so callers
// never need a nil check.
package rtlog

import (
	"context"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   = logrus.NewEntry(logrus.StandardLogger()).WithField("go.version", runtime.Version())
	defaultLoggerMu sync.RWMutex
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger. Call once near process
// startup; nested calls should derive fields with WithFields rather than
// installing a second logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger attached to ctx, or the process default if
// none was attached, additionally decorated with any key/value pairs
// passed in fields (keys must be strings).
func GetLogger(ctx context.Context, fields ...interface{}) *logrus.Entry {
	logger := fromContext(ctx)

	fs := logrus.Fields{}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		fs[key] = fields[i+1]
	}
	if len(fs) > 0 {
		return logger.WithFields(fs)
	}
	return logger
}

func fromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
			return logger
		}
	}
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide fallback logger used when no
// logger has been attached to a context. Intended to be called once at
// boot, matching the publish-once-overwrite discipline used for the
// current configuration singleton.
func SetDefault(logger *logrus.Entry) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}
