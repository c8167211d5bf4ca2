package flexconfig

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Option configures a Source.
type Option func(*Source)

// LoadErrorHandler receives failures a source tolerated or could not surface
// to a caller, such as entry failures of optional sources and failed timer
// reloads. The error is a *SourceError.
type LoadErrorHandler func(err error)

// WithName overrides the identity used in errors, logs and metrics. Defaults
// to the store name.
func WithName(name string) Option {
	return func(s *Source) {
		if name != "" {
			s.name = name
		}
	}
}

// WithOptional marks the source as optional: load failures are reported to
// the LoadErrorHandler and the source degrades to whatever data it could read.
func WithOptional(optional bool) Option {
	return func(s *Source) {
		s.optional = optional
	}
}

// WithReloadInterval reloads the source every interval after the first Load.
// Zero disables reloading.
func WithReloadInterval(interval time.Duration) Option {
	return func(s *Source) {
		if interval > 0 {
			s.reloadInterval = interval
		}
	}
}

// WithJSONProcessing enables flattening of JSON object and array values.
func WithJSONProcessing(enabled bool) Option {
	return func(s *Source) {
		s.jsonProcessing = enabled
	}
}

// WithJSONKeys restricts JSON flattening to the listed flat keys (case
// insensitive). It implies WithJSONProcessing(true).
func WithJSONKeys(keys ...string) Option {
	return func(s *Source) {
		if len(keys) == 0 {
			return
		}
		if s.jsonKeys == nil {
			s.jsonKeys = make(map[string]struct{}, len(keys))
		}
		for _, k := range keys {
			s.jsonKeys[strings.ToLower(k)] = struct{}{}
		}
		s.jsonProcessing = true
	}
}

// WithVersionStage requests a named version of every entry from stores that
// support staged versions.
func WithVersionStage(stage string) Option {
	return func(s *Source) {
		s.versionStage = stage
	}
}

// WithLoadErrorHandler registers the callback for tolerated failures.
func WithLoadErrorHandler(fn LoadErrorHandler) Option {
	return func(s *Source) {
		s.onLoadError = fn
	}
}

// WithKeyTransform rewrites every canonical key before it is stored. Entries
// mapped to "" are dropped.
func WithKeyTransform(fn func(string) string) Option {
	return func(s *Source) {
		s.keyTransform = fn
	}
}

// WithListDelimiter overrides the delimiter used to expand list entries.
func WithListDelimiter(delim string) Option {
	return func(s *Source) {
		if delim != "" {
			s.listDelimiter = delim
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records load outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}
