package flexconfig

import "errors"

// entryCollector records the entry failures an optional source tolerates
// during one load.
type entryCollector struct {
	source   string
	failures []*SourceError
}

func newEntryCollector(source string) *entryCollector {
	return &entryCollector{source: source}
}

// try runs fn for entry and reports whether it succeeded. Failures are
// wrapped with the source identity and recorded.
func (c *entryCollector) try(entry string, fn func() error) (*SourceError, bool) {
	err := fn()
	if err == nil {
		return nil, true
	}
	return c.fail(entry, err), false
}

func (c *entryCollector) fail(entry string, err error) *SourceError {
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		srcErr = &SourceError{Source: c.source, Entry: entry, Err: err}
	}
	c.failures = append(c.failures, srcErr)
	return srcErr
}

func (c *entryCollector) result() *LoadErrors {
	if len(c.failures) == 0 {
		return nil
	}
	return &LoadErrors{
		Source:  c.source,
		entries: c.failures,
	}
}
