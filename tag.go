package flexconfig

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// fieldTag is the parsed form of a `flex:"..."` struct tag.
//
//	Port    int           `flex:"key:port default:8080"`
//	Limits  Limits        `flex:"format:json"`
//	Banner  string        `flex:"default:'hello world'"`
//	Scratch string        `flex:"-"`
type fieldTag struct {
	Key          string
	Format       string
	DefaultValue string
	HasDefault   bool
	Skip         bool
}

func parseFieldTag(raw string) (fieldTag, error) {
	var tag fieldTag
	switch strings.TrimSpace(raw) {
	case "":
		return tag, nil
	case "-":
		tag.Skip = true
		return tag, nil
	}
	sc := tagScanner{src: raw}
	for {
		name, value, ok, err := sc.next()
		if err != nil {
			return fieldTag{}, err
		}
		if !ok {
			return tag, nil
		}
		if err := tag.assign(name, value); err != nil {
			return fieldTag{}, err
		}
	}
}

func (t *fieldTag) assign(name, value string) error {
	switch name {
	case "key":
		if strings.Contains(value, KeyDelimiter) {
			return fmt.Errorf("flexconfig: key %q must be a single segment", value)
		}
		t.Key = value
	case "format":
		t.Format = strings.ToLower(value)
	case "default":
		t.DefaultValue = value
		t.HasDefault = true
	default:
		return fmt.Errorf("flexconfig: unknown flex tag key %q", name)
	}
	return nil
}

// tagScanner yields name:value pairs separated by whitespace. Values may be
// wrapped in single or double quotes; a backslash escapes the next rune
// inside quotes.
type tagScanner struct {
	src string
	pos int
}

func (s *tagScanner) next() (name, value string, ok bool, err error) {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return "", "", false, nil
	}
	colon := strings.IndexByte(s.src[s.pos:], ':')
	end := strings.IndexFunc(s.src[s.pos:], unicode.IsSpace)
	if colon < 0 || (end >= 0 && end < colon) {
		word := s.src[s.pos:]
		if end >= 0 {
			word = word[:end]
		}
		return "", "", false, fmt.Errorf("flexconfig: dangling key %q", word)
	}
	name = strings.ToLower(s.src[s.pos : s.pos+colon])
	if name == "" {
		return "", "", false, fmt.Errorf("flexconfig: empty tag key")
	}
	s.pos += colon + 1
	s.skipSpace()
	if s.pos >= len(s.src) {
		return "", "", false, fmt.Errorf("flexconfig: key %q missing value", name)
	}
	switch q := s.src[s.pos]; q {
	case '"', '\'':
		value, err = s.quoted(name, rune(q))
	default:
		value = s.bare()
	}
	if err != nil {
		return "", "", false, err
	}
	return name, value, true, nil
}

func (s *tagScanner) bare() string {
	start := s.pos
	if end := strings.IndexFunc(s.src[start:], unicode.IsSpace); end >= 0 {
		s.pos = start + end
	} else {
		s.pos = len(s.src)
	}
	return s.src[start:s.pos]
}

func (s *tagScanner) quoted(name string, quote rune) (string, error) {
	var b strings.Builder
	s.pos++
	escaped := false
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		s.pos += size
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == quote:
			return b.String(), nil
		default:
			b.WriteRune(r)
		}
	}
	return "", fmt.Errorf("flexconfig: unterminated quoted value for key %q", name)
}

func (s *tagScanner) skipSpace() {
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		s.pos += size
	}
}
