package flexconfig

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
)

// Flatten converts raw into path-keyed entries under prefix and stores them in
// out. Only documents whose root is a JSON object or array are expanded;
// anything else, including scalar JSON such as "123" or "true" and malformed
// input, is stored verbatim under prefix. Empty containers produce no entries.
// Flatten never fails.
func Flatten(raw, prefix string, out *FlatMap) {
	if out == nil {
		return
	}
	if !isStructuredJSON(raw) {
		if prefix != "" {
			out.SetString(prefix, raw)
		}
		return
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	// Entries are staged so a decode failure never leaves a partial
	// expansion behind in out.
	staged := NewFlatMap()
	f := flattener{dec: dec, out: staged}
	if err := f.value(prefix); err != nil {
		if prefix != "" {
			out.SetString(prefix, raw)
		}
		return
	}
	for _, k := range staged.keys {
		out.Set(k, staged.values[k])
	}
}

// FlattenString is Flatten into a fresh FlatMap.
func FlattenString(raw, prefix string) *FlatMap {
	out := NewFlatMap()
	Flatten(raw, prefix, out)
	return out
}

func isStructuredJSON(raw string) bool {
	trimmed := bytes.TrimLeft([]byte(raw), " \t\r\n")
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}

type flattener struct {
	dec *json.Decoder
	out *FlatMap
}

func (f *flattener) value(prefix string) error {
	tok, err := f.dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return f.object(prefix)
		case '[':
			return f.array(prefix)
		}
		return io.ErrUnexpectedEOF
	case string:
		f.out.SetString(prefix, t)
	case bool:
		f.out.SetString(prefix, strconv.FormatBool(t))
	case json.Number:
		f.out.SetString(prefix, formatNumber(t))
	case nil:
		f.out.Set(prefix, nil)
	}
	return nil
}

func (f *flattener) object(prefix string) error {
	for f.dec.More() {
		tok, err := f.dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if err := f.value(joinKey(prefix, key)); err != nil {
			return err
		}
	}
	_, err := f.dec.Token()
	return err
}

func (f *flattener) array(prefix string) error {
	for i := 0; f.dec.More(); i++ {
		if err := f.value(joinKey(prefix, strconv.Itoa(i))); err != nil {
			return err
		}
	}
	_, err := f.dec.Token()
	return err
}

// formatNumber keeps integral literals as written, including those beyond
// int64 such as large IDs, and renders everything else in the shortest form
// that round-trips through float64.
func formatNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if isIntegerLiteral(n.String()) {
		return n.String()
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return n.String()
}

func isIntegerLiteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
