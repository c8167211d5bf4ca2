package flexconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvironFunc returns the process environment in "KEY=value" form. Override
// with WithEnviron when running in custom environments.
type EnvironFunc func() []string

// EnvStore exposes environment variables as a Store. Variables are filtered
// by a case-insensitive prefix which is stripped from the key, and "__"
// separates hierarchy levels: APP_DATABASE__HOST becomes database:host for
// the prefix "APP_".
type EnvStore struct {
	prefix  string
	environ EnvironFunc
}

// EnvOption configures an EnvStore.
type EnvOption func(*EnvStore)

// WithEnviron overrides the environment source.
func WithEnviron(fn EnvironFunc) EnvOption {
	return func(e *EnvStore) {
		if fn != nil {
			e.environ = fn
		}
	}
}

// NewEnvStore returns a Store over the environment variables starting with
// prefix.
func NewEnvStore(prefix string, opts ...EnvOption) *EnvStore {
	e := &EnvStore{prefix: prefix, environ: os.Environ}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Store.
func (e *EnvStore) Name() string {
	return "env:" + e.prefix
}

// Separator implements Store.
func (e *EnvStore) Separator() string {
	return "__"
}

// ListEntries implements Store.
func (e *EnvStore) ListEntries(ctx context.Context, page func([]RemoteEntry) error) error {
	vars := e.environ()
	entries := make([]RemoteEntry, 0, len(vars))
	for _, kv := range vars {
		name, value, ok := e.match(kv)
		if !ok {
			continue
		}
		entries = append(entries, RemoteEntry{
			Name:     name,
			Value:    value,
			Kind:     KindPlain,
			Enabled:  true,
			Resolved: true,
		})
	}
	return page(entries)
}

// GetEntryValue implements Store.
func (e *EnvStore) GetEntryValue(ctx context.Context, name, _ string) (RemoteEntry, error) {
	for _, kv := range e.environ() {
		if n, value, ok := e.match(kv); ok && n == name {
			return RemoteEntry{Name: name, Value: value, Enabled: true, Resolved: true}, nil
		}
	}
	return RemoteEntry{}, fmt.Errorf("%w: %s%s", ErrEntryNotFound, e.prefix, name)
}

func (e *EnvStore) match(kv string) (string, string, bool) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return "", "", false
	}
	if len(key) < len(e.prefix) || !strings.EqualFold(key[:len(e.prefix)], e.prefix) {
		return "", "", false
	}
	name := key[len(e.prefix):]
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

// NewEnvSource is NewSource over an EnvStore.
func NewEnvSource(prefix string, opts ...Option) (*Source, error) {
	return NewSource(NewEnvStore(prefix), opts...)
}

// FileStore exposes a JSON or YAML document on disk as a Store holding a
// single root entry. The document is re-read on every load.
type FileStore struct {
	path     string
	readFile func(string) ([]byte, error)
}

// NewFileStore returns a Store over the file at path. Files ending in .yaml
// or .yml are parsed as YAML, everything else as JSON.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, readFile: os.ReadFile}
}

// Name implements Store.
func (f *FileStore) Name() string {
	return "file:" + f.path
}

// Separator implements Store.
func (f *FileStore) Separator() string {
	return KeyDelimiter
}

// ListEntries implements Store.
func (f *FileStore) ListEntries(ctx context.Context, page func([]RemoteEntry) error) error {
	entry, err := f.GetEntryValue(ctx, "", "")
	if err != nil {
		return err
	}
	return page([]RemoteEntry{entry})
}

// GetEntryValue implements Store. The name is ignored; the whole document is
// the only entry.
func (f *FileStore) GetEntryValue(ctx context.Context, _, _ string) (RemoteEntry, error) {
	data, err := f.readFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RemoteEntry{}, fmt.Errorf("%w: %w", ErrEntryNotFound, err)
		}
		return RemoteEntry{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	doc := string(data)
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		converted, err := yamlToJSON(data)
		if err != nil {
			return RemoteEntry{}, fmt.Errorf("%w: %w", ErrMalformedValue, err)
		}
		doc = converted
	default:
		if strings.TrimSpace(doc) != "" && !json.Valid(data) {
			return RemoteEntry{}, fmt.Errorf("%w: %s is not valid JSON", ErrMalformedValue, f.path)
		}
	}
	return RemoteEntry{Value: doc, Kind: KindPlain, Enabled: true, Resolved: true}, nil
}

// NewFileSource is NewSource over a FileStore with JSON processing enabled.
func NewFileSource(path string, opts ...Option) (*Source, error) {
	return NewSource(NewFileStore(path), append([]Option{WithJSONProcessing(true)}, opts...)...)
}

// yamlToJSON re-encodes a YAML document as JSON, keeping mapping order.
func yamlToJSON(data []byte) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", err
	}
	if root.Kind == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, &root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeYAMLNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, node.Content[0])
	case yaml.AliasNode:
		return writeYAMLNode(buf, node.Alias)
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.MappingNode:
		buf.WriteByte('{')
		first := true
		if err := writeYAMLPairs(buf, node, &first); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	case yaml.ScalarNode:
		return writeYAMLScalar(buf, node)
	}
	return fmt.Errorf("unsupported yaml node kind %d at line %d", node.Kind, node.Line)
}

func writeYAMLPairs(buf *bytes.Buffer, node *yaml.Node, first *bool) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.ShortTag() == "!!merge" {
			target := value
			if target.Kind == yaml.AliasNode {
				target = target.Alias
			}
			if target.Kind == yaml.MappingNode {
				if err := writeYAMLPairs(buf, target, first); err != nil {
					return err
				}
				continue
			}
		}
		if !*first {
			buf.WriteByte(',')
		}
		*first = false
		name, _ := json.Marshal(key.Value)
		buf.Write(name)
		buf.WriteByte(':')
		if err := writeYAMLNode(buf, value); err != nil {
			return err
		}
	}
	return nil
}

func writeYAMLScalar(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		buf.WriteString(strconv.FormatBool(b))
		return nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
	case "!!float":
		var f float64
		if err := node.Decode(&f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			return nil
		}
	}
	text, err := json.Marshal(node.Value)
	if err != nil {
		return err
	}
	buf.Write(text)
	return nil
}
