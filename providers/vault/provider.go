package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	flexconfig "github.com/saruyev/FlexKit-sub001"
)

// KV is the subset of the Vault KV v2 interface the store depends on.
// *vaultapi.KVv2 satisfies it.
type KV interface {
	Get(ctx context.Context, path string) (*vaultapi.KVSecret, error)
	GetVersion(ctx context.Context, path string, version int) (*vaultapi.KVSecret, error)
}

// Lister lists keys below a logical path. *vaultapi.Logical satisfies it.
type Lister interface {
	ListWithContext(ctx context.Context, path string) (*vaultapi.Secret, error)
}

// Store loads secrets from a Vault KV v2 mount. Every secret below the root
// path becomes one entry; "app/db" is the flat key "app:db" and its data map
// is served as JSON unless a single field is selected.
type Store struct {
	kv       KV
	lister   Lister
	mount    string
	root     string
	field    string
	explicit bool
}

// Option configures the Vault store.
type Option func(*Store)

// WithField selects a concrete key in each secret's data map. When omitted,
// a "value" key or a lone string field is used, otherwise the whole map is
// served as JSON.
func WithField(field string) Option {
	return func(s *Store) {
		s.field = field
		s.explicit = true
	}
}

// WithRoot restricts the store to secrets below root within the mount.
func WithRoot(root string) Option {
	return func(s *Store) {
		s.root = strings.Trim(root, "/")
	}
}

// New creates a Vault store. lister may be nil when only GetEntryValue is
// used.
func New(kv KV, lister Lister, mount string, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("vault: KV accessor is required")
	}
	mount = strings.Trim(mount, "/")
	if mount == "" {
		mount = "secret"
	}
	s := &Store{kv: kv, lister: lister, mount: mount}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FromClient is a convenience helper that derives the KV accessor and lister
// from a Vault client and mount path.
func FromClient(client *vaultapi.Client, mountPath string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("vault: client is required")
	}
	if mountPath == "" {
		mountPath = "secret"
	}
	return New(client.KVv2(mountPath), client.Logical(), mountPath, opts...)
}

// Name implements flexconfig.Store.
func (s *Store) Name() string {
	return "vault:" + path.Join(s.mount, s.root)
}

// Separator implements flexconfig.Store.
func (s *Store) Separator() string {
	return "/"
}

// SupportsVersionStages implements flexconfig.StagedStore. A stage is a
// version number.
func (s *Store) SupportsVersionStages() bool {
	return true
}

// ListEntries implements flexconfig.Store. Each folder of the metadata tree
// is delivered as one page.
func (s *Store) ListEntries(ctx context.Context, page func([]flexconfig.RemoteEntry) error) error {
	if s.lister == nil {
		return fmt.Errorf("vault: %w: listing not configured", flexconfig.ErrSourceUnavailable)
	}
	return s.walk(ctx, "", page)
}

func (s *Store) walk(ctx context.Context, dir string, page func([]flexconfig.RemoteEntry) error) error {
	listPath := path.Join(s.mount, "metadata", s.root, dir)
	secret, err := s.lister.ListWithContext(ctx, listPath)
	if err != nil {
		return fmt.Errorf("vault: %w: list %s: %w", flexconfig.ErrSourceUnavailable, listPath, err)
	}
	keys := listKeys(secret)
	var entries []flexconfig.RemoteEntry
	var folders []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			folders = append(folders, dir+key)
			continue
		}
		entries = append(entries, flexconfig.RemoteEntry{Name: dir + key, Enabled: true})
	}
	if len(entries) > 0 {
		if err := page(entries); err != nil {
			return err
		}
	}
	for _, folder := range folders {
		if err := s.walk(ctx, folder, page); err != nil {
			return err
		}
	}
	return nil
}

func listKeys(secret *vaultapi.Secret) []string {
	if secret == nil || secret.Data == nil {
		return nil
	}
	raw, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if str, ok := k.(string); ok && str != "" {
			keys = append(keys, str)
		}
	}
	return keys
}

// GetEntryValue implements flexconfig.Store. Deleted and destroyed versions
// are returned as disabled entries.
func (s *Store) GetEntryValue(ctx context.Context, name, versionStage string) (flexconfig.RemoteEntry, error) {
	secretPath := path.Join(s.root, name)
	if secretPath == "" || secretPath == "." {
		return flexconfig.RemoteEntry{}, errors.New("vault: secret path cannot be empty")
	}
	var (
		secret *vaultapi.KVSecret
		err    error
	)
	if versionStage != "" {
		version, convErr := strconv.Atoi(versionStage)
		if convErr != nil || version <= 0 {
			return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: %q is not a version number", flexconfig.ErrVersionStageNotFound, versionStage)
		}
		secret, err = s.kv.GetVersion(ctx, secretPath, version)
	} else {
		secret, err = s.kv.Get(ctx, secretPath)
	}
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			if versionStage != "" {
				return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: %s: %w", flexconfig.ErrVersionStageNotFound, versionStage, err)
			}
			return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: %w", flexconfig.ErrEntryNotFound, err)
		}
		return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: %w", flexconfig.ErrSourceUnavailable, err)
	}
	entry := flexconfig.RemoteEntry{
		Name:         name,
		Kind:         flexconfig.KindSecure,
		Resolved:     true,
		VersionStage: versionStage,
	}
	if secret == nil {
		return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: %s", flexconfig.ErrEntryNotFound, secretPath)
	}
	if secret.Data == nil {
		if removed(secret.VersionMetadata) {
			return entry, nil
		}
		return flexconfig.RemoteEntry{}, fmt.Errorf("vault: %w: secret %s contained no data", flexconfig.ErrMalformedValue, secretPath)
	}
	value, err := s.extract(secret.Data)
	if err != nil {
		return flexconfig.RemoteEntry{}, fmt.Errorf("%w: %w", flexconfig.ErrMalformedValue, err)
	}
	entry.Value = value
	entry.Enabled = true
	return entry, nil
}

func removed(meta *vaultapi.KVVersionMetadata) bool {
	return meta != nil && (meta.Destroyed || !meta.DeletionTime.IsZero())
}

func (s *Store) extract(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "", errors.New("vault: secret data empty")
	}
	if s.explicit {
		value, ok := data[s.field]
		if !ok {
			return "", fmt.Errorf("vault: field %q not found", s.field)
		}
		return asString(value, s.field)
	}
	if value, ok := data["value"]; ok {
		if str, err := asString(value, "value"); err == nil {
			return str, nil
		}
	}
	if len(data) == 1 {
		for key, value := range data {
			if str, err := asString(value, key); err == nil {
				return str, nil
			}
		}
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("vault: marshal secret: %w", err)
	}
	return string(buf), nil
}

func asString(value any, field string) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("vault: field %q is not a string", field)
	}
}

// NewSource is a convenience wrapper building a flexconfig.Source over a new
// Store.
func NewSource(kv KV, lister Lister, mount string, storeOpts []Option, opts ...flexconfig.Option) (*flexconfig.Source, error) {
	store, err := New(kv, lister, mount, storeOpts...)
	if err != nil {
		return nil, err
	}
	return flexconfig.NewSource(store, opts...)
}
