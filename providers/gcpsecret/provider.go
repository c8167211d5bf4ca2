package gcpsecret

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	flexconfig "github.com/saruyev/FlexKit-sub001"
)

// Separator splits secret IDs into hierarchy levels. Secret IDs may only
// contain letters, digits, "-" and "_", so "database__host" is the flat key
// "database:host".
const Separator = "__"

// Client represents the subset of the GCP Secret Manager client used.
type Client interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretIterator is satisfied by *secretmanager.SecretIterator.
type SecretIterator interface {
	Next() (*secretmanagerpb.Secret, error)
}

// ListFunc starts a ListSecrets call.
type ListFunc func(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) SecretIterator

// Store fetches secrets of one project from Google Secret Manager.
type Store struct {
	client   Client
	list     ListFunc
	project  string
	prefix   string
	version  string
	pageSize int32
	callOpts []gax.CallOption
}

// Option configures the store.
type Option func(*Store)

// WithPrefix limits the store to secret IDs starting with prefix and strips
// it from the resulting keys.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithVersion overrides the default version (latest) read when no version
// stage is configured on the source.
func WithVersion(version string) Option {
	return func(s *Store) {
		if version != "" {
			s.version = version
		}
	}
}

// WithPageSize sets the ListSecrets page size.
func WithPageSize(n int32) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithCallOptions forwards gax call options (retries, timeouts) to each
// request.
func WithCallOptions(opts ...gax.CallOption) Option {
	return func(s *Store) {
		s.callOpts = append(s.callOpts, opts...)
	}
}

// New constructs a Secret Manager store for project. list may be nil when the
// caller only uses GetEntryValue.
func New(client Client, list ListFunc, project string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("gcpsecret: client is required")
	}
	if project == "" {
		return nil, errors.New("gcpsecret: project is required")
	}
	s := &Store{
		client:  client,
		list:    list,
		project: project,
		version: "latest",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FromClient builds a store over a Secret Manager client.
func FromClient(client *secretmanager.Client, project string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("gcpsecret: client is required")
	}
	list := func(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, callOpts ...gax.CallOption) SecretIterator {
		return client.ListSecrets(ctx, req, callOpts...)
	}
	return New(client, list, project, opts...)
}

// Name implements flexconfig.Store.
func (s *Store) Name() string {
	return "gcpsecret:projects/" + s.project
}

// Separator implements flexconfig.Store.
func (s *Store) Separator() string {
	return Separator
}

// SupportsVersionStages implements flexconfig.StagedStore. A stage is a
// version number or alias.
func (s *Store) SupportsVersionStages() bool {
	return true
}

// ListEntries implements flexconfig.Store. The iterator pages internally;
// entries are handed over in pageSize batches.
func (s *Store) ListEntries(ctx context.Context, page func([]flexconfig.RemoteEntry) error) error {
	if s.list == nil {
		return fmt.Errorf("gcpsecret: %w: listing not configured", flexconfig.ErrSourceUnavailable)
	}
	req := &secretmanagerpb.ListSecretsRequest{
		Parent:   "projects/" + s.project,
		PageSize: s.pageSize,
	}
	if s.prefix != "" {
		req.Filter = "name:" + s.prefix
	}
	batch := int(s.pageSize)
	if batch <= 0 {
		batch = 100
	}
	it := s.list(ctx, req, s.callOpts...)
	entries := make([]flexconfig.RemoteEntry, 0, batch)
	for {
		secret, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return classify(err, "")
		}
		id := secretID(secret.GetName())
		if !strings.HasPrefix(id, s.prefix) {
			continue
		}
		entries = append(entries, flexconfig.RemoteEntry{
			Name:    strings.TrimPrefix(id, s.prefix),
			Enabled: true,
		})
		if len(entries) == batch {
			if err := page(entries); err != nil {
				return err
			}
			entries = make([]flexconfig.RemoteEntry, 0, batch)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return page(entries)
}

// GetEntryValue implements flexconfig.Store. A disabled or destroyed version
// is returned as a disabled entry.
func (s *Store) GetEntryValue(ctx context.Context, name, versionStage string) (flexconfig.RemoteEntry, error) {
	if name == "" && s.prefix == "" {
		return flexconfig.RemoteEntry{}, errors.New("gcpsecret: secret name cannot be empty")
	}
	version := s.version
	if versionStage != "" {
		version = versionStage
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s%s/versions/%s", s.project, s.prefix, name, version)
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource}, s.callOpts...)
	if err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			return flexconfig.RemoteEntry{Name: name, Enabled: false, Resolved: true}, nil
		}
		return flexconfig.RemoteEntry{}, classify(err, versionStage)
	}
	payload := resp.GetPayload()
	if payload == nil {
		return flexconfig.RemoteEntry{}, fmt.Errorf("gcpsecret: %w: %s has no payload", flexconfig.ErrMalformedValue, resource)
	}
	if payload.DataCrc32C != nil {
		sum := int64(crc32.Checksum(payload.GetData(), crc32.MakeTable(crc32.Castagnoli)))
		if sum != payload.GetDataCrc32C() {
			return flexconfig.RemoteEntry{}, fmt.Errorf("gcpsecret: %w: %s checksum mismatch", flexconfig.ErrMalformedValue, resource)
		}
	}
	return flexconfig.RemoteEntry{
		Name:         name,
		Value:        string(payload.GetData()),
		Kind:         flexconfig.KindSecure,
		Enabled:      true,
		Resolved:     true,
		VersionStage: versionStage,
	}, nil
}

func secretID(resource string) string {
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

func classify(err error, versionStage string) error {
	switch status.Code(err) {
	case codes.NotFound:
		if versionStage != "" {
			return fmt.Errorf("gcpsecret: %w: %s: %w", flexconfig.ErrVersionStageNotFound, versionStage, err)
		}
		return fmt.Errorf("gcpsecret: %w: %w", flexconfig.ErrEntryNotFound, err)
	case codes.InvalidArgument:
		return fmt.Errorf("gcpsecret: %w: %w", flexconfig.ErrMalformedValue, err)
	}
	return fmt.Errorf("gcpsecret: %w: %w", flexconfig.ErrSourceUnavailable, err)
}

// NewSource is a convenience wrapper building a flexconfig.Source over a new
// Store.
func NewSource(client Client, list ListFunc, project string, storeOpts []Option, opts ...flexconfig.Option) (*flexconfig.Source, error) {
	store, err := New(client, list, project, storeOpts...)
	if err != nil {
		return nil, err
	}
	return flexconfig.NewSource(store, opts...)
}
