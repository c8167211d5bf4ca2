package awssm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	flexconfig "github.com/saruyev/FlexKit-sub001"
)

// SecretsManagerClient captures the subset of the AWS Secrets Manager client
// used by the store. *secretsmanager.Client satisfies this interface.
type SecretsManagerClient interface {
	secretsmanager.ListSecretsAPIClient
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Store lists and reads secrets from AWS Secrets Manager. Secret names are
// hierarchical with "/" so "myapp/database" becomes the flat key
// "database" under the prefix "myapp/".
type Store struct {
	client    SecretsManagerClient
	prefix    string
	versionID *string
	pageSize  int32
	callOpts  []func(*secretsmanager.Options)
}

// Option configures the store.
type Option func(*Store)

// WithPrefix limits the listing to secrets whose name starts with prefix and
// strips it from the resulting keys.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithVersionID requests a specific version ID for every secret. Version
// stages are requested through flexconfig.WithVersionStage.
func WithVersionID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.versionID = aws.String(id)
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

// WithClientOptions forwards Secrets Manager call options to each request.
func WithClientOptions(opts ...func(*secretsmanager.Options)) Option {
	return func(s *Store) {
		s.callOpts = append(s.callOpts, opts...)
	}
}

// New constructs a Secrets Manager store.
func New(client SecretsManagerClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("awssm: client is required")
	}
	s := &Store{
		client: client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements flexconfig.Store.
func (s *Store) Name() string {
	return "awssm:" + s.prefix
}

// Separator implements flexconfig.Store.
func (s *Store) Separator() string {
	return "/"
}

// SupportsVersionStages implements flexconfig.StagedStore.
func (s *Store) SupportsVersionStages() bool {
	return true
}

// ListEntries implements flexconfig.Store. Secrets scheduled for deletion are
// reported as disabled.
func (s *Store) ListEntries(ctx context.Context, page func([]flexconfig.RemoteEntry) error) error {
	input := &secretsmanager.ListSecretsInput{}
	if s.prefix != "" {
		input.Filters = []types.Filter{{
			Key:    types.FilterNameStringTypeName,
			Values: []string{s.prefix},
		}}
	}
	if s.pageSize > 0 {
		input.MaxResults = aws.Int32(s.pageSize)
	}
	paginator := secretsmanager.NewListSecretsPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx, s.callOpts...)
		if err != nil {
			return classify(err, "")
		}
		entries := make([]flexconfig.RemoteEntry, 0, len(out.SecretList))
		for _, secret := range out.SecretList {
			name := aws.ToString(secret.Name)
			// The name filter is a prefix match on words, not on the raw
			// string, so re-check it here.
			if !strings.HasPrefix(name, s.prefix) {
				continue
			}
			entries = append(entries, flexconfig.RemoteEntry{
				Name:    strings.TrimPrefix(name, s.prefix),
				Enabled: secret.DeletedDate == nil,
			})
		}
		if err := page(entries); err != nil {
			return err
		}
	}
	return nil
}

// GetEntryValue implements flexconfig.Store.
func (s *Store) GetEntryValue(ctx context.Context, name, versionStage string) (flexconfig.RemoteEntry, error) {
	if name == "" && s.prefix == "" {
		return flexconfig.RemoteEntry{}, errors.New("awssm: secret id cannot be empty")
	}
	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.prefix + name),
	}
	if versionStage != "" {
		input.VersionStage = aws.String(versionStage)
	}
	if s.versionID != nil {
		input.VersionId = s.versionID
	}
	out, err := s.client.GetSecretValue(ctx, input, s.callOpts...)
	if err != nil {
		return flexconfig.RemoteEntry{}, classify(err, versionStage)
	}
	entry := flexconfig.RemoteEntry{
		Name:         name,
		Enabled:      true,
		Resolved:     true,
		VersionStage: versionStage,
	}
	switch {
	case out.SecretString != nil:
		entry.Kind = flexconfig.KindSecure
		entry.Value = aws.ToString(out.SecretString)
	case len(out.SecretBinary) > 0:
		entry.Kind = flexconfig.KindBinary
		entry.Binary = out.SecretBinary
	default:
		return flexconfig.RemoteEntry{}, fmt.Errorf("awssm: %w: secret contained no payload", flexconfig.ErrMalformedValue)
	}
	return entry, nil
}

func classify(err error, versionStage string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		if versionStage != "" {
			return fmt.Errorf("awssm: %w: %s: %w", flexconfig.ErrVersionStageNotFound, versionStage, err)
		}
		return fmt.Errorf("awssm: %w: %w", flexconfig.ErrEntryNotFound, err)
	}
	var decrypt *types.DecryptionFailure
	if errors.As(err, &decrypt) {
		return fmt.Errorf("awssm: %w: %w", flexconfig.ErrMalformedValue, err)
	}
	return fmt.Errorf("awssm: %w: %w", flexconfig.ErrSourceUnavailable, err)
}

// NewSource is a convenience wrapper building a flexconfig.Source over a new
// Store.
func NewSource(client SecretsManagerClient, storeOpts []Option, opts ...flexconfig.Option) (*flexconfig.Source, error) {
	store, err := New(client, storeOpts...)
	if err != nil {
		return nil, err
	}
	return flexconfig.NewSource(store, opts...)
}
