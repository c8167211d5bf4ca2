package ssm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	flexconfig "github.com/saruyev/FlexKit-sub001"
)

// ParameterClient captures the subset of the Systems Manager client used by
// the store. *ssm.Client satisfies this interface.
type ParameterClient interface {
	awsssm.GetParametersByPathAPIClient
	GetParameter(ctx context.Context, params *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
}

// Store reads a parameter hierarchy from AWS Systems Manager Parameter Store.
// Parameters below the path become flat keys: "/myapp/db/host" is
// "db:host" for the path "/myapp".
type Store struct {
	client    ParameterClient
	path      string
	recursive bool
	decrypt   bool
	pageSize  int32
	callOpts  []func(*awsssm.Options)
}

// Option configures the store.
type Option func(*Store)

// WithRecursive controls whether nested levels below the path are listed.
// Defaults to true.
func WithRecursive(recursive bool) Option {
	return func(s *Store) {
		s.recursive = recursive
	}
}

// WithDecryption controls whether SecureString parameters are decrypted.
// Defaults to true.
func WithDecryption(decrypt bool) Option {
	return func(s *Store) {
		s.decrypt = decrypt
	}
}

// WithPageSize sets the GetParametersByPath page size (at most 10).
func WithPageSize(n int32) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClientOptions forwards SSM call options to each request.
func WithClientOptions(opts ...func(*awsssm.Options)) Option {
	return func(s *Store) {
		s.callOpts = append(s.callOpts, opts...)
	}
}

// New constructs a Parameter Store store rooted at path.
func New(client ParameterClient, path string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("ssm: client is required")
	}
	path = "/" + strings.Trim(path, "/")
	s := &Store{
		client:    client,
		path:      path,
		recursive: true,
		decrypt:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements flexconfig.Store.
func (s *Store) Name() string {
	return "ssm:" + s.path
}

// Separator implements flexconfig.Store.
func (s *Store) Separator() string {
	return "/"
}

// SupportsVersionStages implements flexconfig.StagedStore. Stages are
// parameter labels or version numbers.
func (s *Store) SupportsVersionStages() bool {
	return true
}

// ListEntries implements flexconfig.Store. Listed parameters carry their
// values, so no per-entry fetch is needed unless a version stage is set.
func (s *Store) ListEntries(ctx context.Context, page func([]flexconfig.RemoteEntry) error) error {
	input := &awsssm.GetParametersByPathInput{
		Path:           aws.String(s.path),
		Recursive:      aws.Bool(s.recursive),
		WithDecryption: aws.Bool(s.decrypt),
	}
	if s.pageSize > 0 {
		input.MaxResults = aws.Int32(s.pageSize)
	}
	paginator := awsssm.NewGetParametersByPathPaginator(s.client, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx, s.callOpts...)
		if err != nil {
			return classify(err, "")
		}
		entries := make([]flexconfig.RemoteEntry, 0, len(out.Parameters))
		for _, p := range out.Parameters {
			entries = append(entries, s.entry(p, ""))
		}
		if err := page(entries); err != nil {
			return err
		}
	}
	return nil
}

// GetEntryValue implements flexconfig.Store.
func (s *Store) GetEntryValue(ctx context.Context, name, versionStage string) (flexconfig.RemoteEntry, error) {
	if strings.Trim(name, "/") == "" {
		return flexconfig.RemoteEntry{}, errors.New("ssm: parameter name cannot be empty")
	}
	full := s.fullName(name)
	if versionStage != "" {
		full += ":" + versionStage
	}
	out, err := s.client.GetParameter(ctx, &awsssm.GetParameterInput{
		Name:           aws.String(full),
		WithDecryption: aws.Bool(s.decrypt),
	}, s.callOpts...)
	if err != nil {
		return flexconfig.RemoteEntry{}, classify(err, versionStage)
	}
	if out.Parameter == nil {
		return flexconfig.RemoteEntry{}, fmt.Errorf("ssm: %w: %s", flexconfig.ErrEntryNotFound, full)
	}
	return s.entry(*out.Parameter, versionStage), nil
}

func (s *Store) entry(p types.Parameter, versionStage string) flexconfig.RemoteEntry {
	e := flexconfig.RemoteEntry{
		Name:         s.relative(aws.ToString(p.Name)),
		Value:        aws.ToString(p.Value),
		Enabled:      true,
		Resolved:     true,
		VersionStage: versionStage,
	}
	switch p.Type {
	case types.ParameterTypeStringList:
		e.Kind = flexconfig.KindList
	case types.ParameterTypeSecureString:
		e.Kind = flexconfig.KindSecure
	default:
		e.Kind = flexconfig.KindPlain
	}
	return e
}

func (s *Store) fullName(name string) string {
	name = strings.TrimPrefix(name, "/")
	if s.path == "/" {
		return "/" + name
	}
	return s.path + "/" + name
}

func (s *Store) relative(name string) string {
	if s.path == "/" {
		return strings.TrimPrefix(name, "/")
	}
	rest := strings.TrimPrefix(name, s.path)
	return strings.TrimPrefix(rest, "/")
}

func classify(err error, versionStage string) error {
	var versionMissing *types.ParameterVersionNotFound
	if errors.As(err, &versionMissing) {
		return fmt.Errorf("ssm: %w: %s: %w", flexconfig.ErrVersionStageNotFound, versionStage, err)
	}
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		if versionStage != "" {
			// an unknown label is reported as a missing parameter
			return fmt.Errorf("ssm: %w: %s: %w", flexconfig.ErrVersionStageNotFound, versionStage, err)
		}
		return fmt.Errorf("ssm: %w: %w", flexconfig.ErrEntryNotFound, err)
	}
	var badKey *types.InvalidKeyId
	if errors.As(err, &badKey) {
		return fmt.Errorf("ssm: %w: %w", flexconfig.ErrMalformedValue, err)
	}
	return fmt.Errorf("ssm: %w: %w", flexconfig.ErrSourceUnavailable, err)
}

// NewSource is a convenience wrapper building a flexconfig.Source over a new
// Store.
func NewSource(client ParameterClient, path string, storeOpts []Option, opts ...flexconfig.Option) (*flexconfig.Source, error) {
	store, err := New(client, path, storeOpts...)
	if err != nil {
		return nil, err
	}
	return flexconfig.NewSource(store, opts...)
}
