package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
	pkgstorage "github.com/jittakal/avroconvert/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Source = (*GCSSource)(nil)

// GCSSource reads input objects from a Google Cloud Storage bucket.
// It supports a service account file, application default credentials
// and unauthenticated access to an emulator endpoint.
type GCSSource struct {
	client   *storage.Client
	bucket   string
	prefix   string
	datatype string
	logger   *slog.Logger
	metrics  MetricsCollector
	closed   atomic.Bool
}

// NewGCSSource creates a Google Cloud Storage source.
func NewGCSSource(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*GCSSource, error) {
	if cfg.Bucket == "" {
		return nil, &apperrors.ConfigurationError{Field: "bucket", Reason: "GCS bucket name is required"}
	}

	datatype, err := checkDatatype(cfg.Datatype)
	if err != nil {
		return nil, err
	}

	clientOpts, err := gcsClientOptions(cfg.Credentials, logger)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, &apperrors.AuthenticationError{
			Source: string(record.SourceGCS),
			Reason: "failed to create GCS client",
			Err:    err,
		}
	}

	logger.Debug("GCS source created",
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"datatype", datatype,
	)

	return &GCSSource{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		datatype: datatype,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// gcsClientOptions resolves the authentication method. The auth file comes
// from the credentials, then GOOGLE_APPLICATION_CREDENTIALS.
func gcsClientOptions(creds Credentials, logger *slog.Logger) ([]option.ClientOption, error) {
	var clientOpts []option.ClientOption
	if creds.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(creds.Endpoint))
	}

	authFile := creds.AuthFile
	if authFile == "" {
		authFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	switch {
	case authFile != "":
		if _, err := os.Stat(authFile); err != nil {
			return nil, &apperrors.AuthenticationError{
				Source: string(record.SourceGCS),
				Reason: "cannot read service account file " + authFile,
				Err:    err,
			}
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(authFile))
		logger.Info("using GCP credentials from file", "file", authFile)
	case creds.UseDefaultCredentials:
		logger.Info("using default GCP credentials")
	case creds.Endpoint != "":
		clientOpts = append(clientOpts, option.WithoutAuthentication())
		logger.Info("no GCP credentials provided, using unauthenticated endpoint", "endpoint", creds.Endpoint)
	default:
		return nil, &apperrors.AuthenticationError{
			Source: string(record.SourceGCS),
			Reason: "credentials not set: set GOOGLE_APPLICATION_CREDENTIALS or pass the path of a service account json file",
		}
	}

	return clientOpts, nil
}

// GetData downloads every matching object under the prefix.
func (s *GCSSource) GetData(ctx context.Context) (map[string][]byte, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrSourceClosed
	}

	s.logger.Info("listing files in GCS", "bucket", s.bucket, "prefix", s.prefix)

	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, s.fail("list", err)
		}
		if matches(attrs.Name, s.datatype) {
			names = append(names, attrs.Name)
		}
	}

	if len(names) == 0 {
		s.logger.Info("no matching files found in GCS", "prefix", s.prefix)
		report(s.metrics, record.SourceGCS, nil)
		return map[string][]byte{}, nil
	}
	sort.Strings(names)

	files, err := fetchAll(ctx, names, s.read)
	if err != nil {
		return nil, err
	}
	report(s.metrics, record.SourceGCS, files)
	return files, nil
}

func (s *GCSSource) read(ctx context.Context, name string) ([]byte, error) {
	s.logger.Info("reading file from GCS", "file", name)

	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, s.fail("read", fmt.Errorf("failed to open %s: %w", name, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, s.fail("read", fmt.Errorf("failed to read %s: %w", name, err))
	}
	return data, nil
}

func (s *GCSSource) fail(operation string, err error) error {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("gcs", operation)
	}
	return gcsError(operation, err)
}

// gcsError turns rejected requests into authentication errors.
func gcsError(operation string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return &apperrors.AuthenticationError{
			Source: string(record.SourceGCS),
			Reason: fmt.Sprintf("%s request rejected with status %d", operation, gerr.Code),
			Err:    err,
		}
	}
	if operation == "list" {
		return fmt.Errorf("failed to list GCS objects: %w", err)
	}
	return err
}

// Close closes the GCS client.
func (s *GCSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Debug("closing GCS source")
	return s.client.Close()
}
