package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/pkg/record"
	"github.com/jittakal/avroconvert/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Source = (*S3Source)(nil)

const defaultS3Region = "us-east-1"

// authErrorCodes are S3 error codes reported as authentication failures.
var authErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
}

// S3Source reads input objects from an S3 bucket.
// Static keys are used when given; otherwise the default AWS credential
// chain applies (environment, shared config, instance metadata).
type S3Source struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
	prefix     string
	datatype   string
	logger     *slog.Logger
	metrics    MetricsCollector
	closed     atomic.Bool
}

// NewS3Source creates an S3 source. Credentials are retrieved once here.
func NewS3Source(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, &apperrors.ConfigurationError{Field: "bucket", Reason: "S3 bucket name is required"}
	}

	datatype, err := checkDatatype(cfg.Datatype)
	if err != nil {
		return nil, err
	}

	creds := cfg.Credentials
	if (creds.AccessKey == "") != (creds.SecretKey == "") {
		return nil, &apperrors.AuthenticationError{
			Source: string(record.SourceS3),
			Reason: "access key and secret key must be given together",
		}
	}

	var loadOpts []func(*config.LoadOptions) error
	if creds.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(creds.Region))
	}
	if creds.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, creds.SessionToken),
		))
		logger.Info("using static AWS credentials")
	} else {
		logger.Info("no explicit credentials provided, using default AWS credential chain")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &apperrors.ConfigurationError{Field: "aws", Reason: fmt.Sprintf("failed to load AWS config: %v", err)}
	}
	if awsConfig.Region == "" {
		awsConfig.Region = defaultS3Region
	}

	if awsConfig.Credentials == nil {
		return nil, &apperrors.AuthenticationError{Source: string(record.SourceS3), Reason: "no AWS credentials provider"}
	}
	if _, err := awsConfig.Credentials.Retrieve(ctx); err != nil {
		return nil, &apperrors.AuthenticationError{
			Source: string(record.SourceS3),
			Reason: "failed to retrieve AWS credentials",
			Err:    err,
		}
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
		}
		o.UsePathStyle = creds.UsePathStyle
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB parts
		d.Concurrency = 5
	})

	logger.Debug("S3 source created",
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"region", awsConfig.Region,
		"datatype", datatype,
	)

	return &S3Source{
		client:     client,
		downloader: downloader,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		datatype:   datatype,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// GetData downloads every matching object under the prefix.
func (s *S3Source) GetData(ctx context.Context) (map[string][]byte, error) {
	if s.closed.Load() {
		return nil, apperrors.ErrSourceClosed
	}

	s.logger.Info("listing files in S3", "bucket", s.bucket, "prefix", s.prefix)

	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.fail("list", err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); matches(key, s.datatype) {
				names = append(names, key)
			}
		}
	}

	if len(names) == 0 {
		s.logger.Info("no matching files found in S3", "prefix", s.prefix)
		report(s.metrics, record.SourceS3, nil)
		return map[string][]byte{}, nil
	}
	sort.Strings(names)

	files, err := fetchAll(ctx, names, s.read)
	if err != nil {
		return nil, err
	}
	report(s.metrics, record.SourceS3, files)
	return files, nil
}

func (s *S3Source) read(ctx context.Context, key string) ([]byte, error) {
	s.logger.Info("reading file from S3", "file", key)

	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.fail("read", fmt.Errorf("failed to download %s: %w", key, err))
	}
	return buf.Bytes(), nil
}

func (s *S3Source) fail(operation string, err error) error {
	if s.metrics != nil {
		s.metrics.IncStorageErrors("s3", operation)
	}
	return s3Error(operation, err)
}

// s3Error turns rejected requests into authentication errors.
func s3Error(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authErrorCodes[apiErr.ErrorCode()] {
		return &apperrors.AuthenticationError{
			Source: string(record.SourceS3),
			Reason: fmt.Sprintf("%s request rejected: %s", operation, apiErr.ErrorCode()),
			Err:    err,
		}
	}
	if operation == "list" {
		return fmt.Errorf("failed to list S3 objects: %w", err)
	}
	return err
}

// Close marks the source closed. The S3 client holds no resources.
func (s *S3Source) Close() error {
	s.closed.Store(true)
	return nil
}
