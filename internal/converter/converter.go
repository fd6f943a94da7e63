// Package converter runs a conversion: it resolves the source adapter,
// downloads the matching files and converts each one on a bounded
// worker pool.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	avrodecoder "github.com/jittakal/avroconvert/internal/decoder"
	"github.com/jittakal/avroconvert/internal/encoder"
	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/internal/source"
	"github.com/jittakal/avroconvert/internal/storage"
	"github.com/jittakal/avroconvert/internal/validator"
	"github.com/jittakal/avroconvert/pkg/decoder"
	"github.com/jittakal/avroconvert/pkg/record"
	pkgstorage "github.com/jittakal/avroconvert/pkg/storage"
)

// Options contains the parameters of one conversion run.
type Options struct {
	Source      string
	Bucket      string
	Prefix      string
	Format      string
	OutputDir   string
	Credentials source.Credentials
	Datatype    string
	Header      bool
	Compression string
	// Workers bounds concurrent conversions; 0 means PoolSize(runtime.NumCPU()).
	Workers int
}

// DefaultOptions returns options with the CSV header on, the avro datatype
// and the default Parquet codec.
func DefaultOptions() Options {
	defaults := encoder.DefaultOptions()
	return Options{
		Datatype:    record.DatatypeAvro,
		Header:      defaults.Header,
		Compression: defaults.Compression,
	}
}

// MetricsCollector defines metrics operations for a conversion run.
type MetricsCollector interface {
	source.MetricsCollector
	storage.MetricsCollector
	IncFiles(source, format, status string)
	AddRecords(format string, n int)
	ObserveConversionDuration(format string, duration float64)
	IncInflight()
	DecInflight()
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID     string
	Results   []record.ConversionResult
	Converted int
	Failed    int
	Skipped   int
	NoWork    bool
	Duration  time.Duration
}

// Failures returns the failed results in filename order.
func (s *Summary) Failures() []record.ConversionResult {
	var failed []record.ConversionResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Option customizes a Converter.
type Option func(*Converter)

// WithSourceFactories replaces the source lookup table.
func WithSourceFactories(factories map[record.SourceKind]source.Factory) Option {
	return func(c *Converter) {
		c.factories = factories
	}
}

// WithDecoder replaces the Avro decoder.
func WithDecoder(d decoder.Decoder) Option {
	return func(c *Converter) {
		c.decoder = d
	}
}

// Converter orchestrates one conversion run.
type Converter struct {
	opts      Options
	kind      record.SourceKind
	format    record.FileFormat
	workers   int
	factories map[record.SourceKind]source.Factory
	decoder   decoder.Decoder
	logger    *slog.Logger
	metrics   MetricsCollector
	progress  *Progress
}

// PoolSize returns the worker pool size for the given number of cores.
func PoolSize(cores int) int {
	if cores < 1 {
		cores = 1
	}
	return 2 * cores
}

// New validates opts and creates a converter. It performs no I/O.
func New(opts Options, logger *slog.Logger, metrics MetricsCollector, options ...Option) (*Converter, error) {
	params := validator.Params{
		Source:      opts.Source,
		Bucket:      opts.Bucket,
		Format:      opts.Format,
		OutputDir:   opts.OutputDir,
		Compression: opts.Compression,
		Workers:     opts.Workers,
	}
	if err := validator.NewRunValidator().Validate(&params); err != nil {
		return nil, err
	}
	opts.Source = params.Source
	opts.Format = params.Format
	opts.Compression = params.Compression

	workers := opts.Workers
	if workers == 0 {
		workers = PoolSize(runtime.NumCPU())
	}

	c := &Converter{
		opts:      opts,
		kind:      record.SourceKind(opts.Source),
		format:    record.FileFormat(opts.Format),
		workers:   workers,
		factories: source.Factories(),
		decoder:   avrodecoder.NewAvroDecoder(),
		logger:    logger,
		metrics:   metrics,
		progress:  NewProgress(),
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Workers returns the effective worker pool size.
func (c *Converter) Workers() int {
	return c.workers
}

// Progress returns the live run state, suitable for health probes.
func (c *Converter) Progress() *Progress {
	return c.progress
}

// Resolve builds the source adapter for the configured source kind.
// A new adapter is built on every call.
func (c *Converter) Resolve(ctx context.Context) (pkgstorage.Source, error) {
	factory, ok := c.factories[c.kind]
	if !ok {
		return nil, &apperrors.ConfigurationError{
			Field:  "source",
			Reason: fmt.Sprintf("unsupported source: %s", c.kind),
		}
	}

	return factory(ctx, source.Config{
		Bucket:      c.opts.Bucket,
		Prefix:      c.opts.Prefix,
		Datatype:    c.opts.Datatype,
		Credentials: c.opts.Credentials,
	}, c.logger, c.metrics)
}

// Run converts every matching input file. The returned summary holds one
// result per file; the error is the first failure. A failing file does
// not stop the others. Once ctx is done no further files are started.
func (c *Converter) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", summary.RunID)
	defer func() {
		summary.Duration = time.Since(startTime)
	}()

	c.progress.begin(summary.RunID)
	defer c.progress.end()

	logger.Info("starting conversion",
		"source", c.kind,
		"bucket", c.opts.Bucket,
		"prefix", c.opts.Prefix,
		"format", c.format,
		"workers", c.workers,
	)

	src, err := c.Resolve(ctx)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("failed to close source", "error", err)
		}
	}()

	files, err := src.GetData(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read files from %s: %w", c.kind, err)
	}
	if len(files) == 0 {
		summary.NoWork = true
		logger.Info("no files to convert", "prefix", c.opts.Prefix)
		return summary, nil
	}

	writer, err := storage.NewFileWriter(
		storage.FileConfig{BasePath: c.opts.OutputDir},
		c.format,
		encoder.Options{Header: c.opts.Header, Compression: c.opts.Compression},
		logger,
		c.metrics,
	)
	if err != nil {
		return summary, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	c.progress.converting(len(names))

	// Running jobs finish even when ctx is canceled.
	jobCtx := context.WithoutCancel(ctx)

	results := make([]record.ConversionResult, len(names))
	var g errgroup.Group
	g.SetLimit(c.workers)

	canceled := false
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(names); j++ {
				results[j] = record.ConversionResult{Filename: names[j], Err: err}
			}
			logger.Warn("conversion canceled", "unstarted", len(names)-i)
			canceled = true
			break
		}

		data := files[name]
		delete(files, name)
		g.Go(func() error {
			// g.Go may have blocked on a free slot while ctx was canceled.
			if err := ctx.Err(); err != nil {
				results[i] = record.ConversionResult{Filename: name, Err: err}
				return err
			}
			results[i] = c.convert(jobCtx, logger, writer, name, data)
			return results[i].Err
		})
	}

	err = g.Wait()
	if err == nil && canceled {
		err = ctx.Err()
	}

	summary.Results = results
	for _, r := range results {
		switch r.Status() {
		case record.StatusSuccess:
			summary.Converted++
		case record.StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	logger.Info("conversion finished",
		"converted", summary.Converted,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)

	return summary, err
}

// convert decodes and writes one file.
func (c *Converter) convert(ctx context.Context, logger *slog.Logger, writer pkgstorage.Writer, name string, data []byte) (result record.ConversionResult) {
	startTime := time.Now()
	logger = logger.With("file", name)
	format := string(c.format)
	result.Filename = name

	if c.metrics != nil {
		c.metrics.IncInflight()
		defer c.metrics.DecInflight()
	}
	defer func() {
		result.Duration = time.Since(startTime)
		c.progress.record(result.Status())
		if c.metrics != nil {
			c.metrics.IncFiles(string(c.kind), format, result.Status())
			c.metrics.ObserveConversionDuration(format, result.Duration.Seconds())
		}
	}()

	batch, err := c.decoder.Decode(name, data)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyPayload) {
			result.Skipped = true
			logger.Warn("skipping empty file")
			return result
		}
		result.Err = err
		logger.Error("[FAILED] conversion failed", "stage", "decode", "error", err)
		return result
	}

	stats, outputPath, err := writer.Write(ctx, name, batch)
	result.OutputPath = outputPath
	if err != nil {
		result.Err = err
		logger.Error("[FAILED] conversion failed", "stage", "write", "output", outputPath, "error", err)
		return result
	}

	result.Records = stats.RecordCount
	result.SizeBytes = stats.SizeBytes
	if c.metrics != nil {
		c.metrics.AddRecords(format, stats.RecordCount)
	}

	logger.Info("[COMPLETED] file converted",
		"output", outputPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
	)
	return result
}
