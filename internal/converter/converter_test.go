package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/avroconvert/internal/avrotest"
	avrodecoder "github.com/jittakal/avroconvert/internal/decoder"
	apperrors "github.com/jittakal/avroconvert/internal/errors"
	"github.com/jittakal/avroconvert/internal/source"
	"github.com/jittakal/avroconvert/pkg/record"
	pkgstorage "github.com/jittakal/avroconvert/pkg/storage"
)

type mockMetrics struct {
	mu       sync.Mutex
	files    map[string]int
	records  int
	inflight int
	peak     int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{files: make(map[string]int)}
}

func (m *mockMetrics) IncFiles(source, format, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[source+"/"+format+"/"+status]++
}

func (m *mockMetrics) AddRecords(format string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records += n
}

func (m *mockMetrics) ObserveConversionDuration(format string, duration float64) {}

func (m *mockMetrics) IncInflight() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
	if m.inflight > m.peak {
		m.peak = m.inflight
	}
}

func (m *mockMetrics) DecInflight() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
}

func (m *mockMetrics) SetSourceFiles(source string, count int)              {}
func (m *mockMetrics) AddSourceBytes(source string, n int)                  {}
func (m *mockMetrics) IncStorageErrors(backend string, operation string)    {}
func (m *mockMetrics) IncFilesWritten(format string, status string)         {}
func (m *mockMetrics) ObserveFileSize(format string, size float64)          {}
func (m *mockMetrics) ObserveWriteDuration(format string, duration float64) {}

// staticSource serves a fixed file set.
type staticSource struct {
	files  map[string][]byte
	err    error
	closed bool
}

func (s *staticSource) GetData(context.Context) (map[string][]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string][]byte, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out, nil
}

func (s *staticSource) Close() error {
	s.closed = true
	return nil
}

func staticFactories(src *staticSource) map[record.SourceKind]source.Factory {
	factory := func(context.Context, source.Config, *slog.Logger, source.MetricsCollector) (pkgstorage.Source, error) {
		return src, nil
	}
	return map[record.SourceKind]source.Factory{
		record.SourceFS:  factory,
		record.SourceGCS: factory,
		record.SourceS3:  factory,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fsOptions(t *testing.T, input, format string) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Source = "fs"
	opts.Bucket = input
	opts.Format = format
	opts.OutputDir = filepath.Join(t.TempDir(), "out")
	return opts
}

func writeInput(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return root
}

func TestPoolSize(t *testing.T) {
	assert.Equal(t, 16, PoolSize(8))
	assert.Equal(t, 2, PoolSize(1))
	assert.Equal(t, 2, PoolSize(0))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(o *Options)
		wantField string
	}{
		{name: "unsupported format", mutate: func(o *Options) { o.Format = "xml" }, wantField: "format"},
		{name: "empty format", mutate: func(o *Options) { o.Format = "" }, wantField: "format"},
		{name: "empty output", mutate: func(o *Options) { o.OutputDir = "" }, wantField: "outfolder"},
		{name: "empty input", mutate: func(o *Options) { o.Bucket = "" }, wantField: "input_dir"},
		{name: "unsupported source", mutate: func(o *Options) { o.Source = "ftp" }, wantField: "source"},
		{name: "negative workers", mutate: func(o *Options) { o.Workers = -2 }, wantField: "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := fsOptions(t, "./input", "csv")
			tt.mutate(&opts)

			_, err := New(opts, discardLogger(), nil)

			var cfgErr *apperrors.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestNew_DefaultWorkers(t *testing.T) {
	conv, err := New(fsOptions(t, "./input", "JSON"), discardLogger(), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, conv.Workers(), 2)
	assert.Equal(t, 0, conv.Workers()%2)
	assert.Equal(t, record.FormatJSON, conv.format)
}

func TestRun_CSV(t *testing.T) {
	people := avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People())
	input := writeInput(t, map[string][]byte{
		"people.avro":         people,
		"2024/01/people.avro": people,
		"ignored/people.json": []byte("{}"),
	})

	opts := fsOptions(t, input, "csv")
	metrics := newMockMetrics()
	conv, err := New(opts, discardLogger(), metrics)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.NoWork)
	assert.Equal(t, 2, summary.Converted)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "2024/01/people.avro", summary.Results[0].Filename)
	assert.Equal(t, "people.avro", summary.Results[1].Filename)

	for _, rel := range []string{"people.csv", filepath.Join("2024", "01", "people.csv")} {
		data, err := os.ReadFile(filepath.Join(opts.OutputDir, rel))
		require.NoError(t, err)
		assert.Equal(t, "name,address\nJohn,New York\nJane,Mumbai\n", string(data))
	}

	assert.Equal(t, 2, metrics.files["fs/csv/success"])
	assert.Equal(t, 4, metrics.records)
	assert.Zero(t, metrics.inflight)
	assert.Equal(t, PhaseDone, conv.Progress().Phase())
	assert.Equal(t, "2", conv.Progress().GetStatus()["converted"])
}

func TestRun_JSON(t *testing.T) {
	input := writeInput(t, map[string][]byte{
		"people.avro": avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People()),
	})

	opts := fsOptions(t, input, "json")
	conv, err := New(opts, discardLogger(), nil)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Converted)

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "people.json"))
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"John","address":"New York"},{"name":"Jane","address":"Mumbai"}]`, string(data))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 2)
}

func TestRun_EmptyContainerParquet(t *testing.T) {
	input := writeInput(t, map[string][]byte{
		"empty.avro": avrotest.OCF(t, avrotest.PeopleSchema, nil),
	})

	opts := fsOptions(t, input, "parquet")
	conv, err := New(opts, discardLogger(), nil)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Converted)
	assert.Zero(t, summary.Failed)

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "empty.parquet"))
	require.NoError(t, err)
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Zero(t, f.NumRows())

	var columns []string
	for _, field := range f.Schema().Fields() {
		columns = append(columns, field.Name())
	}
	assert.ElementsMatch(t, []string{"name", "address"}, columns)
}

func TestRun_NoWork(t *testing.T) {
	input := writeInput(t, map[string][]byte{"notes.txt": []byte("x")})

	opts := fsOptions(t, input, "parquet")
	conv, err := New(opts, discardLogger(), nil)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.NoWork)
	assert.Empty(t, summary.Results)

	_, err = os.Stat(opts.OutputDir)
	assert.True(t, os.IsNotExist(err), "output root should not be created without work")
}

func TestRun_PartialFailure(t *testing.T) {
	people := avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People())
	input := writeInput(t, map[string][]byte{
		"a.avro":     people,
		"b.avro":     []byte("not an avro file"),
		"c.avro":     people,
		"empty.avro": {},
	})

	opts := fsOptions(t, input, "csv")
	opts.Workers = 2
	metrics := newMockMetrics()
	conv, err := New(opts, discardLogger(), metrics)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())

	var decodeErr *apperrors.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "b.avro", decodeErr.Filename)

	assert.Equal(t, 2, summary.Converted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "b.avro", failures[0].Filename)

	for _, name := range []string{"a.csv", "c.csv"} {
		_, err := os.Stat(filepath.Join(opts.OutputDir, name))
		assert.NoError(t, err, "sibling %s should still be written", name)
	}
	_, err = os.Stat(filepath.Join(opts.OutputDir, "empty.csv"))
	assert.True(t, os.IsNotExist(err), "empty input should not produce output")

	assert.Equal(t, 1, metrics.files["fs/csv/failed"])
	assert.Equal(t, 1, metrics.files["fs/csv/skipped"])
	assert.LessOrEqual(t, metrics.peak, 2)
}

func TestRun_SourceErrors(t *testing.T) {
	t.Run("missing input dir", func(t *testing.T) {
		opts := fsOptions(t, filepath.Join(t.TempDir(), "missing"), "csv")
		conv, err := New(opts, discardLogger(), nil)
		require.NoError(t, err)

		_, err = conv.Run(context.Background())
		var cfgErr *apperrors.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.True(t, apperrors.IsFatal(err))
	})

	t.Run("unsupported datatype", func(t *testing.T) {
		opts := fsOptions(t, t.TempDir(), "csv")
		opts.Datatype = "csv"
		conv, err := New(opts, discardLogger(), nil)
		require.NoError(t, err)

		_, err = conv.Run(context.Background())
		var typeErr *apperrors.UnsupportedTypeError
		require.ErrorAs(t, err, &typeErr)
	})

	t.Run("listing fails", func(t *testing.T) {
		authErr := &apperrors.AuthenticationError{Source: "s3", Reason: "denied"}
		src := &staticSource{err: authErr}

		opts := fsOptions(t, "bucket", "csv")
		opts.Source = "s3"
		conv, err := New(opts, discardLogger(), nil, WithSourceFactories(staticFactories(src)))
		require.NoError(t, err)

		summary, err := conv.Run(context.Background())
		assert.ErrorIs(t, err, authErr)
		assert.Empty(t, summary.Results)
		assert.True(t, src.closed)
	})
}

func TestResolve(t *testing.T) {
	opts := fsOptions(t, t.TempDir(), "csv")

	t.Run("builds a fresh adapter", func(t *testing.T) {
		conv, err := New(opts, discardLogger(), nil)
		require.NoError(t, err)

		first, err := conv.Resolve(context.Background())
		require.NoError(t, err)
		second, err := conv.Resolve(context.Background())
		require.NoError(t, err)

		assert.IsType(t, &source.FileSource{}, first)
		assert.NotSame(t, first, second)
	})

	t.Run("missing factory", func(t *testing.T) {
		conv, err := New(opts, discardLogger(), nil, WithSourceFactories(map[record.SourceKind]source.Factory{}))
		require.NoError(t, err)

		_, err = conv.Resolve(context.Background())
		var cfgErr *apperrors.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("passes configuration through", func(t *testing.T) {
		var got source.Config
		factories := map[record.SourceKind]source.Factory{
			record.SourceGCS: func(_ context.Context, cfg source.Config, _ *slog.Logger, _ source.MetricsCollector) (pkgstorage.Source, error) {
				got = cfg
				return &staticSource{}, nil
			},
		}

		gsOpts := opts
		gsOpts.Source = "gs"
		gsOpts.Bucket = "my-bucket"
		gsOpts.Prefix = "events-"
		gsOpts.Credentials = source.Credentials{AuthFile: "/tmp/sa.json"}
		conv, err := New(gsOpts, discardLogger(), nil, WithSourceFactories(factories))
		require.NoError(t, err)

		_, err = conv.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "my-bucket", got.Bucket)
		assert.Equal(t, "events-", got.Prefix)
		assert.Equal(t, "avro", got.Datatype)
		assert.Equal(t, "/tmp/sa.json", got.Credentials.AuthFile)
	})
}

// cancelingDecoder cancels the run on its first call.
type cancelingDecoder struct {
	once   sync.Once
	cancel context.CancelFunc
	inner  *avrodecoder.AvroDecoder
}

func (d *cancelingDecoder) Decode(filename string, data []byte) (record.Batch, error) {
	d.once.Do(d.cancel)
	return d.inner.Decode(filename, data)
}

func TestRun_Cancellation(t *testing.T) {
	people := avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People())
	src := &staticSource{files: map[string][]byte{
		"a.avro": people,
		"b.avro": people,
		"c.avro": people,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := fsOptions(t, "unused", "csv")
	opts.Workers = 1
	conv, err := New(opts, discardLogger(), nil,
		WithSourceFactories(staticFactories(src)),
		WithDecoder(&cancelingDecoder{cancel: cancel, inner: avrodecoder.NewAvroDecoder()}),
	)
	require.NoError(t, err)

	summary, err := conv.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, summary.Results, 3)

	assert.NoError(t, summary.Results[0].Err, "running job should finish")
	assert.ErrorIs(t, summary.Results[2].Err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(opts.OutputDir, "a.csv"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(opts.OutputDir, "c.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CancelWhileWaitingForWorker(t *testing.T) {
	people := avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People())
	src := &staticSource{files: map[string][]byte{
		"a.avro": people,
		"b.avro": people,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := fsOptions(t, "unused", "csv")
	opts.Workers = 1
	conv, err := New(opts, discardLogger(), nil,
		WithSourceFactories(staticFactories(src)),
		WithDecoder(&cancelingDecoder{cancel: cancel, inner: avrodecoder.NewAvroDecoder()}),
	)
	require.NoError(t, err)

	summary, err := conv.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, summary.Results, 2)

	assert.NoError(t, summary.Results[0].Err)
	assert.ErrorIs(t, summary.Results[1].Err, context.Canceled, "queued job must not start after cancel")
	assert.Equal(t, "b.avro", summary.Results[1].Filename)
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, "b.csv"))
}

func TestRun_WriteFailure(t *testing.T) {
	input := writeInput(t, map[string][]byte{
		"people.avro": avrotest.OCF(t, avrotest.PeopleSchema, avrotest.People()),
	})

	opts := fsOptions(t, input, "csv")
	// A directory occupies the output path.
	require.NoError(t, os.MkdirAll(opts.OutputDir, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(opts.OutputDir, "people.csv"), 0o755))

	conv, err := New(opts, discardLogger(), nil)
	require.NoError(t, err)

	summary, err := conv.Run(context.Background())

	var writeErr *apperrors.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "people.avro", writeErr.Filename)
	assert.Equal(t, err, summary.Results[0].Err)
	assert.Equal(t, 1, summary.Failed)
}
