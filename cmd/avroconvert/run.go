package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/jittakal/avroconvert/internal/config"
	"github.com/jittakal/avroconvert/internal/config/dto"
	"github.com/jittakal/avroconvert/internal/converter"
	"github.com/jittakal/avroconvert/internal/observability"
	"github.com/jittakal/avroconvert/internal/server"
	"github.com/jittakal/avroconvert/internal/source"
	"github.com/jittakal/avroconvert/pkg/record"
)

const shutdownTimeout = 5 * time.Second

// convertAction runs one conversion for kind. Values come from flags, then
// AVROCONVERT_* variables, then the config file, then defaults.
func convertAction(kind record.SourceKind, stdout, stderr io.Writer) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := config.NewLoader().Load(cmd.String("config"))
		if err != nil {
			return usageError(cmd, err)
		}

		logger := newLogger(cmd, cfg, stdout, stderr)
		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)

		conv, err := converter.New(runOptions(kind, cmd, cfg), logger, metrics)
		if err != nil {
			return usageError(cmd, err)
		}

		if addr := stringValue(cmd, "metrics-addr", cfg.Metrics.Addr); addr != "" {
			srv := server.NewServer(addr, conv.Progress(), registry, logger)
			if err := srv.Start(); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("failed to stop metrics server", "error", err)
				}
			}()
		}

		summary, runErr := conv.Run(ctx)
		report(stdout, summary, runErr)

		if path := stringValue(cmd, "metrics-file", cfg.Metrics.File); path != "" {
			if err := observability.WriteTextfile(path, registry); err != nil {
				logger.Error("failed to write metrics file", "path", path, "error", err)
				if runErr == nil {
					runErr = err
				}
			}
		}

		return runErr
	}
}

// usageError prints the subcommand usage for invalid parameters.
func usageError(cmd *cli.Command, err error) error {
	_ = cli.ShowSubcommandHelp(cmd)
	return err
}

func newLogger(cmd *cli.Command, cfg *dto.ApplicationConfig, stdout, stderr io.Writer) *slog.Logger {
	logging := observability.LoggingConfig{
		Level:  stringValue(cmd, "log-level", cfg.Logging.Level),
		Format: stringValue(cmd, "log-format", cfg.Logging.Format),
		Output: cfg.Logging.Output,
	}
	w := stderr
	if strings.EqualFold(logging.Output, "stdout") {
		w = stdout
	}
	return observability.NewLoggerTo(w, logging)
}

func runOptions(kind record.SourceKind, cmd *cli.Command, cfg *dto.ApplicationConfig) converter.Options {
	common := cfg.Section(kind)

	opts := converter.DefaultOptions()
	opts.Source = string(kind)
	opts.Prefix = stringValue(cmd, "prefix", common.Prefix)
	opts.Format = stringValue(cmd, "format", common.Format)
	opts.OutputDir = stringValue(cmd, "outfolder", common.Outfolder)
	opts.Workers = intValue(cmd, "workers", cfg.Conversion.Workers)
	opts.Header = boolValue(cmd, "header", cfg.Conversion.Header)
	opts.Compression = stringValue(cmd, "compression", cfg.Conversion.Compression)
	if cfg.Conversion.Datatype != "" {
		opts.Datatype = cfg.Conversion.Datatype
	}

	switch kind {
	case record.SourceGCS:
		opts.Bucket = stringValue(cmd, "bucket", cfg.GS.Bucket)
		opts.Credentials = source.Credentials{
			AuthFile:              stringValue(cmd, "auth-file", cfg.GS.AuthFile),
			UseDefaultCredentials: boolValue(cmd, "use-default-credentials", cfg.GS.UseDefaultCredentials),
			Endpoint:              stringValue(cmd, "endpoint", cfg.GS.Endpoint),
		}
	case record.SourceS3:
		opts.Bucket = stringValue(cmd, "bucket", cfg.S3.Bucket)
		opts.Credentials = source.Credentials{
			AccessKey:    stringValue(cmd, "access-key", cfg.S3.AccessKey),
			SecretKey:    stringValue(cmd, "secret-key", cfg.S3.SecretKey),
			SessionToken: stringValue(cmd, "session-token", cfg.S3.SessionToken),
			Region:       stringValue(cmd, "region", cfg.S3.Region),
			Endpoint:     stringValue(cmd, "endpoint", cfg.S3.Endpoint),
			UsePathStyle: boolValue(cmd, "path-style", cfg.S3.UsePathStyle),
		}
	case record.SourceFS:
		opts.Bucket = stringValue(cmd, "input-dir", cfg.FS.InputDir)
	}
	return opts
}

// report prints one line per file and, on success, the elapsed time.
func report(w io.Writer, summary *converter.Summary, runErr error) {
	if summary == nil {
		return
	}
	for _, r := range summary.Results {
		switch r.Status() {
		case record.StatusSuccess:
			fmt.Fprintf(w, "File %s complete\n", r.OutputPath)
		case record.StatusFailed:
			fmt.Fprintf(w, "[FAILED] File %s\n", r.Filename)
		}
	}
	if runErr == nil {
		fmt.Fprintf(w, "Conversion completed in %.2f seconds!\n", summary.Duration.Seconds())
	}
}

func stringValue(cmd *cli.Command, flag, fallback string) string {
	if cmd.IsSet(flag) {
		return cmd.String(flag)
	}
	return fallback
}

func intValue(cmd *cli.Command, flag string, fallback int) int {
	if cmd.IsSet(flag) {
		return cmd.Int(flag)
	}
	return fallback
}

func boolValue(cmd *cli.Command, flag string, fallback bool) bool {
	if cmd.IsSet(flag) {
		return cmd.Bool(flag)
	}
	return fallback
}
