package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jittakal/avroconvert/pkg/record"
)

var errNoSubcommand = errors.New("a subcommand is required: gs, s3 or fs")

func cmd(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "avroconvert",
		Usage:     "convert avro files from gs, s3 or the local filesystem to csv, json or parquet",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			{
				Name:   string(record.SourceGCS),
				Usage:  "read files from google cloud storage",
				Flags:  append(commonFlags(), gsFlags()...),
				Action: convertAction(record.SourceGCS, stdout, stderr),
			},
			{
				Name:   string(record.SourceS3),
				Usage:  "read files from amazon s3 storage",
				Flags:  append(commonFlags(), s3Flags()...),
				Action: convertAction(record.SourceS3, stdout, stderr),
			},
			{
				Name:   string(record.SourceFS),
				Usage:  "read files from local file system",
				Flags:  append(commonFlags(), fsFlags()...),
				Action: convertAction(record.SourceFS, stdout, stderr),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_ = cli.ShowSubcommandHelp(cmd)
			return errNoSubcommand
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "prefix",
			Aliases: []string{"p"},
			Usage:   "File prefix; only files starting with this prefix are converted",
		},
		&cli.StringFlag{
			Name:    "outfolder",
			Aliases: []string{"o"},
			Usage:   "Output folder; converted files are stored under `DIR`",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: parquet, csv or json",
		},
		&cli.StringFlag{
			Name:      "config",
			Usage:     "Load configuration from `FILE`",
			Validator: validateConfig,
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of concurrent conversions (default 2 x CPU)",
		},
		&cli.BoolFlag{
			Name:  "header",
			Usage: "Write the CSV header row",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "Parquet compression codec: uncompressed, snappy, gzip, lz4 or zstd",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text or json",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve /metrics and /health/* on `ADDR` while converting",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics to `FILE` after the run",
		},
	}
}

func gsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "bucket",
			Aliases: []string{"b"},
			Usage:   "Name of the bucket in google cloud storage",
		},
		&cli.StringFlag{
			Name:  "auth-file",
			Usage: "Path of the google service account `FILE`",
		},
		&cli.BoolFlag{
			Name:  "use-default-credentials",
			Usage: "Use application default credentials",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Storage API endpoint, for emulators",
		},
	}
}

func s3Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "bucket",
			Aliases: []string{"b"},
			Usage:   "Name of the bucket in amazon s3 storage",
		},
		&cli.StringFlag{
			Name:  "access-key",
			Usage: "AWS access key; only required when the default credential chain is not configured",
		},
		&cli.StringFlag{
			Name:  "secret-key",
			Usage: "AWS secret key; only required when the default credential chain is not configured",
		},
		&cli.StringFlag{
			Name:  "session-token",
			Usage: "AWS session token for temporary credentials",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "AWS region (default us-east-1)",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "S3 endpoint URL, for S3-compatible stores",
		},
		&cli.BoolFlag{
			Name:  "path-style",
			Usage: "Use path-style bucket addressing",
		},
	}
}

func fsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "input-dir",
			Aliases: []string{"i"},
			Usage:   "Input directory containing the avro files",
		},
	}
}

func validateConfig(config string) error {
	info, err := os.Stat(config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%q does not exist", config)
		}
		return fmt.Errorf("failed to stat %q: %w", config, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", config)
	}

	return nil
}
