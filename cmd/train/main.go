// Command train runs the connected-car component classifier training job.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/carml"
	"github.com/hupe1980/carml/blobstore"
	miniostore "github.com/hupe1980/carml/blobstore/minio"
	s3store "github.com/hupe1980/carml/blobstore/s3"
	"github.com/hupe1980/carml/config"
	"github.com/hupe1980/carml/internal/cli"
	"github.com/hupe1980/carml/internal/fetch"
	"github.com/hupe1980/carml/workspace"
	"github.com/hupe1980/carml/workspace/ddb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires configuration, workspace and pipeline together.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	parsed, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	path, err := config.Locate()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := carml.NewLoggerFromFormat(errW, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	logger.Info("Argument 1: " + parsed.ModelName)
	logger.Info("Argument 2: " + parsed.BuildNumber)

	fetcher := fetch.New(fetch.WithRateLimit(cfg.Sources.RateLimitBytes))

	ws, err := openWorkspace(ctx, cfg.Workspace,
		workspace.WithFetcher(fetcher),
		workspace.WithLogger(logger.Logger),
	)
	if err != nil {
		return err
	}

	p := carml.New(ws,
		carml.WithConfig(cfg),
		carml.WithLogger(logger),
		carml.WithSummaryWriter(outW),
	)

	_, err = p.Run(ctx, carml.Args{
		ModelName:   parsed.ModelName,
		BuildNumber: parsed.BuildNumber,
	})
	return err
}

// openWorkspace builds the blob store and version log of the configured
// backend.
func openWorkspace(ctx context.Context, wc config.WorkspaceConfig, optFns ...workspace.Option) (*workspace.Workspace, error) {
	switch wc.Backend {
	case "local":
		return workspace.New(blobstore.NewLocalStore(wc.Root), optFns...), nil
	case "memory":
		return workspace.New(blobstore.NewMemoryStore(), optFns...), nil
	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if wc.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(wc.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		store := s3store.NewStore(s3.NewFromConfig(awsCfg), wc.Bucket, wc.Prefix)
		baseURI := "s3://" + wc.Bucket + "/" + strings.Trim(wc.Prefix, "/")
		versions := ddb.New(dynamodb.NewFromConfig(awsCfg), wc.Table, baseURI)

		return workspace.New(store, append(optFns, workspace.WithVersionLog(versions))...), nil
	case "minio":
		store, err := miniostore.Dial(ctx, miniostore.Config{
			Endpoint:  wc.Endpoint,
			AccessKey: wc.AccessKey,
			SecretKey: wc.SecretKey,
			Region:    wc.Region,
			Secure:    wc.Secure,
			Bucket:    wc.Bucket,
			Prefix:    wc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return workspace.New(store, optFns...), nil
	default:
		return nil, fmt.Errorf("unknown workspace backend %q", wc.Backend)
	}
}
