package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kailas-cloud/ragdesk/internal/app"
	"github.com/kailas-cloud/ragdesk/internal/config"
	logpkg "github.com/kailas-cloud/ragdesk/internal/logger"
	"github.com/kailas-cloud/ragdesk/internal/transport/cli"
	"github.com/kailas-cloud/ragdesk/internal/version"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(open, version.String())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// open loads the config for ENV and wires the pipeline.
func open(ctx context.Context) (*cli.Services, func(), error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	svc := &cli.Services{Ingest: a.Ingest, Answer: a.Answer, Index: a.Index}
	return svc, func() {
		a.Close(context.Background())
		_ = logger.Sync()
	}, nil
}
