// Command oxidedb starts the MongoDB-wire-compatible server backed by
// PostgreSQL. See internal/cli for the command tree and internal/cli's
// serve.go for how the pieces are wired together.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/cli"
	"github.com/fcoury/oxidedb-sub001/internal/log"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logger, logFile, err := log.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start logger:", err)
		return 1
	}
	defer logFile.Close()
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRoot(logger, version)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("oxidedb exited with an error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
