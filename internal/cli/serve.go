package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/command"
	"github.com/fcoury/oxidedb-sub001/internal/config"
	"github.com/fcoury/oxidedb-sub001/internal/cursor"
	"github.com/fcoury/oxidedb-sub001/internal/log"
	"github.com/fcoury/oxidedb-sub001/internal/server"
	"github.com/fcoury/oxidedb-sub001/internal/shadow"
)

// serverVersion is the string advertised to drivers via
// hello/buildInfo; overwritten at build time with -ldflags in a real
// release, left at this placeholder otherwise.
var serverVersion = "dev"

func newServeCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the oxidedb server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, logger)
		},
	}

	cmd.Flags().String("listen-addr", "", "address to listen on (overrides the config file)")
	cmd.Flags().String("postgres-url", "", "PostgreSQL connection string (overrides the config file)")
	return cmd
}

func runServe(cmd *cobra.Command, logger *zap.Logger) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = os.Getenv("OXIDEDB_CONFIG")
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// config.Load's flag binding matches a flag's own name against a
	// config key, so "listen-addr"/"postgres-url" (dashed, cobra
	// convention) don't line up with "listen_addr"/"postgres_url"
	// (the config-key spelling) automatically; apply them explicitly.
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("postgres-url"); v != "" {
		cfg.PostgresURL = v
	}
	if cfg.PostgresURL == "" {
		cfg.PostgresURL = os.Getenv("OXIDEDB_POSTGRES_URL")
	}
	if cfg.PostgresURL == "" {
		return fmt.Errorf("postgres_url is required (set it in the config file, OXIDEDB_POSTGRES_URL, or --postgres-url)")
	}

	debug, _ := cmd.Flags().GetBool("debug")
	debugModules, _ := cmd.Flags().GetStringSlice("debug-module")
	moduleDebug := make(map[string]bool, len(debugModules))
	for _, m := range debugModules {
		moduleDebug[m] = true
	}
	logger = log.NewModuleLoggerFactory(logger, debug, moduleDebug).GetLogger("")

	ctx := cmd.Context()

	store, err := backend.Open(ctx, cfg.PostgresURL, logger.Named("backend"))
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer store.Close()

	cursors := cursor.NewRegistry(logger.Named("cursor"), 10*time.Minute)
	cursorCtx, stopCursors := context.WithCancel(ctx)
	defer stopCursors()
	go cursors.Run(cursorCtx)

	var comparator *shadow.Comparator
	if cfg.Shadow.Enabled {
		comparator, err = shadow.Connect(ctx, cfg.Shadow.Build(), logger)
		if err != nil {
			logger.Warn("shadow upstream unavailable, continuing without shadow comparison", zap.Error(err))
			comparator = nil
		} else {
			defer func() { _ = comparator.Close(context.Background()) }()
		}
	}

	deps := &command.Deps{
		Store:         store,
		Cursors:       cursors,
		Logger:        logger,
		ServerVersion: serverVersion,
	}
	if comparator != nil {
		deps.Shadow = comparator
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()

	srv := server.New(deps, logger)
	return srv.Serve(ctx, ln)
}
