package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AyushMusale/TripSense/internal/config"
	"github.com/AyushMusale/TripSense/internal/db"
	"github.com/AyushMusale/TripSense/internal/logging"
	"github.com/AyushMusale/TripSense/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var mainDepsProvider = defaultDeps
var mainRunner = execute

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	migrate         func(string, db.Direction) error
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
	exit            func(int)
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: func() config.Config {
			config.LoadDotEnv()
			return config.Load()
		},
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		migrate:         db.Migrate,
		notify:          signal.Notify,
		run:             Run,
		exit:            os.Exit,
	}
}

func execute(deps mainDeps) {
	cmd := newRootCmd(deps)
	if err := cmd.Execute(); err != nil {
		deps.exit(1)
	}
}

func newRootCmd(deps mainDeps) *cobra.Command {
	root := &cobra.Command{
		Use:          "tripsense",
		Short:        "TripSense travel diary API",
		SilenceUsage: true,
		Run: func(*cobra.Command, []string) {
			realMain(deps)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			realMain(deps)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.Up), string(db.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.loadConfig()
			if err := deps.migrate(cfg.PostgresURL, db.Direction(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied\n", args[0])
			return nil
		},
	})
	return root
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

	if cfg.MigrateOnStart {
		if err := deps.migrate(cfg.PostgresURL, db.Up); err != nil {
			logger.Error().Err(err).Msg("schema migration failed")
		}
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("postgres connection failed")
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and the live stream fan-out, then waits for
// termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, nil)
	if pg == nil {
		logger.Warn().Msg("running without postgres")
	}

	srv, err := server.NewServer(cfg, pg, rdb, logger)
	if err != nil {
		return err
	}

	if listen == nil {
		listen = defaultListen
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	srv.StartStream(streamCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	stopStream()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	closeResources(logger, pg, rdb)
	return nil
}

func closeResources(logger zerolog.Logger, pg *pgxpool.Pool, rdb *redis.Client) {
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis")
		}
	}
}
