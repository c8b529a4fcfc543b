// Package main runs the token manager dashboard API: sessions over HTTP,
// each owning a data hook, a project config loader and a modal slot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/api"
	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/logging"
	"token-manager-dashboard/internal/session"
	"token-manager-dashboard/internal/solana"
	"token-manager-dashboard/internal/storage"
	chstore "token-manager-dashboard/internal/storage/clickhouse"
	"token-manager-dashboard/internal/storage/memory"
	"token-manager-dashboard/internal/storage/migrations"
	pgstore "token-manager-dashboard/internal/storage/postgres"
	"token-manager-dashboard/internal/tokenmanager"
)

type config struct {
	Address          string        `env:"ADDRESS" envDefault:"localhost:8080"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RatePerMinute    int           `env:"RATE_PER_MINUTE" envDefault:"300"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"console"`
	EnvironmentsFile string        `env:"ENVIRONMENTS_FILE"`
	DefaultCluster   string        `env:"DEFAULT_CLUSTER" envDefault:"mainnet-beta"`
	ConfigEndpoint   string        `env:"CONFIG_ENDPOINT" envDefault:"https://api.cardinal.so/config"`
	RefreshInterval  time.Duration `env:"REFRESH_INTERVAL" envDefault:"200s"`
	Live             bool          `env:"LIVE_INVALIDATION" envDefault:"false"`
	UseMemory        bool          `env:"USE_MEMORY" envDefault:"false"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
	PostgresMaxConns int           `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	ClickhouseDSN    string        `env:"CLICKHOUSE_DSN"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func main() {
	// A missing .env is fine; the environment may come from the process manager.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override environment values.
	origins := strings.Join(cfg.AllowedOrigins, ",")
	flag.StringVar(&cfg.Address, "address", cfg.Address, "HTTP listen address")
	flag.StringVar(&origins, "allowed-origins", origins, "Comma-separated CORS origins")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console, json)")
	flag.StringVar(&cfg.EnvironmentsFile, "environments", cfg.EnvironmentsFile, "Cluster environments file (.toml or .json)")
	flag.StringVar(&cfg.DefaultCluster, "cluster", cfg.DefaultCluster, "Default cluster for new sessions")
	flag.StringVar(&cfg.ConfigEndpoint, "config-endpoint", cfg.ConfigEndpoint, "Project config service base URL")
	flag.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Token manager refresh interval")
	flag.BoolVar(&cfg.Live, "live", cfg.Live, "Also refresh on token manager program transactions (opt-in)")
	flag.BoolVar(&cfg.UseMemory, "use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string for snapshots")
	flag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string for refresh events")
	flag.Parse()
	cfg.AllowedOrigins = splitList(origins)

	base := logging.New("", cfg.LogLevel, logging.Format(cfg.LogFormat))
	logger := logging.Component(base, "server")
	api.SetLogger(logging.Component(base, "api"))
	solana.SetLogger(logging.Component(base, "solana-ws"))
	tokenmanager.SetLogger(logging.Component(base, "tokenmanager"))

	envs, err := loadEnvironments(cfg.EnvironmentsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load environments")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create stores")
	}
	defer stores.close()

	registry, err := session.NewRegistry(session.Config{
		Environments:    envs,
		DefaultCluster:  cfg.DefaultCluster,
		ConfigEndpoint:  cfg.ConfigEndpoint,
		RefreshInterval: cfg.RefreshInterval,
		Snapshots:       stores.snapshots,
		Events:          stores.events,
		Live:            cfg.Live,
		Logger:          logging.Component(base, "session"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session registry")
	}

	serverCfg := api.DefaultServerConfig()
	serverCfg.Address = cfg.Address
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	serverCfg.RatePerMinute = cfg.RatePerMinute
	server := api.NewServer(serverCfg, registry, stores.ready)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info().
		Str("address", cfg.Address).
		Str("default_cluster", cfg.DefaultCluster).
		Strs("clusters", envs.Labels()).
		Bool("live", cfg.Live).
		Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	_ = server.Shutdown(shutdownCtx)
	registry.Close()
	cancel()

	logger.Info().Msg("shutdown complete")
}

func loadEnvironments(path string) (*environment.Registry, error) {
	if path == "" {
		return environment.NewRegistry(environment.Defaults()...)
	}
	return environment.LoadFile(environment.OSFileReader{}, path)
}

// stores holds the optional persistence backends.
type stores struct {
	snapshots storage.SnapshotStore
	events    storage.RefreshEventStore
	pool      *pgstore.Pool
	ch        *chstore.Conn
}

// createStores picks in-memory stores, or connects and migrates the
// configured databases. Each backend is independent.
func createStores(ctx context.Context, cfg config, log zerolog.Logger) (*stores, error) {
	if cfg.UseMemory || (cfg.PostgresDSN == "" && cfg.ClickhouseDSN == "") {
		log.Info().Msg("using in-memory storage")
		return &stores{
			snapshots: memory.NewSnapshotStore(),
			events:    memory.NewRefreshEventStore(),
		}, nil
	}

	s := &stores{}
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.pool = pool
		s.snapshots = pgstore.NewSnapshotStore(pool)
		log.Info().Msg("snapshots stored in postgres")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouse(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.ch = conn
		s.events = chstore.NewRefreshEventStore(conn)
		log.Info().Msg("refresh events stored in clickhouse")
	}
	return s, nil
}

func (s *stores) ready(ctx context.Context) error {
	if s.pool != nil {
		if err := s.pool.Ready(ctx); err != nil {
			return err
		}
	}
	if s.ch != nil {
		if err := s.ch.Ready(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *stores) close() {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
