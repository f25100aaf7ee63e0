package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manishdashsharma/gitview/config"
	"github.com/manishdashsharma/gitview/internal/api"
	"github.com/manishdashsharma/gitview/internal/cache"
	"github.com/manishdashsharma/gitview/internal/counters"
	"github.com/manishdashsharma/gitview/internal/db"
	"github.com/manishdashsharma/gitview/internal/mongostore"
	"github.com/manishdashsharma/gitview/internal/server"
	"github.com/manishdashsharma/gitview/internal/sync"
)

// store is what every backend provides
type store interface {
	cache.Store
	counters.Store
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file (.json or .toml)")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	addUser := flag.String("add-user", "", "Add a username to the warm list in the configuration")
	warm := flag.Bool("warm", false, "Preload the cache for every username in the warm list")
	warmUsers := flag.String("warm-users", "", "Preload the cache for a comma separated list of usernames")
	fetch := flag.String("fetch", "", "Fetch one profile through the cache and print it as JSON")
	serve := flag.Bool("serve", false, "Run the HTTP server (the default when no other action is given)")
	addr := flag.String("addr", "", "Listen address, overrides listen_addr")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "gitview",
	})

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			logger.Fatal("failed to create default configuration", "err", err)
		}
		logger.Info("created default configuration", "path", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "err", err, "hint", "run with -init to create one")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	configureLogger(logger, cfg)
	logger.Debug("configuration loaded", "config", cfg.String())

	// Add username if requested
	if *addUser != "" {
		exists := false
		for _, u := range cfg.WarmUsernames {
			if u == *addUser {
				exists = true
				break
			}
		}

		if !exists {
			cfg.WarmUsernames = append(cfg.WarmUsernames, *addUser)
			if err := config.SaveConfig(cfg, *configPath); err != nil {
				logger.Fatal("failed to save configuration", "err", err)
			}
			logger.Info("added username to configuration", "username", *addUser)
		} else {
			logger.Info("username already in configuration", "username", *addUser)
		}

		if !*warm && !*serve {
			return
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, logger)
	defer st.Close()

	upstream, err := newUpstream(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create GitHub client", "err", err)
	}
	profiles := cache.New(upstream, st, logger, cache.Options{TTL: time.Duration(cfg.CacheTTL)})

	switch {
	case *fetch != "":
		if err := printProfile(ctx, profiles, *fetch); err != nil {
			logger.Fatal("fetch failed", "username", *fetch, "err", err)
		}
		return
	case *warm || *warmUsers != "":
		usernames := cfg.WarmUsernames
		if *warmUsers != "" {
			usernames = sync.ParseUsernames(*warmUsers)
		}

		warmer := sync.New(profiles, logger)
		warmer.SetWorkers(cfg.WarmWorkers)
		startTime := time.Now()
		summary, err := warmer.Warm(ctx, usernames)
		if err != nil {
			logger.Fatal("warm aborted", "err", err)
		}
		logger.Info("warm completed", "took", time.Since(startTime), "failed", summary.Failed)
		if !*serve {
			return
		}
	}

	views := counters.New(st, logger, counters.Options{})
	srv := server.New(profiles, views, st, logger, server.Options{
		RequestTimeout: time.Duration(cfg.RequestTimeout),
	})

	if err := run(ctx, cfg, srv.Handler(), logger); err != nil {
		logger.Fatal("server failed", "err", err)
	}
}

func configureLogger(logger *log.Logger, cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}
}

// openStore connects the configured backend. When it stays unreachable the
// process still starts: counters serve fallback data and analytics fail.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) store {
	var st store
	var err error

	switch cfg.DatabaseDriver {
	case config.DriverMongoDB:
		var m *mongostore.Store
		if m, err = mongostore.Open(ctx, cfg.DatabaseURL, cfg.MongoDatabase, cfg.StoreConnectAttempts, logger); err == nil {
			st = m
			err = m.Initialize(ctx)
		}
	default:
		var d *db.DB
		if d, err = db.Open(ctx, cfg.DatabaseDriver, cfg.DSN(), cfg.StoreConnectAttempts, logger); err == nil {
			st = d
			err = d.Initialize(ctx)
		}
	}

	if err != nil {
		if st != nil {
			st.Close()
		}
		logger.Error("store unavailable, running degraded", "driver", cfg.DatabaseDriver, "err", err)
		return db.Offline{Err: err}
	}

	logger.Info("store ready", "driver", cfg.DatabaseDriver)
	return st
}

func newUpstream(cfg *config.Config, logger *log.Logger) (*api.Source, error) {
	rest, err := api.NewGitHubClient(cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		return nil, err
	}

	// The GraphQL API rejects anonymous requests
	var graphql *api.GraphQLClient
	if cfg.GitHubToken != "" {
		graphql = api.NewGraphQLClient(cfg.GitHubToken, cfg.GitHubGraphQLURL)
	} else {
		logger.Info("no GitHub token configured, pinned items disabled")
	}

	return api.NewSource(rest, graphql, logger), nil
}

func printProfile(ctx context.Context, profiles *cache.Cache, username string) error {
	res, err := profiles.Get(ctx, username)
	if err != nil {
		return err
	}

	out := map[string]any{
		"userData": res.Record,
		"cached":   res.Cached,
	}
	if res.Cached {
		out["cachedAt"] = res.Record.CachedAt
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// run serves until ctx is cancelled, then drains within shutdown_timeout
func run(ctx context.Context, cfg *config.Config, handler http.Handler, logger *log.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}
