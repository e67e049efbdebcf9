// Command bot runs the level-retracement trading engine: it loads the
// configured strategies, restores their persisted state, and serves the
// webhook ingest endpoint (plus the optional websocket feed) until
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bingolead-stack/levelbot/internal/broker"
	"github.com/bingolead-stack/levelbot/internal/config"
	"github.com/bingolead-stack/levelbot/internal/dispatch"
	"github.com/bingolead-stack/levelbot/internal/feed"
	"github.com/bingolead-stack/levelbot/internal/server"
	"github.com/bingolead-stack/levelbot/internal/storage"
	"github.com/bingolead-stack/levelbot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(*configPath, logger); err != nil {
		logger.WithError(err).Fatal("bot exited with error")
	}
}

func run(configPath string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, perr := logrus.ParseLevel(cfg.LogLevel); perr == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("unknown log level, keeping default")
	}
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment, "paper": cfg.Broker.Paper,
	}).Info("starting level retracement engine")

	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close state store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		brk    broker.Broker
		tokens *broker.TokenManager
	)
	if cfg.Broker.Paper {
		brk = broker.NewNoopBroker(logger)
		logger.Info("paper mode, orders filled locally")
	} else {
		if err := creds.ValidateLive(); err != nil {
			return err
		}
		tokens = broker.NewTokenManager(cfg.Broker.APIURL, creds.Broker,
			cfg.GetTokenRefreshInterval(), nil, logger)
		if err := tokens.Start(ctx); err != nil {
			return fmt.Errorf("acquiring initial session token: %w", err)
		}

		client := broker.NewTradovateClient(cfg.Broker.APIURL, cfg.Broker.Symbol,
			creds.Broker.Username, tokens, &http.Client{Timeout: 10 * time.Second}, logger)
		brk = broker.NewCircuitBreakerBroker(client, logger)
	}

	params, err := config.LoadStrategies(cfg.StrategiesFile, creds.IsLongOnly)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(logger, nil)
	for _, p := range params {
		s, err := strategy.New(p, brk, store, logger)
		if err != nil {
			return err
		}
		if _, err := s.LoadState(); err != nil {
			// Start fresh rather than refuse to run on a bad snapshot.
			logger.WithError(err).WithField("strategy", p.Name).
				Error("failed to restore state, starting fresh")
		}
		dispatcher.Register(s)
	}
	logger.WithField("strategies", len(params)).Info("strategies initialized")

	srv := server.New(cfg.Server.Addr, dispatcher, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if tokens != nil {
		g.Go(func() error {
			if err := tokens.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if cfg.Feed.Enabled {
		if tokens == nil {
			return errors.New("feed requires live broker credentials for its auth token")
		}
		md := feed.NewClient(cfg.Feed.URL, cfg.Broker.Symbol, cfg.GetBarInterval(),
			tokens, dispatcher, logger)
		g.Go(func() error {
			if err := md.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	dispatcher.Shutdown()
	logger.Info("shutdown complete")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// usage is kept for flag parse failures.
func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config config.yaml]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
