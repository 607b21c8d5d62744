package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martin8756/termelesinaplo/config"
	"github.com/martin8756/termelesinaplo/repository"
	"github.com/martin8756/termelesinaplo/server"
	"github.com/martin8756/termelesinaplo/session"
	"github.com/martin8756/termelesinaplo/srvreg"
	"github.com/martin8756/termelesinaplo/web"

	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// memoryDatabase selects the in-process store instead of PostgreSQL
const memoryDatabase = "memory"

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// run owns every resource it opens, so deferred closes happen on all exit paths
func run(args []string) error {
	// Load Config
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, "info")
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	// Record store
	storeOpts := repository.Options{CaseInsensitive: cfg.SearchCaseInsensitive}
	var store repository.RecordStore
	if cfg.DatabaseURL == memoryDatabase {
		logger.Info("Using in-memory record store")
		store = repository.NewMemoryStore(storeOpts)
	} else {
		logger.Info("Connecting to database")
		db, err := repository.ConnectDB(cfg.DatabaseURL, 10, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		repo := repository.NewRepository(db, logger, storeOpts)
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Error("Closing database", "err", err)
			}
		}()
		if err := repo.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		if cfg.Seed {
			if repoErr := repo.Seed(context.Background()); repoErr != nil {
				return fmt.Errorf("seeding database: %w", repoErr)
			}
		}
		store = repo
	}

	// Initialize Badger DB for sessions
	sessionDB, err := session.OpenStore(cfg.SessionDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessionDB.Close(); err != nil {
			logger.Error("Closing session store", "err", err)
		}
	}()

	gate, err := session.NewGate(sessionDB, session.Config{
		AdminPassword: cfg.AdminPassword,
		Secret:        cfg.SessionSecret,
		TTL:           cfg.SessionTTL,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating session gate: %w", err)
	}

	// Initialize Service Registry
	serviceRegistry := srvreg.NewServiceRegistry(store, gate, logger)
	serviceRegistry.RegisterDefaultServices()

	// Start Web Server
	webserver, err := server.NewWebServer(cfg.Port, serviceRegistry, logger, server.Assets{
		Static:    web.Static(),
		AdminPage: web.AdminPage(),
	})
	if err != nil {
		return fmt.Errorf("creating web server: %w", err)
	}

	err = webserver.Start()
	if err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	// Create deadline to wait for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown the web server
	err = webserver.Shutdown(ctx)
	if err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
	return nil
}
