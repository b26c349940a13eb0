package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lectern-ai/lectern/internal/books"
	"github.com/lectern-ai/lectern/internal/companion"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/db"
	"github.com/lectern-ai/lectern/internal/mcp"
	"github.com/lectern-ai/lectern/internal/provider"
	"github.com/lectern-ai/lectern/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (default: ~/.lectern/config.yaml)")
		dbPath     = flag.String("db", "", "Path to SQLite database (default: ~/.lectern/lectern.db)")
		booksDir   = flag.String("books", "", "Directory of book text files (empty disables book summaries)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfgPath := *configPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		if err != nil {
			log.Fatalf("Failed to resolve config path: %v", err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	path := *dbPath
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		path, err = db.DefaultDBPath()
		if err != nil {
			log.Fatalf("Failed to resolve database path: %v", err)
		}
	}

	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := db.ApplyMigrations(sqlDB, logger); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	chatProvider, err := provider.New(cfg.Chat)
	if err != nil {
		log.Fatalf("Failed to create chat provider: %v", err)
	}

	var summarizer provider.Provider
	if cfg.Summary.Kind != "" {
		summarizer, err = provider.New(cfg.Summary)
		if err != nil {
			log.Fatalf("Failed to create summary provider: %v", err)
		}
	}

	var bookSource companion.BookSource
	if *booksDir != "" {
		bookSource = books.NewLibrary(*booksDir)
	}

	svc := companion.New(
		companion.Config{
			ChatThreshold:  cfg.Scheduler.ChatThreshold,
			BookThreshold:  cfg.Scheduler.BookThreshold,
			DebounceWindow: cfg.Scheduler.DebounceWindow.Std(),
			TickInterval:   cfg.Scheduler.TickInterval.Std(),
			MinBubbles:     cfg.Bubbles.Min,
			MaxBubbles:     cfg.Bubbles.Max,
		},
		companion.Params{
			Store:      store.NewSQLiteStore(sqlDB),
			Chat:       chatProvider,
			Summarizer: summarizer,
			Books:      bookSource,
			Log:        logger,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down")
		cancel()
	}()

	go svc.Run(ctx)

	server := mcp.NewServer(svc, logger)
	logger.Info("Lectern daemon started", "db", path)
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil &&
		ctx.Err() == nil {

		log.Fatalf("MCP server error: %v", err)
	}
}
