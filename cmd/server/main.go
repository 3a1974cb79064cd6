package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/api"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/archive"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/sync"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	syncOnce := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting conversation mirror service")

	// Init State Store
	stateStore, err := store.New(cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to init state store", zap.Error(err))
	}
	defer stateStore.Close()

	// Init Archive
	writer, err := archive.NewWriter(cfg.Archive)
	if err != nil {
		logger.Log.Fatal("Failed to init archive", zap.Error(err))
	}

	// Init Sync Manager
	client := transport.NewClient(cfg.Remote)
	syncManager := sync.NewManager(cfg, stateStore, client, writer)

	if *syncOnce {
		if err := syncManager.RunOnce(context.Background(), "cli"); err != nil {
			logger.Log.Fatal("Sync failed", zap.Error(err))
		}
		return
	}

	// Init Scheduler
	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	scheduler.Start()

	// Init API
	handler := api.NewHandler(cfg.Server, syncManager)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	scheduler.Stop()
	server.Close()
}
