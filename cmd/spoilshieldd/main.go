package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"spoilshield/internal/config"
	"spoilshield/internal/daemon"
	"spoilshield/internal/ipc"
	"spoilshield/internal/logging"
	"spoilshield/internal/store"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	// .env is optional; it carries ANTHROPIC_API_KEY in local setups.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stderr",
			filepath.Join(cfg.Paths.LogDir, "spoilshieldd.log"),
		},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath(), store.Options{MaxSessions: cfg.Sessions.Max})
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}
	defer st.Close()

	d, err := daemon.New(cfg, st, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		logger.Error("start ipc server", logging.Error(err))
		d.Stop()
		return
	}
	ipcServer.Serve()
	defer ipcServer.Close()

	logger.Info("spoilshieldd running",
		logging.String("api", d.APIAddr()),
		logging.String("socket", cfg.Paths.SocketPath))

	<-ctx.Done()
	d.Stop()
	logger.Info("spoilshieldd shutting down")
}
