package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kubestellar/console-assistant/pkg/api"
	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/config"
	"github.com/kubestellar/console-assistant/pkg/k8s"
	"github.com/kubestellar/console-assistant/pkg/settings"
	"github.com/kubestellar/console-assistant/pkg/store"
)

// Version is set at build time
var Version = "dev"

const (
	discoveryTimeout = 60 * time.Second
	historyRetention = 30 * 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "", "Path to the config file (default ~/.kc/assistant.yaml)")
	envFile := flag.String("env-file", ".env", "Environment file to load")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	kubeconfig := flag.String("kubeconfig", "", "Path to kubeconfig file (overrides config)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("console-assistant version %s\n", Version)
		os.Exit(0)
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load %s: %v", *envFile, err)
	}

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()
	if *port != 0 {
		cfg.Port = *port
	}
	if *kubeconfig != "" {
		cfg.Kubeconfig = *kubeconfig
	}
	log.Printf("[config] using %s (source: %s)", cfgManager.Path(), cfg.Source)

	vault, err := settings.NewManager(settings.DefaultDir())
	if err != nil {
		log.Fatalf("Failed to open settings: %v", err)
	}

	var kubeClient *k8s.Client
	var cluster config.ClusterSource
	if cfg.Source == config.SourceCluster {
		kubeClient, err = k8s.NewClient(cfg.Kubeconfig, cfg.Context)
		if err != nil {
			log.Printf("Warning: failed to create Kubernetes client: %v", err)
		} else {
			cluster = kubeClient
		}
	}
	loader := config.NewLoader(cfgManager, cluster, vault)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	if n, err := db.DeleteJobsBefore(time.Now().Add(-historyRetention)); err != nil {
		log.Printf("Warning: failed to prune history: %v", err)
	} else if n > 0 {
		log.Printf("[store] pruned %d old jobs", n)
	}

	session := assistant.NewSession(assistant.NewClient(), assistant.WithRecorder(store.NewRecorder(db)))

	refresh := func(ctx context.Context) (assistant.DiscoveryResult, error) {
		hc, resolver, err := loader.Load(ctx)
		if err != nil {
			return assistant.DiscoveryResult{}, err
		}
		return session.Refresh(ctx, hc, resolver), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	if _, err := refresh(ctx); err != nil {
		log.Printf("Warning: initial discovery failed: %v", err)
	}
	cancel()
	settings.RestoreSelection(session, vault.Preferences())
	session.Subscribe(vault.SelectionObserver())

	server, err := api.NewServer(api.Config{
		Port:        cfg.Port,
		JWTSecret:   cfg.JWTSecret,
		FrontendURL: cfg.FrontendURL,
	}, session, db, refresh)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	rediscover := func(reason string) {
		ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
		defer cancel()
		if _, err := refresh(ctx); err != nil {
			log.Printf("Warning: rediscovery after %s change failed: %v", reason, err)
			return
		}
		server.NotifyConfigChanged(reason)
	}

	if err := cfgManager.Watch(func(config.Config) { rediscover("file") }); err != nil {
		log.Printf("Warning: failed to watch config file: %v", err)
	}
	if kubeClient != nil {
		kubeClient.SetOnReload(func() { rediscover("kubeconfig") })
		if err := kubeClient.StartWatching(); err != nil {
			log.Printf("Warning: failed to start kubeconfig watcher: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cfgManager.StopWatching()
		if kubeClient != nil {
			kubeClient.StopWatching()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("Warning: server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("Warning: failed to close history store: %v", err)
	}
}
