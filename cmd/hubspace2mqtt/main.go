package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
	"github.com/afero-home/hubspace2mqtt/internal/auth"
	"github.com/afero-home/hubspace2mqtt/internal/bridge"
	"github.com/afero-home/hubspace2mqtt/internal/config"
	"github.com/afero-home/hubspace2mqtt/internal/rate"
	"github.com/afero-home/hubspace2mqtt/internal/server"
)

func main() {
	configPath := flag.String("config", envOrDefault("HUBSPACE2MQTT_CONFIG", config.DefaultPath), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var blobStore auth.BlobStore = auth.NopStore{}
	if cfg.AuthBlob != nil {
		blobStore, err = auth.NewS3Store(auth.BlobConfig{
			Endpoint:      cfg.AuthBlob.Endpoint,
			Bucket:        cfg.AuthBlob.Bucket,
			Prefix:        cfg.AuthBlob.Prefix,
			AccessKeyFile: cfg.AuthBlob.AccessKeyFile,
			SecretKeyFile: cfg.AuthBlob.SecretKeyFile,
			Region:        cfg.AuthBlob.Region,
		})
		if err != nil {
			log.Fatalf("auth blob store: %v", err)
		}
	}

	authManager, err := auth.NewManager(auth.Config{
		TokenURL:      cfg.Hubspace.TokenURL,
		StatePath:     cfg.Hubspace.StateFile,
		BootstrapFile: cfg.Hubspace.BootstrapFile,
	}, blobStore)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	authManager.StartWithInterval(ctx, time.Duration(cfg.AuthRefreshIntervalSeconds)*time.Second)

	httpClient := rate.WrapHTTP(rate.Hubspace(), &http.Client{Timeout: 15 * time.Second})
	client, err := afero.NewClient(afero.ClientConfig{
		BaseURL:    cfg.Hubspace.BaseURL,
		HTTPClient: httpClient,
	}, authManager)
	if err != nil {
		log.Fatalf("hubspace client: %v", err)
	}

	controller := afero.NewController(client, time.Duration(cfg.Hubspace.PollIntervalSeconds)*time.Second)
	if err := controller.Initialize(ctx); err != nil {
		log.Fatalf("initial poll: %v", err)
	}
	go controller.Run(ctx)

	conn, err := bridge.Dial(cfg.MQTT)
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	defer conn.Close()

	b := bridge.New(conn, controller, cfg.MQTT)
	if err := b.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
	defer b.Close()

	httpServer := server.New(cfg.HTTPAddr, metricsRegistry(controller), func() server.Status {
		_, authErr := authManager.AccessToken(ctx)
		return server.Status{
			Thermostats: len(controller.Thermostats()),
			Devices:     len(controller.Devices()),
			AuthOK:      authErr == nil,
		}
	})
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()

	log.Printf("hubspace2mqtt running, http on %s", cfg.HTTPAddr)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

func metricsRegistry(controller *afero.Controller) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(auth.MetricsCollectors()...)
	registry.MustRegister(rate.MetricsCollectors()...)
	registry.MustRegister(afero.MetricsCollectors()...)
	registry.MustRegister(bridge.MetricsCollectors()...)
	registry.MustRegister(bridge.NewMetricsCollector(controller))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hubspace2mqtt_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))
	return registry
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
