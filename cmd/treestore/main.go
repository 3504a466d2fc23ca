package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/config"
	"gihan9a/treestore/internal/server"
	"gihan9a/treestore/internal/store"
	"gihan9a/treestore/internal/tls"
)

// Version is set at build time.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, exit, err := config.Load(os.Args[1:], Version)
	if err != nil {
		log.Errorf("Error parsing configuration: %v", err)
		return 2
	}
	if exit {
		return 0
	}
	if err := config.SetupLogging(cfg.Log); err != nil {
		log.Errorf("Error configuring logging: %v", err)
		return 2
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Errorf("Failed to open store: %v", err)
		return 1
	}
	defer st.Close()
	if cfg.DataDir == "" {
		log.Warn("No data directory configured, keeping all data in memory")
	}

	srv := server.New(cfg, st)
	defer srv.Close()

	if err := srv.LoadSeeds(); err != nil {
		log.Errorf("Failed to load seed files: %v", err)
		return 1
	}
	if err := srv.SetupWatchers(); err != nil {
		log.Errorf("Failed to set up file watchers: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CompactInterval > 0 {
		go compactEvery(ctx, st, cfg.CompactInterval)
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.SetupRoutes(),
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.GenerateCert {
			if err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, tls.DefaultHosts); err != nil {
				log.Errorf("Failed to set up TLS certificate: %v", err)
				return 1
			}
		}
		if httpServer.TLSConfig, err = tls.Config(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
			log.Errorf("Failed to load TLS certificate: %v", err)
			return 1
		}
	}

	errc := make(chan error, 1)
	go func() {
		fields := log.Fields{"addr": cfg.Addr(), "db": cfg.Name, "data": cfg.DataDir, "tls": cfg.TLS.Enabled}
		log.WithFields(fields).Info("treestore listening")
		if cfg.TLS.Enabled {
			errc <- httpServer.ListenAndServeTLS("", "")
		} else {
			errc <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server failed: %v", err)
			return 1
		}
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Shutdown: %v", err)
		}
	}
	return 0
}

func compactEvery(ctx context.Context, st *store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := st.Compact(); err != nil && !errors.Is(err, store.ErrCompactRunning) {
				log.WithError(err).Error("Scheduled compaction failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
