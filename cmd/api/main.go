package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medgrid.org/internal/access"
	"medgrid.org/internal/config"
	"medgrid.org/internal/httpapi"
	"medgrid.org/internal/obs"
	"medgrid.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	// observability first: metric registration, JSON logger
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		store *pg.Store
		api   *httpapi.API
	)
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}

		svc, err := access.NewService(store, store, store)
		if err != nil {
			log.Fatalf("init access service: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := svc.SeedCodeSequence(ctx); err != nil {
			cancel()
			log.Fatalf("seed code sequence: %v", err)
		}
		cancel()

		api = httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, svc)
	} else {
		// no DSN: health endpoints only, readyz stays green
		api = httpapi.New(httpapi.ReadyProbe{}, version, nil)
	}

	handler := httpapi.MaxBodyBytes(api.Handler(), cfg.ImportBodyBytes)
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitRPS)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting medgrid-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
