// Command gateway runs the podping HTTP ingress: it accepts authenticated
// feed-change notifications, persists them to a durable queue, and forwards
// them in the background to the external hive-writer process. Its startup/
// shutdown shape is grounded on the gateway service's own cmd/gateway/
// main.go: load config, bind before anything else can fail loudly, serve in
// a goroutine, wait on a signal or a server error, then shut down with a
// bounded timeout.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/podcastindex/podping-gateway/internal/config"
	"github.com/podcastindex/podping-gateway/internal/forwarder"
	"github.com/podcastindex/podping-gateway/internal/intake"
	"github.com/podcastindex/podping-gateway/internal/privilege"
	"github.com/podcastindex/podping-gateway/internal/store"
	"github.com/podcastindex/podping-gateway/internal/telemetry"
	"github.com/podcastindex/podping-gateway/internal/transport"
)

func main() {
	cfg := config.Load()
	log := telemetry.NewLogger(os.Stdout, telemetry.Options{Service: "podping-gateway", Level: telemetry.Level(cfg.LogLevel), Timestamp: true})
	log.Info("starting", map[string]any{"env": cfg.Env, "addr": cfg.HTTPAddr, "writer_addr": cfg.WriterAddr})

	queueDB, err := sql.Open("sqlite3", cfg.QueueDBPath)
	if err != nil {
		log.Error("open queue db failed", map[string]any{"error": err, "path": cfg.QueueDBPath})
		os.Exit(1)
	}
	defer queueDB.Close()

	authDB, err := sql.Open("sqlite3", cfg.AuthDBPath)
	if err != nil {
		log.Error("open auth db failed", map[string]any{"error": err, "path": cfg.AuthDBPath})
		os.Exit(1)
	}
	defer authDB.Close()

	queue, err := store.NewQueueStore(queueDB, store.Options{})
	if err != nil {
		log.Error("construct queue store failed", map[string]any{"error": err})
		os.Exit(1)
	}
	if err := queue.EnsureSchema(context.Background()); err != nil {
		log.Error("ensure queue schema failed", map[string]any{"error": err})
		os.Exit(1)
	}

	auth, err := store.NewAuthStore(authDB, "")
	if err != nil {
		log.Error("construct auth store failed", map[string]any{"error": err})
		os.Exit(1)
	}
	if err := auth.EnsureSchema(context.Background()); err != nil {
		log.Error("ensure auth schema failed", map[string]any{"error": err})
		os.Exit(1)
	}
	if n, err := store.LoadPublisherSeed(context.Background(), auth, cfg.PublishersSeedPath); err != nil {
		log.Warn("publisher seed load failed", map[string]any{"error": err, "path": cfg.PublishersSeedPath})
	} else if n > 0 {
		log.Info("publisher seed loaded", map[string]any{"count": n, "path": cfg.PublishersSeedPath})
	}

	health := intake.NewHealthReporter(queue, auth)
	handler := intake.NewRouter(intake.Deps{Queue: queue, Auth: auth, Log: log, Health: health})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Error("listen failed", map[string]any{"error": sanitizeErr(err), "addr": srv.Addr})
		os.Exit(1)
	}

	if err := privilege.DropTo(cfg.RunAsUser); err != nil {
		log.Warn("privilege drop failed, continuing as current user", map[string]any{"error": err, "run_as_user": cfg.RunAsUser})
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", map[string]any{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	fwd := forwarder.New(queue, transport.WSDialer{}, log, forwarder.Options{
		Addr:          cfg.WriterAddr,
		RecvTimeout:   cfg.WriterRecvTimeout,
		IdleSleep:     cfg.ForwarderIdleSleep,
		BusyThreshold: cfg.ForwarderBusyThreshold,
		OnProgress:    health.RecordForwarderSuccess,
	})
	go runForwarder(ctx, fwd, log)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", map[string]any{"error": sanitizeErr(err)})
		}
	}

	cancel() // stop the forwarder

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", map[string]any{"error": sanitizeErr(err)})
		_ = srv.Close()
	} else {
		log.Info("shutdown complete", map[string]any{})
	}
}

// runForwarder installs the panic-then-exit guard SPEC_FULL.md §4.E
// requires: a panic in the forwarder has no useful degraded mode, so it
// terminates the whole process rather than being swallowed.
func runForwarder(ctx context.Context, fwd *forwarder.Forwarder, log *telemetry.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("forwarder panicked, exiting", map[string]any{"recover": fmt.Sprintf("%v", rec)})
			os.Exit(1)
		}
	}()
	fwd.Run(ctx)
}

func sanitizeErr(err error) string {
	s := err.Error()
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
