package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"conforma.org/internal/httpapi"
	"conforma.org/internal/obs"
	"conforma.org/internal/store/pg"
	"conforma.org/internal/stream"
	"conforma.org/internal/workflow"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store   workflow.Store
		probe   httpapi.ReadyProbe
		cleanup func()
	)
	if dsn := os.Getenv("CONFORMA_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		cleanup = func() { _ = pgStore.Close() }
	} else {
		// In-memory fallback for local development; run cmd/migrate against
		// a real database for anything else.
		mem := workflow.NewMemory()
		mem.SeedStandard(devSections, devQuestions)
		store = mem
		cleanup = func() {}
		log.Printf("CONFORMA_PG_DSN not set, using in-memory store")
	}

	events := stream.New()
	svc, err := workflow.NewService(store,
		workflow.WithEventSink(func(evt workflow.Event) {
			if entity, ok := transitionEntity(evt.Type); ok {
				obs.ObserveTransition(entity, evt.Status)
			}
			if evt.Type == "ncr.generated" {
				obs.ObserveNCRsGenerated(1)
			}
			events.Publish(evt)
		}),
		workflow.WithWarnLogger(func(msg string, fields map[string]any) {
			obs.ObserveRecomputeFailure()
			entry := map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "warn",
				"msg":   msg,
			}
			for k, v := range fields {
				entry[k] = v
			}
			obs.LogRequest(entry)
		}),
	)
	if err != nil {
		log.Fatalf("build service: %v", err)
	}

	api := httpapi.New(probe, version, svc, store, events)

	addr := os.Getenv("CONFORMA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting conforma-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	cleanup()
	log.Println("Stopped")
}

// transitionEntity maps lifecycle event types onto the metric's entity label.
func transitionEntity(eventType string) (string, bool) {
	switch {
	case strings.HasSuffix(eventType, ".status"):
		return strings.TrimSuffix(eventType, ".status"), true
	case eventType == "action.verified":
		return "action", true
	default:
		return "", false
	}
}
