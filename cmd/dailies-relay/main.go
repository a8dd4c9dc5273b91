package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jspada200/dailies-relay/internal/bus"
	"github.com/jspada200/dailies-relay/internal/config"
	"github.com/jspada200/dailies-relay/internal/feed"
	"github.com/jspada200/dailies-relay/internal/gdrive"
	"github.com/jspada200/dailies-relay/internal/ingest"
	"github.com/jspada200/dailies-relay/internal/server"
	"github.com/jspada200/dailies-relay/internal/storage"
	"github.com/jspada200/dailies-relay/internal/transcript"
)

// feedHandler forwards provider events to the ingest service. The service
// needs the feed client at construction, so the handler is filled in after
// wiring and nil-checks until then.
type feedHandler struct {
	svc *ingest.Service
}

func (h *feedHandler) OnTranscript(key feed.SessionKey, segments []transcript.RawSegment) {
	if h.svc != nil {
		h.svc.OnTranscript(key, segments)
	}
}

func (h *feedHandler) OnStatusChange(key feed.SessionKey, status string) {
	if h.svc != nil {
		h.svc.OnStatusChange(key, status)
	}
}

func (h *feedHandler) OnError(key feed.SessionKey, message string) {
	if h.svc != nil {
		h.svc.OnError(key, message)
	}
}

func main() {
	log.Println("dailies-relay: starting")

	_ = godotenv.Load()

	cfg, warnings, err := config.Load(os.Getenv(config.EnvPrefix + "CONFIG"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, warning := range warnings {
		log.Printf("warning: %s", warning)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	registry := server.NewRegistry()
	eventBus := bus.New(registry)

	handler := &feedHandler{}
	feedClient := feed.NewClient(feed.Config{
		WSURL:                cfg.FeedWSURL,
		APIBaseURL:           cfg.FeedAPIBaseURL,
		APIKey:               cfg.FeedAPIKey,
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
		ReconnectBaseDelay:   cfg.ParsedReconnectBaseDelay(),
	}, handler)

	svc := ingest.NewService(store, feedClient, eventBus)
	handler.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.FeedAPIKey == "" {
		log.Printf("warning: feed disabled, running API only")
	} else if err := feedClient.Connect(ctx); err != nil {
		log.Printf("warning: feed unavailable, running API only: %v", err)
	} else if err := svc.Recover(ctx); err != nil {
		log.Printf("warning: session recovery failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(registry, svc, store, eventBus, warnings),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		archiver, archiveErr := gdrive.NewArchiver(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if archiveErr != nil {
			log.Printf("warning: gdrive archive disabled: %v", archiveErr)
		} else {
			go func() {
				ticker := time.NewTicker(5 * time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						date := time.Now().UTC().Format("2006-01-02")
						segments, err := store.GetSegmentsByDate(date)
						if err != nil {
							log.Printf("gdrive archive query error: %v", err)
							continue
						}
						if err := archiver.Archive(date, segments); err != nil {
							log.Printf("gdrive archive error: %v", err)
						}
					}
				}
			}()
		}
	}

	log.Printf("dailies-relay: listening on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("dailies-relay: shutting down")
	cancel()

	_ = feedClient.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}
