package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"dm_core/internal/api"
	"dm_core/internal/auth"
	"dm_core/internal/blob"
	"dm_core/internal/broker"
	"dm_core/internal/chat"
	"dm_core/internal/config"
	"dm_core/internal/metrics"
	"dm_core/internal/presence"
	"dm_core/internal/push"
	"dm_core/internal/registry"
	"dm_core/internal/router"
	"dm_core/internal/store"
	"dm_core/internal/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Durable store: Postgres, or the in-memory store for local dev.
	var (
		messages store.MessageStore
		users    store.UserDirectory
	)
	if cfg.DBConnStr != "" {
		db, err := sql.Open("postgres", cfg.DBConnStr)
		if err != nil {
			log.Error("failed to open database", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("failed to reach database", "err", err)
			os.Exit(1)
		}
		messages = store.NewPostgresMessageStore(db)
		users = store.NewPostgresUserDirectory(db)
	} else {
		log.Warn("no DB_CONN_STR set, using in-memory store")
		messages = store.NewMemoryStore()
		users = store.NewMemoryDirectory()
	}

	blobs, err := blob.NewDiskStore(cfg.BlobDir, cfg.BlobBaseURL)
	if err != nil {
		log.Error("failed to init blob store", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional offline-push pipeline.
	var miss router.MissSink
	if cfg.AMQPURL != "" {
		mq, err := broker.NewRabbitMQClient(cfg.AMQPURL)
		if err != nil {
			log.Error("failed to connect to rabbitmq", "err", err)
			os.Exit(1)
		}
		defer mq.Close()
		miss = mq

		worker := push.NewWorker(mq, &push.LogNotifier{Log: log}, log)
		go worker.Start(ctx)
	}

	reg := registry.New()
	rt := router.New(reg, miss, log)
	tracker := presence.NewTracker(reg, rt, log)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	svc := chat.NewService(messages, users, reg, rt, blobs, log)

	r := mux.NewRouter()
	r.Handle("/ws", ws.NewHandler(reg, tracker, svc, verifier, log, cfg.EventRPS, cfg.EventBurst))
	r.Handle("/metrics", metrics.Handler())
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.BlobDir))))
	api.NewHandler(svc, verifier, log).Register(r)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websockets hold the connection open
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}
