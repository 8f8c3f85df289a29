package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/cache"
	"github.com/Be1newinner/asaan-hai-coding/internal/config"
	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/httpapi"
	"github.com/Be1newinner/asaan-hai-coding/internal/llm"
	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/notify"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	if err := obs.InitSentry(cfg.SentryDSN, cfg.Env, version); err != nil {
		obs.Warn("sentry disabled", map[string]any{"error": err})
	}
	defer obs.FlushSentry()

	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     cfg.Auth.Secret,
		Algorithm:  cfg.Auth.Algorithm,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	users := auth.NewPGStore(db)
	authSvc := auth.NewService(codec, users)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	if cfg.Auth.SuperuserName != "" {
		created, err := authSvc.EnsureSuperuser(startCtx, cfg.Auth.SuperuserName, cfg.Auth.SuperuserPassword)
		if err != nil {
			log.Fatalf("bootstrap superuser: %v", err)
		}
		if created {
			obs.Info("superuser created", map[string]any{"username": cfg.Auth.SuperuserName})
		}
	}

	var objects media.ObjectStore
	if cfg.Storage.Enabled() {
		objects = media.NewS3Store(cfg.Storage)
	} else {
		obs.Warn("object storage not configured; uploads are disabled", nil)
	}
	mediaSvc := media.NewService(db, objects)
	store := content.NewStore(db, mediaSvc.Repository())

	var events content.LeadEvents
	if cfg.AMQPURL != "" {
		pub := notify.NewPublisher(cfg.AMQPURL, cfg.LeadQueue)
		defer pub.Close()
		events = pub
	}
	leads := content.NewLeads(store.Leads, events)

	var (
		responses *cache.Responses
		rdb       *redis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = cache.Dial(startCtx, cfg.RedisURL)
		if err != nil {
			obs.Warn("response cache disabled", map[string]any{"error": err})
		} else {
			defer rdb.Close()
			responses = httpapi.NewResponseCache(cache.NewRedisStore(rdb), cfg.CacheTTL)
		}
	}
	cancelStart()

	gen := llm.NewGenerator(cfg.LLM, nil, nil)
	drafter := llm.NewDrafter(store.Courses, store.Lessons, gen)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(httpapi.Deps{
		Config:  cfg,
		Auth:    authSvc,
		Users:   users,
		Content: store,
		Leads:   leads,
		Media:   mediaSvc,
		Drafter: drafter,
		Cache:   responses,
		Probe:   probe,
		Version: version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Lesson drafting waits on the language model.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var grpcSrv *httpapi.GRPCServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		go grpcSrv.Watch(ctx, 10*time.Second)
		go func() {
			obs.Info("grpc health listening", map[string]any{"addr": cfg.GRPCAddr})
			if err := grpcSrv.Server.Serve(lis); err != nil {
				obs.Error("grpc serve", map[string]any{"error": err})
			}
		}()
	}

	go func() {
		obs.Info("api listening", map[string]any{"addr": srv.Addr, "version": version, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Error("http shutdown", map[string]any{"error": err})
	}
	obs.Info("stopped", nil)
}
