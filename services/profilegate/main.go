// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/profilegate/core/access"
	"github.com/relabs-tech/profilegate/core/api"
	"github.com/relabs-tech/profilegate/core/clients"
	"github.com/relabs-tech/profilegate/core/config"
	"github.com/relabs-tech/profilegate/core/data"
	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithError(err).Fatalln("cannot load configuration")
	}
	logger.InitLogger(cfg.LogLevel)
	rlog := logger.Default()

	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		rlog.Warnln("SUPABASE_URL and SUPABASE_KEY must be set in environment variables")
	}
	if cfg.SupabaseJWTSecret == "" {
		rlog.Warnln("SUPABASE_JWT_SECRET is not set, every authenticated request will fail")
	}

	cache := clients.New(cfg)
	router := mux.NewRouter()

	dataDriver, err := data.NewDriver(data.DriverType(cfg.DataDriver), cache)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot create data driver")
	}
	storageDriver, err := storage.NewDriver(storage.DriverType(cfg.StorageDriver), cache, router)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot create storage driver")
	}

	a := api.MustNew(&api.Builder{
		Router:       router,
		Cache:        cache,
		Gate:         access.NewGate(access.NewVerifier(cfg.SupabaseJWTSecret, cfg.JWTAudience), access.DefaultAllowList),
		Data:         data.New(dataDriver),
		Storage:      storage.New(storageDriver, cache),
		AvatarBucket: cfg.AvatarBucket,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		rlog.Infof("listen on %s (data: %s, storage: %s)", server.Addr, cfg.DataDriver, cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rlog.WithError(err).Fatalln("server failed")
		}
	}()

	<-ctx.Done()
	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rlog.WithError(err).Errorln("graceful shutdown failed")
	}
	cache.Invalidate()
}
