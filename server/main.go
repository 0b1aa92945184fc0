// server/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"example.com/inkwell/blog"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := blog.LoadConfig()

	if err := blog.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Error("could not apply migrations", "error", err)
		os.Exit(1)
	}

	db, err := blog.NewDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("could not initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to the database")

	media, err := blog.NewMediaStore(cfg.MediaDir)
	if err != nil {
		logger.Error("could not initialize media store", "error", err)
		os.Exit(1)
	}

	handlers, err := blog.NewHandlers(db, media, cfg, logger)
	if err != nil {
		logger.Error("could not create handlers", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	handlers.RegisterRoutes(r)

	svr := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: handlers.Session.LoadAndSave(r),
	}
	logger.Info("starting server", "addr", cfg.ServerAddr)
	if err := svr.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
