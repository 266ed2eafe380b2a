package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/config"
	"dovakin0007.com/editorial-grid/internal/database"
	"dovakin0007.com/editorial-grid/internal/grid"
	"dovakin0007.com/editorial-grid/internal/server"
)

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration, the server hasn't been started")
	}
	logger := logrus.NewEntry(cfg.Logger())
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
	logger.Info("server stopped")
}

func run(cfg *config.Configuration, logger *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	gate, err := access.NewGate(db, access.Config{
		Mode:   access.ParseMode(cfg.AccessMode),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if gate.Mode() == access.ModeShadow {
		logger.Warn("access gate running in shadow mode, role denials are only logged")
	}

	handler := grid.NewHandler(
		gate,
		db,
		grid.NewQueryNotes(db, logger),
		grid.NewStageUsers(db, cfg.StrictNewRows, logger),
		logger,
	)

	return server.CreateAndStartServer(ctx, cfg, handler)
}
