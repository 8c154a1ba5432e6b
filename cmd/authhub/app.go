package main

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pysugar/llm-auth-hub/internal/db"
	"github.com/pysugar/llm-auth-hub/internal/hub"
	"github.com/pysugar/llm-auth-hub/internal/logging"
	"github.com/pysugar/llm-auth-hub/internal/registry"
	"github.com/pysugar/llm-auth-hub/internal/store"
)

// App carries the wired-up service shared by all commands.
type App struct {
	Service *hub.Service
	Log     zerolog.Logger

	gdb *gorm.DB
}

func newApp(configDir string) (*App, error) {
	logger := logging.New()

	if configDir == "" {
		configDir = store.DefaultDir()
	}
	reg := registry.New(store.New(configDir))

	// A broken audit database must not lock the user out of their
	// credentials; run without it.
	var events *db.EventLog
	gdb, err := db.Open(filepath.Join(configDir, "events.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("audit log unavailable, continuing without it")
	} else {
		events = db.NewEventLog(gdb)
	}

	return &App{
		Service: hub.New(reg, events, logger),
		Log:     logger,
		gdb:     gdb,
	}, nil
}

func (a *App) Close() {
	if a.gdb != nil {
		if sqlDB, err := a.gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
