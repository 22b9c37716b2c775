// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Opens the local store and remote client once and hands them to each command
package cli

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/engine"
	"github.com/harperreed/crmsync/remote"
)

// App holds everything a command needs.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Client  *remote.Client
	Attrs   *db.AttributeStore
	Journal *db.Journal
	Engine  *engine.Engine
	Logger  *slog.Logger
	Out     io.Writer
}

// NewApp opens the database and cache named by cfg.
func NewApp(cfg *config.Config, out io.Writer, logger *slog.Logger) (*App, error) {
	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cache, err := remote.OpenCache(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	client := remote.New(cfg, remote.WithCache(cache), remote.WithLogger(logger))
	return newApp(cfg, database, client, out, logger), nil
}

func newApp(cfg *config.Config, database *sql.DB, client *remote.Client, out io.Writer, logger *slog.Logger) *App {
	attrs := db.NewAttributeStore(database)
	journal := db.NewJournal(database)
	return &App{
		Config:  cfg,
		DB:      database,
		Client:  client,
		Attrs:   attrs,
		Journal: journal,
		Engine:  engine.New(client, attrs, journal, cfg, logger),
		Logger:  logger,
		Out:     out,
	}
}

func (a *App) Close() error {
	clientErr := a.Client.Close()
	if err := a.DB.Close(); err != nil {
		return err
	}
	return clientErr
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.Out, format, args...)
}
