package app

import (
	"github.com/notepid/calcserv/internal/config"
	"github.com/notepid/calcserv/internal/db"
	"github.com/notepid/calcserv/internal/store"
)

// App bundles the resources the admin console operates on.
type App struct {
	ConfigPath string
	Config     *config.Config
	DB         *db.DB
	Store      *store.Store
}

// New opens the database named by the config file and returns the app
// plus a cleanup func.
func New(configPath string) (*App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	a := &App{
		ConfigPath: configPath,
		Config:     cfg,
		DB:         database,
		Store:      store.New(database.DB),
	}

	// Best-effort online use: reduce SQLITE_BUSY failures while calcd is running.
	_, _ = database.Exec("PRAGMA busy_timeout = 5000")

	cleanup := func() {
		_ = database.Close()
	}

	return a, cleanup, nil
}
