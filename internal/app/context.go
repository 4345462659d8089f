package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"choreline/internal/config"
	"choreline/internal/db"
	"choreline/internal/engine"
	"choreline/internal/migrate"
)

// Workspace is an opened household: migrated database plus resolved config.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
}

// ResolveConfig reads choreline.yml from the workspace, falling back to the
// defaults named after the workspace directory when the file is missing.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}
	return config.Default(householdName(workspace)), nil
}

// Open creates the state directory if needed, then opens and migrates the
// database.
func Open(ctx context.Context, workspace string) (*Workspace, error) {
	cfg, err := ResolveConfig(workspace)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{Dir: workspace, DB: conn, Config: cfg}, nil
}

// Engine builds an engine over the workspace database.
func (w *Workspace) Engine() engine.Engine {
	return engine.New(w.DB, w.Config)
}

// UploadDir is where profile photos are stored.
func (w *Workspace) UploadDir() string {
	return w.Config.UploadDir(w.Dir)
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

func householdName(workspace string) string {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "household"
	}
	name := filepath.Base(abs)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "household"
	}
	return name
}
