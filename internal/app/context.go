package app

import (
	"fmt"

	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/engine"
	"contractdesk/internal/migrate"
)

// Context bundles the open workspace resources a CLI command needs.
type Context struct {
	Workspace string
	Config    *config.Config
	Engine    engine.Engine
}

// Open resolves the workspace, opens the database, applies migrations and
// loads the workspace config. Callers must Close when done.
func Open(workspace string) (*Context, error) {
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dir, err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		Engine:    engine.New(conn, cfg),
	}, nil
}

func (c *Context) Close() error {
	if c == nil || c.Engine.DB == nil {
		return nil
	}
	return c.Engine.DB.Close()
}
