package app

import (
	"context"
	"time"

	"pressflow/internal/config"
	"pressflow/internal/repo"
)

// ResolveConfig loads the workspace config, falling back to the generated
// default when pressflow.yml is absent, and makes sure the acting user
// exists with editor rights on a fresh database.
func ResolveConfig(ctx context.Context, workspace, actorID string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("local-site")
	}
	if actorID == "" {
		actorID = "local-user"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.EnsureActor(ctx, actorID, now); err != nil {
		return nil, err
	}
	var actors int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM actors`).Scan(&actors); err != nil {
		return nil, err
	}
	// first actor on a fresh workspace gets full rights
	if actors <= 1 {
		if err := r.AssignRole(ctx, actorID, "editor"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
