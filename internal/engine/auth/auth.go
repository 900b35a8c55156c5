package auth

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	PermPublish    = "item.publish"
	PermPublishOwn = "item.publish_own"
)

// ForbiddenError indicates a caller that may not publish the item.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service provides publish authorization checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) actorHasPermission(ctx context.Context, tx *sql.Tx, actorID, perm string) (bool, error) {
	row := tx.QueryRowContext(ctx, `
SELECT 1 FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.actor_id=? AND rp.permission_id=? LIMIT 1`,
		actorID, perm)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// HasPublishCapability reports whether the actor holds any publish
// permission at all. Ownership is checked later, once the item is loaded.
func (s Service) HasPublishCapability(ctx context.Context, actorID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.actor_id=? AND rp.permission_id IN (?,?) LIMIT 1`,
		actorID, PermPublish, PermPublishOwn)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CanPublish reports whether the actor may publish an item authored by
// authorID: item.publish covers everything, item.publish_own covers the
// actor's own items.
func (s Service) CanPublish(ctx context.Context, tx *sql.Tx, actorID, authorID string) (bool, error) {
	ok, err := s.actorHasPermission(ctx, tx, actorID, PermPublish)
	if err != nil || ok {
		return ok, err
	}
	if actorID != authorID {
		return false, nil
	}
	return s.actorHasPermission(ctx, tx, actorID, PermPublishOwn)
}
