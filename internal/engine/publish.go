package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/engine/auth"
	"pressflow/internal/events"
)

// ErrAlreadyPublished marks an item that is already live or scheduled.
var ErrAlreadyPublished = errors.New("item already published or scheduled")

const (
	OutcomePublished = "published"
	OutcomeScheduled = "scheduled"
)

type PublishResult struct {
	Outcome string             `json:"outcome"`
	Item    domain.ContentItem `json:"item"`
	Link    string             `json:"link"`
}

// Publish runs the full transition for one item inside a transaction:
// authorization, the already-done guard, the scheduling decision, date
// stamping with a re-read, and the status move. The guard is a
// conditional UPDATE, so two racing publishes commit exactly one winner.
func (e Engine) Publish(ctx context.Context, itemID int64, actorID string) (PublishResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PublishResult{}, err
	}
	defer tx.Rollback()

	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return PublishResult{}, err
	}
	allowed, err := e.Auth.CanPublish(ctx, tx, actorID, item.AuthorID)
	if err != nil {
		return PublishResult{}, err
	}
	if !allowed {
		return PublishResult{}, auth.ForbiddenError{Permission: auth.PermPublish}
	}
	if item.Status == "publish" || item.Status == "future" {
		return PublishResult{}, ErrAlreadyPublished
	}

	now := e.now()
	nowUTC := now.UTC().Format(time.RFC3339)
	prevStatus := item.Status
	timing := DecideSchedule(item.DateUTC, now)

	var outcome string
	switch timing {
	case TimingFuture:
		moved, err := e.Repo.TransitionStatusTx(ctx, tx, itemID, "future", nowUTC)
		if err != nil {
			return PublishResult{}, err
		}
		if !moved {
			return PublishResult{}, ErrAlreadyPublished
		}
		outcome = OutcomeScheduled
	case TimingImmediate:
		local := now.In(e.Config.Location()).Format(mysqlLayout)
		utc := now.UTC().Format(mysqlLayout)
		if err := e.Repo.SetDatesTx(ctx, tx, itemID, local, utc, nowUTC); err != nil {
			return PublishResult{}, err
		}
		if item, err = e.Repo.GetItemTx(ctx, tx, itemID); err != nil {
			return PublishResult{}, err
		}
		fallthrough
	case TimingBackdated:
		moved, err := e.Repo.TransitionStatusTx(ctx, tx, itemID, "publish", nowUTC)
		if err != nil {
			return PublishResult{}, err
		}
		if !moved {
			return PublishResult{}, ErrAlreadyPublished
		}
		outcome = OutcomePublished
	}

	item, err = e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return PublishResult{}, err
	}

	entityID := fmt.Sprint(itemID)
	if err := e.Events.Append(ctx, tx, "item.transitioned", "item", entityID, actorID,
		events.EventPayload{"from": prevStatus, "to": item.Status}); err != nil {
		return PublishResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "item.published", "item", entityID, actorID,
		events.EventPayload{"outcome": outcome, "previous_status": prevStatus, "link": e.Permalink(item)}); err != nil {
		return PublishResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Outcome: outcome, Item: item, Link: e.Permalink(item)}, nil
}
