// Package engine implements the publication pipeline: snapshot building,
// readiness evaluation, scheduling, and the guarded status transition.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"pressflow/internal/config"
	"pressflow/internal/domain"
	"pressflow/internal/engine/auth"
	"pressflow/internal/events"
	"pressflow/internal/registry"
	"pressflow/internal/repo"
)

const (
	mysqlLayout = "2006-01-02 15:04:05"
	zeroDate    = "0000-00-00 00:00:00"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Auth     auth.Service
	Config   *config.Config
	Registry *registry.Registry
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Auth:     auth.Service{DB: db},
		Config:   cfg,
		Registry: registry.New(cfg),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowUTC() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateItem validates the content type against the registry and stores a
// new draft.
func (e Engine) CreateItem(ctx context.Context, it domain.ContentItem) (domain.ContentItem, error) {
	if !e.Registry.Supports(it.Type) {
		return domain.ContentItem{}, fmt.Errorf("unsupported content type %q", it.Type)
	}
	if it.AuthorID == "" {
		return domain.ContentItem{}, fmt.Errorf("author_id required")
	}
	if it.Status == "" {
		it.Status = "draft"
	}
	switch it.Status {
	case "draft", "pending", "private":
	default:
		return domain.ContentItem{}, fmt.Errorf("new items cannot start as %q", it.Status)
	}
	if it.Title == "" {
		it.Title = e.Config.TitlePlaceholder()
	}
	if it.Slug == "" && it.Title != e.Config.TitlePlaceholder() {
		it.Slug = Slugify(it.Title)
	}
	now := e.nowUTC()
	it.CreatedAt = now
	it.UpdatedAt = now
	id, err := e.Repo.InsertItem(ctx, it)
	if err != nil {
		return domain.ContentItem{}, err
	}
	it.ID = id

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentItem{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "item.created", "item", fmt.Sprint(id), it.AuthorID,
		events.EventPayload{"type": it.Type, "status": it.Status}); err != nil {
		return domain.ContentItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ContentItem{}, err
	}
	return it, nil
}

// UpdateItem applies a patch and returns the fresh row. Publish and future
// are not reachable here; those statuses only come out of Publish.
func (e Engine) UpdateItem(ctx context.Context, id int64, patch repo.ItemPatch) (domain.ContentItem, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case "draft", "pending", "private":
		default:
			return domain.ContentItem{}, fmt.Errorf("status %q can only be reached through publish", *patch.Status)
		}
	}
	if patch.Slug != nil {
		s := Slugify(*patch.Slug)
		patch.Slug = &s
	}
	if err := e.Repo.UpdateItem(ctx, id, patch, e.nowUTC()); err != nil {
		return domain.ContentItem{}, err
	}
	return e.Repo.GetItem(ctx, id)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and dashes a title into a URL slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Permalink returns the public URL for an item. Items without a slug fall
// back to the query form.
func (e Engine) Permalink(it domain.ContentItem) string {
	base := strings.TrimRight(e.Config.Site.BaseURL, "/")
	if it.Slug == "" {
		return fmt.Sprintf("%s/?p=%d", base, it.ID)
	}
	return fmt.Sprintf("%s/%s/", base, it.Slug)
}

// PreviewLink returns the draft preview URL for an item.
func (e Engine) PreviewLink(it domain.ContentItem) string {
	link := e.Permalink(it)
	if strings.ContainsRune(link, '?') {
		return link + "&preview=true"
	}
	return link + "?preview=true"
}

// EditLink returns the admin edit URL for an item.
func (e Engine) EditLink(it domain.ContentItem) string {
	base := strings.TrimRight(e.Config.Site.BaseURL, "/")
	return fmt.Sprintf("%s/admin/edit?item=%d", base, it.ID)
}

// FlowURL composes the review UI hand-off URL from exactly four query
// params: the preview target, the return target, the flow marker, and
// the item id.
func (e Engine) FlowURL(it domain.ContentItem) string {
	base := strings.TrimRight(e.Config.Site.BaseURL, "/")
	q := url.Values{}
	q.Set("url", e.PreviewLink(it))
	q.Set("return", e.EditLink(it))
	q.Set("publishing-flow", "true")
	q.Set("post-id", fmt.Sprint(it.ID))
	return base + "/admin/review?" + q.Encode()
}
