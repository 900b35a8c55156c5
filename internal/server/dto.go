package server

import (
	"pressflow/internal/domain"
	"pressflow/internal/engine"
	"pressflow/internal/repo"
)

type CreateItemRequest struct {
	Type    string `json:"type" example:"post"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Slug    string `json:"slug,omitempty"`
	Status  string `json:"status,omitempty" enum:"draft,pending,private,"`
}

func (r CreateItemRequest) toDomain(actorID string) domain.ContentItem {
	return domain.ContentItem{
		Type:     r.Type,
		Title:    r.Title,
		Content:  r.Content,
		Excerpt:  r.Excerpt,
		Slug:     r.Slug,
		Status:   r.Status,
		AuthorID: actorID,
	}
}

type UpdateItemRequest struct {
	Title     *string `json:"title,omitempty"`
	Content   *string `json:"content,omitempty"`
	Excerpt   *string `json:"excerpt,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Status    *string `json:"status,omitempty" enum:"draft,pending,private,"`
	DateLocal *string `json:"date_local,omitempty" example:"2024-06-01 10:00:00"`
	DateUTC   *string `json:"date_utc,omitempty" example:"2024-06-01 08:00:00"`
}

func (r UpdateItemRequest) toPatch() repo.ItemPatch {
	return repo.ItemPatch{
		Title:     r.Title,
		Content:   r.Content,
		Excerpt:   r.Excerpt,
		Slug:      r.Slug,
		Status:    r.Status,
		DateLocal: r.DateLocal,
		DateUTC:   r.DateUTC,
	}
}

type ItemResponse struct {
	domain.ContentItem
	Link     string `json:"link"`
	EditLink string `json:"editLink"`
}

func itemResponse(it domain.ContentItem, e engine.Engine) ItemResponse {
	return ItemResponse{
		ContentItem: it,
		Link:        e.Permalink(it),
		EditLink:    e.EditLink(it),
	}
}

type paginatedItems struct {
	Items      []ItemResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type SetMetaRequest struct {
	Values []string `json:"values"`
}

type MetaResponse struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type TermInput struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SetTermsRequest struct {
	Terms []TermInput `json:"terms"`
}

func (r SetTermsRequest) toDomain(taxonomy string) []domain.Term {
	terms := make([]domain.Term, 0, len(r.Terms))
	for _, t := range r.Terms {
		terms = append(terms, domain.Term{ID: t.ID, Taxonomy: taxonomy, Name: t.Name})
	}
	return terms
}

type TermsResponse struct {
	Taxonomy string      `json:"taxonomy"`
	Terms    []TermInput `json:"terms"`
}

type FlowURLResponse struct {
	URL string `json:"url"`
}

type ReadinessResponse struct {
	ItemID int64 `json:"item_id"`
	Ready  bool  `json:"ready"`
}

// PublishRequest is the legacy publish action body.
type PublishRequest struct {
	Action string `json:"action" example:"pf_publish_post"`
	PostID int64  `json:"post_id"`
	Nonce  string `json:"pf_publish_nonce"`
}

// PublishResponse is loosely shaped on purpose: the not-allowed stage
// fills Outcome, later failure stages fill Status, success fills both
// Outcome and Status.
type PublishResponse struct {
	Outcome  string `json:"outcome,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	PostLink string `json:"postLink,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
