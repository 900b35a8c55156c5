package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pressflow/internal/domain"
	"pressflow/internal/repo"
)

// FlowData is everything the publish UI needs for one item. Meta is the
// flattened key -> first-value map, spec'd keys or not.
type FlowData struct {
	Item         domain.ContentItem `json:"item"`
	Meta         map[string]string  `json:"meta"`
	Snapshot     Snapshot           `json:"snapshot"`
	Ready        bool               `json:"ready"`
	Scheduled    bool               `json:"scheduled"`
	PostDate     string             `json:"postDate"`
	PostDatePast bool               `json:"postDatePast"`
	EditLink     string             `json:"editLink"`
	PostLink     string             `json:"postLink"`
	PublishNonce string             `json:"publishNonce"`
	Messages     FlowMessages       `json:"messages"`
}

type FlowMessages struct {
	PublishSuccess  string `json:"publishSuccess"`
	ScheduleSuccess string `json:"scheduleSuccess"`
	PublishFail     string `json:"publishFail"`
}

const postDateLayout = "January 2, 2006 at 3:04pm"

// BuildFlowData assembles the aggregate for one item. host is the request
// host; when it matches the configured dev domain the readiness flag is
// forced on after evaluation.
func (e Engine) BuildFlowData(ctx context.Context, itemID int64, actorID, host string) (FlowData, error) {
	item, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return FlowData{}, err
	}
	meta, err := e.Repo.FirstMetaValues(ctx, item.ID)
	if err != nil {
		return FlowData{}, err
	}
	terms, err := e.Repo.GetTerms(ctx, item.ID)
	if err != nil {
		return FlowData{}, err
	}
	snap := BuildSnapshot(item, meta, terms, e.Registry.Resolve(item.Type), e.Config.TitlePlaceholder())

	ready := EvaluateReadiness(snap)
	if dev := e.Registry.DevDomain(); dev != "" && dev == host {
		ready = true
	}

	now := e.now()
	timing := DecideSchedule(item.DateUTC, now)

	var postDate string
	if !dateUnset(item.DateUTC) {
		if t, perr := time.ParseInLocation(mysqlLayout, item.DateUTC, time.UTC); perr == nil {
			postDate = t.In(e.Config.Location()).Format(postDateLayout)
		}
	}

	nonce, err := e.IssuePublishNonce(ctx, actorID)
	if err != nil {
		return FlowData{}, err
	}

	return FlowData{
		Item:         item,
		Meta:         meta,
		Snapshot:     snap,
		Ready:        ready,
		Scheduled:    timing == TimingFuture,
		PostDate:     postDate,
		PostDatePast: timing == TimingBackdated,
		EditLink:     e.EditLink(item),
		PostLink:     e.Permalink(item),
		PublishNonce: nonce,
		Messages: FlowMessages{
			PublishSuccess:  e.Config.Message("publish_success"),
			ScheduleSuccess: e.Config.Message("schedule_success"),
			PublishFail:     e.Config.Message("publish_fail"),
		},
	}, nil
}

// IssuePublishNonce mints a publish token bound to the actor. Tokens are
// verified, not consumed, and lapse after the configured TTL; lapsed rows
// are swept on every mint.
func (e Engine) IssuePublishNonce(ctx context.Context, actorID string) (string, error) {
	now := e.now()
	if err := e.Repo.PurgeExpiredNonces(ctx, now.UTC().Format(time.RFC3339)); err != nil {
		return "", err
	}
	n := domain.PublishNonce{
		Token:     uuid.NewString(),
		ActorID:   actorID,
		CreatedAt: now.UTC().Format(time.RFC3339),
		ExpiresAt: now.Add(e.Config.NonceTTL()).UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertNonce(ctx, n); err != nil {
		return "", err
	}
	return n.Token, nil
}

// VerifyPublishNonce checks existence, actor binding, and expiry.
func (e Engine) VerifyPublishNonce(ctx context.Context, token, actorID string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := e.Repo.GetNonce(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if n.ActorID != actorID {
		return false, nil
	}
	exp, err := time.Parse(time.RFC3339, n.ExpiresAt)
	if err != nil {
		return false, err
	}
	return e.now().UTC().Before(exp), nil
}
