package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pressflow/internal/config"
	"pressflow/internal/db"
	"pressflow/internal/domain"
	"pressflow/internal/engine"
	"pressflow/internal/engine/auth"
	"pressflow/internal/migrate"
	"pressflow/internal/registry"
	"pressflow/internal/repo"
)

var testClock = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("site-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testClock }
	ctx := context.Background()
	now := testClock.Format(time.RFC3339)
	for actor, role := range map[string]string{"editor-1": "editor", "author-1": "author"} {
		if err := eng.Repo.EnsureActor(ctx, actor, now); err != nil {
			t.Fatalf("ensure actor: %v", err)
		}
		if err := eng.Repo.AssignRole(ctx, actor, role); err != nil {
			t.Fatalf("assign role: %v", err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createItem(t *testing.T, env testEnv, typ, title, content, author string) domain.ContentItem {
	t.Helper()
	it, err := env.Engine.CreateItem(env.Ctx, domain.ContentItem{
		Type: typ, Title: title, Content: content, AuthorID: author,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func makeReady(t *testing.T, env testEnv, it domain.ContentItem) {
	t.Helper()
	if err := env.Engine.Repo.ReplaceTerms(env.Ctx, it.ID, "category", []domain.Term{{ID: 1, Name: "News"}}); err != nil {
		t.Fatalf("set terms: %v", err)
	}
}

func TestReadinessRequiredFields(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Launch day", "Body text", "editor-1")

	snap, err := env.Engine.LoadSnapshot(env.Ctx, it)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if engine.EvaluateReadiness(snap) {
		t.Fatalf("expected not ready without category term")
	}

	makeReady(t, env, it)
	snap, err = env.Engine.LoadSnapshot(env.Ctx, it)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !engine.EvaluateReadiness(snap) {
		t.Fatalf("expected ready once all requirements met")
	}
}

func TestReadinessPlaceholderTitle(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "", "Body text", "editor-1")
	if it.Title != "Auto Draft" {
		t.Fatalf("expected placeholder title, got %q", it.Title)
	}
	makeReady(t, env, it)
	snap, err := env.Engine.LoadSnapshot(env.Ctx, it)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if engine.EvaluateReadiness(snap) {
		t.Fatalf("placeholder title must read as empty")
	}
	for _, entry := range snap.RequiredPrimary {
		if entry.Key == "title" && entry.Value != "" {
			t.Fatalf("title value = %q, want empty", entry.Value)
		}
	}
}

func TestReadinessOptionalNeverGates(t *testing.T) {
	env := newTestEnv(t)
	// pages have no taxonomy requirement and an empty optional table
	it := createItem(t, env, "page", "About", "Who we are", "editor-1")
	snap, err := env.Engine.LoadSnapshot(env.Ctx, it)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !engine.EvaluateReadiness(snap) {
		t.Fatalf("optional entries must not gate readiness")
	}
}

func TestGroupSnapshotValue(t *testing.T) {
	set := registry.RequirementSet{
		RequiredGroups: map[string]registry.GroupSpec{
			"seo": {Label: "SEO", Keys: []string{"seo_title", "seo_desc", "seo_image"}},
		},
		OptionalMeta: map[string]registry.FieldSpec{
			"seo_title": {Label: "SEO Title"},
		},
	}
	it := domain.ContentItem{ID: 1, Type: "post", Title: "T"}

	snap := engine.BuildSnapshot(it, map[string]string{"seo_title": "x", "seo_image": "y"}, nil, set, "Auto Draft")
	if len(snap.RequiredGroups) != 1 {
		t.Fatalf("expected one group entry")
	}
	// members with a meta spec show their label, the rest their key
	if got := snap.RequiredGroups[0].Value; got != "SEO Title, seo_image" {
		t.Fatalf("group value = %q, want joined present member labels", got)
	}
	if engine.EvaluateReadiness(snap) != true {
		t.Fatalf("group with present members must satisfy readiness")
	}

	snap = engine.BuildSnapshot(it, map[string]string{}, nil, set, "Auto Draft")
	if snap.RequiredGroups[0].Value != "" {
		t.Fatalf("empty group must have empty value")
	}
	if engine.EvaluateReadiness(snap) {
		t.Fatalf("empty group must block readiness")
	}
}

func TestMetaFirstValueWins(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Title", "Body", "editor-1")
	if err := env.Engine.Repo.ReplaceMeta(env.Ctx, it.ID, "seo_title", []string{"first", "second"}); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	meta, err := env.Engine.Repo.FirstMetaValues(env.Ctx, it.ID)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta["seo_title"] != "first" {
		t.Fatalf("meta collapse = %q, want first value", meta["seo_title"])
	}
}

func TestDecideScheduleBoundaries(t *testing.T) {
	now := testClock
	cases := []struct {
		name string
		date string
		want engine.Timing
	}{
		{"empty", "", engine.TimingImmediate},
		{"zero sentinel", "0000-00-00 00:00:00", engine.TimingImmediate},
		{"equal to now", "2024-01-01 12:00:00", engine.TimingBackdated},
		{"past", "2023-12-31 23:59:59", engine.TimingBackdated},
		{"one second ahead", "2024-01-01 12:00:01", engine.TimingFuture},
	}
	for _, tc := range cases {
		if got := engine.DecideSchedule(tc.date, now); got != tc.want {
			t.Errorf("%s: DecideSchedule(%q) = %v, want %v", tc.name, tc.date, got, tc.want)
		}
	}
}

func TestPublishImmediateStampsDates(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Launch", "Body", "editor-1")
	makeReady(t, env, it)

	res, err := env.Engine.Publish(env.Ctx, it.ID, "editor-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Outcome != engine.OutcomePublished {
		t.Fatalf("outcome = %q, want published", res.Outcome)
	}
	if res.Item.Status != "publish" {
		t.Fatalf("status = %q, want publish", res.Item.Status)
	}
	if res.Item.DateUTC != "2024-01-01 12:00:00" {
		t.Fatalf("date_utc = %q, want stamped clock", res.Item.DateUTC)
	}
	if res.Link == "" {
		t.Fatalf("expected permalink on result")
	}
}

func TestPublishFutureSchedules(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Launch", "Body", "editor-1")
	makeReady(t, env, it)
	future := "2024-06-01 08:00:00"
	if _, err := env.Engine.UpdateItem(env.Ctx, it.ID, itemPatchDates(future)); err != nil {
		t.Fatalf("set date: %v", err)
	}

	res, err := env.Engine.Publish(env.Ctx, it.ID, "editor-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Outcome != engine.OutcomeScheduled {
		t.Fatalf("outcome = %q, want scheduled", res.Outcome)
	}
	if res.Item.Status != "future" {
		t.Fatalf("status = %q, want future", res.Item.Status)
	}
	if res.Item.DateUTC != future {
		t.Fatalf("date_utc = %q, scheduled publish must not restamp", res.Item.DateUTC)
	}
}

func TestPublishBackdatedKeepsDates(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Launch", "Body", "editor-1")
	makeReady(t, env, it)
	past := "2023-11-05 09:30:00"
	if _, err := env.Engine.UpdateItem(env.Ctx, it.ID, itemPatchDates(past)); err != nil {
		t.Fatalf("set date: %v", err)
	}

	res, err := env.Engine.Publish(env.Ctx, it.ID, "editor-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Outcome != engine.OutcomePublished {
		t.Fatalf("outcome = %q, want published", res.Outcome)
	}
	if res.Item.DateUTC != past {
		t.Fatalf("date_utc = %q, backdated publish must not restamp", res.Item.DateUTC)
	}
}

func TestPublishTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Launch", "Body", "editor-1")
	makeReady(t, env, it)
	if _, err := env.Engine.Publish(env.Ctx, it.ID, "editor-1"); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	_, err := env.Engine.Publish(env.Ctx, it.ID, "editor-1")
	if !errors.Is(err, engine.ErrAlreadyPublished) {
		t.Fatalf("second publish err = %v, want ErrAlreadyPublished", err)
	}
}

func TestPublishAuthorization(t *testing.T) {
	env := newTestEnv(t)
	own := createItem(t, env, "post", "Mine", "Body", "author-1")
	makeReady(t, env, own)
	other := createItem(t, env, "post", "Theirs", "Body", "editor-1")
	makeReady(t, env, other)

	// author may publish own items
	if _, err := env.Engine.Publish(env.Ctx, own.ID, "author-1"); err != nil {
		t.Fatalf("publish own: %v", err)
	}
	// but not someone else's
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.Publish(env.Ctx, other.ID, "author-1"); !errors.As(err, &forbidden) {
		t.Fatalf("publish other err = %v, want ForbiddenError", err)
	}
	// unknown actors have no capability at all
	if _, err := env.Engine.Publish(env.Ctx, other.ID, "stranger"); !errors.As(err, &forbidden) {
		t.Fatalf("stranger err = %v, want ForbiddenError", err)
	}
}

func TestFlowDataDevDomainOverride(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Site.DevDomain = "dev.local"
	it := createItem(t, env, "post", "Draft", "", "editor-1")

	data, err := env.Engine.BuildFlowData(env.Ctx, it.ID, "editor-1", "prod.example.com")
	if err != nil {
		t.Fatalf("flow data: %v", err)
	}
	if data.Ready {
		t.Fatalf("expected not ready on non-dev host")
	}
	data, err = env.Engine.BuildFlowData(env.Ctx, it.ID, "editor-1", "dev.local")
	if err != nil {
		t.Fatalf("flow data: %v", err)
	}
	if !data.Ready {
		t.Fatalf("dev domain must force readiness")
	}
	if data.PublishNonce == "" {
		t.Fatalf("flow data must carry a publish nonce")
	}
}

func TestFlowDataCarriesMeta(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Draft", "Body", "editor-1")
	if err := env.Engine.Repo.ReplaceMeta(env.Ctx, it.ID, "seo_title", []string{"Launch day"}); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	if err := env.Engine.Repo.ReplaceMeta(env.Ctx, it.ID, "internal_note", []string{"dormant"}); err != nil {
		t.Fatalf("set meta: %v", err)
	}

	data, err := env.Engine.BuildFlowData(env.Ctx, it.ID, "editor-1", "prod.example.com")
	if err != nil {
		t.Fatalf("flow data: %v", err)
	}
	if data.Meta == nil {
		t.Fatalf("flow data must carry the flattened meta map")
	}
	if data.Meta["seo_title"] != "Launch day" {
		t.Fatalf("meta seo_title = %q, want first stored value", data.Meta["seo_title"])
	}
	// keys outside any requirement table still surface
	if data.Meta["internal_note"] != "dormant" {
		t.Fatalf("meta internal_note = %q, want raw value", data.Meta["internal_note"])
	}
}

func TestPublishNonceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.Engine.IssuePublishNonce(env.Ctx, "editor-1")
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	ok, err := env.Engine.VerifyPublishNonce(env.Ctx, token, "editor-1")
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v; want valid", ok, err)
	}
	ok, _ = env.Engine.VerifyPublishNonce(env.Ctx, token, "author-1")
	if ok {
		t.Fatalf("nonce must be bound to the issuing actor")
	}
	ok, _ = env.Engine.VerifyPublishNonce(env.Ctx, "no-such-token", "editor-1")
	if ok {
		t.Fatalf("unknown nonce must not verify")
	}

	// shift the clock past expiry
	env.Engine.Now = func() time.Time { return testClock.Add(13 * time.Hour) }
	ok, _ = env.Engine.VerifyPublishNonce(env.Ctx, token, "editor-1")
	if ok {
		t.Fatalf("expired nonce must not verify")
	}

	// minting sweeps lapsed rows
	if _, err := env.Engine.IssuePublishNonce(env.Ctx, "editor-1"); err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	if _, err := env.Engine.Repo.GetNonce(env.Ctx, token); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired nonce lookup err = %v, want ErrNotFound after sweep", err)
	}
}

func TestFlowURLParams(t *testing.T) {
	env := newTestEnv(t)
	it := createItem(t, env, "post", "Hello World", "Body", "editor-1")
	u := env.Engine.FlowURL(it)
	for _, want := range []string{"publishing-flow=true", "post-id=", "url=", "return="} {
		if !strings.Contains(u, want) {
			t.Errorf("flow url %q missing %q", u, want)
		}
	}
}

func itemPatchDates(dateUTC string) repo.ItemPatch {
	local := dateUTC
	return repo.ItemPatch{DateLocal: &local, DateUTC: &dateUTC}
}
