package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"pressflow/internal/config"
	"pressflow/internal/db"
	"pressflow/internal/domain"
	"pressflow/internal/engine"
	"pressflow/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("pressflow-test")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	seed := []struct {
		actor string
		role  string
	}{
		{"editor-1", "editor"},
		{"author-1", "author"},
		{"viewer-1", ""},
	}
	for _, s := range seed {
		if err := e.Repo.EnsureActor(ctx, s.actor, "2024-01-01T00:00:00Z"); err != nil {
			t.Fatalf("seed actor %s: %v", s.actor, err)
		}
		if s.role == "" {
			continue
		}
		if err := e.Repo.AssignRole(ctx, s.actor, s.role); err != nil {
			t.Fatalf("assign role %s: %v", s.role, err)
		}
	}
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asEditor() map[string]string { return map[string]string{"X-Actor-Id": "editor-1"} }

func createReadyPost(t *testing.T, srv *testServer, headers map[string]string) domain.ContentItem {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items", map[string]any{
		"type":    "post",
		"title":   "Launch notes",
		"content": "Everything shipped.",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item status %d: %s", res.StatusCode, string(data))
	}
	var created domain.ContentItem
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/items/"+itoa(created.ID)+"/terms/category", map[string]any{
		"terms": []map[string]any{{"id": 7, "name": "News"}},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set terms status %d: %s", res.StatusCode, string(data))
	}
	return created
}

func fetchPublishNonce(t *testing.T, srv *testServer, itemID int64, headers map[string]string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/items/"+itoa(itemID)+"/flow", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get flow status %d: %s", res.StatusCode, string(data))
	}
	var flow engine.FlowData
	if err := json.Unmarshal(data, &flow); err != nil {
		t.Fatalf("unmarshal flow: %v", err)
	}
	if flow.PublishNonce == "" {
		t.Fatalf("flow data missing publish nonce: %s", string(data))
	}
	return flow.PublishNonce
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestPublishEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	item := createReadyPost(t, srv, asEditor())

	flowRes, flowBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+itoa(item.ID)+"/flow", nil, asEditor())
	if flowRes.StatusCode != http.StatusOK {
		t.Fatalf("get flow: %d %s", flowRes.StatusCode, string(flowBody))
	}
	var flow engine.FlowData
	if err := json.Unmarshal(flowBody, &flow); err != nil {
		t.Fatalf("unmarshal flow: %v", err)
	}
	if !flow.Ready {
		t.Fatalf("expected ready item, got %s", string(flowBody))
	}
	if flow.Scheduled || flow.PostDatePast {
		t.Fatalf("fresh draft should be an immediate publish: %s", string(flowBody))
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": flow.PublishNonce,
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d: %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	if err := json.Unmarshal(data, &pub); err != nil {
		t.Fatalf("unmarshal publish response: %v", err)
	}
	if pub.Outcome != "published" || pub.Status != "success" {
		t.Fatalf("expected published/success, got %s", string(data))
	}
	if pub.PostLink == "" {
		t.Fatalf("expected postLink in response: %s", string(data))
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+itoa(item.ID), nil, asEditor())
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get item: %d %s", getRes.StatusCode, string(getBody))
	}
	var published domain.ContentItem
	_ = json.Unmarshal(getBody, &published)
	if published.Status != "publish" {
		t.Fatalf("expected status publish, got %s", published.Status)
	}
	if published.DateUTC == "" || published.DateUTC == "0000-00-00 00:00:00" {
		t.Fatalf("expected stamped date, got %q", published.DateUTC)
	}
}

func TestPublishTwiceReportsAlreadyDone(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	item := createReadyPost(t, srv, asEditor())
	nonce := fetchPublishNonce(t, srv, item.ID, asEditor())

	body := map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": nonce,
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/publish", body, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first publish: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/publish", body, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	if err := json.Unmarshal(data, &pub); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pub.Status != "error" || pub.Outcome != "" {
		t.Fatalf("expected status=error without outcome, got %s", string(data))
	}
	if pub.Error != "Looks like this post has already been published or scheduled" {
		t.Fatalf("unexpected error message: %q", pub.Error)
	}
}

func TestPublishScheduledOutcome(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	item := createReadyPost(t, srv, asEditor())
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/items/"+itoa(item.ID), map[string]any{
		"date_local": "2099-06-01 10:00:00",
		"date_utc":   "2099-06-01 08:00:00",
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set future date: %d %s", res.StatusCode, string(data))
	}

	nonce := fetchPublishNonce(t, srv, item.ID, asEditor())
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": nonce,
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Outcome != "scheduled" || pub.Status != "success" {
		t.Fatalf("expected scheduled/success, got %s", string(data))
	}

	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+itoa(item.ID), nil, asEditor())
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get item: %d %s", getRes.StatusCode, string(getBody))
	}
	var scheduled domain.ContentItem
	_ = json.Unmarshal(getBody, &scheduled)
	if scheduled.Status != "future" {
		t.Fatalf("expected status future, got %s", scheduled.Status)
	}
}

func TestPublishInvalidNonce(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	item := createReadyPost(t, srv, asEditor())
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": "not-a-nonce",
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Error != "invalid request" || pub.Status != "" || pub.Outcome != "" {
		t.Fatalf("expected bare invalid request, got %s", string(data))
	}
}

func TestPublishWrongAction(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	item := createReadyPost(t, srv, asEditor())
	nonce := fetchPublishNonce(t, srv, item.ID, asEditor())
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "some_other_action",
		"post_id":          item.ID,
		"pf_publish_nonce": nonce,
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Error != "invalid request" {
		t.Fatalf("expected invalid request, got %s", string(data))
	}
}

func TestPublishWithoutCapability(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	viewer := map[string]string{"X-Actor-Id": "viewer-1"}

	item := createReadyPost(t, srv, asEditor())
	nonce := fetchPublishNonce(t, srv, item.ID, viewer)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": nonce,
	}, viewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Outcome != "error" || pub.Status != "" {
		t.Fatalf("expected outcome=error without status, got %s", string(data))
	}
	if pub.Error != "Sorry, the current user is not allowed to publish posts" {
		t.Fatalf("unexpected error message: %q", pub.Error)
	}
}

func TestPublishOtherAuthorsItem(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	author := map[string]string{"X-Actor-Id": "author-1"}

	item := createReadyPost(t, srv, asEditor())
	nonce := fetchPublishNonce(t, srv, item.ID, author)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          item.ID,
		"pf_publish_nonce": nonce,
	}, author)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Outcome != "error" || pub.Error != "Sorry, the current user is not allowed to publish posts" {
		t.Fatalf("author publishing someone else's item should be refused: %s", string(data))
	}
}

func TestPublishMissingItem(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	item := createReadyPost(t, srv, asEditor())
	nonce := fetchPublishNonce(t, srv, item.ID, asEditor())
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/publish", map[string]any{
		"action":           "pf_publish_post",
		"post_id":          999999,
		"pf_publish_nonce": nonce,
	}, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %s", res.StatusCode, string(data))
	}
	var pub PublishResponse
	_ = json.Unmarshal(data, &pub)
	if pub.Status != "error" || pub.Error != "Sorry, no post to publish was found." {
		t.Fatalf("expected not-found body, got %s", string(data))
	}
}

func TestReadinessBlocksOnMissingRequirement(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/items", map[string]any{
		"type":    "post",
		"title":   "No category yet",
		"content": "Body text.",
	}, asEditor())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create item: %d %s", res.StatusCode, string(data))
	}
	var created domain.ContentItem
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/items/"+itoa(created.ID)+"/readiness", nil, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("readiness: %d %s", res.StatusCode, string(data))
	}
	var ready ReadinessResponse
	_ = json.Unmarshal(data, &ready)
	if ready.Ready {
		t.Fatalf("post without category should not be ready: %s", string(data))
	}
}

func TestItemNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/items/424242", nil, asEditor())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found code, got %s", string(data))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/items", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestFlowURLEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	item := createReadyPost(t, srv, asEditor())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/items/"+itoa(item.ID)+"/flow-url", nil, asEditor())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("flow-url: %d %s", res.StatusCode, string(data))
	}
	var out FlowURLResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, want := range []string{"/admin/review?", "publishing-flow=true", "post-id=" + itoa(item.ID)} {
		if !bytes.Contains([]byte(out.URL), []byte(want)) {
			t.Fatalf("flow url missing %q: %s", want, out.URL)
		}
	}
}
