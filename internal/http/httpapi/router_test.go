package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gengateway/internal/adapter/memory"
	"gengateway/internal/domain"
	"gengateway/internal/events"
	"gengateway/internal/feed"
	"gengateway/internal/generation"
	"gengateway/internal/http/handlers"
	"gengateway/internal/infra"
	"gengateway/internal/middleware"
	"gengateway/internal/providers/synthetic"
	"gengateway/internal/registry"
	"gengateway/internal/seed"
	"gengateway/internal/storage"
)

const (
	aliceKey = "sk-alice"
	bobKey   = "sk-bob"
)

type countingBackend struct {
	generation.Backend
	calls atomic.Int32
}

func (b *countingBackend) GenerateVideo(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	b.calls.Add(1)
	return b.Backend.GenerateVideo(ctx, req)
}

func (b *countingBackend) GenerateImage(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	b.calls.Add(1)
	return b.Backend.GenerateImage(ctx, req)
}

func (b *countingBackend) CreateCharacter(ctx context.Context, req *generation.ValidatedRequest) (*generation.CharacterOutcome, error) {
	b.calls.Add(1)
	return b.Backend.CreateCharacter(ctx, req)
}

type testServer struct {
	handler http.Handler
	backend *countingBackend
	posts   *memory.PostStore
	users   *memory.UserStore
}

func newTestServer(t *testing.T, delay time.Duration) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	posts := memory.NewPostStore(domain.DefaultScoreWeights)
	users := memory.NewUserStore()
	tokens := memory.NewTokenStore()
	jobs := memory.NewJobStore()
	chars := memory.NewCharacterStore()
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	seeder := &seed.Seeder{Users: users, Tokens: tokens, Posts: posts, Logger: logger}
	if err := seeder.Bootstrap(ctx, []infra.StaticKey{
		{Key: aliceKey, TokenID: 7, Username: "alice"},
		{Key: bobKey, TokenID: 8, Username: "bob"},
	}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	backend := &countingBackend{Backend: synthetic.New("https://cdn.test", delay)}
	metrics := infra.NewMetrics()
	dispatcher := generation.NewDispatcher(backend, jobs, logger, metrics, generation.DispatcherConfig{
		MaxInFlight: 8,
		Timeout:     5 * time.Second,
	})
	gateway := generation.NewGateway(generation.GatewayDeps{
		Dispatcher:    dispatcher,
		Registry:      registry.New(chars, blobs, registry.NewKeyedMutex(), logger),
		Posts:         posts,
		Users:         users,
		Publisher:     events.LogPublisher{Logger: logger},
		Logger:        logger,
		PublicBaseURL: "https://gw.test",
	})
	app := &handlers.App{
		Config:  &infra.Config{MaxUploadBytes: 1 << 20},
		Logger:  logger,
		Gateway: gateway,
		Feed:    feed.NewEngine(posts, users, tokens, chars, metrics, "https://gw.test"),
		Jobs:    jobs,
		Metrics: metrics,
	}
	h := NewRouter(app, Options{
		Auth:   &middleware.Authenticator{Tokens: tokens},
		Logger: logger,
	})
	return &testServer{handler: h, backend: backend, posts: posts, users: users}
}

func (s *testServer) do(t *testing.T, method, path, key, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

func errorField(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	field, _ := e["field"].(string)
	return field
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, 0)
	rec, body := s.do(t, http.MethodGet, "/v1/healthz", "", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", rec.Code, body)
	}
}

func TestRoutesRequireBearer(t *testing.T) {
	s := newTestServer(t, 0)
	cases := []struct {
		name, method, path, key string
	}{
		{"feed without key", http.MethodGet, "/api/feed", ""},
		{"video without key", http.MethodPost, "/v1/videos", ""},
		{"unknown key", http.MethodGet, "/api/feed", "sk-nobody"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, tc.method, tc.path, tc.key, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if body["success"] != false || errorKind(body) != string(domain.KindUnauthorized) {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestRejectedRequestsNeverReachBackend(t *testing.T) {
	s := newTestServer(t, 0)
	cases := []struct {
		name   string
		path   string
		body   string
		status int
		kind   domain.ErrorKind
		field  string
	}{
		{
			name:   "remix with style_id",
			path:   "/v1/videos",
			body:   `{"prompt":"make it rain","remix_target_id":"s_abc","style_id":"noir"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindUnsupportedField,
			field:  domain.FieldStyleID,
		},
		{
			name:   "image with both conditioning images",
			path:   "/v1/images/generations",
			body:   `{"prompt":"cat","input_image":"aGk=","input_reference":"aGk="}`,
			status: http.StatusBadRequest,
			kind:   domain.KindUnsupportedField,
		},
		{
			name:   "unknown cameo",
			path:   "/v1/videos",
			body:   `{"prompt":"@ghost dancing"}`,
			status: http.StatusUnprocessableEntity,
			kind:   domain.KindUnknownCharacter,
		},
		{
			name:   "inverted timestamps",
			path:   "/v1/characters",
			body:   `{"model":"sora-video-10s","username":"neo_one","timestamps":"3,1","video":"bXA0"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindInvalidTimestampRange,
		},
		{
			name:   "NaN timestamp",
			path:   "/v1/characters",
			body:   `{"model":"sora-video-10s","username":"neo_two","timestamps":"0,NaN","video":"bXA0"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindInvalidValue,
			field:  domain.FieldTimestamps,
		},
		{
			name:   "NaN start",
			path:   "/v1/characters",
			body:   `{"model":"sora-video-10s","username":"neo_three","timestamps":"NaN,3","video":"bXA0"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindInvalidValue,
			field:  domain.FieldTimestamps,
		},
		{
			name:   "infinite timestamp",
			path:   "/v1/characters",
			body:   `{"model":"sora-video-10s","username":"neo_four","timestamps":"0,Inf","video":"bXA0"}`,
			status: http.StatusBadRequest,
			kind:   domain.KindInvalidValue,
			field:  domain.FieldTimestamps,
		},
		{
			name:   "numeric image",
			path:   "/v1/images/generations",
			body:   `{"prompt":"cat","input_image":123}`,
			status: http.StatusBadRequest,
			kind:   domain.KindBadEncoding,
			field:  domain.FieldInputImage,
		},
		{
			name:   "not json",
			path:   "/v1/videos",
			body:   `{"prompt":`,
			status: http.StatusBadRequest,
			kind:   domain.KindBadEncoding,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, tc.path, aliceKey, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tc.status, body)
			}
			if got := errorKind(body); got != string(tc.kind) {
				t.Fatalf("kind = %q, want %q", got, tc.kind)
			}
			if tc.field != "" && errorField(body) != tc.field {
				t.Fatalf("field = %q, want %q", errorField(body), tc.field)
			}
		})
	}
	if n := s.backend.calls.Load(); n != 0 {
		t.Fatalf("backend calls = %d, want 0", n)
	}
}

func TestUnsupportedContentType(t *testing.T) {
	s := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/v1/videos", strings.NewReader("prompt"))
	req.Header.Set("Authorization", "Bearer "+aliceKey)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestSyncVideoCreatesPost(t *testing.T) {
	s := newTestServer(t, 0)
	rec, body := s.do(t, http.MethodPost, "/v1/videos", aliceKey, `{"prompt":"sunset over dunes","orientation":"portrait"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%v)", rec.Code, body)
	}
	data, _ := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("data = %v", body["data"])
	}
	first := data[0].(map[string]any)
	if !strings.HasPrefix(first["url"].(string), "https://cdn.test/") {
		t.Fatalf("url = %v", first["url"])
	}
	postID, _ := body["post_id"].(string)
	if first["permalink"] != "https://gw.test/p/"+postID {
		t.Fatalf("permalink = %v, post_id = %q", first["permalink"], postID)
	}

	_, page := s.do(t, http.MethodGet, "/api/tokens/7/profile-feed", bobKey, "")
	items, _ := page["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["id"] != postID {
		t.Fatalf("token feed = %v", page)
	}
	author := items[0].(map[string]any)["author"].(map[string]any)
	if author["username"] != "alice" {
		t.Fatalf("author = %v", author)
	}
}

func TestAsyncSubmissionIsPolled(t *testing.T) {
	s := newTestServer(t, 20*time.Millisecond)
	rec, body := s.do(t, http.MethodPost, "/v1/images/generations", aliceKey, `{"prompt":"lighthouse","n":2,"async_mode":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%v)", rec.Code, body)
	}
	jobID, _ := body["job_id"].(string)
	if !strings.HasPrefix(jobID, "job_") {
		t.Fatalf("job_id = %q", jobID)
	}

	if rec, _ := s.do(t, http.MethodGet, "/v1/jobs/"+jobID, bobKey, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign job status = %d, want 404", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, body := s.do(t, http.MethodGet, "/v1/jobs/"+jobID, aliceKey, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d (%v)", rec.Code, body)
		}
		job := body["job"].(map[string]any)
		if job["status"] == string(domain.JobStatusSucceeded) {
			result := job["result"].(map[string]any)
			if arts, _ := result["artifacts"].([]any); len(arts) != 2 {
				t.Fatalf("artifacts = %v", result["artifacts"])
			}
			return
		}
		if job["status"] == string(domain.JobStatusFailed) {
			t.Fatalf("job failed: %v", job)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish: %v", job)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentCharacterUsernames(t *testing.T) {
	s := newTestServer(t, 30*time.Millisecond)
	body := `{"model":"sora-video-10s","username":"Neo_Prime","timestamps":"0,3","video":"bXA0"}`

	var wg sync.WaitGroup
	codes := make([]int, 2)
	keys := []string{aliceKey, bobKey}
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/v1/characters", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+keys[i])
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("codes = %v, want one 200 and one 409", codes)
	}

	rec, res := s.do(t, http.MethodGet, "/api/characters/search?username=neo&intent=cameo", aliceKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if results, _ := res["results"].([]any); len(results) != 1 {
		t.Fatalf("results = %v", res["results"])
	}

	rec, _ = s.do(t, http.MethodPost, "/v1/videos", aliceKey, `{"prompt":"@neo_prime on the moon"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cameo prompt status = %d, want 200", rec.Code)
	}
}

func TestFeedPaginationRoundTrip(t *testing.T) {
	s := newTestServer(t, 0)
	ctx := context.Background()
	var want []string
	for i := range 7 {
		p, err := s.posts.Create(ctx, &domain.Post{
			Text:      "post",
			Author:    domain.Author{UserID: "user_alice", Username: "alice"},
			TokenID:   7,
			CreatedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		want = append([]string{p.ID}, want...)
	}

	for _, path := range []string{"/api/feed?limit=2", "/api/user/user_alice/feed?limit=2", "/api/tokens/7/profile-feed?limit=2"} {
		t.Run(path, func(t *testing.T) {
			var got []string
			url := path
			for pages := 0; ; pages++ {
				if pages > 10 {
					t.Fatalf("pagination did not terminate")
				}
				rec, body := s.do(t, http.MethodGet, url, aliceKey, "")
				if rec.Code != http.StatusOK {
					t.Fatalf("status = %d (%v)", rec.Code, body)
				}
				for _, it := range body["items"].([]any) {
					got = append(got, it.(map[string]any)["id"].(string))
				}
				cursor, ok := body["cursor"].(string)
				if !ok {
					break
				}
				url = path + "&cursor=" + cursor
			}
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Fatalf("ids = %v, want %v", got, want)
			}
		})
	}
}

func TestFeedErrors(t *testing.T) {
	s := newTestServer(t, 0)
	cases := []struct {
		path   string
		status int
		kind   domain.ErrorKind
	}{
		{"/api/tokens/99999/profile-feed", http.StatusNotFound, domain.KindNotFound},
		{"/api/tokens/abc/profile-feed", http.StatusNotFound, domain.KindNotFound},
		{"/api/user/user_nobody/feed", http.StatusNotFound, domain.KindNotFound},
		{"/api/feed?cursor=not-a-cursor", http.StatusBadRequest, domain.KindInvalidCursor},
		{"/api/feed?cut=hot", http.StatusBadRequest, domain.KindInvalidValue},
		{"/api/feed?limit=ten", http.StatusBadRequest, domain.KindInvalidValue},
		{"/api/characters/search?intent=cameo", http.StatusBadRequest, domain.KindMissingField},
		{"/api/profile/nobody", http.StatusNotFound, domain.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec, body := s.do(t, http.MethodGet, tc.path, aliceKey, "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tc.status, body)
			}
			if got := errorKind(body); got != string(tc.kind) {
				t.Fatalf("kind = %q, want %q", got, tc.kind)
			}
		})
	}
}

func TestCursorBoundToCut(t *testing.T) {
	s := newTestServer(t, 0)
	for range 3 {
		if _, err := s.posts.Create(context.Background(), &domain.Post{Text: "x", TokenID: 7}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	_, body := s.do(t, http.MethodGet, "/api/feed?limit=1&cut=nf2_latest", aliceKey, "")
	cursor, _ := body["cursor"].(string)
	if cursor == "" {
		t.Fatalf("expected a cursor: %v", body)
	}
	rec, body := s.do(t, http.MethodGet, "/api/feed?limit=1&cut=nf2_top&cursor="+cursor, aliceKey, "")
	if rec.Code != http.StatusBadRequest || errorKind(body) != string(domain.KindInvalidCursor) {
		t.Fatalf("status = %d body = %v, want invalid cursor", rec.Code, body)
	}
}

func TestProfile(t *testing.T) {
	s := newTestServer(t, 0)
	if _, err := s.posts.Create(context.Background(), &domain.Post{
		Text: "x", Author: domain.Author{UserID: "user_alice", Username: "alice"}, LikeCount: 4,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, body := s.do(t, http.MethodGet, "/api/profile/@alice", bobKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%v)", rec.Code, body)
	}
	profile := body["profile"].(map[string]any)
	if profile["user_id"] != "user_alice" || profile["post_count"] != float64(1) || profile["likes_received_count"] != float64(4) {
		t.Fatalf("profile = %v", profile)
	}
}

func TestErrorHintFollowsLocale(t *testing.T) {
	s := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/tokens/99999/profile-feed", nil)
	req.Header.Set("Authorization", "Bearer "+aliceKey)
	req.Header.Set("Accept-Language", "zh-CN,en;q=0.5")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	hint := body["error"].(map[string]any)["hint"].(string)
	if hint != "请求的资源不存在。" {
		t.Fatalf("hint = %q", hint)
	}
	if got := rec.Header().Get("Content-Language"); got != "zh" {
		t.Fatalf("Content-Language = %q, want zh", got)
	}
}

func TestRenameCharacterIsOwnerOnly(t *testing.T) {
	s := newTestServer(t, 0)
	rec, _ := s.do(t, http.MethodPost, "/v1/characters", aliceKey,
		`{"model":"sora-video-10s","username":"trinity","timestamps":"0,3","video":"bXA0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, want 200", rec.Code)
	}

	rec, res := s.do(t, http.MethodPatch, "/v1/characters/trinity", bobKey, `{"display_name":"Not Yours"}`)
	if rec.Code != http.StatusNotFound || errorKind(res) != string(domain.KindNotFound) {
		t.Fatalf("foreign rename status = %d, kind = %q", rec.Code, errorKind(res))
	}
	rec, res = s.do(t, http.MethodPatch, "/v1/characters/trinity", aliceKey, `{"display_name":" "}`)
	if rec.Code != http.StatusBadRequest || errorKind(res) != string(domain.KindMissingField) {
		t.Fatalf("blank rename status = %d, kind = %q", rec.Code, errorKind(res))
	}

	rec, res = s.do(t, http.MethodPatch, "/v1/characters/@Trinity", aliceKey, `{"display_name":"Trin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}
	data, _ := res["data"].(map[string]any)
	if data["display_name"] != "Trin" || data["username"] != "trinity" {
		t.Fatalf("data = %v", data)
	}
}
