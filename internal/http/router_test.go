package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/events"
	"github.com/splax/teamhub/internal/repository/sqlite"
	"github.com/splax/teamhub/internal/repository/sqlite/sqlitetest"
	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/auth"
	"github.com/splax/teamhub/internal/service/invitation"
	"github.com/splax/teamhub/internal/service/membership"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/ws"
	jwtpkg "github.com/splax/teamhub/pkg/jwt"
)

const testSecret = "test-secret"

type testEnv struct {
	router *Router
	store  *sqlite.Store
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, limiter RateLimiter, health func(context.Context) error) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, limiter, health, nil)
}

func newTestEnvWithLimits(t *testing.T, limiter RateLimiter, health func(context.Context) error, limits *Limits) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sqlitetest.Open(t)
	hub := ws.NewHub()
	t.Cleanup(hub.Stop)

	guard := access.New(store)
	invitations, err := invitation.New(store, guard, "", hub, logger)
	if err != nil {
		t.Fatalf("invitation service: %v", err)
	}
	registry := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Auth:        auth.New(store, testSecret, logger),
		Teams:       team.New(store, guard, nil, nil, hub, logger),
		Members:     membership.New(store, guard, hub, logger),
		Invitations: invitations,
		Guard:       guard,
		Hub:         hub,
		Limiter:     limiter,
		Limits:      limits,
		Health:      health,
		Registerer:  registry,
		Gatherer:    registry,
		Logger:      logger,
	})
	t.Cleanup(router.Close)
	return &testEnv{router: router, store: store, hub: hub}
}

func tokenFor(t *testing.T, userID, email string) string {
	t.Helper()
	token, err := jwtpkg.GenerateToken(userID, email, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)

	down := newTestEnv(t, nil, func(context.Context) error { return errors.New("db down") })
	rec := down.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("health response leaked error detail: %s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	expectStatus(t, env.do(t, http.MethodGet, "/teams", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do(t, http.MethodGet, "/teams", "garbage", nil), http.StatusUnauthorized)

	wrongSecret, err := jwtpkg.GenerateToken("u1", "u1@x.com", "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/teams", wrongSecret, nil), http.StatusUnauthorized)

	sqlitetest.CreateUser(t, env.store, domain.User{ID: "holder-1", Email: "taken@x.com"})
	expectStatus(t, env.do(t, http.MethodGet, "/teams", tokenFor(t, "other-1", "taken@x.com"), nil), http.StatusUnauthorized)
}

func TestRolesListsOwnerFirst(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/roles", tokenFor(t, "u1", "u1@x.com"), nil)
	expectStatus(t, rec, http.StatusOK)
	roles := decode[[]struct {
		ID string `json:"id"`
	}](t, rec)
	if len(roles) != 3 || roles[0].ID != "owner" {
		t.Fatalf("unexpected roles %+v", roles)
	}
}

func TestTeamLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	owner := tokenFor(t, "owner-1", "owner@x.com")
	invitee := tokenFor(t, "member-1", "member@x.com")
	stranger := tokenFor(t, "stranger-1", "stranger@x.com")

	rec := env.do(t, http.MethodPost, "/teams", owner, map[string]string{"name": "  Acme  "})
	expectStatus(t, rec, http.StatusCreated)
	teams := decode[[]domain.Team](t, rec)
	if len(teams) != 1 || teams[0].Name != "Acme" {
		t.Fatalf("unexpected teams %+v", teams)
	}
	teamID := teams[0].ID
	if got := sqlitetest.CurrentTeam(t, env.store, "owner-1"); got != teamID {
		t.Fatalf("expected new team to become current, got %q", got)
	}

	rec = env.do(t, http.MethodPost, "/teams", owner, map[string]string{"name": "   "})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if body := decode[errorBody](t, rec); body.Field != "name" || body.Code != "VALIDATION" {
		t.Fatalf("unexpected validation body %+v", body)
	}

	rec = env.do(t, http.MethodPost, "/teams/"+teamID+"/invitations", owner, map[string]string{"email": "Member@X.com"})
	expectStatus(t, rec, http.StatusCreated)
	detail := decode[domain.TeamDetail](t, rec)
	if len(detail.Invitations) != 1 || detail.Invitations[0].Email != "member@x.com" {
		t.Fatalf("unexpected invitations %+v", detail.Invitations)
	}
	invitationID := detail.Invitations[0].ID

	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+teamID+"/invitations", owner, map[string]string{"email": "member@x.com"}), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+teamID+"/invitations", stranger, map[string]string{"email": "z@x.com"}), http.StatusNotFound)

	rec = env.do(t, http.MethodGet, "/invitations", invitee, nil)
	expectStatus(t, rec, http.StatusOK)
	if pending := decode[[]domain.Invitation](t, rec); len(pending) != 1 || pending[0].ID != invitationID {
		t.Fatalf("unexpected pending invitations %+v", pending)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/invitations/"+invitationID+"/accept", stranger, nil), http.StatusNotFound)
	rec = env.do(t, http.MethodPost, "/invitations/"+invitationID+"/accept", invitee, nil)
	expectStatus(t, rec, http.StatusOK)
	if joined := decode[[]domain.Team](t, rec); len(joined) != 1 || joined[0].ID != teamID {
		t.Fatalf("unexpected teams after accept %+v", joined)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/invitations/"+invitationID+"/accept", invitee, nil), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodGet, "/teams/"+teamID, invitee, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, "/teams/"+teamID, stranger, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodPatch, "/teams/"+teamID, invitee, map[string]string{"name": "Mine"}), http.StatusForbidden)
	expectStatus(t, env.do(t, http.MethodPatch, "/teams/"+teamID, stranger, map[string]string{"name": "Mine"}), http.StatusNotFound)

	rec = env.do(t, http.MethodPatch, "/teams/"+teamID, owner, map[string]string{"name": "Acme Corp"})
	expectStatus(t, rec, http.StatusOK)
	if renamed := decode[domain.Team](t, rec); renamed.Name != "Acme Corp" {
		t.Fatalf("unexpected rename result %+v", renamed)
	}

	memberPath := "/teams/" + teamID + "/members/member-1"
	expectStatus(t, env.do(t, http.MethodPut, memberPath, owner, map[string]string{"role": "owner"}), http.StatusUnprocessableEntity)
	expectStatus(t, env.do(t, http.MethodPut, memberPath, invitee, map[string]string{"role": "admin"}), http.StatusForbidden)
	rec = env.do(t, http.MethodPut, memberPath, owner, map[string]string{"role": "admin"})
	expectStatus(t, rec, http.StatusOK)
	detail = decode[domain.TeamDetail](t, rec)
	if len(detail.Members) != 1 || detail.Members[0].Role != "admin" {
		t.Fatalf("unexpected members %+v", detail.Members)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+teamID+"/switch", invitee, nil), http.StatusNoContent)
	if got := sqlitetest.CurrentTeam(t, env.store, "member-1"); got != teamID {
		t.Fatalf("expected switched current team, got %q", got)
	}
	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+teamID+"/switch", stranger, nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+teamID+"/membership", owner, nil), http.StatusForbidden)
	rec = env.do(t, http.MethodDelete, "/teams/"+teamID+"/membership", invitee, nil)
	expectStatus(t, rec, http.StatusOK)
	if left := decode[[]domain.Team](t, rec); len(left) != 0 {
		t.Fatalf("expected no teams after leaving, got %+v", left)
	}
	if got := sqlitetest.CurrentTeam(t, env.store, "member-1"); got != "" {
		t.Fatalf("expected current team cleared, got %q", got)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+teamID, invitee, nil), http.StatusNotFound)
	rec = env.do(t, http.MethodDelete, "/teams/"+teamID, owner, nil)
	expectStatus(t, rec, http.StatusOK)
	if remaining := decode[[]domain.Team](t, rec); len(remaining) != 0 {
		t.Fatalf("expected no teams after delete, got %+v", remaining)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/teams/"+teamID, owner, nil), http.StatusNotFound)
}

func TestRevokeAndDeclineInvitations(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "o@x.com"})
	inviteeUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "i@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")
	owner := tokenFor(t, ownerUser.ID, ownerUser.Email)
	invitee := tokenFor(t, inviteeUser.ID, inviteeUser.Email)

	rec := env.do(t, http.MethodPost, "/teams/"+tm.ID+"/invitations", owner, map[string]string{"email": "i@x.com"})
	expectStatus(t, rec, http.StatusCreated)
	first := decode[domain.TeamDetail](t, rec).Invitations[0].ID

	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID+"/invitations/"+first, invitee, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID+"/invitations/"+first, owner, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID+"/invitations/"+first, owner, nil), http.StatusNoContent)

	rec = env.do(t, http.MethodPost, "/teams/"+tm.ID+"/invitations", owner, map[string]string{"email": "i@x.com"})
	expectStatus(t, rec, http.StatusCreated)
	second := decode[domain.TeamDetail](t, rec).Invitations[0].ID

	expectStatus(t, env.do(t, http.MethodDelete, "/invitations/"+second, owner, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodDelete, "/invitations/"+second, invitee, nil), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/invitations/"+second+"/accept", invitee, nil), http.StatusNotFound)
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/teams", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1", "u1@x.com"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRateLimitRejectsWithHeaders(t *testing.T) {
	limiter := newRateLimiterStub()
	reset := time.Unix(1_950_000_000, 0)
	limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit, windowEnd: reset}
	}
	env := newTestEnv(t, limiter, nil)

	rec := env.do(t, http.MethodGet, "/teams", tokenFor(t, "u1", "u1@x.com"), nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}
	calls := limiter.snapshot()
	if len(calls) != 1 || calls[0].key != "read:user:u1" || calls[0].limit != DefaultLimits().Read {
		t.Fatalf("unexpected limiter calls %+v", calls)
	}
}

func TestTeamInvitationBudget(t *testing.T) {
	limits := DefaultLimits()
	limits.TeamInvites = 2
	env := newTestEnvWithLimits(t, NewMemoryRateLimiter(), nil, &limits)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "o@x.com"})
	other := sqlitetest.CreateUser(t, env.store, domain.User{Email: "p@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")
	otherTeam := sqlitetest.CreateTeam(t, env.store, other.ID, "Globex")
	owner := tokenFor(t, ownerUser.ID, ownerUser.Email)
	path := "/teams/" + tm.ID + "/invitations"

	// Strangers are turned away without spending the team's budget.
	stranger := tokenFor(t, "stranger-1", "s@x.com")
	for i := 0; i < 3; i++ {
		expectStatus(t, env.do(t, http.MethodPost, path, stranger, map[string]string{"email": "z@x.com"}), http.StatusNotFound)
	}

	expectStatus(t, env.do(t, http.MethodPost, path, owner, map[string]string{"email": "a@x.com"}), http.StatusCreated)
	rec := env.do(t, http.MethodPost, path, owner, map[string]string{"email": "b@x.com"})
	expectStatus(t, rec, http.StatusCreated)
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Fatalf("expected team budget headers, got limit %q", got)
	}
	rec = env.do(t, http.MethodPost, path, owner, map[string]string{"email": "c@x.com"})
	expectStatus(t, rec, http.StatusTooManyRequests)
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}

	// The budget belongs to the team, not the owner's other teams.
	otherToken := tokenFor(t, other.ID, other.Email)
	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+otherTeam.ID+"/invitations", otherToken, map[string]string{"email": "c@x.com"}), http.StatusCreated)

	detail := decode[domain.TeamDetail](t, env.do(t, http.MethodGet, "/teams/"+tm.ID, owner, nil))
	if len(detail.Invitations) != 2 {
		t.Fatalf("expected two invitations, got %d", len(detail.Invitations))
	}
}

func TestInvitationRouteChargesUserThenTeam(t *testing.T) {
	limiter := newRateLimiterStub()
	env := newTestEnv(t, limiter, nil)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{ID: "owner-1", Email: "o@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")

	rec := env.do(t, http.MethodPost, "/teams/"+tm.ID+"/invitations", tokenFor(t, ownerUser.ID, ownerUser.Email), map[string]string{"email": "a@x.com"})
	expectStatus(t, rec, http.StatusCreated)
	calls := limiter.snapshot()
	defaults := DefaultLimits()
	if len(calls) != 2 {
		t.Fatalf("expected two budgets charged, got %+v", calls)
	}
	if calls[0].key != "write:user:owner-1" || calls[0].limit != defaults.Write || calls[0].window != defaults.Window {
		t.Fatalf("unexpected user budget %+v", calls[0])
	}
	if calls[1].key != "invite:team:"+tm.ID || calls[1].limit != defaults.TeamInvites || calls[1].window != defaults.TeamInviteWindow {
		t.Fatalf("unexpected team budget %+v", calls[1])
	}
}

func TestMetricsExposeRequestCounters(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodGet, "/healthz", "", nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `teamhub_api_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`) {
		t.Fatalf("request counter missing from metrics output:\n%s", rec.Body.String())
	}
}

func waitForSubscribers(t *testing.T, hub *ws.Hub, teamID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(teamID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", want, hub.Subscribers(teamID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTeamEventsSSE(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "o@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")
	server := httptest.NewServer(env.router)
	defer server.Close()

	stranger := tokenFor(t, "stranger-1", "s@x.com")
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/teams/"+tm.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+stranger)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stranger request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ = http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/teams/"+tm.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ownerUser.ID, ownerUser.Email))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	waitForSubscribers(t, env.hub, tm.ID, 1)

	if err := env.hub.Notify(context.Background(), events.New(domain.EventTeamRenamed, tm.ID, ownerUser.ID, "")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if line != "event: team\n" {
		t.Fatalf("unexpected event line %q", line)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	var evt domain.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Type != domain.EventTeamRenamed || evt.TeamID != tm.ID {
		t.Fatalf("unexpected event %+v", evt)
	}

	cancel()
	waitForSubscribers(t, env.hub, tm.ID, 0)
}

func TestTeamEventsWebsocketClosesOnDelete(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "o@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/teams/" + tm.ID
	header := http.Header{"Authorization": []string{"Bearer " + tokenFor(t, ownerUser.ID, ownerUser.Email)}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, env.hub, tm.ID, 1)

	owner := tokenFor(t, ownerUser.ID, ownerUser.Email)
	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID, owner, nil), http.StatusOK)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var evt domain.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Type != domain.EventTeamDeleted {
		t.Fatalf("expected team.deleted, got %s", evt.Type)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after delete, got %v", err)
	}
}

func TestTeamEventsEndForRemovedAndLeavingMembers(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ownerUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "o@x.com"})
	removedUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "r@x.com"})
	leavingUser := sqlitetest.CreateUser(t, env.store, domain.User{Email: "l@x.com"})
	tm := sqlitetest.CreateTeam(t, env.store, ownerUser.ID, "Acme")
	sqlitetest.AddMember(t, env.store, tm.ID, removedUser, "")
	sqlitetest.AddMember(t, env.store, tm.ID, leavingUser, "")
	server := httptest.NewServer(env.router)
	defer server.Close()
	owner := tokenFor(t, ownerUser.ID, ownerUser.Email)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/teams/"+tm.ID+"/events", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, removedUser.ID, removedUser.Email))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/teams/" + tm.ID
	header := http.Header{"Authorization": []string{"Bearer " + tokenFor(t, leavingUser.ID, leavingUser.Email)}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, env.hub, tm.ID, 2)

	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID+"/members/"+removedUser.ID, owner, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/teams/"+tm.ID+"/invitations", owner, map[string]string{"email": "new@x.com"}), http.StatusCreated)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("expected the removed member's stream to end, got %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("removed member received events: %q", body)
	}

	// The leaving member still sees the invitation sent while they belonged.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var evt domain.Event
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Type != domain.EventMemberRemoved {
		t.Fatalf("expected member.removed first, got %s (%v)", payload, err)
	}
	if _, payload, err = conn.ReadMessage(); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Type != domain.EventInvitationSent {
		t.Fatalf("expected invitation.sent, got %s (%v)", payload, err)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/teams/"+tm.ID+"/membership", tokenFor(t, leavingUser.ID, leavingUser.Email), nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPatch, "/teams/"+tm.ID, owner, map[string]string{"name": "Acme Corp"}), http.StatusOK)
	if _, payload, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected stream closed after leaving, got %s (%v)", payload, err)
	}
	waitForSubscribers(t, env.hub, tm.ID, 0)
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(_ context.Context, key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}

func (rl *rateLimiterStub) snapshot() []rateLimitCall {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return append([]rateLimitCall(nil), rl.calls...)
}
