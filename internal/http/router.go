package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/teamhub/internal/service/access"
	"github.com/splax/teamhub/internal/service/auth"
	"github.com/splax/teamhub/internal/service/invitation"
	"github.com/splax/teamhub/internal/service/membership"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/ws"
)

// Deps lists what the router dispatches to.
type Deps struct {
	Auth        auth.Service
	Teams       team.Service
	Members     membership.Service
	Invitations invitation.Service
	// Guard checks feed membership and scopes per-team budgets to the owner.
	Guard   access.Guard
	Hub     *ws.Hub
	Limiter RateLimiter
	// Limits overrides DefaultLimits.
	Limits *Limits
	// Health probes the backing store; nil reports healthy.
	Health func(context.Context) error
	// Registerer receives the HTTP collectors; nil uses the default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	auth        auth.Service
	teams       team.Service
	members     membership.Service
	invitations invitation.Service
	guard       access.Guard
	hub         *ws.Hub
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	limits      Limits
	health      func(context.Context) error
	heartbeat   time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	registerer         prometheus.Registerer
	gatherer           prometheus.Gatherer
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      deps.Logger,
		auth:        deps.Auth,
		teams:       deps.Teams,
		members:     deps.Members,
		invitations: deps.Invitations,
		guard:       deps.Guard,
		hub:         deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    deps.Limiter,
		limits:     DefaultLimits(),
		health:     deps.Health,
		heartbeat:  sseHeartbeat,
		registerer: deps.Registerer,
		gatherer:   deps.Gatherer,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if deps.Limits != nil {
		r.limits = *deps.Limits
	}
	if r.registerer == nil {
		r.registerer = prometheus.DefaultRegisterer
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("GET /roles", r.audit(r.read(r.handleRoles)))

	r.mux.HandleFunc("GET /teams", r.audit(r.read(r.handleListTeams)))
	r.mux.HandleFunc("POST /teams", r.audit(r.write(r.handleCreateTeam)))
	r.mux.HandleFunc("GET /teams/{teamID}", r.audit(r.read(r.handleGetTeam)))
	r.mux.HandleFunc("PATCH /teams/{teamID}", r.audit(r.write(r.handleRenameTeam)))
	r.mux.HandleFunc("DELETE /teams/{teamID}", r.audit(r.write(r.handleDeleteTeam)))
	r.mux.HandleFunc("POST /teams/{teamID}/switch", r.audit(r.write(r.handleSwitchTeam)))
	r.mux.HandleFunc("POST /teams/{teamID}/invitations", r.audit(r.invite(r.handleSendInvitation)))
	r.mux.HandleFunc("DELETE /teams/{teamID}/invitations/{invitationID}", r.audit(r.write(r.handleRevokeInvitation)))
	r.mux.HandleFunc("PUT /teams/{teamID}/members/{userID}", r.audit(r.write(r.handleUpdateMemberRole)))
	r.mux.HandleFunc("DELETE /teams/{teamID}/members/{userID}", r.audit(r.write(r.handleRemoveMember)))
	r.mux.HandleFunc("DELETE /teams/{teamID}/membership", r.audit(r.write(r.handleLeaveTeam)))
	r.mux.HandleFunc("GET /teams/{teamID}/events", r.audit(r.realtime(r.handleTeamEventsSSE)))

	r.mux.HandleFunc("GET /invitations", r.audit(r.read(r.handleListInvitations)))
	r.mux.HandleFunc("POST /invitations/{invitationID}/accept", r.audit(r.write(r.handleAcceptInvitation)))
	r.mux.HandleFunc("DELETE /invitations/{invitationID}", r.audit(r.write(r.handleDeclineInvitation)))

	r.mux.HandleFunc("GET /ws/teams/{teamID}", r.audit(r.realtime(r.handleTeamEventsWS)))
}

func (r *Router) read(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withBudgets(next, r.readBudget()))
}

func (r *Router) write(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withBudgets(next, r.writeBudget()))
}

// invite charges the sender's write budget and then the team's invitation budget.
func (r *Router) invite(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withBudgets(next, r.writeBudget(), r.teamInviteBudget()))
}

func (r *Router) realtime(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withBudgets(next, r.realtimeBudget()))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if r.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	if err := r.health(ctx); err != nil {
		r.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a bounded JSON body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// audit logs every request and records request metrics.
func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		route := req.Pattern
		if route == "" {
			route = req.URL.Path
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		ctx := req.Context()
		if recorder.ctx != nil {
			ctx = recorder.ctx
		}
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"route", route,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if user, ok := actorFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", user.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := max(limit-decision.count, 0)
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}
