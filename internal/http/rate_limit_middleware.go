package httpx

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// Budget classes. Each class is counted separately, so a burst of reads never
// eats into a user's write budget.
const (
	classRead       = "read"
	classWrite      = "write"
	classRealtime   = "realtime"
	classTeamInvite = "invite"
)

// Limits sets request budgets. Read, Write and Realtime are charged per
// user; TeamInvites is charged per team on invitation sends. A zero count
// disables that budget.
type Limits struct {
	Read             int
	Write            int
	Realtime         int
	TeamInvites      int
	Window           time.Duration
	RealtimeWindow   time.Duration
	TeamInviteWindow time.Duration
}

// DefaultLimits returns the budgets used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Read:             120,
		Write:            60,
		Realtime:         30,
		TeamInvites:      20,
		Window:           time.Minute,
		RealtimeWindow:   30 * time.Second,
		TeamInviteWindow: time.Hour,
	}
}

// RateLimiter counts hits per bucket within fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, bucket string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// budget is one limit a route charges: limit hits per window for whoever
// bucket names. An empty bucket skips the budget for that request.
type budget struct {
	class  string
	limit  int
	window time.Duration
	bucket func(*http.Request) string
}

func (r *Router) readBudget() budget {
	return budget{class: classRead, limit: r.limits.Read, window: r.limits.Window, bucket: userBucket}
}

func (r *Router) writeBudget() budget {
	return budget{class: classWrite, limit: r.limits.Write, window: r.limits.Window, bucket: userBucket}
}

func (r *Router) realtimeBudget() budget {
	return budget{class: classRealtime, limit: r.limits.Realtime, window: r.limits.RealtimeWindow, bucket: userBucket}
}

func (r *Router) teamInviteBudget() budget {
	return budget{class: classTeamInvite, limit: r.limits.TeamInvites, window: r.limits.TeamInviteWindow, bucket: r.ownedTeamBucket}
}

// withBudgets charges each budget in order and rejects the request on the
// first one exhausted. Rate headers describe the last budget charged.
func (r *Router) withBudgets(next http.HandlerFunc, budgets ...budget) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		for _, b := range budgets {
			if b.limit <= 0 || r.limiter == nil {
				continue
			}
			bucket := b.bucket(req)
			if bucket == "" {
				continue
			}
			decision := r.limiter.Allow(req.Context(), b.class+":"+bucket, b.limit, b.window)
			r.applyRateHeaders(w, b.limit, decision)
			if !decision.allowed {
				r.recordRateLimitHit(b.class, bucketKind(bucket))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, req)
	}
}

// userBucket charges the authenticated user, or the client address when the
// actor is unknown.
func userBucket(req *http.Request) string {
	if user, ok := actorFromContext(req.Context()); ok && user.ID != "" {
		return "user:" + user.ID
	}
	return ipBucket(req)
}

// ownedTeamBucket charges the team named in the path, but only for its owner.
// Anyone else is turned away by the invitation workflow and must not be able
// to drain another team's budget.
func (r *Router) ownedTeamBucket(req *http.Request) string {
	user, ok := actorFromContext(req.Context())
	if !ok {
		return ""
	}
	teamID := req.PathValue("teamID")
	if _, err := r.guard.RequireOwner(req.Context(), user.ID, teamID); err != nil {
		return ""
	}
	return "team:" + teamID
}

func ipBucket(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// bucketKind keeps metric cardinality low: user:42 is reported as user.
func bucketKind(bucket string) string {
	if kind, _, ok := strings.Cut(bucket, ":"); ok && kind != "" {
		return kind
	}
	if bucket == "" {
		return "unknown"
	}
	return bucket
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type rateWindow struct {
	hits int
	end  time.Time
}

// NewMemoryRateLimiter returns a limiter local to this process.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]rateWindow),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(_ context.Context, bucket string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[bucket]
	if !ok || now.After(w.end) {
		w = rateWindow{end: now.Add(window)}
	}
	if w.hits >= limit {
		return rateDecision{allowed: false, count: w.hits, windowEnd: w.end}
	}
	w.hits++
	rl.windows[bucket] = w
	return rateDecision{allowed: true, count: w.hits, windowEnd: w.end}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for bucket, w := range rl.windows {
		if now.After(w.end) {
			delete(rl.windows, bucket)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}
