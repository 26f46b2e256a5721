package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/splax/teamhub/internal/ws"
)

// authorizeFeed checks membership before a stream is opened and returns the
// team and the subscribing user.
func (r *Router) authorizeFeed(w http.ResponseWriter, req *http.Request) (string, string, bool) {
	actor, ok := r.actor(w, req)
	if !ok {
		return "", "", false
	}
	teamID := req.PathValue("teamID")
	if _, err := r.guard.RequireMembership(req.Context(), actor.ID, teamID); err != nil {
		r.writeAppError(w, req, err)
		return "", "", false
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return "", "", false
	}
	return teamID, actor.ID, true
}

// subscribe registers client and re-checks membership. A removal that
// committed before registration published its eviction to no one, so the
// second check closes that gap.
func (r *Router) subscribe(ctx context.Context, teamID, userID string, client ws.Subscriber) bool {
	r.hub.Register(teamID, userID, client)
	if _, err := r.guard.RequireMembership(ctx, userID, teamID); err != nil {
		r.logger.Info("feed closed, membership gone", "team_id", teamID, "user_id", userID)
		r.hub.Unregister(teamID, client)
		return false
	}
	return true
}

func (r *Router) handleTeamEventsWS(w http.ResponseWriter, req *http.Request) {
	teamID, userID, ok := r.authorizeFeed(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err, "team_id", teamID)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if !r.subscribe(req.Context(), teamID, userID, client) {
		client.Close()
		return
	}
	go func() {
		defer func() {
			r.hub.Unregister(teamID, client)
			client.Close()
		}()
		client.Wait()
	}()
}

func (r *Router) handleTeamEventsSSE(w http.ResponseWriter, req *http.Request) {
	teamID, userID, ok := r.authorizeFeed(w, req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	defer client.Close()
	if !r.subscribe(req.Context(), teamID, userID, client) {
		return
	}
	defer r.hub.Unregister(teamID, client)

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
