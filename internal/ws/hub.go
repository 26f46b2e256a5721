// Package ws fans team events out to live websocket and SSE subscribers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/splax/teamhub/internal/domain"
)

// outboxSize bounds the events queued for one subscriber. A subscriber that
// falls this far behind is dropped.
const outboxSize = 32

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions by team ID. Each subscription belongs to
// a user so the hub can cut off users who leave or are removed from a team.
type Hub struct {
	teams     map[string]map[Subscriber]*outbox
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopOnce  sync.Once
}

// outbox queues events for one subscriber; a dedicated writer drains it so a
// slow peer never blocks the hub loop.
type outbox struct {
	userID string
	queue  chan []byte
}

type message struct {
	teamID  string
	payload []byte
	// closeAfter drops every subscriber once the payload is queued.
	closeAfter bool
	// evictUser drops this user's subscriptions before the payload is queued.
	evictUser string
}

type subscription struct {
	teamID string
	userID string
	client Subscriber
}

type countRequest struct {
	teamID string
	reply  chan int
}

// NewHub creates a Hub and starts its loop.
func NewHub() *Hub {
	h := &Hub{
		teams:     make(map[string]map[Subscriber]*outbox),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for teamID, subs := range h.teams {
				for c, box := range subs {
					close(box.queue)
					delete(subs, c)
				}
				delete(h.teams, teamID)
			}
			return
		case sub := <-h.register:
			h.add(sub)
		case sub := <-h.unreg:
			h.remove(sub.teamID, sub.client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		case req := <-h.count:
			req.reply <- len(h.teams[req.teamID])
		}
	}
}

func (h *Hub) add(sub subscription) {
	subs, ok := h.teams[sub.teamID]
	if !ok {
		subs = make(map[Subscriber]*outbox)
		h.teams[sub.teamID] = subs
	}
	if _, exists := subs[sub.client]; exists {
		return
	}
	box := &outbox{userID: sub.userID, queue: make(chan []byte, outboxSize)}
	subs[sub.client] = box
	go h.drain(sub.teamID, sub.client, box)
}

// remove closes the subscriber's outbox; its writer flushes what is queued
// and then closes the client.
func (h *Hub) remove(teamID string, client Subscriber) {
	subs, ok := h.teams[teamID]
	if !ok {
		return
	}
	if box, ok := subs[client]; ok {
		close(box.queue)
		delete(subs, client)
	}
	if len(subs) == 0 {
		delete(h.teams, teamID)
	}
}

func (h *Hub) deliver(msg message) {
	subs, ok := h.teams[msg.teamID]
	if !ok {
		return
	}
	if msg.evictUser != "" {
		for c, box := range subs {
			if box.userID == msg.evictUser {
				h.remove(msg.teamID, c)
			}
		}
	}
	for c, box := range subs {
		select {
		case box.queue <- msg.payload:
			if msg.closeAfter {
				h.remove(msg.teamID, c)
			}
		default:
			h.remove(msg.teamID, c)
		}
	}
}

// drain writes queued payloads until the outbox is closed or a write fails.
func (h *Hub) drain(teamID string, client Subscriber, box *outbox) {
	defer client.Close()
	for payload := range box.queue {
		if err := client.Send(payload); err != nil {
			h.Unregister(teamID, client)
			return
		}
	}
}

// Register adds userID's client to a team stream.
func (h *Hub) Register(teamID, userID string, client Subscriber) {
	select {
	case h.register <- subscription{teamID: teamID, userID: userID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(teamID string, client Subscriber) {
	select {
	case h.unreg <- subscription{teamID: teamID, client: client}:
	case <-h.done:
	}
}

// Subscribers reports how many clients follow a team.
func (h *Hub) Subscribers(teamID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{teamID: teamID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Notify broadcasts the event to the team's subscribers. A deleted team's
// subscribers are disconnected after the final event, and a member who left
// or was removed is disconnected without seeing it.
func (h *Hub) Notify(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message{teamID: event.TeamID, payload: payload}
	switch event.Type {
	case domain.EventTeamDeleted:
		msg.closeAfter = true
	case domain.EventMemberRemoved, domain.EventMemberLeft:
		msg.evictUser = event.SubjectID
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes every subscriber and ends the loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
