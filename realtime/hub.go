// Package realtime fans board changes out to websocket subscribers of a project.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

// Event types published by the services
const (
	ProjectUpdated = "project.updated"
	ProjectDeleted = "project.deleted"
	MemberAdded    = "member.added"
	MemberRemoved  = "member.removed"
	ListCreated    = "list.created"
	ListUpdated    = "list.updated"
	ListDeleted    = "list.deleted"
	TaskCreated    = "task.created"
	TaskUpdated    = "task.updated"
	TaskDeleted    = "task.deleted"
)

// Event is one change on a project board
type Event struct {
	Type      string      `json:"type"`
	ProjectID uint        `json:"project_id"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`

	// Revoke lists users whose subscriptions end once this event is delivered
	Revoke []uint `json:"-"`
}

// Publisher is what the services need from the hub.
type Publisher interface {
	Publish(Event)
}

type subscriber struct {
	userID uint
	ch     chan Event
}

type Hub struct {
	mu     sync.Mutex
	subs   map[uint]map[string]*subscriber
	logger *logrus.Entry
}

func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{
		subs:   make(map[uint]map[string]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a listener for one project's events on behalf of userID.
// The channel is closed when the user loses access or the project is deleted.
func (h *Hub) Subscribe(projectID, userID uint) (string, <-chan Event) {
	id := uuid.NewString()
	sub := &subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[string]*subscriber)
	}
	h.subs[projectID][id] = sub
	return id, sub.ch
}

// Unsubscribe removes the listener and closes its channel.
func (h *Hub) Unsubscribe(projectID uint, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(projectID, id)
}

// remove must be called with mu held.
func (h *Hub) remove(projectID uint, id string) {
	subs := h.subs[projectID]
	sub, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.subs, projectID)
	}
}

// Publish delivers ev to every subscriber of its project. It never blocks;
// a subscriber whose buffer is full misses the event. Afterwards the
// subscriptions of revoked users are closed, and all of them when the
// project itself was deleted.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs[ev.ProjectID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.WithFields(logrus.Fields{
				"project_id":    ev.ProjectID,
				"subscriber_id": id,
				"event":         ev.Type,
			}).Warn("Dropping board event for slow subscriber")
		}
	}

	for id, sub := range h.subs[ev.ProjectID] {
		if ev.Type == ProjectDeleted || revoked(ev.Revoke, sub.userID) {
			h.remove(ev.ProjectID, id)
			h.logger.WithFields(logrus.Fields{
				"project_id":    ev.ProjectID,
				"user_id":       sub.userID,
				"subscriber_id": id,
			}).Info("Closed board subscription")
		}
	}
}

func revoked(users []uint, userID uint) bool {
	for _, u := range users {
		if u == userID {
			return true
		}
	}
	return false
}

// Subscribers returns the number of listeners on a project.
func (h *Hub) Subscribers(projectID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}
