// internal/ws/registry.go
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultGracePeriod is how long a fully-disconnected user keeps their
	// lobby seats before being treated as having left.
	DefaultGracePeriod = 2 * time.Minute

	outBufferSize = 64
)

// Conn is one live WebSocket connection's process-local state. A user may
// hold several (multi-tab); subscription state is per connection.
type Conn struct {
	ID       uuid.UUID
	UserID   uuid.UUID // uuid.Nil until identify
	Username string

	mu     sync.Mutex
	closed bool
	out    chan []byte

	cancel context.CancelFunc
}

// send pushes a message onto the connection's outbound channel without
// blocking. A closed or backed-up connection drops the message; delivery
// is best-effort and must never stall a publisher.
func (c *Conn) send(data []byte, log *logrus.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
		log.Warnf("connection %s outbound buffer full, dropping message", c.ID)
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Registry tracks live connections, their channel subscriptions, and the
// reconnect-grace timers armed when a user's last connection closes.
type Registry struct {
	mu      sync.Mutex
	conns   map[uuid.UUID]*Conn
	byUser  map[uuid.UUID]map[uuid.UUID]*Conn
	subs    map[string]map[uuid.UUID]*Conn // channel -> connID -> conn
	pending map[uuid.UUID]*time.Timer

	grace time.Duration
	log   *logrus.Logger

	// onDeparted runs when a grace timer expires with no reconnect.
	// Wired to the lobby manager's leave-everything path.
	onDeparted func(ctx context.Context, userID uuid.UUID)
}

func NewRegistry(grace time.Duration, log *logrus.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		conns:   make(map[uuid.UUID]*Conn),
		byUser:  make(map[uuid.UUID]map[uuid.UUID]*Conn),
		subs:    make(map[string]map[uuid.UUID]*Conn),
		pending: make(map[uuid.UUID]*time.Timer),
		grace:   grace,
		log:     log,
	}
}

// SetOnDeparted installs the expiry callback. Must be called before
// connections are accepted.
func (r *Registry) SetOnDeparted(fn func(ctx context.Context, userID uuid.UUID)) {
	r.onDeparted = fn
}

// Register creates the process-local state for a freshly accepted socket.
func (r *Registry) Register(cancel context.CancelFunc) *Conn {
	c := &Conn{
		ID:     uuid.New(),
		out:    make(chan []byte, outBufferSize),
		cancel: cancel,
	}
	r.mu.Lock()
	r.conns[c.ID] = c
	r.mu.Unlock()
	return c
}

// Identify binds a connection to a user and disarms any pending-disconnect
// timer for that user.
func (r *Registry) Identify(c *Conn, userID uuid.UUID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.UserID != uuid.Nil && c.UserID != userID {
		r.detachUserLocked(c)
	}
	c.UserID = userID
	c.Username = username

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[uuid.UUID]*Conn)
	}
	r.byUser[userID][c.ID] = c

	if t, ok := r.pending[userID]; ok {
		t.Stop()
		delete(r.pending, userID)
		r.log.Infof("user %s reconnected inside grace window", userID)
	}
}

// Subscribe adds the connection to a broadcast channel.
func (r *Registry) Subscribe(c *Conn, channel string) {
	if channel == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[channel] == nil {
		r.subs[channel] = make(map[uuid.UUID]*Conn)
	}
	r.subs[channel][c.ID] = c
}

// Unsubscribe removes the connection from a broadcast channel.
func (r *Registry) Unsubscribe(c *Conn, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subs[channel]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.subs, channel)
		}
	}
}

// Unregister drops a closed connection. If it was the user's last live
// connection, the reconnect-grace timer is armed; expiry without a new
// connection triggers onDeparted.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c.ID)
	for channel, set := range r.subs {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.subs, channel)
		}
	}

	userID := c.UserID
	if userID != uuid.Nil {
		r.detachUserLocked(c)
		if len(r.byUser[userID]) == 0 {
			r.armGraceLocked(userID)
		}
	}
	r.mu.Unlock()

	c.close()
}

// detachUserLocked removes the conn from the per-user index. Lock held.
func (r *Registry) detachUserLocked(c *Conn) {
	if set, ok := r.byUser[c.UserID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
}

// armGraceLocked starts (or restarts) the user's grace timer. Lock held.
func (r *Registry) armGraceLocked(userID uuid.UUID) {
	if t, ok := r.pending[userID]; ok {
		t.Stop()
	}
	r.log.Infof("user %s fully disconnected, grace timer armed for %s", userID, r.grace)
	r.pending[userID] = time.AfterFunc(r.grace, func() {
		r.expireGrace(userID)
	})
}

func (r *Registry) expireGrace(userID uuid.UUID) {
	r.mu.Lock()
	// A reconnect can race the firing timer. Re-check under the lock.
	if len(r.byUser[userID]) > 0 {
		delete(r.pending, userID)
		r.mu.Unlock()
		return
	}
	delete(r.pending, userID)
	fn := r.onDeparted
	r.mu.Unlock()

	r.log.Infof("grace period expired for user %s, treating as departed", userID)
	if fn != nil {
		fn(context.Background(), userID)
	}
}

// Broadcast delivers data to every connection subscribed to channel. The
// subscriber set is snapshotted under the lock and writes happen outside
// it, so slow consumers never hold up registration or other channels.
func (r *Registry) Broadcast(channel string, data []byte) {
	r.mu.Lock()
	set := r.subs[channel]
	targets := make([]*Conn, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.send(data, r.log)
	}
}

// ConnCountForUser reports live connections bound to the user.
func (r *Registry) ConnCountForUser(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}

// GracePending reports whether a disconnect timer is armed for the user.
func (r *Registry) GracePending(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[userID]
	return ok
}
