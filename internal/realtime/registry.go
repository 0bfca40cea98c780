package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"notification-hub/internal/models"
)

// Transport is one duplex channel to a client. The registry tracks membership
// only; the transport layer owns its lifecycle.
type Transport interface {
	// Send writes one frame. Implementations serialize concurrent calls and
	// give up when ctx is done.
	Send(ctx context.Context, data []byte) error
	Close() error
}

// State of a connection. Transitions only move forward.
type State string

const (
	StateConnected     State = "CONNECTED"
	StateAuthenticated State = "AUTHENTICATED"
	StateClosed        State = "CLOSED"
)

// Connection is a point-in-time copy of a registry entry.
type Connection struct {
	ID           uuid.UUID
	Transport    Transport
	State        State
	UserID       string
	Role         string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Authenticated reports whether the connection is individually targetable.
func (c Connection) Authenticated() bool {
	return c.State == StateAuthenticated && c.UserID != ""
}

// Registry owns the set of live connections plus secondary indexes by user id and role.
// Every method is safe for concurrent use. Readers get copies, never live entries.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Connection
	byUser map[string]map[uuid.UUID]struct{}
	byRole map[string]map[uuid.UUID]struct{}
	clock  clockwork.Clock
	log    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock, log zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Connection),
		byUser: make(map[string]map[uuid.UUID]struct{}),
		byRole: make(map[string]map[uuid.UUID]struct{}),
		clock:  clock,
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// Register tracks a newly accepted transport in state CONNECTED.
func (r *Registry) Register(t Transport) uuid.UUID {
	now := r.clock.Now()
	id := uuid.New()

	r.mu.Lock()
	r.conns[id] = &Connection{
		ID:           id,
		Transport:    t,
		State:        StateConnected,
		ConnectedAt:  now,
		LastActivity: now,
	}
	total := len(r.conns)
	r.mu.Unlock()

	r.log.Debug().Str("conn_id", id.String()).Int("total", total).Msg("connection registered")
	return id
}

// Unregister removes id from the registry and its indexes.
// Unknown ids are a no-op. It reports whether an entry was removed.
func (r *Registry) Unregister(id uuid.UUID) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.unindexLocked(c)
	c.State = StateClosed
	delete(r.conns, id)
	total := len(r.conns)
	r.mu.Unlock()

	r.log.Debug().Str("conn_id", id.String()).Int("total", total).Msg("connection unregistered")
	return true
}

// Authenticate binds userID and role to the connection, replacing any identity
// bound earlier. The connection moves to (or stays in) AUTHENTICATED.
func (r *Registry) Authenticate(id uuid.UUID, userID, role string) error {
	if userID == "" {
		return fmt.Errorf("authenticate %s: empty user id", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok || c.State == StateClosed {
		return fmt.Errorf("authenticate %s: %w", id, ErrUnknownConnection)
	}

	r.unindexLocked(c)
	c.UserID = userID
	c.Role = role
	c.State = StateAuthenticated
	c.LastActivity = r.clock.Now()
	addIndex(r.byUser, userID, id)
	if role != "" {
		addIndex(r.byRole, role, id)
	}
	return nil
}

// Touch refreshes the connection's last activity timestamp.
func (r *Registry) Touch(id uuid.UUID) error {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	c.LastActivity = now
	return nil
}

// Get returns a copy of one entry.
func (r *Registry) Get(id uuid.UUID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Snapshot returns a copy of every live connection. The lock is held only for the copy.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, *c)
	}
	return out
}

// Select returns a copy of the connections sel matches right now.
// Unknown users or roles yield an empty slice.
func (r *Registry) Select(sel models.Selector) ([]Connection, error) {
	switch sel.Type {
	case models.TargetEveryone:
		return r.Snapshot(), nil
	case models.TargetUser:
		return r.selectIndexed(r.byUser, sel.Value), nil
	case models.TargetRole:
		return r.selectIndexed(r.byRole, sel.Value), nil
	default:
		return nil, &PublishValidationError{Field: "target.type", Reason: fmt.Sprintf("unsupported selector %q", sel.Type)}
	}
}

func (r *Registry) selectIndexed(index map[string]map[uuid.UUID]struct{}, key string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := index[key]
	out := make([]Connection, 0, len(ids))
	for id := range ids {
		if c, ok := r.conns[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Metrics returns live and authenticated connection counts.
func (r *Registry) Metrics() models.ConnectionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticated := 0
	for _, c := range r.conns {
		if c.State == StateAuthenticated {
			authenticated++
		}
	}
	return models.ConnectionMetrics{
		ActiveConnections:        len(r.conns),
		AuthenticatedConnections: authenticated,
	}
}

// Drain unregisters every connection and closes its transport. Used at shutdown.
// Drain is safe to call more than once.
func (r *Registry) Drain() int {
	r.mu.Lock()
	victims := make([]Transport, 0, len(r.conns))
	for id, c := range r.conns {
		c.State = StateClosed
		victims = append(victims, c.Transport)
		delete(r.conns, id)
	}
	r.byUser = make(map[string]map[uuid.UUID]struct{})
	r.byRole = make(map[string]map[uuid.UUID]struct{})
	r.mu.Unlock()

	for _, t := range victims {
		if t != nil {
			_ = t.Close()
		}
	}
	r.log.Info().Int("closed", len(victims)).Msg("registry drained")
	return len(victims)
}

func (r *Registry) unindexLocked(c *Connection) {
	if c.UserID != "" {
		removeIndex(r.byUser, c.UserID, c.ID)
	}
	if c.Role != "" {
		removeIndex(r.byRole, c.Role, c.ID)
	}
}

func addIndex(index map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	set, ok := index[key]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

// removeIndex drops id from key's set; empty sets are deleted.
func removeIndex(index map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	if set, ok := index[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}
