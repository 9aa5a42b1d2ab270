// Package browser binds browser sessions, identified by a signed cookie,
// to query sessions.
package browser

import (
	"container/list"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/leapstack-labs/querypad/internal/session"
)

// CookieName is the name of the session cookie.
const CookieName = "querypad"

// DefaultLimit is the number of browser sessions kept before the least
// recently used one is dropped.
const DefaultLimit = 256

const idKey = "id"

// Factory creates the query session for a new browser.
type Factory func() *session.Session

// Registry maps browser ids to query sessions. It holds at most limit
// sessions; resolving one past the limit evicts the least recently used.
// An evicted browser gets a fresh session on its next request.
type Registry struct {
	store   sessions.Store
	factory Factory
	logger  *slog.Logger

	mu    sync.Mutex
	limit int
	byID  map[string]*list.Element
	order *list.List // front is most recently used
}

type entry struct {
	id      string
	session *session.Session
}

// NewRegistry creates a registry backed by a cookie store.
func NewRegistry(store sessions.Store, factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:   store,
		factory: factory,
		logger:  logger,
		limit:   DefaultLimit,
		byID:    make(map[string]*list.Element),
		order:   list.New(),
	}
}

// SetLimit changes the maximum number of sessions, evicting the least
// recently used ones if the registry is already over it. Values below one
// are ignored.
func (reg *Registry) SetLimit(n int) {
	if n < 1 {
		return
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.limit = n
	reg.evictLocked()
}

// Resolve returns the browser id and query session for r, creating both
// on first contact. It must run before anything is written to w.
func (reg *Registry) Resolve(w http.ResponseWriter, r *http.Request) (string, *session.Session) {
	// A cookie that fails to decode (rotated secret) yields a fresh session.
	cookie, _ := reg.store.Get(r, CookieName)

	id, _ := cookie.Values[idKey].(string)
	if id == "" {
		id = uuid.NewString()
		cookie.Values[idKey] = id
		if err := cookie.Save(r, w); err != nil {
			reg.logger.Warn("failed to save session cookie", "error", err)
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if el, ok := reg.byID[id]; ok {
		reg.order.MoveToFront(el)
		return id, el.Value.(*entry).session
	}

	s := reg.factory()
	reg.byID[id] = reg.order.PushFront(&entry{id: id, session: s})
	reg.logger.Debug("new browser session", "id", id)
	reg.evictLocked()
	return id, s
}

func (reg *Registry) evictLocked() {
	for reg.order.Len() > reg.limit {
		oldest := reg.order.Back()
		e := reg.order.Remove(oldest).(*entry)
		delete(reg.byID, e.id)
		reg.logger.Debug("evicted browser session", "id", e.id)
	}
}

// Lookup returns the session of a known browser id. It does not count as
// a use.
func (reg *Registry) Lookup(id string) (*session.Session, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	el, ok := reg.byID[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry).session, true
}

// Each calls fn for every session, outside the registry lock.
func (reg *Registry) Each(fn func(id string, s *session.Session)) {
	reg.mu.Lock()
	snapshot := make([]entry, 0, reg.order.Len())
	for el := reg.order.Front(); el != nil; el = el.Next() {
		snapshot = append(snapshot, *el.Value.(*entry))
	}
	reg.mu.Unlock()

	for _, e := range snapshot {
		fn(e.id, e.session)
	}
}

// Len returns the number of known sessions.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.order.Len()
}
