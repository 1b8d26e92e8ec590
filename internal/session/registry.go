package session

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/webterm/internal/shared/id"
)

// Registry tracks live sessions.
type Registry struct {
	sessions sync.Map // map[id.SessionID]*Session
	count    atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers s. It reports false if a session with the same id exists.
func (r *Registry) Add(s *Session) bool {
	if _, loaded := r.sessions.LoadOrStore(s.ID, s); loaded {
		return false
	}
	r.count.Add(1)
	return true
}

// Remove unregisters the session with the given id.
func (r *Registry) Remove(sid id.SessionID) {
	if _, ok := r.sessions.LoadAndDelete(sid); ok {
		r.count.Add(-1)
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(sid id.SessionID) (*Session, bool) {
	value, ok := r.sessions.Load(sid)
	if !ok {
		return nil, false
	}
	return value.(*Session), true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// IDs returns the live session ids in creation order.
func (r *Registry) IDs() []id.SessionID {
	var ids []id.SessionID
	r.sessions.Range(func(key, _ any) bool {
		ids = append(ids, key.(id.SessionID))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
