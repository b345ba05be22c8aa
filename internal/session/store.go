package session

import (
	"sync"
	"time"

	"dramadesk/internal/domain"
)

// IdleTimeout is how long a wizard session may sit without activity before
// it is treated as expired.
const IdleTimeout = 10 * time.Minute

// Step identifies which field the wizard is currently collecting.
type Step int

const (
	AwaitingTitle Step = iota
	AwaitingImage
	AwaitingDescription
	AwaitingLink
)

func (s Step) String() string {
	switch s {
	case AwaitingTitle:
		return "awaiting_title"
	case AwaitingImage:
		return "awaiting_image"
	case AwaitingDescription:
		return "awaiting_description"
	case AwaitingLink:
		return "awaiting_link"
	default:
		return "unknown"
	}
}

// Session is the in-progress wizard state for one chat. It exists only
// while a wizard is running: completion, cancellation and expiry all remove
// it. At most one session exists per chat ID.
type Session struct {
	ChatID       int64
	Step         Step
	Draft        domain.Draft
	LastActivity time.Time
}

// Expired reports whether the session has been idle longer than IdleTimeout
// as of now. Callers must check this before consuming a stored session and
// must Delete it (and notify the user) when it returns true.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity) > IdleTimeout
}

// Store maps chat IDs to in-progress wizard sessions.
//
// State is process-local and ephemeral: a restart silently discards every
// in-progress wizard, which is acceptable because drafts are not durable.
// The store itself is safe for concurrent use, but it does not serialize
// whole read-modify-write cycles; the dispatcher's per-chat queues do that.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]Session)}
}

// Get returns the session for chatID, if any.
func (st *Store) Get(chatID int64) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	return s, ok
}

// Put stores the session for chatID, overwriting any existing one.
func (st *Store) Put(chatID int64, s Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[chatID] = s
}

// Delete removes the session for chatID. Deleting a missing session is a
// no-op.
func (st *Store) Delete(chatID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, chatID)
}
