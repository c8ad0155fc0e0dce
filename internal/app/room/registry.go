package room

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
)

// Registry owns chat room existence, membership, history, and expiry.
//
// Like the session registry, it carries no locks: the relay hub is its sole
// owner and serializes every mutation through its event loop.
type Registry struct {
	// historyLimit caps the number of messages retained per room.
	historyLimit int

	// rooms maps room names to live Room records.
	rooms map[string]*Room

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRegistry constructs an empty room registry retaining at most historyLimit
// messages per room.
func NewRegistry(historyLimit int) *Registry {
	return &Registry{
		historyLimit: historyLimit,
		rooms:        make(map[string]*Room),
		logger:       logx.Logger().With().Str("component", "RoomRegistry").Logger(),
	}
}

// Ensure returns the room with the given name, creating an empty one if
// needed. The second result reports whether the room was created by this call.
func (r *Registry) Ensure(name string, now time.Time) (*Room, bool) {
	if rm, ok := r.rooms[name]; ok {
		return rm, false
	}

	rm := newRoom(name, now)
	r.rooms[name] = rm

	r.logger.Info().Str("room", name).Int("total_rooms", len(r.rooms)).Msg("Room created.")

	return rm, true
}

// Get returns the room with the given name, or nil if it does not exist.
func (r *Registry) Get(name string) *Room {
	return r.rooms[name]
}

// Join ensures the room exists and records the session as a member. Joining
// twice is a no-op. It returns the room (for history and user-list delivery)
// and whether the room was newly created.
func (r *Registry) Join(name, sessionID, username string, now time.Time) (*Room, bool) {
	rm, created := r.Ensure(name, now)

	rm.addMember(sessionID, username)
	rm.LastActivity = now

	return rm, created
}

// Rejoin re-adds a resumed session's membership to an existing room, covering
// the case where membership was dropped between disconnect and resume. Unlike
// Join it never creates the room; a vanished room stays vanished. Returns
// false when the room no longer exists.
func (r *Registry) Rejoin(name, sessionID, username string, now time.Time) bool {
	rm, ok := r.rooms[name]
	if !ok {
		return false
	}

	rm.addMember(sessionID, username)
	rm.LastActivity = now
	return true
}

// Leave removes the session's membership from the named room. A missing room
// or membership is a no-op, not an error. Returns true when membership
// actually changed.
func (r *Registry) Leave(name, sessionID string, now time.Time) bool {
	rm, ok := r.rooms[name]
	if !ok {
		return false
	}

	if !rm.removeMember(sessionID) {
		return false
	}

	rm.LastActivity = now
	return true
}

// Append adds msg to the named room's history, evicting the oldest entry past
// the history limit. If the room does not exist the message is dropped: the
// sender's room reference is stale, and per the relay's fire-and-forget
// semantics no error is surfaced. Returns the stored message and whether it
// was accepted.
func (r *Registry) Append(name string, msg Message, now time.Time) (Message, bool) {
	rm, ok := r.rooms[name]
	if !ok {
		r.logger.Debug().Str("room", name).Msg("Dropped message for nonexistent room.")
		return Message{}, false
	}

	rm.appendMessage(msg, r.historyLimit)
	rm.LastActivity = now

	return msg, true
}

// Names returns a sorted snapshot of all room names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	return len(r.rooms)
}

// Reap deletes every room with no members whose last activity is older than
// timeout, returning the deleted names.
func (r *Registry) Reap(now time.Time, timeout time.Duration) []string {
	var removed []string

	for name, rm := range r.rooms {
		if rm.MemberCount() > 0 {
			continue
		}
		if now.Sub(rm.LastActivity) > timeout {
			delete(r.rooms, name)
			removed = append(removed, name)
		}
	}

	if len(removed) > 0 {
		r.logger.Info().
			Int("reaped", len(removed)).
			Int("remaining", len(r.rooms)).
			Msg("Inactive empty rooms reaped.")
	}

	return removed
}
