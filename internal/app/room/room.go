/*
Package room contains the room registry for the chat relay.

A room is a named channel holding a bounded message history and a membership
set. Membership is keyed by session so two sessions sharing a username stay
distinct presences; the client-visible user list is derived from it, with
duplicate usernames collapsed.
*/
package room

import "time"

// Message is an immutable chat message record. It is owned by exactly one
// room's history and copied into the outbound event stream, never mutated
// after creation.
type Message struct {
	Chat      string `json:"chat"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Room represents one named chat channel.
type Room struct {
	// Name is the unique identifier, also used as the display label.
	Name string

	// history holds the most recent messages, oldest first, capped by the
	// registry's history limit.
	history []Message

	// members maps session IDs to usernames for everyone currently joined.
	members map[string]string

	// order tracks session IDs in join order so the derived user list is stable.
	order []string

	// LastActivity is updated on join, leave, and message append.
	LastActivity time.Time
}

func newRoom(name string, now time.Time) *Room {
	return &Room{
		Name:         name,
		members:      make(map[string]string),
		LastActivity: now,
	}
}

// addMember records the session as joined. Re-joining is a no-op.
func (rm *Room) addMember(sessionID, username string) {
	if _, ok := rm.members[sessionID]; ok {
		return
	}
	rm.members[sessionID] = username
	rm.order = append(rm.order, sessionID)
}

// removeMember removes the session's membership. Returns false if it was not a member.
func (rm *Room) removeMember(sessionID string) bool {
	if _, ok := rm.members[sessionID]; !ok {
		return false
	}
	delete(rm.members, sessionID)

	for i, id := range rm.order {
		if id == sessionID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	return true
}

// appendMessage adds msg to the history, evicting the oldest entry once the
// history would exceed limit.
func (rm *Room) appendMessage(msg Message, limit int) {
	rm.history = append(rm.history, msg)
	if len(rm.history) > limit {
		rm.history = rm.history[1:]
	}
}

// MemberCount returns the number of joined sessions.
func (rm *Room) MemberCount() int {
	return len(rm.members)
}

// Users returns the client-visible user list: usernames deduplicated in
// first-join order.
func (rm *Room) Users() []string {
	users := make([]string, 0, len(rm.order))
	seen := make(map[string]struct{}, len(rm.order))

	for _, sessionID := range rm.order {
		username := rm.members[sessionID]
		if _, dup := seen[username]; dup {
			continue
		}
		seen[username] = struct{}{}
		users = append(users, username)
	}

	return users
}

// History returns a copy of the room's message history, oldest first.
func (rm *Room) History() []Message {
	out := make([]Message, len(rm.history))
	copy(out, rm.history)
	return out
}
