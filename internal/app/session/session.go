/*
Package session contains the session registry for the chat relay.

A session binds an opaque resumable token to a username and the set of rooms the
user considers itself joined. Sessions survive transport reconnects: a dropped
connection only clears the session's connection reference, and a later resume
with the same token reattaches seamlessly.
*/
package session

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// ErrSessionNotFound is returned by Resume when the supplied token is unknown,
// expired, or was never issued. Callers must fall back to creating a fresh session.
var ErrSessionNotFound = errors.New("session not found")

// Conn identifies a live transport connection attached to a session.
// The registry only tracks presence; it never calls into the connection,
// so a session holding a Conn must not keep a closed connection alive.
type Conn interface {
	ConnID() string
}

// Session represents one logical user across reconnects.
type Session struct {
	// ID is the opaque token the client persists and replays to resume.
	ID string

	// Username is the self-asserted display name. It is fixed at creation;
	// a resume with a different username does not change it.
	Username string

	// Conn is the currently attached live connection, or nil while disconnected.
	Conn Conn

	// ActiveRooms is the set of room names the session considers itself a member of.
	ActiveRooms map[string]struct{}

	// LastSeen is updated on creation, resume, and activity.
	LastSeen time.Time
}

// Connected reports whether the session currently has a live connection attached.
func (s *Session) Connected() bool {
	return s.Conn != nil
}

// JoinRoom records roomName in the session's active room set.
func (s *Session) JoinRoom(roomName string) {
	s.ActiveRooms[roomName] = struct{}{}
}

// LeaveRoom removes roomName from the session's active room set.
func (s *Session) LeaveRoom(roomName string) {
	delete(s.ActiveRooms, roomName)
}

// Registry owns the full session lifecycle: creation, resumption, detachment,
// and staleness expiry.
//
// The registry is not safe for concurrent use. It is owned exclusively by the
// relay hub, which serializes every mutation through its event loop.
type Registry struct {
	// sessions maps tokens to live Session records.
	sessions map[string]*Session

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRegistry constructs an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logx.Logger().With().Str("component", "SessionRegistry").Logger(),
	}
}

// Create allocates a fresh session for the given username bound to conn and
// returns it. The token is 128 bits of crypto/rand entropy; collisions are
// retried, so Create always succeeds.
func (r *Registry) Create(username string, conn Conn) *Session {
	var token string

	for {
		t, err := randx.SessionToken()
		if err != nil {
			// crypto/rand failure is not recoverable per event; log and retry.
			r.logger.Error().Err(err).Msg("Failed to generate session token, retrying.")
			continue
		}
		if _, taken := r.sessions[t]; !taken {
			token = t
			break
		}
	}

	s := &Session{
		ID:          token,
		Username:    username,
		Conn:        conn,
		ActiveRooms: make(map[string]struct{}),
		LastSeen:    time.Now(),
	}
	r.sessions[token] = s

	r.logger.Info().
		Str("username", username).
		Int("total_sessions", len(r.sessions)).
		Msg("Session created.")

	return s
}

// Resume looks up the session for the given token and rebinds it to conn.
// The stored session is authoritative: its username and active rooms are
// returned unchanged regardless of the username the resuming client supplies.
// Unknown tokens yield ErrSessionNotFound.
func (r *Registry) Resume(token, username string, conn Conn) (*Session, error) {
	s, ok := r.sessions[token]
	if !ok {
		r.logger.Info().Str("username", username).Msg("Resume failed: unknown or expired token.")
		return nil, ErrSessionNotFound
	}

	s.Conn = conn
	s.LastSeen = time.Now()

	r.logger.Info().
		Str("username", s.Username).
		Int("active_rooms", len(s.ActiveRooms)).
		Msg("Session resumed.")

	return s, nil
}

// Get returns the session for the given token, or nil if none exists.
func (r *Registry) Get(token string) *Session {
	return r.sessions[token]
}

// Touch updates the session's LastSeen timestamp. Unknown tokens are a no-op.
func (r *Registry) Touch(token string, now time.Time) {
	if s, ok := r.sessions[token]; ok {
		s.LastSeen = now
	}
}

// Detach clears the session's connection reference when the given connection
// closes. The session itself is kept so a later resume finds it. If the session
// has already been rebound to a newer connection, the stale detach is ignored.
func (r *Registry) Detach(token string, conn Conn) {
	s, ok := r.sessions[token]
	if !ok {
		return
	}

	if s.Conn == nil || conn == nil || s.Conn.ConnID() != conn.ConnID() {
		r.logger.Debug().Str("username", s.Username).Msg("Ignoring detach for stale connection.")
		return
	}

	s.Conn = nil
	s.LastSeen = time.Now()

	r.logger.Info().Str("username", s.Username).Msg("Session detached, awaiting resume.")
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// Reap deletes every session that has no attached connection and has not been
// seen within timeout. It returns the deleted sessions so the caller can evict
// their room memberships in the same atomic step. Sessions with a live
// connection are never deleted, no matter how old.
func (r *Registry) Reap(now time.Time, timeout time.Duration) []*Session {
	var expired []*Session

	for token, s := range r.sessions {
		if s.Connected() {
			continue
		}
		if now.Sub(s.LastSeen) > timeout {
			delete(r.sessions, token)
			expired = append(expired, s)
		}
	}

	if len(expired) > 0 {
		r.logger.Info().
			Int("reaped", len(expired)).
			Int("remaining", len(r.sessions)).
			Msg("Expired sessions reaped.")
	}

	return expired
}
