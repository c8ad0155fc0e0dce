/*
Package relay contains the connection router for the chat relay.

This file defines the Hub, the single owner of the session registry, the room
registry, and the per-room broadcast groups. Every client event, and the
periodic reaper, is processed as one atomic step inside the Hub's Run loop, so
cross-registry state (a session's active rooms versus a room's members) never
tears.
*/
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/room"
	"relaychat/internal/app/session"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

// eventChannelBuffer is the capacity of the hub's inbound event queue.
const eventChannelBuffer = 1024

// Internal frame types, never seen on the wire.
const (
	frameAttach   = "conn:attach"
	frameDetach   = "conn:detach"
	frameEnsure   = "rooms:ensure"
	frameNames    = "rooms:names"
	frameSnapshot = "rooms:snapshot"
)

// frame is one unit of work for the hub loop: either a decoded client event
// (typ is a wire event type, data its payload) or an internal request.
type frame struct {
	typ    string
	client *Client
	data   json.RawMessage

	// frameEnsure request and reply.
	name    string
	created chan bool

	// frameNames reply.
	names chan []string

	// frameSnapshot reply; nil means the room does not exist.
	snapshot chan *RoomSnapshot
}

// RoomSnapshot is a point-in-time read-only view of one room, served on the
// REST surface.
type RoomSnapshot struct {
	Name    string         `json:"name"`
	Users   []string       `json:"users"`
	History []room.Message `json:"history"`
}

// Hub routes events between live connections and the registries.
type Hub struct {
	// config holds the application's read-only configuration settings.
	config *configs.AppConfig

	// sessions and rooms are owned exclusively by the Run goroutine.
	sessions *session.Registry
	rooms    *room.Registry

	// conns is the set of all live connections, for chat:created discovery broadcasts.
	conns map[*Client]struct{}

	// groups maps room names to the connections subscribed to that room's events.
	groups map[string]map[*Client]struct{}

	// events queues frames from all client pumps and from HTTP handlers.
	events chan frame

	// stop signals the Run loop to terminate; done closes when it has.
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs a Hub. The caller starts the event loop with go Run().
func NewHub(cfg *configs.AppConfig) *Hub {
	return &Hub{
		config:   cfg,
		sessions: session.NewRegistry(),
		rooms:    room.NewRegistry(cfg.HistoryLimit),
		conns:    make(map[*Client]struct{}),
		groups:   make(map[string]map[*Client]struct{}),
		events:   make(chan frame, eventChannelBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Logger().With().Str("component", "Hub").Logger(),
	}
}

// Run is the hub's main event loop. It processes client events, internal
// requests, and reaper ticks one at a time until Shutdown is called.
func (h *Hub) Run() {
	defer func() {
		for c := range h.conns {
			close(c.send)
		}
		close(h.done)
		h.logger.Info().Msg("Hub loop stopped.")
	}()

	ticker := time.NewTicker(h.config.ReapInterval)
	defer ticker.Stop()

	h.logger.Info().
		Dur("reap_interval", h.config.ReapInterval).
		Msg("Hub loop started.")

	for {
		select {
		case f := <-h.events:
			h.handleFrame(f)

		case <-ticker.C:
			h.reapOnce(time.Now())

		case <-h.stop:
			return
		}
	}
}

// Shutdown stops the Run loop and waits for it to finish. Safe to call more than once.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}

// Attach registers a freshly upgraded connection with the hub.
func (h *Hub) Attach(c *Client) {
	h.dispatch(frame{typ: frameAttach, client: c})
}

// detach is called from the client's read pump when the transport closes.
func (h *Hub) detach(c *Client) {
	h.dispatch(frame{typ: frameDetach, client: c})
}

// dispatch queues a frame for the Run loop, giving up if the hub is stopping.
func (h *Hub) dispatch(f frame) {
	select {
	case h.events <- f:
	case <-h.stop:
	}
}

// EnsureRoom creates the named room if it does not exist, broadcasting its
// appearance to every connection when it is new. It reports whether the room
// was created by this call. Used by the REST surface; the request runs inside
// the hub loop like any other event.
func (h *Hub) EnsureRoom(name string) bool {
	f := frame{typ: frameEnsure, name: name, created: make(chan bool, 1)}

	select {
	case h.events <- f:
	case <-h.stop:
		return false
	}

	select {
	case created := <-f.created:
		return created
	case <-h.done:
		return false
	}
}

// RoomNames returns a sorted snapshot of all room names.
func (h *Hub) RoomNames() []string {
	f := frame{typ: frameNames, names: make(chan []string, 1)}

	select {
	case h.events <- f:
	case <-h.stop:
		return nil
	}

	select {
	case names := <-f.names:
		return names
	case <-h.done:
		return nil
	}
}

// Snapshot returns the named room's users and history, reporting false when
// the room does not exist.
func (h *Hub) Snapshot(name string) (*RoomSnapshot, bool) {
	f := frame{typ: frameSnapshot, name: name, snapshot: make(chan *RoomSnapshot, 1)}

	select {
	case h.events <- f:
	case <-h.stop:
		return nil, false
	}

	select {
	case snap := <-f.snapshot:
		if snap == nil {
			return nil, false
		}
		return snap, true
	case <-h.done:
		return nil, false
	}
}

// handleFrame applies one frame to the registries. Every branch that rejects a
// frame does so silently: per-event failures degrade to no-ops so one
// misbehaving client cannot affect others.
func (h *Hub) handleFrame(f frame) {
	switch f.typ {
	case frameAttach:
		h.conns[f.client] = struct{}{}
		h.logger.Debug().Str("conn_id", f.client.id).Int("total_conns", len(h.conns)).Msg("Connection attached.")

	case frameDetach:
		h.handleDetach(f.client)

	case frameEnsure:
		_, created := h.rooms.Ensure(f.name, time.Now())
		if created {
			h.broadcastAll(EventRoomCreated, f.name)
		}
		f.created <- created

	case frameNames:
		f.names <- h.rooms.Names()

	case frameSnapshot:
		if rm := h.rooms.Get(f.name); rm != nil {
			f.snapshot <- &RoomSnapshot{Name: rm.Name, Users: rm.Users(), History: rm.History()}
		} else {
			f.snapshot <- nil
		}

	case EventLogin:
		h.handleLogin(f.client, f.data)

	case EventResume:
		h.handleResume(f.client, f.data)

	case EventJoin:
		h.handleJoin(f.client, f.data)

	case EventLeave:
		h.handleLeave(f.client, f.data)

	case EventSend:
		h.handleSend(f.client, f.data)

	default:
		h.logger.Warn().Str("frame_type", f.typ).Msg("Unhandled frame type.")
	}
}

// handleDetach drops the connection from all broadcast groups and detaches its
// session. Room membership is intentionally left intact so a quick resume
// looks seamless; the session reaper cleans up memberships that never return.
func (h *Hub) handleDetach(c *Client) {
	delete(h.conns, c)

	for _, group := range h.groups {
		delete(group, c)
	}

	if c.sessionID != "" {
		h.sessions.Detach(c.sessionID, c)
	}

	h.logger.Debug().Str("conn_id", c.id).Int("total_conns", len(h.conns)).Msg("Connection detached.")
}

// handleLogin creates a fresh session for the connection and replies with the
// new token and the current room list.
func (h *Hub) handleLogin(c *Client, data json.RawMessage) {
	var username string
	if err := json.Unmarshal(data, &username); err != nil || username == "" {
		c.logger.Warn().Msg("Ignoring login with missing or malformed username.")
		return
	}

	// A connection re-authenticating releases its previous session binding,
	// otherwise the old session keeps a dead connection reference and the
	// reaper can never collect it.
	if c.sessionID != "" {
		h.sessions.Detach(c.sessionID, c)
	}

	s := h.sessions.Create(username, c)
	c.sessionID = s.ID
	c.username = s.Username

	h.sendTo(c, EventSessionCreated, SessionCreatedPayload{SessionID: s.ID})
	h.sendTo(c, EventRoomList, h.rooms.Names())
}

// handleResume reattaches a connection to an existing session: the connection
// rejoins every broadcast group the session was in and its membership is
// re-added to each surviving room. An unknown token degrades to a fresh login
// with no room state to trust.
func (h *Hub) handleResume(c *Client, data json.RawMessage) {
	var p ResumePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Username == "" || p.SessionID == "" {
		c.logger.Warn().Msg("Ignoring resume with malformed payload.")
		return
	}

	now := time.Now()

	// Same as login: rebinding the connection releases any session it held.
	if c.sessionID != "" && c.sessionID != p.SessionID {
		h.sessions.Detach(c.sessionID, c)
	}

	s, err := h.sessions.Resume(p.SessionID, p.Username, c)
	if err != nil {
		s = h.sessions.Create(p.Username, c)
		c.sessionID = s.ID
		c.username = s.Username

		h.sendTo(c, EventSessionCreated, SessionCreatedPayload{SessionID: s.ID})
		return
	}

	// The stored session is authoritative, not the client-supplied username.
	c.sessionID = s.ID
	c.username = s.Username

	for name := range s.ActiveRooms {
		h.groupAdd(name, c)
		h.rooms.Rejoin(name, s.ID, s.Username, now)
	}

	if p.CurrentChat != "" && randx.IsValidRoomName(p.CurrentChat) {
		// Track the membership on the session too; the reaper only evicts
		// memberships it can see in ActiveRooms.
		s.JoinRoom(p.CurrentChat)
		rm, created := h.rooms.Join(p.CurrentChat, s.ID, s.Username, now)
		h.groupAdd(p.CurrentChat, c)

		h.sendTo(c, EventRoomHistory, rm.History())
		h.broadcastRoom(p.CurrentChat, EventRoomUsers, RoomUsersPayload{Chat: p.CurrentChat, Users: rm.Users()})

		if created {
			h.broadcastAll(EventRoomCreated, p.CurrentChat)
		}
	}
}

// handleJoin adds the session to a room, delivers the room's history privately,
// and announces the membership change. A new room's existence is broadcast to
// every connection for discovery.
func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Chat == "" || p.User == "" || p.SessionID == "" {
		c.logger.Warn().Msg("Ignoring join with malformed payload.")
		return
	}

	if !randx.IsValidRoomName(p.Chat) {
		c.logger.Warn().Str("room", p.Chat).Msg("Ignoring join with invalid room name.")
		return
	}

	s := h.sessions.Get(p.SessionID)
	if s == nil {
		// The session expired client-side without the client knowing.
		c.logger.Debug().Msg("Ignoring join for unknown session.")
		return
	}

	now := time.Now()

	s.JoinRoom(p.Chat)
	h.groupAdd(p.Chat, c)
	rm, created := h.rooms.Join(p.Chat, s.ID, s.Username, now)
	h.sessions.Touch(s.ID, now)

	h.sendTo(c, EventRoomHistory, rm.History())
	h.broadcastRoom(p.Chat, EventRoomUsers, RoomUsersPayload{Chat: p.Chat, Users: rm.Users()})

	if created {
		h.broadcastAll(EventRoomCreated, p.Chat)
	}
}

// handleLeave removes the session from a room and announces the membership
// change to whoever remains. Missing rooms or memberships are no-ops.
func (h *Hub) handleLeave(c *Client, data json.RawMessage) {
	var p RoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Chat == "" || p.User == "" || p.SessionID == "" {
		c.logger.Warn().Msg("Ignoring leave with malformed payload.")
		return
	}

	s := h.sessions.Get(p.SessionID)
	if s == nil {
		c.logger.Debug().Msg("Ignoring leave for unknown session.")
		return
	}

	now := time.Now()

	h.rooms.Leave(p.Chat, s.ID, now)
	h.groupRemove(p.Chat, c)
	s.LeaveRoom(p.Chat)
	h.sessions.Touch(s.ID, now)

	if rm := h.rooms.Get(p.Chat); rm != nil {
		h.broadcastRoom(p.Chat, EventRoomUsers, RoomUsersPayload{Chat: p.Chat, Users: rm.Users()})
	}
}

// handleSend appends a message to the room's history and broadcasts it to the
// room's group. A message for a nonexistent room is dropped with no reply;
// the sender's room reference is stale and send is fire and forget.
func (h *Hub) handleSend(c *Client, data json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Chat == "" || p.User == "" || p.Text == "" || p.SessionID == "" {
		c.logger.Warn().Msg("Ignoring message with malformed payload.")
		return
	}

	s := h.sessions.Get(p.SessionID)
	if s == nil {
		c.logger.Debug().Msg("Ignoring message for unknown session.")
		return
	}

	now := time.Now()

	timestamp := p.Timestamp
	if timestamp == 0 {
		timestamp = now.UnixMilli()
	}

	msg := room.Message{
		Chat:      p.Chat,
		User:      s.Username,
		Text:      p.Text,
		Timestamp: timestamp,
	}

	stored, accepted := h.rooms.Append(p.Chat, msg, now)
	h.sessions.Touch(s.ID, now)

	if accepted {
		h.broadcastRoom(p.Chat, EventRoomMessage, stored)
	}
}

// reapOnce runs one reaper sweep inside the hub loop, so it observes and
// produces no partial state relative to client events. Expired sessions are
// also evicted from every room they were still a member of.
func (h *Hub) reapOnce(now time.Time) {
	for _, s := range h.sessions.Reap(now, h.config.SessionTimeout) {
		for name := range s.ActiveRooms {
			if h.rooms.Leave(name, s.ID, now) {
				if rm := h.rooms.Get(name); rm != nil {
					h.broadcastRoom(name, EventRoomUsers, RoomUsersPayload{Chat: name, Users: rm.Users()})
				}
			}
		}
	}

	for _, name := range h.rooms.Reap(now, h.config.RoomTimeout) {
		delete(h.groups, name)
	}
}

// groupAdd subscribes the connection to a room's broadcast group.
func (h *Hub) groupAdd(name string, c *Client) {
	group, ok := h.groups[name]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[name] = group
	}
	group[c] = struct{}{}
}

// groupRemove unsubscribes the connection from a room's broadcast group.
func (h *Hub) groupRemove(name string, c *Client) {
	if group, ok := h.groups[name]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, name)
		}
	}
}

// sendTo delivers an event to a single connection.
func (h *Hub) sendTo(c *Client, eventType string, payload any) {
	messageBytes, err := marshalEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Error marshaling event.")
		return
	}

	c.enqueue(messageBytes)
}

// broadcastRoom delivers an event to every connection in a room's group.
// The envelope is marshaled once and fanned out.
func (h *Hub) broadcastRoom(name, eventType string, payload any) {
	group, ok := h.groups[name]
	if !ok || len(group) == 0 {
		return
	}

	messageBytes, err := marshalEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Error marshaling broadcast.")
		return
	}

	for c := range group {
		c.enqueue(messageBytes)
	}
}

// broadcastAll delivers an event to every live connection.
func (h *Hub) broadcastAll(eventType string, payload any) {
	if len(h.conns) == 0 {
		return
	}

	messageBytes, err := marshalEnvelope(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Error marshaling broadcast.")
		return
	}

	for c := range h.conns {
		c.enqueue(messageBytes)
	}
}
