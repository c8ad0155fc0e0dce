/*
Package relay contains the connection router for the chat relay.

This file defines the Client struct, representing an active WebSocket connection.
It manages the connection's communication loops (ReadPump and WritePump) and
forwards decoded events to the Hub for processing.
*/
package relay

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256
)

// Client represents one active WebSocket connection.
//
// The sessionID and username fields bind the connection to a session once the
// hub has processed a login or resume; they are owned by the hub goroutine and
// never touched by the pumps.
type Client struct {
	// hub routes every decoded inbound event.
	hub *Hub

	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// id uniquely identifies this transport connection, for logging and for
	// stale-detach detection in the session registry.
	id string

	// sessionID is the token of the bound session, empty while anonymous.
	sessionID string

	// username is the bound session's username, empty while anonymous.
	username string

	// send queues marshaled outbound frames for WritePump.
	send chan []byte

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded WebSocket connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := randx.ConnectionID()

	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		send:   make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().Str("conn_id", id).Logger(),
	}
}

// ConnID returns the connection's unique identifier. It satisfies the session
// registry's Conn interface, making the client usable as a weak back-reference.
func (c *Client) ConnID() string {
	return c.id
}

// ReadPump reads frames from the WebSocket connection and forwards decoded
// events to the hub. It handles heartbeats (Pong) and performs cleanup when
// the connection closes for any reason.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(messageBytes)
	}
}

// cleanupOnDisconnect notifies the hub that the connection is gone and closes
// the underlying socket. The bound session, if any, is only detached, never
// deleted here.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage decodes a raw frame and forwards it to the hub.
// Malformed JSON and unknown event types are dropped silently: one misbehaving
// client must not affect others, and the protocol defines no error replies.
func (c *Client) processInboundMessage(messageBytes []byte) {
	var env Envelope

	if err := json.Unmarshal(messageBytes, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON, dropping frame")
		return
	}

	if _, ok := inboundTypes[env.Type]; !ok {
		c.logger.Warn().Str("event_type", env.Type).Msg("Client sent unsupported event type")
		return
	}

	c.hub.dispatch(frame{typ: env.Type, client: c, data: env.Payload})
}

// enqueue pushes marshaled bytes onto the outbound queue. When the queue is
// full the frame is dropped and logged; delivery is best effort at most once.
func (c *Client) enqueue(messageBytes []byte) {
	select {
	case c.send <- messageBytes:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
	}
}

// WritePump writes queued frames from the send channel to the WebSocket
// connection and keeps the heartbeat alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue, false to terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		// hub closed the send channel; tell the peer we are done.
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the
// connection heartbeat. Returns false if the loop should terminate.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
