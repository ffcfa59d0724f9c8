package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/game/service"
	"github.com/wricardo/mindmeld/game/session"
)

// Handler upgrades HTTP requests and runs one Client per connection.
type Handler struct {
	hub     *Hub
	service service.GameService
	log     logrus.FieldLogger
	debug   bool
}

// NewHandler creates a WebSocket handler. Echo messages are answered only
// when debug is true.
func NewHandler(hub *Hub, gameService service.GameService, log logrus.FieldLogger, debug bool) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		hub:     hub,
		service: gameService,
		log:     log.WithField("component", "websocket"),
		debug:   debug,
	}
}

// HandleWebSocket handles WebSocket requests from clients
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		ctx:       context.WithoutCancel(r.Context()),
		remote:    r.RemoteAddr,
		anonymous: uuid.NewString(),
	}
	client.log = h.log.WithField("remote", client.remote)
	client.plog = client.log

	if !h.hub.add(client) {
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// Client is one WebSocket connection. It is a session.Subscriber once it
// has joined a game.
type Client struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	remote  string
	log     logrus.FieldLogger

	// Player-scoped logger, owned by readPump
	plog logrus.FieldLogger

	// Identity used when Join carries no player name
	anonymous string

	// Owned by readPump
	sess      *session.Session
	player    string
	malformed int

	closing   atomic.Bool
	closeOnce sync.Once
}

// Deliver queues a session broadcast. It never blocks: a client that cannot
// keep up is disconnected.
func (c *Client) Deliver(ev session.Event) {
	c.queue(eventMessage(ev))
}

func (c *Client) queue(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Error("Failed to marshal message")
		return
	}
	select {
	case c.send <- data:
	default:
		if !c.closing.CompareAndSwap(false, true) {
			return
		}
		// Deliver runs under the session lock; close off that path.
		c.log.Warn("Outbound queue full, closing connection")
		go c.closeWith(websocket.ClosePolicyViolation, "outbound queue full")
	}
}

func (c *Client) reply(msg ServerMessage) {
	c.queue(msg)
}

func (c *Client) shutdown() {
	c.closeWith(websocket.CloseGoingAway, "server shutting down")
}

// closeWith sends a close frame and drops the connection; the read pump
// then fails and runs the cleanup.
func (c *Client) closeWith(code int, text string) {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		c.conn.Close()
	})
}

// readPump reads client events and applies them to the joined session
func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.handler.hub.remove(c)
		close(c.send)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}

		ev, err := DecodeClientEvent(data)
		if _, isEcho := ev.(Echo); isEcho && !c.handler.debug {
			err = fmt.Errorf("%w: echo is disabled", ErrMalformedMessage)
		}
		if err != nil {
			c.malformed++
			c.reply(errorMessage(err))
			if c.malformed >= maxMalformed {
				c.log.Info("Closing connection after repeated malformed messages")
				return
			}
			continue
		}
		c.malformed = 0

		if err := c.handle(ev); err != nil {
			c.plog.WithError(err).Debug("Event rejected")
			c.reply(errorMessage(err))
		}
	}
}

func (c *Client) handle(ev ClientEvent) error {
	switch e := ev.(type) {
	case Join:
		return c.join(e)
	case Ready:
		return c.act(func(s *session.Session) (session.Snapshot, error) {
			return s.Ready(c.player)
		})
	case SubmitAnswer:
		return c.act(func(s *session.Session) (session.Snapshot, error) {
			return s.SubmitAnswer(c.player, e.Text)
		})
	case Ack:
		return c.act(func(s *session.Session) (session.Snapshot, error) {
			return s.Ack(c.player)
		})
	case Echo:
		c.reply(ServerMessage{Type: TypeEcho, Msg: e.Msg})
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrMalformedMessage, ev)
	}
}

func (c *Client) join(e Join) error {
	if c.sess != nil {
		return ErrAlreadyJoined
	}
	sess, err := c.handler.service.Attach(c.ctx, e.Code)
	if err != nil {
		return err
	}
	player := e.Player
	if player == "" {
		player = c.anonymous
	}
	res, err := sess.Join(player, c)
	if err != nil {
		return err
	}
	c.sess, c.player = sess, player
	c.plog = c.log.WithFields(logrus.Fields{"code": sess.Code(), "player": player})
	c.plog.WithField("rejoined", res.Rejoined).Info("Player joined")

	state := res.Snapshot.State
	c.reply(ServerMessage{Type: TypeJoined, Player: player, Rejoined: res.Rejoined, Game: &state})
	return nil
}

func (c *Client) act(op func(*session.Session) (session.Snapshot, error)) error {
	if c.sess == nil {
		return ErrNotJoined
	}
	snap, err := op(c.sess)
	if err != nil {
		return err
	}
	state := snap.State
	c.reply(ServerMessage{Type: TypeOK, Game: &state})
	return nil
}

// leave detaches from the session and drops it when it is finished and
// this was its last connection.
func (c *Client) leave() {
	if c.sess == nil {
		return
	}
	snap, removable := c.sess.Detach(c)
	c.plog.WithField("connections", snap.Connections).Info("Player left")
	if removable {
		c.handler.service.Release(c.ctx, c.sess)
	}
}

// writePump pumps queued messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	// Liveness probe on connect
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return
	}

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The read pump closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
