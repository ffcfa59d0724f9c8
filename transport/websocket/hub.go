package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound messages buffered per connection before it is dropped.
	sendBufferSize = 256

	// Consecutive undecodable messages tolerated before closing.
	maxMalformed = 3
)

// HubOptions configure a Hub.
type HubOptions struct {
	// AllowedOrigins restricts the Origin header of upgrade requests.
	// Empty or "*" allows every origin.
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

// Hub tracks every live connection. It does not route game traffic: each
// session broadcasts to its own subscribers. The hub exists so the process
// can count connections and close all of them on shutdown.
type Hub struct {
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	// Registered clients, owned by Run
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	count atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub(opts HubOptions) *Hub {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hub{
		log:        log.WithField("component", "hub"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's event loop. When ctx is cancelled every remaining
// connection is closed and Run returns nil.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.log.WithFields(logrus.Fields{
				"remote":  client.remote,
				"clients": len(h.clients),
			}).Debug("Client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
				h.log.WithFields(logrus.Fields{
					"remote":  client.remote,
					"clients": len(h.clients),
				}).Debug("Client unregistered")
			}

		case <-ctx.Done():
			// One stuck writer must not hold up the others.
			var wg sync.WaitGroup
			for client := range h.clients {
				wg.Add(1)
				go func() {
					defer wg.Done()
					client.shutdown()
				}()
				delete(h.clients, client)
			}
			wg.Wait()
			h.count.Store(0)
			h.log.Info("Hub stopped")
			return nil
		}
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// add registers c; it reports false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
