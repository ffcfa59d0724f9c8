package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/service"
	"github.com/wricardo/mindmeld/game/session"
)

const readTimeout = 2 * time.Second

type harness struct {
	registry *session.Registry
	service  service.GameService
	hub      *Hub
	server   *httptest.Server
}

func fixedCodes(codes ...int) engine.CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return 0, errors.New("no more codes")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func newHarness(t *testing.T, debug bool, codes ...int) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()

	registry := session.NewRegistry(session.Options{
		GenerateCode: fixedCodes(codes...),
		Logger:       logger,
	})
	svc := service.NewGameService(registry, logger)
	hub := NewHub(HubOptions{Logger: logger})
	handler := NewHandler(hub, svc, logger, debug)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		<-hubDone
		server.Close()
	})

	return &harness{registry: registry, service: svc, hub: hub, server: server}
}

func (h *harness) create(t *testing.T) int {
	t.Helper()
	info, err := h.service.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return info.Code
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

// expect reads until a message of the given type arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) ServerMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := read(t, conn)
		if msg.Type == typ {
			return msg
		}
		if msg.Type == TypeError && typ != TypeError {
			t.Fatalf("Expected %s, got error %+v", typ, msg.Error)
		}
	}
	t.Fatalf("No %s message received", typ)
	return ServerMessage{}
}

func join(t *testing.T, conn *websocket.Conn, code int, player string) ServerMessage {
	t.Helper()
	send(t, conn, map[string]interface{}{"type": "join", "code": code, "player": player})
	return expect(t, conn, TypeJoined)
}

// waitPhase reads until the session broadcasts a move to kind.
func waitPhase(t *testing.T, conn *websocket.Conn, kind engine.PhaseKind) ServerMessage {
	t.Helper()
	for {
		msg := expect(t, conn, TypePhaseChanged)
		if msg.Game.Phase.Kind == kind {
			return msg
		}
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestHandler_ConsensusRound(t *testing.T) {
	h := newHarness(t, false, 1234)
	code := h.create(t)

	alice := h.dial(t)
	bob := h.dial(t)

	joined := join(t, alice, code, "alice")
	if joined.Game.Phase != (engine.Phase{Kind: engine.Starting, Pending: 1}) {
		t.Errorf("Expected starting(1), got %s", joined.Game.Phase)
	}
	joined = join(t, bob, code, "bob")
	if joined.Game.PlayersNum != 2 || joined.Game.Phase.Pending != 2 {
		t.Errorf("Expected two players pending, got %+v", joined.Game)
	}

	msg := expect(t, alice, TypePlayerJoined)
	if msg.Player != "bob" {
		t.Errorf("Expected bob to join, got %q", msg.Player)
	}

	send(t, alice, map[string]interface{}{"type": "ready"})
	send(t, bob, map[string]interface{}{"type": "ready"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := waitPhase(t, conn, engine.Guessing)
		if msg.Game.Phase.Pending != 2 {
			t.Errorf("Expected guessing(2), got %s", msg.Game.Phase)
		}
	}

	send(t, alice, map[string]interface{}{"type": "submit_answer", "text": "Moon"})
	send(t, bob, map[string]interface{}{"type": "submit_answer", "text": " moon "})
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := waitPhase(t, conn, engine.Finished)
		if msg.Game.FinishReason != engine.FinishConsensus {
			t.Errorf("Expected consensus, got %q", msg.Game.FinishReason)
		}
		if msg.Game.AnswerCount != 2 {
			t.Errorf("Expected 2 answers, got %d", msg.Game.AnswerCount)
		}
	}

	alice.Close()
	bob.Close()
	eventually(t, func() bool { return h.registry.Count() == 0 }, "finished session removal")
}

func TestHandler_BroadcastOrder(t *testing.T) {
	h := newHarness(t, false, 2000)
	code := h.create(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = h.dial(t)
		join(t, conns[i], code, string(rune('a'+i)))
	}
	for _, conn := range conns {
		send(t, conn, map[string]interface{}{"type": "ready"})
	}

	// Every connection sees the move to guessing, with increasing seq.
	for i, conn := range conns {
		var last uint64
		for {
			msg := read(t, conn)
			if msg.Seq != 0 {
				if msg.Seq <= last {
					t.Fatalf("Connection %d: seq %d after %d", i, msg.Seq, last)
				}
				last = msg.Seq
			}
			if msg.Type == TypeError {
				t.Fatalf("Connection %d: unexpected error %+v", i, msg.Error)
			}
			if msg.Type == TypePhaseChanged && msg.Game.Phase.Kind == engine.Guessing {
				break
			}
		}
	}
}

func TestHandler_JoinErrors(t *testing.T) {
	h := newHarness(t, false, 3000)
	code := h.create(t)

	t.Run("unknown code", func(t *testing.T) {
		conn := h.dial(t)
		send(t, conn, map[string]interface{}{"type": "join", "code": 9999})
		msg := expect(t, conn, TypeError)
		if msg.Error.Code != CodeNotFound {
			t.Errorf("Expected %s, got %s", CodeNotFound, msg.Error.Code)
		}
	})

	t.Run("invalid code", func(t *testing.T) {
		conn := h.dial(t)
		send(t, conn, map[string]interface{}{"type": "join", "code": 42})
		msg := expect(t, conn, TypeError)
		if msg.Error.Code != CodeInvalidCode {
			t.Errorf("Expected %s, got %s", CodeInvalidCode, msg.Error.Code)
		}
	})

	t.Run("event before join", func(t *testing.T) {
		conn := h.dial(t)
		send(t, conn, map[string]interface{}{"type": "ready"})
		msg := expect(t, conn, TypeError)
		if msg.Error.Code != CodeNotJoined {
			t.Errorf("Expected %s, got %s", CodeNotJoined, msg.Error.Code)
		}
	})

	t.Run("second join", func(t *testing.T) {
		conn := h.dial(t)
		join(t, conn, code, "twice")
		send(t, conn, map[string]interface{}{"type": "join", "code": code})
		msg := expect(t, conn, TypeError)
		if msg.Error.Code != CodeAlreadyJoined {
			t.Errorf("Expected %s, got %s", CodeAlreadyJoined, msg.Error.Code)
		}
	})

	t.Run("out of phase event", func(t *testing.T) {
		conn := h.dial(t)
		join(t, conn, code, "early")
		send(t, conn, map[string]interface{}{"type": "ack"})
		msg := expect(t, conn, TypeError)
		if msg.Error.Code != CodeInvalidTransition {
			t.Errorf("Expected %s, got %s", CodeInvalidTransition, msg.Error.Code)
		}
	})
}

func TestHandler_DisconnectKeepsPlayer(t *testing.T) {
	h := newHarness(t, false, 4000)
	code := h.create(t)

	alice := h.dial(t)
	join(t, alice, code, "alice")
	bob := h.dial(t)
	join(t, bob, code, "bob")

	bob.Close()
	msg := expect(t, alice, TypePlayerLeft)
	if msg.Player != "bob" {
		t.Errorf("Expected bob to leave, got %q", msg.Player)
	}
	if msg.Game.PlayersNum != 2 || msg.Game.Connections != 1 {
		t.Errorf("Expected 2 players and 1 connection, got %+v", msg.Game)
	}
	if msg.Game.Phase != (engine.Phase{Kind: engine.Starting, Pending: 2}) {
		t.Errorf("Disconnect should not change the phase, got %s", msg.Game.Phase)
	}

	// bob resumes with the same identity
	again := h.dial(t)
	joined := join(t, again, code, "bob")
	if !joined.Rejoined {
		t.Error("Expected rejoin")
	}
	if joined.Game.PlayersNum != 2 || joined.Game.Connections != 2 {
		t.Errorf("Expected 2 players and 2 connections, got %+v", joined.Game)
	}
}

func TestHandler_MalformedMessages(t *testing.T) {
	h := newHarness(t, false)
	conn := h.dial(t)

	for i := 0; i < maxMalformed; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		msg := read(t, conn)
		if msg.Type != TypeError || msg.Error.Code != CodeMalformedMessage {
			t.Fatalf("Expected malformed_message error, got %+v", msg)
		}
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("Expected connection to be closed")
	}
	eventually(t, func() bool { return h.hub.Count() == 0 }, "client unregistration")
}

func TestHandler_Echo(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, false)
		conn := h.dial(t)
		send(t, conn, map[string]interface{}{"type": "echo", "msg": "hi"})
		msg := read(t, conn)
		if msg.Type != TypeError || msg.Error.Code != CodeMalformedMessage {
			t.Errorf("Expected malformed_message error, got %+v", msg)
		}
	})

	t.Run("debug", func(t *testing.T) {
		h := newHarness(t, true)
		conn := h.dial(t)
		send(t, conn, map[string]interface{}{"type": "echo", "msg": "hi"})
		msg := read(t, conn)
		if msg.Type != TypeEcho || msg.Msg != "hi" {
			t.Errorf("Expected echo hi, got %+v", msg)
		}
	})
}

func TestHandler_DeletedSession(t *testing.T) {
	h := newHarness(t, false, 5000)
	code := h.create(t)

	conn := h.dial(t)
	join(t, conn, code, "alice")

	if err := h.service.DeleteSession(context.Background(), code); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	expect(t, conn, TypeSessionClosed)

	send(t, conn, map[string]interface{}{"type": "ready"})
	msg := expect(t, conn, TypeError)
	if msg.Error.Code != CodeNotFound {
		t.Errorf("Expected %s, got %s", CodeNotFound, msg.Error.Code)
	}
}

func TestHub_Shutdown(t *testing.T) {
	const clients = 5
	logger, _ := test.NewNullLogger()
	registry := session.NewRegistry(session.Options{Logger: logger})
	hub := NewHub(HubOptions{Logger: logger})
	handler := NewHandler(hub, service.NewGameService(registry, logger), logger, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()
		conns[i] = conn
	}

	deadline := time.Now().Add(readTimeout)
	for hub.Count() != clients && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != clients {
		t.Fatalf("Expected %d clients, got %d", clients, hub.Count())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(writeWait):
		t.Fatal("Hub did not stop in time")
	}
	if hub.Count() != 0 {
		t.Errorf("Expected no clients after shutdown, got %d", hub.Count())
	}

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("Client %d: expected going away close, got %v", i, err)
		}
	}
}

func TestHub_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no restriction", nil, "http://evil.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"allowed", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"rejected", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:3000"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/games/join", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestClient_SlowConsumerIsDropped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	serverConns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		serverConns <- conn
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	client := &Client{
		conn: <-serverConns,
		send: make(chan []byte, 1),
		log:  logger,
	}
	for seq := uint64(1); seq <= 20; seq++ {
		client.Deliver(session.Event{Type: session.EventProgress, Seq: seq})
	}
	if !client.closing.Load() {
		t.Error("Expected client to be marked closing")
	}
	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Outbound queue full, closing connection" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("Expected a single close to be scheduled, got %d", warnings)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("Expected policy violation close, got %v", err)
	}
	if len(client.send) != 1 {
		t.Errorf("Expected the first message to stay queued, got %d", len(client.send))
	}
}
