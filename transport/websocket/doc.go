// Package websocket provides the WebSocket transport for mindmeld.
//
// A Hub tracks every live connection and closes them on shutdown. Each
// connection is served by a Client with a read pump and a write pump. The
// read pump decodes client events and applies them to the session the
// client joined; the write pump drains the outbound queue and pings the peer.
//
// Message Protocol:
//
// Frames are JSON objects tagged by "type".
//   - Incoming: join{code, player?}, ready, submit_answer{text}, ack, echo{msg}
//   - Outgoing: joined and ok replies carrying the game, broadcasts
//     (player_joined, player_left, progress, phase_changed, session_closed)
//     carrying a per-session seq, and error{code, message}
//
// Broadcasts are queued by the session while it holds its own lock, so every
// client sees the changes of one session in the same order. A client whose
// queue is full is disconnected instead of slowing the session down.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.HubOptions{Logger: logger})
//	go hub.Run(ctx)
//
//	handler := websocket.NewHandler(hub, gameService, logger, false)
//	router.HandleFunc("/api/games/join", handler.HandleWebSocket)
//
// Connection Lifecycle:
//
// 1. Client connects and is registered with the hub
// 2. Server pings it as a liveness probe
// 3. Client joins a game by code and receives its state
// 4. Client sends events, receives replies and broadcasts
// 5. Disconnection detaches it from the game exactly once
package websocket
