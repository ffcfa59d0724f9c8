// Package mcp exposes mindmeld game management to AI agents over the Model
// Context Protocol.
//
// The Client registers a small set of tools and proxies every call to the
// REST API, so it works against a local or a remote server alike:
//   - create_game: create a game and return its join code
//   - list_games: list live games, optionally filtered by phase
//   - get_game: describe one game
//   - delete_game: delete a game
//   - game_rules: explain the phases and the WebSocket protocol
//
// Players never act through MCP; they join games over WebSocket.
//
// Transport Modes:
//   - Stdio: ServeStdio, used by the "mindmeld mcp" command
//   - HTTP: HTTPHandler, mounted at POST /mcp by the server
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3001")
//	apiServer.MountMCP(client.HTTPHandler())
package mcp
