// Package api provides the HTTP REST API of the mindmeld server.
//
// Endpoints:
//   - GET /api/health - Liveness probe, answers "ok"
//   - POST /api/games/create - Create a game, returns {"code": 1234}
//   - GET /api/games/list - List games (?phase=, ?sort=code|created, ?order=asc|desc, ?limit=)
//   - GET /api/games/{code} - Get one game
//   - DELETE /api/games/{code} - Delete a game, closing its connections
//   - GET /api/games/join - WebSocket upgrade, see package websocket
//   - POST /mcp - MCP JSON-RPC, when mounted with MountMCP
//
// Error Handling:
//
// Errors are returned as JSON with a stable code next to the message:
//
//	{
//	  "error": "session 1234: session not found",
//	  "code": "not_found"
//	}
//
// Invalid codes answer 400, unknown games 404 and creation failures 500.
//
// Usage:
//
//	wsHandler := websocket.NewHandler(hub, gameService, logger, cfg.Debug)
//	apiServer := api.NewServer(gameService, wsHandler, logger)
//	apiServer.MountMCP(mcpClient.HTTPHandler())
//	http.ListenAndServe(addr, apiServer)
package api
