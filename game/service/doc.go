// Package service provides the boundary operations of the mindmeld server.
//
// The service layer sits between the transports (REST, WebSocket, MCP) and
// the session registry. It creates, lists, inspects and deletes sessions and
// hands WebSocket connections the session handle they attach to. It holds no
// lock of its own: all synchronization lives in the registry and in each
// session.
//
// Usage:
//
//	registry := session.NewRegistry(session.Options{})
//	gameService := service.NewGameService(registry, logger)
//
//	info, err := gameService.CreateSession(ctx)
//	sess, err := gameService.Attach(ctx, info.Code)
package service
