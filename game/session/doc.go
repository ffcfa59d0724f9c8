// Package session provides the session registry for mindmeld.
//
// The session package implements:
//   - Thread-safe session storage with lookup by ID and by join code
//   - Unique join code allocation among live sessions
//   - Per-session locking and ordered event broadcast to subscribers
//   - Phase timeouts and removal of finished sessions
//
// Core Types:
//
// Registry owns the map of sessions. Session is the handle returned by the
// registry; it wraps one engine.Game together with its mutex and the set of
// subscribed connections.
//
// Concurrency:
//
// Locking has two levels. The registry lock protects only the maps and is
// held briefly for insert, lookup and removal. Every Session has its own
// mutex that serializes all operations on that game, so players in unrelated
// sessions never wait on each other. When both locks are needed the registry
// lock is always taken first.
//
// Events are delivered to subscribers while the session lock is held, which
// gives every subscriber the same order of state changes.
//
// Usage:
//
//	registry := session.NewRegistry(session.Options{})
//	go registry.Run(ctx, time.Minute)
//
//	sess, err := registry.Create()
//	...
//	sess, err = registry.FindByCode(code)
//	res, err := sess.Join(playerID, subscriber)
package session
