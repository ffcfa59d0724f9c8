// Package engine implements the mindmeld game state machine.
//
// The engine package implements:
//   - Session codes: generation, parsing and validation of 4-digit codes
//   - The phase life cycle: Lobby, Starting, Guessing, Answers, Finished
//   - Per-player bookkeeping so each player acts once per phase
//   - Consensus detection that ends a game as soon as all answers match
//
// Core Types:
//
// Game owns the counters, answers and current Phase of one session. Phase is
// a tagged value: Kind names the stage and Pending counts the players that
// still have to act before the stage advances. Transition methods (Join,
// Ready, SubmitAnswer, Ack, Detach, Abandon) are the only mutators.
//
// Phase Flow:
//
//	Lobby --first join--> Starting(n) --all ready--> Guessing(n)
//	Guessing(n) --all answered--> Answers(n) --all acked--> Finished
//	Guessing(n) --all answers equal--> Finished
//
// Concurrency:
//
// Game is deliberately not synchronized. The session package wraps every
// Game in its own mutex so unrelated sessions never contend.
package engine
