package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/session"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrNotJoined        = errors.New("connection has not joined a game")
	ErrAlreadyJoined    = errors.New("connection already joined a game")
)

// Client message types
const (
	TypeJoin         = "join"
	TypeReady        = "ready"
	TypeSubmitAnswer = "submit_answer"
	TypeAck          = "ack"
	TypeEcho         = "echo"
)

// Server message types
const (
	TypeJoined        = "joined"
	TypeOK            = "ok"
	TypePlayerJoined  = "player_joined"
	TypePlayerLeft    = "player_left"
	TypeProgress      = "progress"
	TypePhaseChanged  = "phase_changed"
	TypeSessionClosed = "session_closed"
	TypeError         = "error"
)

// Error codes sent in error replies
const (
	CodeCreationFailed    = "creation_failed"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeSessionFull       = "session_full"
	CodeInvalidAnswer     = "invalid_answer"
	CodeInvalidCode       = "invalid_code"
	CodeMalformedMessage  = "malformed_message"
	CodeNotJoined         = "not_joined"
	CodeAlreadyJoined     = "already_joined"
	CodeInternal          = "internal"
)

// ClientEvent is one decoded inbound message. The set of implementations is
// closed: Join, Ready, SubmitAnswer, Ack and Echo.
type ClientEvent interface {
	clientEvent()
}

// Join binds the connection to a session. Player is optional; a connection
// without one gets a generated identity and cannot resume later.
type Join struct {
	Code   int
	Player string
}

type Ready struct{}

type SubmitAnswer struct {
	Text string
}

type Ack struct{}

// Echo is only honoured on servers running in debug mode.
type Echo struct {
	Msg string
}

func (Join) clientEvent()         {}
func (Ready) clientEvent()        {}
func (SubmitAnswer) clientEvent() {}
func (Ack) clientEvent()          {}
func (Echo) clientEvent()         {}

type envelope struct {
	Type   string  `json:"type"`
	Code   *int    `json:"code,omitempty"`
	Player string  `json:"player,omitempty"`
	Text   *string `json:"text,omitempty"`
	Msg    string  `json:"msg,omitempty"`
}

// DecodeClientEvent parses a text frame. Every failure wraps
// ErrMalformedMessage.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeJoin:
		if env.Code == nil {
			return nil, fmt.Errorf("%w: join without code", ErrMalformedMessage)
		}
		return Join{Code: *env.Code, Player: env.Player}, nil
	case TypeReady:
		return Ready{}, nil
	case TypeSubmitAnswer:
		if env.Text == nil {
			return nil, fmt.Errorf("%w: submit_answer without text", ErrMalformedMessage)
		}
		return SubmitAnswer{Text: *env.Text}, nil
	case TypeAck:
		return Ack{}, nil
	case TypeEcho:
		return Echo{Msg: env.Msg}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}
}

// ErrorBody is the payload of an error reply.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerMessage is every outbound frame.
type ServerMessage struct {
	Type     string        `json:"type"`
	Seq      uint64        `json:"seq,omitempty"`
	Player   string        `json:"player,omitempty"`
	Rejoined bool          `json:"rejoined,omitempty"`
	Game     *engine.State `json:"game,omitempty"`
	Error    *ErrorBody    `json:"error,omitempty"`
	Msg      string        `json:"msg,omitempty"`
}

// eventMessage converts a session broadcast into its wire form.
func eventMessage(ev session.Event) ServerMessage {
	state := ev.State
	msg := ServerMessage{Seq: ev.Seq, Player: ev.Player, Game: &state}
	switch ev.Type {
	case session.EventPlayerJoined:
		msg.Type = TypePlayerJoined
	case session.EventPlayerLeft:
		msg.Type = TypePlayerLeft
	case session.EventPhaseChanged:
		msg.Type = TypePhaseChanged
	case session.EventClosed:
		msg.Type = TypeSessionClosed
	default:
		msg.Type = TypeProgress
	}
	return msg
}

// errorMessage converts err into an error reply.
func errorMessage(err error) ServerMessage {
	return ServerMessage{
		Type:  TypeError,
		Error: &ErrorBody{Code: ErrorCode(err), Message: err.Error()},
	}
}

// ErrorCode maps an error to the stable code clients switch on.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return CodeMalformedMessage
	case errors.Is(err, ErrNotJoined):
		return CodeNotJoined
	case errors.Is(err, ErrAlreadyJoined):
		return CodeAlreadyJoined
	case errors.Is(err, engine.ErrInvalidCode):
		return CodeInvalidCode
	case errors.Is(err, session.ErrSessionNotFound):
		return CodeNotFound
	case errors.Is(err, session.ErrCreationFailed):
		return CodeCreationFailed
	case errors.Is(err, engine.ErrSessionFull):
		return CodeSessionFull
	case errors.Is(err, engine.ErrInvalidAnswer):
		return CodeInvalidAnswer
	case errors.Is(err, engine.ErrInvalidTransition):
		return CodeInvalidTransition
	default:
		return CodeInternal
	}
}
