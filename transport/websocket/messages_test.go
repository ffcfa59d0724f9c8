package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/session"
)

func TestDecodeClientEvent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ClientEvent
	}{
		{"join", `{"type":"join","code":1234}`, Join{Code: 1234}},
		{"join with player", `{"type":"join","code":1234,"player":"p1"}`, Join{Code: 1234, Player: "p1"}},
		{"ready", `{"type":"ready"}`, Ready{}},
		{"submit answer", `{"type":"submit_answer","text":"moon"}`, SubmitAnswer{Text: "moon"}},
		{"ack", `{"type":"ack"}`, Ack{}},
		{"echo", `{"type":"echo","msg":"hi"}`, Echo{Msg: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientEvent([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeClientEvent failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodeClientEvent_Malformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`{}`,
		`{"type":"dance"}`,
		`{"type":"join"}`,
		`{"type":"join","code":"1234"}`,
		`{"type":"submit_answer"}`,
		`[1,2,3]`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := DecodeClientEvent([]byte(input))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("decode: %w", ErrMalformedMessage), CodeMalformedMessage},
		{ErrNotJoined, CodeNotJoined},
		{ErrAlreadyJoined, CodeAlreadyJoined},
		{engine.ErrInvalidCode, CodeInvalidCode},
		{fmt.Errorf("session 1234: %w", session.ErrSessionNotFound), CodeNotFound},
		{session.ErrCreationFailed, CodeCreationFailed},
		{engine.ErrSessionFull, CodeSessionFull},
		{engine.ErrInvalidAnswer, CodeInvalidAnswer},
		{engine.ErrInvalidTransition, CodeInvalidTransition},
		{engine.ErrAlreadyActed, CodeInvalidTransition},
		{engine.ErrSessionClosed, CodeInvalidTransition},
		{engine.ErrUnknownPlayer, CodeInvalidTransition},
		{errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEventMessage(t *testing.T) {
	ev := session.Event{
		Type:   session.EventPhaseChanged,
		Seq:    7,
		Player: "p1",
		State: engine.State{
			Code:       1234,
			Phase:      engine.Phase{Kind: engine.Guessing, Pending: 2},
			PlayersNum: 2,
		},
	}

	data, err := json.Marshal(eventMessage(ev))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["type"] != TypePhaseChanged {
		t.Errorf("Expected type %s, got %v", TypePhaseChanged, decoded["type"])
	}
	if decoded["seq"] != float64(7) {
		t.Errorf("Expected seq 7, got %v", decoded["seq"])
	}
	game, ok := decoded["game"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected game object, got %v", decoded["game"])
	}
	phase := game["phase"].(map[string]interface{})
	if phase["kind"] != "guessing" || phase["pending"] != float64(2) {
		t.Errorf("Expected guessing(2), got %v", phase)
	}
	if _, ok := decoded["error"]; ok {
		t.Error("Broadcast should not carry an error")
	}
}
