package engine

import (
	"encoding/json"
	"testing"
)

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Phase{Kind: Lobby}, "lobby"},
		{Phase{Kind: Starting, Pending: 2}, "starting(2)"},
		{Phase{Kind: Guessing, Pending: 3}, "guessing(3)"},
		{Phase{Kind: Answers, Pending: 1}, "answers(1)"},
		{Phase{Kind: Finished}, "finished"},
		{Phase{Kind: PhaseKind(9)}, "phase(9)"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestPhaseJSON(t *testing.T) {
	data, err := json.Marshal(Phase{Kind: Guessing, Pending: 2})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"kind":"guessing","pending":2}` {
		t.Errorf("Unexpected encoding: %s", data)
	}

	var p Phase
	if err := json.Unmarshal([]byte(`{"kind":"answers","pending":1}`), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p != (Phase{Kind: Answers, Pending: 1}) {
		t.Errorf("Expected answers(1), got %v", p)
	}

	if err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &p); err == nil {
		t.Error("Expected error for unknown phase kind")
	}
}
