package engine

import "fmt"

// PhaseKind identifies a stage of the game life cycle.
type PhaseKind int

const (
	Lobby PhaseKind = iota
	Starting
	Guessing
	Answers
	Finished
)

var phaseNames = [...]string{
	Lobby:    "lobby",
	Starting: "starting",
	Guessing: "guessing",
	Answers:  "answers",
	Finished: "finished",
}

func (k PhaseKind) String() string {
	if k < Lobby || k > Finished {
		return fmt.Sprintf("phase(%d)", int(k))
	}
	return phaseNames[k]
}

// ParsePhaseKind is the inverse of PhaseKind.String.
func ParsePhaseKind(s string) (PhaseKind, error) {
	for k, name := range phaseNames {
		if name == s {
			return PhaseKind(k), nil
		}
	}
	return Lobby, fmt.Errorf("unknown phase %q", s)
}

func (k PhaseKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PhaseKind) UnmarshalText(text []byte) error {
	parsed, err := ParsePhaseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Phase is the current stage together with its countdown. Pending is the
// number of players still expected to act before the phase advances; it is
// always zero in Lobby and Finished.
type Phase struct {
	Kind    PhaseKind `json:"kind"`
	Pending int       `json:"pending"`
}

func (p Phase) String() string {
	switch p.Kind {
	case Starting, Guessing, Answers:
		return fmt.Sprintf("%s(%d)", p.Kind, p.Pending)
	default:
		return p.Kind.String()
	}
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p.Kind == Finished
}
