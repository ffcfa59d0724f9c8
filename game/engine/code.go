package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Session codes are short enough to type on a phone keypad.
const (
	MinCode = 1000
	MaxCode = 9999
)

var ErrInvalidCode = errors.New("invalid session code")

// CodeGenerator produces candidate session codes. Uniqueness is the
// caller's concern.
type CodeGenerator func() (int, error)

// RandomCode draws a code uniformly from [MinCode, MaxCode].
func RandomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxCode-MinCode+1))
	if err != nil {
		return 0, fmt.Errorf("generate session code: %w", err)
	}
	return MinCode + int(n.Int64()), nil
}

// ValidateCode checks that code lies in the issued range.
func ValidateCode(code int) error {
	if code < MinCode || code > MaxCode {
		return fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidCode, code, MinCode, MaxCode)
	}
	return nil
}

// ParseCode parses user input such as " 4821 " into a validated code.
func ParseCode(s string) (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidCode, s)
	}
	if err := ValidateCode(code); err != nil {
		return 0, err
	}
	return code, nil
}
