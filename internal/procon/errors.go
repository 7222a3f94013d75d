package procon

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFeed  = errors.New("malformed status feed")
	ErrBadRelay       = errors.New("bad relay")
	ErrInvalidOperand = errors.New("invalid operand")
)

// MalformedFeedError describes a structural violation of the CSV feed.
// Line is 1-based and counted after leading blank lines; Column is -1 when
// the problem concerns the whole line.
type MalformedFeedError struct {
	Line   int
	Column int
	Field  string
	Reason string
	Err    error
}

func (e *MalformedFeedError) Error() string {
	msg := fmt.Sprintf("malformed status feed: line %d", e.Line)
	if e.Column >= 0 {
		msg += fmt.Sprintf(", column %d", e.Column)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(", field %q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedFeedError) Unwrap() error { return e.Err }

func (e *MalformedFeedError) Is(target error) bool { return target == ErrMalformedFeed }

// BadRelayError is returned when an operation targets a relay that is not
// eligible for it.
type BadRelayError struct {
	RelayID int
	Column  int
	Reason  string
}

func (e *BadRelayError) Error() string {
	if e.RelayID < 0 {
		return fmt.Sprintf("bad relay (column %d): %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("bad relay %d: %s", e.RelayID, e.Reason)
}

func (e *BadRelayError) Is(target error) bool { return target == ErrBadRelay }

// InvalidOperandError is returned for out of range command operands.
type InvalidOperandError struct {
	Operand string
	Value   int
	Reason  string
}

func (e *InvalidOperandError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Operand, e.Value, e.Reason)
}

func (e *InvalidOperandError) Is(target error) bool { return target == ErrInvalidOperand }
