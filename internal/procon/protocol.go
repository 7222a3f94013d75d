package procon

import (
	"fmt"
	"strings"
)

const (
	enableMaskInternal = 0xFF
	enableMaskExtended = 0xFFFF
)

// BitState is the ENA mask pair understood by /usrcfg.cgi. Enable marks
// relays under manual control, Value marks which of them are on.
type BitState struct {
	Enable int `json:"enable"`
	Value  int `json:"value"`
}

// Payload renders the form body for /usrcfg.cgi.
func (b BitState) Payload() string {
	return fmt.Sprintf("ENA=%d,%d&MANUAL=1", b.Enable, b.Value)
}

// OverallBitState derives the mask pair that reproduces the controller's
// current relay states. Auto relays drop out of the enable mask so the
// controller keeps managing them.
func OverallBitState(s *Snapshot) BitState {
	state := BitState{Enable: enableMaskInternal}
	relays := s.Relays()
	if s.IsRelayExtensionEnabled() {
		state.Enable = enableMaskExtended
		relays = append(relays, s.ExternalRelays()...)
	}

	for _, r := range relays {
		if r.IsAuto() {
			state.Enable &^= r.BitMask()
		}
		if r.IsOn() {
			state.Value |= r.BitMask()
		}
	}
	return state
}

// RelayAction is the requested disposition of a single relay.
type RelayAction int

const (
	TurnOn RelayAction = iota
	TurnOff
	SetAuto
)

func (a RelayAction) String() string {
	switch a {
	case TurnOn:
		return "on"
	case TurnOff:
		return "off"
	case SetAuto:
		return "auto"
	default:
		return fmt.Sprintf("RelayAction(%d)", int(a))
	}
}

// ParseRelayAction accepts "on", "off" and "auto".
func ParseRelayAction(s string) (RelayAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return TurnOn, nil
	case "off":
		return TurnOff, nil
	case "auto":
		return SetAuto, nil
	default:
		return 0, fmt.Errorf("unknown relay action %q: %w", s, ErrInvalidOperand)
	}
}

// Engine computes relay payloads. It holds configuration only.
type Engine struct {
	// ForbidDosageRelayOff rejects TurnOff on dosage relays the same way
	// TurnOn is always rejected.
	ForbidDosageRelayOff bool
}

// Transition returns the mask pair that applies action to relayID and leaves
// every other relay as reported in s.
func (e Engine) Transition(s *Snapshot, relayID int, action RelayAction) (BitState, error) {
	if err := e.check(s, relayID, action); err != nil {
		return BitState{}, err
	}

	state := OverallBitState(s)
	bit := 1 << relayID
	switch action {
	case TurnOn:
		state.Enable |= bit
		state.Value |= bit
	case TurnOff:
		state.Enable |= bit
		state.Value &^= bit
	case SetAuto:
		state.Enable &^= bit
		state.Value &^= bit
	}
	return state, nil
}

// RelayPayload is Transition followed by BitState.Payload.
func (e Engine) RelayPayload(s *Snapshot, relayID int, action RelayAction) (string, error) {
	state, err := e.Transition(s, relayID, action)
	if err != nil {
		return "", err
	}
	return state.Payload(), nil
}

func (e Engine) check(s *Snapshot, relayID int, action RelayAction) error {
	if relayID < 0 || relayID >= MaxRelays {
		return &BadRelayError{RelayID: relayID, Column: -1, Reason: "relay id out of range"}
	}
	if relayID >= ExternalRelayOffset && !s.IsRelayExtensionEnabled() {
		return &BadRelayError{RelayID: relayID, Column: -1, Reason: "relay extension is disabled"}
	}

	switch action {
	case TurnOn:
		if s.IsDosageRelayID(relayID) {
			return &BadRelayError{RelayID: relayID, Column: -1, Reason: "dosage relays must not be switched on permanently"}
		}
	case TurnOff:
		if e.ForbidDosageRelayOff && s.IsDosageRelayID(relayID) {
			return &BadRelayError{RelayID: relayID, Column: -1, Reason: "dosage relays must not be switched off manually"}
		}
	case SetAuto:
	default:
		return &InvalidOperandError{Operand: "relay action", Value: int(action), Reason: "unknown action"}
	}
	return nil
}

// DosageTarget selects the canister of a manual dosage pulse.
type DosageTarget int

const (
	DosageTargetChlorine DosageTarget = iota
	DosageTargetPhMinus
	DosageTargetPhPlus
)

var dosageTargetNames = [...]string{"chlorine", "ph_minus", "ph_plus"}

func (t DosageTarget) Valid() bool {
	return t >= DosageTargetChlorine && t <= DosageTargetPhPlus
}

func (t DosageTarget) String() string {
	if !t.Valid() {
		return fmt.Sprintf("DosageTarget(%d)", int(t))
	}
	return dosageTargetNames[t]
}

// ParseDosageTarget accepts chlorine, ph_minus and ph_plus. Dashes and the
// shorthand "ph-"/"ph+" are accepted too.
func ParseDosageTarget(s string) (DosageTarget, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chlorine", "cl":
		return DosageTargetChlorine, nil
	case "ph_minus", "ph-minus", "ph-":
		return DosageTargetPhMinus, nil
	case "ph_plus", "ph-plus", "ph+":
		return DosageTargetPhPlus, nil
	default:
		return 0, fmt.Errorf("unknown dosage target %q: %w", s, ErrInvalidOperand)
	}
}

// DosagePayload renders the /Command.htm query for a manual dosage pulse of
// the given length in seconds.
func DosagePayload(target DosageTarget, seconds int) (string, error) {
	if !target.Valid() {
		return "", &InvalidOperandError{Operand: "dosage target", Value: int(target), Reason: "must be 0, 1 or 2"}
	}
	if seconds < 0 {
		return "", &InvalidOperandError{Operand: "dosage duration", Value: seconds, Reason: "must not be negative"}
	}
	return fmt.Sprintf("MAN_DOSAGE=%d,%d", int(target), seconds), nil
}
