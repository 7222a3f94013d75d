package procon

// RelayState is the combined on/off and auto/manual state of a relay.
// Bit 0 is on/off, bit 1 is manual/auto.
type RelayState int

const (
	RelayAutoOff   RelayState = 0
	RelayAutoOn    RelayState = 1
	RelayManualOff RelayState = 2
	RelayManualOn  RelayState = 3
)

const (
	relayBitOn     = 1
	relayBitManual = 2
)

// RelayStateOf decodes a relay column value.
func RelayStateOf(value float64) RelayState {
	return RelayState(int(value) & (relayBitOn | relayBitManual))
}

func (s RelayState) IsOn() bool     { return int(s)&relayBitOn != 0 }
func (s RelayState) IsManual() bool { return int(s)&relayBitManual != 0 }
func (s RelayState) IsAuto() bool   { return !s.IsManual() }

func (s RelayState) String() string {
	switch s {
	case RelayAutoOff:
		return "Auto (off)"
	case RelayAutoOn:
		return "Auto (on)"
	case RelayManualOff:
		return "Off"
	case RelayManualOn:
		return "On"
	default:
		return "unknown"
	}
}

// ExternalRelayOffset is added to the category id of external relays to get
// their aggregated relay id.
const ExternalRelayOffset = 8

// MaxRelays is the number of aggregated relay ids (8 internal + 8 external).
const MaxRelays = 16

// Relay is a relay-specific view of a Measurement.
type Relay struct {
	Measurement
}

// NewRelay wraps m; m must be a relay or external relay column.
func NewRelay(m Measurement) (Relay, error) {
	if !m.IsRelay() {
		return Relay{}, &BadRelayError{
			RelayID: -1,
			Column:  m.Column,
			Reason:  "measurement of category " + string(m.Category) + " is not a relay",
		}
	}
	return Relay{Measurement: m}, nil
}

// ID returns the aggregated relay id (0-7 internal, 8-15 external).
func (r Relay) ID() int {
	if r.Category == CategoryExternalRelay {
		return r.CategoryID + ExternalRelayOffset
	}
	return r.CategoryID
}

func (r Relay) State() RelayState { return RelayStateOf(r.Value) }
func (r Relay) IsOn() bool        { return r.State().IsOn() }
func (r Relay) IsManual() bool    { return r.State().IsManual() }
func (r Relay) IsAuto() bool      { return r.State().IsAuto() }

// BitMask is the relay's bit in the ENA masks.
func (r Relay) BitMask() int {
	return 1 << r.ID()
}
