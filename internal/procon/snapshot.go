package procon

import "encoding/json"

// SystemInfo holds the SYSINFO line of the status feed.
type SystemInfo struct {
	Version               string `json:"version"`
	CPUTime               int64  `json:"cpu_time"`
	ResetRootCause        int    `json:"reset_root_cause"`
	NTPFaultState         int    `json:"ntp_fault_state"`
	ConfigOtherEnable     int    `json:"config_other_enable"`
	DosageControl         int    `json:"dosage_control"`
	PhPlusDosageRelayID   int    `json:"ph_plus_dosage_relay_id"`
	PhMinusDosageRelayID  int    `json:"ph_minus_dosage_relay_id"`
	ChlorineDosageRelayID int    `json:"chlorine_dosage_relay_id"`
}

// Feature flags in SystemInfo.ConfigOtherEnable.
const (
	FeatureTCPIPBoost     = 1
	FeatureSDCard         = 2
	FeatureDMX            = 4
	FeatureAvatar         = 8
	FeatureRelayExtension = 16
	FeatureHighBusLoad    = 32
	FeatureFlowSensor     = 64
	FeatureRepeatedMails  = 128
	FeatureDMXExtension   = 256
)

// Dosage flags in SystemInfo.DosageControl.
const (
	DosageChlorine     = 1
	DosageElectrolysis = 16
	DosagePhMinus      = 256
	DosagePhPlus       = 4096
)

var resetRootCauses = map[int]string{
	0:  "n.a.",
	1:  "External reset",
	2:  "PowerUp reset",
	4:  "Brown out reset",
	8:  "Watchdog reset",
	16: "SW reset",
}

var ntpFaultStates = map[int]string{
	0:     "n.a.",
	1:     "Logfile (GUI warning, green)",
	2:     "Warning (GUI warning, yellow)",
	4:     "Error (GUI warning, red)",
	65536: "NTP available",
}

// Snapshot is the decoded state of a pool controller at one point in time.
// It is never modified after Decode returns it; accessors hand out copies.
type Snapshot struct {
	info         SystemInfo
	time         string
	measurements []Measurement
	buckets      map[Category][]Measurement
}

func newSnapshot(info SystemInfo, measurements []Measurement) *Snapshot {
	s := &Snapshot{
		info:         info,
		measurements: measurements,
		buckets:      make(map[Category][]Measurement, len(columnLayout)),
	}
	for _, m := range measurements {
		s.buckets[m.Category] = append(s.buckets[m.Category], m)
	}
	if len(measurements) > 0 {
		s.time = measurements[0].DisplayValue
	}
	return s
}

func (s *Snapshot) Info() SystemInfo       { return s.info }
func (s *Snapshot) Time() string           { return s.time }
func (s *Snapshot) Version() string        { return s.info.Version }
func (s *Snapshot) CPUTime() int64         { return s.info.CPUTime }
func (s *Snapshot) ResetRootCause() int    { return s.info.ResetRootCause }
func (s *Snapshot) NTPFaultState() int     { return s.info.NTPFaultState }
func (s *Snapshot) ConfigOtherEnable() int { return s.info.ConfigOtherEnable }
func (s *Snapshot) DosageControl() int     { return s.info.DosageControl }

// Measurements returns all columns in feed order.
func (s *Snapshot) Measurements() []Measurement {
	return cloneMeasurements(s.measurements)
}

// ByCategory returns the measurements of one category in column order.
func (s *Snapshot) ByCategory(c Category) []Measurement {
	return cloneMeasurements(s.buckets[c])
}

func (s *Snapshot) Analog() []Measurement        { return s.ByCategory(CategoryAnalog) }
func (s *Snapshot) Electrodes() []Measurement    { return s.ByCategory(CategoryElectrode) }
func (s *Snapshot) Temperatures() []Measurement  { return s.ByCategory(CategoryTemperature) }
func (s *Snapshot) DigitalInputs() []Measurement { return s.ByCategory(CategoryDigitalInput) }
func (s *Snapshot) Canisters() []Measurement     { return s.ByCategory(CategoryCanister) }
func (s *Snapshot) Consumptions() []Measurement  { return s.ByCategory(CategoryConsumption) }
func (s *Snapshot) RelayColumns() []Measurement  { return s.ByCategory(CategoryRelay) }
func (s *Snapshot) ExternalRelayColumns() []Measurement {
	return s.ByCategory(CategoryExternalRelay)
}

// Relays returns the 8 internal relays.
func (s *Snapshot) Relays() []Relay {
	return toRelays(s.buckets[CategoryRelay])
}

// ExternalRelays returns the 8 relays of the relay extension.
func (s *Snapshot) ExternalRelays() []Relay {
	return toRelays(s.buckets[CategoryExternalRelay])
}

// AggregatedRelays returns internal relays followed by external relays; the
// slice index equals the aggregated relay id.
func (s *Snapshot) AggregatedRelays() []Relay {
	return append(s.Relays(), s.ExternalRelays()...)
}

// Relay looks up a relay by aggregated id.
func (s *Snapshot) Relay(id int) (Relay, error) {
	relays := s.AggregatedRelays()
	if id < 0 || id >= len(relays) {
		return Relay{}, &BadRelayError{RelayID: id, Column: -1, Reason: "no such relay"}
	}
	return relays[id], nil
}

func (s *Snapshot) IsTCPIPBoostEnabled() bool     { return s.feature(FeatureTCPIPBoost) }
func (s *Snapshot) IsSDCardEnabled() bool         { return s.feature(FeatureSDCard) }
func (s *Snapshot) IsDMXEnabled() bool            { return s.feature(FeatureDMX) }
func (s *Snapshot) IsAvatarEnabled() bool         { return s.feature(FeatureAvatar) }
func (s *Snapshot) IsRelayExtensionEnabled() bool { return s.feature(FeatureRelayExtension) }
func (s *Snapshot) IsHighBusLoadEnabled() bool    { return s.feature(FeatureHighBusLoad) }
func (s *Snapshot) IsFlowSensorEnabled() bool     { return s.feature(FeatureFlowSensor) }
func (s *Snapshot) IsRepeatedMailsEnabled() bool  { return s.feature(FeatureRepeatedMails) }
func (s *Snapshot) IsDMXExtensionEnabled() bool   { return s.feature(FeatureDMXExtension) }

func (s *Snapshot) feature(flag int) bool {
	return s.info.ConfigOtherEnable&flag == flag
}

func (s *Snapshot) IsChlorineDosageEnabled() bool { return s.dosage(DosageChlorine) }
func (s *Snapshot) IsElectrolysisEnabled() bool   { return s.dosage(DosageElectrolysis) }
func (s *Snapshot) IsPhMinusDosageEnabled() bool  { return s.dosage(DosagePhMinus) }
func (s *Snapshot) IsPhPlusDosageEnabled() bool   { return s.dosage(DosagePhPlus) }

func (s *Snapshot) dosage(flag int) bool {
	return s.info.DosageControl&flag == flag
}

func (s *Snapshot) PhPlusDosageRelayID() int   { return s.info.PhPlusDosageRelayID }
func (s *Snapshot) PhMinusDosageRelayID() int  { return s.info.PhMinusDosageRelayID }
func (s *Snapshot) ChlorineDosageRelayID() int { return s.info.ChlorineDosageRelayID }

// IsDosageRelayID reports whether the aggregated relay id is reserved for
// automatic dosing.
func (s *Snapshot) IsDosageRelayID(id int) bool {
	return id == s.info.ChlorineDosageRelayID ||
		id == s.info.PhMinusDosageRelayID ||
		id == s.info.PhPlusDosageRelayID
}

func (s *Snapshot) IsDosageRelay(r Relay) bool {
	return s.IsDosageRelayID(r.ID())
}

// IsDosageRelayMeasurement fails with ErrBadRelay for non-relay measurements.
func (s *Snapshot) IsDosageRelayMeasurement(m Measurement) (bool, error) {
	r, err := NewRelay(m)
	if err != nil {
		return false, err
	}
	return s.IsDosageRelay(r), nil
}

// DosageTargetOf maps canister and consumption columns to their dosage target.
func DosageTargetOf(m Measurement) (DosageTarget, bool) {
	switch m.Column {
	case 36, 39:
		return DosageTargetChlorine, true
	case 37, 40:
		return DosageTargetPhMinus, true
	case 38, 41:
		return DosageTargetPhPlus, true
	default:
		return 0, false
	}
}

// IsDosageEnabled reports whether dosage control is enabled for the target a
// canister or consumption measurement belongs to.
func (s *Snapshot) IsDosageEnabled(m Measurement) bool {
	target, ok := DosageTargetOf(m)
	if !ok {
		return false
	}
	switch target {
	case DosageTargetChlorine:
		return s.IsChlorineDosageEnabled()
	case DosageTargetPhMinus:
		return s.IsPhMinusDosageEnabled()
	default:
		return s.IsPhPlusDosageEnabled()
	}
}

// DosageRelayID returns the reserved relay id for the target of a canister or
// consumption measurement.
func (s *Snapshot) DosageRelayID(m Measurement) (int, bool) {
	target, ok := DosageTargetOf(m)
	if !ok {
		return 0, false
	}
	return s.dosageRelayIDFor(target), true
}

func (s *Snapshot) dosageRelayIDFor(target DosageTarget) int {
	switch target {
	case DosageTargetChlorine:
		return s.info.ChlorineDosageRelayID
	case DosageTargetPhMinus:
		return s.info.PhMinusDosageRelayID
	default:
		return s.info.PhPlusDosageRelayID
	}
}

func (s *Snapshot) ChlorineDosageRelay() (Relay, error) {
	return s.Relay(s.info.ChlorineDosageRelayID)
}

func (s *Snapshot) PhMinusDosageRelay() (Relay, error) {
	return s.Relay(s.info.PhMinusDosageRelayID)
}

func (s *Snapshot) PhPlusDosageRelay() (Relay, error) {
	return s.Relay(s.info.PhPlusDosageRelayID)
}

func (s *Snapshot) RedoxElectrode() Measurement      { return s.buckets[CategoryElectrode][0] }
func (s *Snapshot) PhElectrode() Measurement         { return s.buckets[CategoryElectrode][1] }
func (s *Snapshot) ChlorineCanister() Measurement    { return s.buckets[CategoryCanister][0] }
func (s *Snapshot) PhMinusCanister() Measurement     { return s.buckets[CategoryCanister][1] }
func (s *Snapshot) PhPlusCanister() Measurement      { return s.buckets[CategoryCanister][2] }
func (s *Snapshot) ChlorineConsumption() Measurement { return s.buckets[CategoryConsumption][0] }
func (s *Snapshot) PhMinusConsumption() Measurement  { return s.buckets[CategoryConsumption][1] }
func (s *Snapshot) PhPlusConsumption() Measurement   { return s.buckets[CategoryConsumption][2] }

// ResetRootCauseString describes the reason of the last controller reset.
func (s *Snapshot) ResetRootCauseString() string {
	if cause, ok := resetRootCauses[s.info.ResetRootCause]; ok {
		return cause
	}
	return resetRootCauses[0]
}

// NTPFaultStateString describes the NTP fault state.
func (s *Snapshot) NTPFaultStateString() string {
	state := s.info.NTPFaultState
	if text, ok := ntpFaultStates[state]; ok {
		return text
	}
	if state > 4 {
		return ntpFaultStates[4]
	}
	if state > 2 {
		return ntpFaultStates[2]
	}
	return ntpFaultStates[0]
}

// RelayView is the serialised form of a relay in API responses.
type RelayView struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	On           bool   `json:"on"`
	Manual       bool   `json:"manual"`
	DosageRelay  bool   `json:"dosage_relay"`
	ExternalUnit bool   `json:"external"`
}

// RelayViews returns a serialisable summary of all aggregated relays.
func (s *Snapshot) RelayViews() []RelayView {
	relays := s.AggregatedRelays()
	out := make([]RelayView, 0, len(relays))
	for _, r := range relays {
		out = append(out, RelayView{
			ID:           r.ID(),
			Name:         r.Name,
			State:        r.State().String(),
			On:           r.IsOn(),
			Manual:       r.IsManual(),
			DosageRelay:  s.IsDosageRelay(r),
			ExternalUnit: r.Category == CategoryExternalRelay,
		})
	}
	return out
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time           string          `json:"time"`
		System         SystemInfo      `json:"system"`
		ResetRootCause string          `json:"reset_root_cause"`
		NTPFaultState  string          `json:"ntp_fault_state"`
		Features       map[string]bool `json:"features"`
		Dosage         map[string]bool `json:"dosage"`
		Measurements   []Measurement   `json:"measurements"`
		Relays         []RelayView     `json:"relays"`
	}{
		Time:           s.time,
		System:         s.info,
		ResetRootCause: s.ResetRootCauseString(),
		NTPFaultState:  s.NTPFaultStateString(),
		Features: map[string]bool{
			"tcpip_boost":     s.IsTCPIPBoostEnabled(),
			"sd_card":         s.IsSDCardEnabled(),
			"dmx":             s.IsDMXEnabled(),
			"avatar":          s.IsAvatarEnabled(),
			"relay_extension": s.IsRelayExtensionEnabled(),
			"high_bus_load":   s.IsHighBusLoadEnabled(),
			"flow_sensor":     s.IsFlowSensorEnabled(),
			"repeated_mails":  s.IsRepeatedMailsEnabled(),
			"dmx_extension":   s.IsDMXExtensionEnabled(),
		},
		Dosage: map[string]bool{
			"chlorine":     s.IsChlorineDosageEnabled(),
			"electrolysis": s.IsElectrolysisEnabled(),
			"ph_minus":     s.IsPhMinusDosageEnabled(),
			"ph_plus":      s.IsPhPlusDosageEnabled(),
		},
		Measurements: s.measurements,
		Relays:       s.RelayViews(),
	})
}

func cloneMeasurements(in []Measurement) []Measurement {
	out := make([]Measurement, len(in))
	copy(out, in)
	return out
}

func toRelays(in []Measurement) []Relay {
	out := make([]Relay, len(in))
	for i, m := range in {
		out[i] = Relay{Measurement: m}
	}
	return out
}
