package procon

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

func loadFeed(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/GetState.csv")
	if err != nil {
		t.Fatalf("Failed to read sample feed: %v", err)
	}
	return string(data)
}

// feedWith returns the sample feed with the SYSINFO line replaced (if
// sysInfo is not empty) and selected raw values overridden.
func feedWith(t *testing.T, sysInfo string, raw map[int]string) string {
	t.Helper()
	lines := strings.Split(strings.TrimLeft(loadFeed(t), "\n"), "\n")
	if sysInfo != "" {
		lines[0] = sysInfo
	}
	values := strings.Split(lines[5], ",")
	for col, v := range raw {
		values[col] = v
	}
	lines[5] = strings.Join(values, ",")
	return strings.Join(lines, "\n")
}

func decodeSample(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Decode(loadFeed(t))
	if err != nil {
		t.Fatalf("Expected sample feed to decode, got %v", err)
	}
	return s
}

func TestDecode_SampleSystemInfo(t *testing.T) {
	s := decodeSample(t)

	if s.Version() != "1.7.3" {
		t.Errorf("Expected version 1.7.3, got %s", s.Version())
	}
	if s.CPUTime() != 9559698 {
		t.Errorf("Expected cpu time 9559698, got %d", s.CPUTime())
	}
	if s.ResetRootCause() != 1 {
		t.Errorf("Expected reset root cause 1, got %d", s.ResetRootCause())
	}
	if s.ResetRootCauseString() != "External reset" {
		t.Errorf("Expected 'External reset', got %q", s.ResetRootCauseString())
	}
	if s.NTPFaultState() != 3 {
		t.Errorf("Expected ntp fault state 3, got %d", s.NTPFaultState())
	}
	if s.NTPFaultStateString() != "Warning (GUI warning, yellow)" {
		t.Errorf("Expected warning text, got %q", s.NTPFaultStateString())
	}
	if s.ConfigOtherEnable() != 0 {
		t.Errorf("Expected feature flags 0, got %d", s.ConfigOtherEnable())
	}
	if s.DosageControl() != 257 {
		t.Errorf("Expected dosage control 257, got %d", s.DosageControl())
	}
	if s.PhPlusDosageRelayID() != 4 || s.PhMinusDosageRelayID() != 4 || s.ChlorineDosageRelayID() != 5 {
		t.Errorf("Expected dosage relay ids 4/4/5, got %d/%d/%d",
			s.PhPlusDosageRelayID(), s.PhMinusDosageRelayID(), s.ChlorineDosageRelayID())
	}
	if s.Time() != "02:17" {
		t.Errorf("Expected time 02:17, got %s", s.Time())
	}
}

func TestDecode_SampleFlags(t *testing.T) {
	s := decodeSample(t)

	if !s.IsChlorineDosageEnabled() {
		t.Error("Expected chlorine dosage to be enabled")
	}
	if !s.IsPhMinusDosageEnabled() {
		t.Error("Expected pH- dosage to be enabled")
	}
	if s.IsPhPlusDosageEnabled() {
		t.Error("Expected pH+ dosage to be disabled")
	}
	if s.IsElectrolysisEnabled() {
		t.Error("Expected electrolysis to be disabled")
	}

	features := map[string]bool{
		"tcpip boost":     s.IsTCPIPBoostEnabled(),
		"sd card":         s.IsSDCardEnabled(),
		"dmx":             s.IsDMXEnabled(),
		"avatar":          s.IsAvatarEnabled(),
		"relay extension": s.IsRelayExtensionEnabled(),
		"high bus load":   s.IsHighBusLoadEnabled(),
		"flow sensor":     s.IsFlowSensorEnabled(),
		"repeated mails":  s.IsRepeatedMailsEnabled(),
		"dmx extension":   s.IsDMXExtensionEnabled(),
	}
	for name, enabled := range features {
		if enabled {
			t.Errorf("Expected %s to be disabled", name)
		}
	}
}

func TestDecode_FeatureFlags(t *testing.T) {
	s, err := Decode(feedWith(t, "SYSINFO,1.7.3,9559698,1,3,511,4369,4,4,5", nil))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	checks := []struct {
		name string
		got  bool
	}{
		{"tcpip boost", s.IsTCPIPBoostEnabled()},
		{"sd card", s.IsSDCardEnabled()},
		{"dmx", s.IsDMXEnabled()},
		{"avatar", s.IsAvatarEnabled()},
		{"relay extension", s.IsRelayExtensionEnabled()},
		{"high bus load", s.IsHighBusLoadEnabled()},
		{"flow sensor", s.IsFlowSensorEnabled()},
		{"repeated mails", s.IsRepeatedMailsEnabled()},
		{"dmx extension", s.IsDMXExtensionEnabled()},
		{"chlorine", s.IsChlorineDosageEnabled()},
		{"electrolysis", s.IsElectrolysisEnabled()},
		{"ph minus", s.IsPhMinusDosageEnabled()},
		{"ph plus", s.IsPhPlusDosageEnabled()},
	}
	for _, c := range checks {
		if !c.got {
			t.Errorf("Expected %s to be enabled", c.name)
		}
	}
}

func TestDecode_CategoryPartition(t *testing.T) {
	s := decodeSample(t)

	want := map[Category]int{
		CategoryTime:          1,
		CategoryAnalog:        5,
		CategoryElectrode:     2,
		CategoryTemperature:   8,
		CategoryRelay:         8,
		CategoryDigitalInput:  4,
		CategoryExternalRelay: 8,
		CategoryCanister:      3,
		CategoryConsumption:   3,
	}

	total := 0
	seen := make(map[int]bool)
	for _, c := range Categories() {
		bucket := s.ByCategory(c)
		if len(bucket) != want[c] {
			t.Errorf("Expected %d %s measurements, got %d", want[c], c, len(bucket))
		}
		for i, m := range bucket {
			if m.Category != c {
				t.Errorf("Column %d in bucket %s has category %s", m.Column, c, m.Category)
			}
			if m.CategoryID != i {
				t.Errorf("Expected category id %d for column %d, got %d", i, m.Column, m.CategoryID)
			}
			if seen[m.Column] {
				t.Errorf("Column %d appears in more than one bucket", m.Column)
			}
			seen[m.Column] = true
			if i > 0 && bucket[i-1].Column >= m.Column {
				t.Errorf("Bucket %s is not in column order", c)
			}
		}
		total += len(bucket)
	}
	if total != ColumnCount {
		t.Errorf("Expected buckets to cover %d columns, got %d", ColumnCount, total)
	}

	for col, m := range s.Measurements() {
		category, id, ok := CategoryOf(col)
		if !ok {
			t.Fatalf("CategoryOf(%d) not ok", col)
		}
		if m.Column != col || m.Category != category || m.CategoryID != id {
			t.Errorf("Column %d: expected %s/%d, got %d %s/%d", col, category, id, m.Column, m.Category, m.CategoryID)
		}
	}
}

func TestCategoryOf_Table(t *testing.T) {
	tests := []struct {
		column   int
		category Category
		id       int
	}{
		{0, CategoryTime, 0},
		{1, CategoryAnalog, 0},
		{5, CategoryAnalog, 4},
		{6, CategoryElectrode, 0},
		{7, CategoryElectrode, 1},
		{8, CategoryTemperature, 0},
		{15, CategoryTemperature, 7},
		{16, CategoryRelay, 0},
		{23, CategoryRelay, 7},
		{24, CategoryDigitalInput, 0},
		{27, CategoryDigitalInput, 3},
		{28, CategoryExternalRelay, 0},
		{35, CategoryExternalRelay, 7},
		{36, CategoryCanister, 0},
		{38, CategoryCanister, 2},
		{39, CategoryConsumption, 0},
		{41, CategoryConsumption, 2},
	}

	for _, tt := range tests {
		category, id, ok := CategoryOf(tt.column)
		if !ok || category != tt.category || id != tt.id {
			t.Errorf("CategoryOf(%d) = %s/%d/%v, expected %s/%d", tt.column, category, id, ok, tt.category, tt.id)
		}
	}

	for _, col := range []int{-1, ColumnCount} {
		if _, _, ok := CategoryOf(col); ok {
			t.Errorf("Expected CategoryOf(%d) to fail", col)
		}
	}
}

func TestDecode_Measurements(t *testing.T) {
	s := decodeSample(t)
	all := s.Measurements()

	tests := []struct {
		column  int
		name    string
		unit    string
		display string
	}{
		{0, "Time", "h", "02:17"},
		{5, "CPU Temp", "C", "30.88 C"},
		{6, "Redox", "mV", "875.00 mV"},
		{7, "pH", "pH", "7.28 pH"},
		{8, "Pumpe", "C", "6.94 °C"},
		{16, "Terassenlicht", "--", "Off"},
		{17, "n.a.", "--", "Auto (off)"},
		{24, "TASTER1", "cm/s", "0.00 cm/s"},
		{37, "pH- Rest", "%", "61.50 %"},
		{38, "pH+ Rest", "%", "100.00 %"},
		{39, "Cl consumption", "ml", "0.00 ml"},
	}

	for _, tt := range tests {
		m := all[tt.column]
		if m.Name != tt.name {
			t.Errorf("Column %d: expected name %q, got %q", tt.column, tt.name, m.Name)
		}
		if m.Unit != tt.unit {
			t.Errorf("Column %d: expected unit %q, got %q", tt.column, tt.unit, m.Unit)
		}
		if m.DisplayValue != tt.display {
			t.Errorf("Column %d: expected display %q, got %q", tt.column, tt.display, m.DisplayValue)
		}
	}

	cpu := all[5]
	if cpu.Value != cpu.Offset+cpu.Gain*cpu.RawValue {
		t.Errorf("Expected value = offset + gain*raw, got %v", cpu.Value)
	}
}

func TestDecode_RelayState(t *testing.T) {
	s, err := Decode(feedWith(t, "", map[int]string{16: "0", 17: "1", 18: "2", 19: "3"}))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	tests := []struct {
		id      int
		state   RelayState
		on      bool
		manual  bool
		display string
	}{
		{0, RelayAutoOff, false, false, "Auto (off)"},
		{1, RelayAutoOn, true, false, "Auto (on)"},
		{2, RelayManualOff, false, true, "Off"},
		{3, RelayManualOn, true, true, "On"},
	}

	for _, tt := range tests {
		r, err := s.Relay(tt.id)
		if err != nil {
			t.Fatalf("Relay(%d) failed: %v", tt.id, err)
		}
		if r.State() != tt.state || r.IsOn() != tt.on || r.IsManual() != tt.manual || r.IsAuto() == tt.manual {
			t.Errorf("Relay %d: unexpected state %v", tt.id, r.State())
		}
		if r.DisplayValue != tt.display {
			t.Errorf("Relay %d: expected display %q, got %q", tt.id, tt.display, r.DisplayValue)
		}
		if r.BitMask() != 1<<tt.id {
			t.Errorf("Relay %d: expected bit mask %d, got %d", tt.id, 1<<tt.id, r.BitMask())
		}
	}
}

func TestSnapshot_Relays(t *testing.T) {
	s := decodeSample(t)

	relays := s.Relays()
	if len(relays) != 8 {
		t.Fatalf("Expected 8 relays, got %d", len(relays))
	}
	for i, r := range relays {
		if r.Column != 16+i {
			t.Errorf("Expected relay %d at column %d, got %d", i, 16+i, r.Column)
		}
	}

	aggregated := s.AggregatedRelays()
	if len(aggregated) != MaxRelays {
		t.Fatalf("Expected %d aggregated relays, got %d", MaxRelays, len(aggregated))
	}
	for i, r := range aggregated {
		if r.ID() != i {
			t.Errorf("Expected aggregated relay %d to have id %d, got %d", i, i, r.ID())
		}
	}
	if aggregated[8].Column != 28 {
		t.Errorf("Expected relay 8 at column 28, got %d", aggregated[8].Column)
	}

	if _, err := s.Relay(16); !errors.Is(err, ErrBadRelay) {
		t.Errorf("Expected ErrBadRelay for relay 16, got %v", err)
	}
}

func TestSnapshot_NamedAccessors(t *testing.T) {
	s := decodeSample(t)

	if m := s.RedoxElectrode(); m.Name != "Redox" || m.Unit != "mV" {
		t.Errorf("Unexpected redox electrode %s", m)
	}
	if m := s.PhElectrode(); m.Name != "pH" || m.Unit != "pH" {
		t.Errorf("Unexpected pH electrode %s", m)
	}
	if s.ChlorineCanister().Name != "Cl Rest" || s.PhMinusCanister().Name != "pH- Rest" || s.PhPlusCanister().Name != "pH+ Rest" {
		t.Error("Unexpected canister names")
	}
	if s.ChlorineConsumption().Column != 39 || s.PhMinusConsumption().Column != 40 || s.PhPlusConsumption().Column != 41 {
		t.Error("Unexpected consumption columns")
	}
	if len(s.Canisters()) != 3 || len(s.Consumptions()) != 3 {
		t.Error("Expected 3 canisters and 3 consumptions")
	}

	r, err := s.ChlorineDosageRelay()
	if err != nil || r.ID() != 5 || r.Name != "Chlor" {
		t.Errorf("Unexpected chlorine dosage relay %v (%v)", r.Name, err)
	}
	r, err = s.PhMinusDosageRelay()
	if err != nil || r.ID() != 4 || r.Name != "pH minus" {
		t.Errorf("Unexpected pH- dosage relay %v (%v)", r.Name, err)
	}
}

func TestSnapshot_DosageByMeasurement(t *testing.T) {
	s := decodeSample(t)
	all := s.Measurements()

	tests := []struct {
		column  int
		enabled bool
		relayID int
	}{
		{36, true, 5},
		{37, true, 4},
		{38, false, 4},
		{39, true, 5},
		{40, true, 4},
		{41, false, 4},
	}

	for _, tt := range tests {
		if got := s.IsDosageEnabled(all[tt.column]); got != tt.enabled {
			t.Errorf("Column %d: expected dosage enabled %v, got %v", tt.column, tt.enabled, got)
		}
		id, ok := s.DosageRelayID(all[tt.column])
		if !ok || id != tt.relayID {
			t.Errorf("Column %d: expected dosage relay %d, got %d (%v)", tt.column, tt.relayID, id, ok)
		}
	}

	if s.IsDosageEnabled(all[6]) {
		t.Error("Expected non-canister column to report dosage disabled")
	}
	if _, ok := s.DosageRelayID(all[6]); ok {
		t.Error("Expected no dosage relay for an electrode")
	}
}

func TestSnapshot_DosageRelayMembership(t *testing.T) {
	s := decodeSample(t)

	for id := 0; id < MaxRelays; id++ {
		want := id == 4 || id == 5
		if got := s.IsDosageRelayID(id); got != want {
			t.Errorf("IsDosageRelayID(%d) = %v, expected %v", id, got, want)
		}
	}

	all := s.Measurements()
	isDosage, err := s.IsDosageRelayMeasurement(all[21])
	if err != nil || !isDosage {
		t.Errorf("Expected column 21 to be a dosage relay, got %v (%v)", isDosage, err)
	}

	_, err = s.IsDosageRelayMeasurement(all[6])
	var badRelay *BadRelayError
	if !errors.As(err, &badRelay) {
		t.Fatalf("Expected BadRelayError, got %v", err)
	}
	if badRelay.Column != 6 {
		t.Errorf("Expected column 6 in error, got %d", badRelay.Column)
	}
}

func TestSnapshot_NTPFaultState(t *testing.T) {
	tests := []struct {
		state int
		want  string
	}{
		{0, "n.a."},
		{1, "Logfile (GUI warning, green)"},
		{2, "Warning (GUI warning, yellow)"},
		{3, "Warning (GUI warning, yellow)"},
		{4, "Error (GUI warning, red)"},
		{5, "Error (GUI warning, red)"},
		{65536, "NTP available"},
	}

	for _, tt := range tests {
		s := &Snapshot{info: SystemInfo{NTPFaultState: tt.state}}
		if got := s.NTPFaultStateString(); got != tt.want {
			t.Errorf("NTP state %d: expected %q, got %q", tt.state, tt.want, got)
		}
	}
}

func TestSnapshot_ResetRootCause(t *testing.T) {
	tests := map[int]string{
		0:  "n.a.",
		1:  "External reset",
		2:  "PowerUp reset",
		4:  "Brown out reset",
		8:  "Watchdog reset",
		16: "SW reset",
		3:  "n.a.",
	}

	for cause, want := range tests {
		s := &Snapshot{info: SystemInfo{ResetRootCause: cause}}
		if got := s.ResetRootCauseString(); got != want {
			t.Errorf("Reset cause %d: expected %q, got %q", cause, want, got)
		}
	}
}

func TestSnapshot_AccessorsReturnCopies(t *testing.T) {
	s := decodeSample(t)

	relays := s.RelayColumns()
	relays[0].Name = "changed"

	if s.RelayColumns()[0].Name == "changed" {
		t.Error("Expected snapshot to be unaffected by changes to returned slices")
	}
}

func TestSnapshot_MarshalJSON(t *testing.T) {
	s := decodeSample(t)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded struct {
		Time         string          `json:"time"`
		System       SystemInfo      `json:"system"`
		Dosage       map[string]bool `json:"dosage"`
		Measurements []Measurement   `json:"measurements"`
		Relays       []struct {
			ID          int  `json:"id"`
			DosageRelay bool `json:"dosage_relay"`
		} `json:"relays"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Time != "02:17" || decoded.System.Version != "1.7.3" {
		t.Errorf("Unexpected time/version %s/%s", decoded.Time, decoded.System.Version)
	}
	if len(decoded.Measurements) != ColumnCount {
		t.Errorf("Expected %d measurements, got %d", ColumnCount, len(decoded.Measurements))
	}
	if len(decoded.Relays) != MaxRelays || !decoded.Relays[5].DosageRelay {
		t.Errorf("Unexpected relay summary %+v", decoded.Relays)
	}
	if !decoded.Dosage["chlorine"] || decoded.Dosage["ph_plus"] {
		t.Errorf("Unexpected dosage flags %v", decoded.Dosage)
	}
}

func TestDecode_Malformed(t *testing.T) {
	sample := loadFeed(t)
	lines := strings.Split(strings.TrimLeft(sample, "\n"), "\n")

	replaceLine := func(i int, line string) string {
		out := append([]string(nil), lines...)
		out[i] = line
		return strings.Join(out, "\n")
	}

	tests := []struct {
		name   string
		raw    string
		line   int
		column int
	}{
		{
			name:   "empty",
			raw:    "",
			line:   0,
			column: -1,
		},
		{
			name:   "too few lines",
			raw:    strings.Join(lines[:5], "\n"),
			line:   5,
			column: -1,
		},
		{
			name:   "short sysinfo",
			raw:    replaceLine(0, "SYSINFO,1.7.3,9559698,1,3,0,257,4,4"),
			line:   1,
			column: -1,
		},
		{
			name:   "non numeric sysinfo",
			raw:    replaceLine(0, "SYSINFO,1.7.3,x,1,3,0,257,4,4,5"),
			line:   1,
			column: 2,
		},
		{
			name:   "too few names",
			raw:    replaceLine(1, strings.Join(strings.Split(lines[1], ",")[:41], ",")),
			line:   2,
			column: -1,
		},
		{
			name:   "unit count mismatch",
			raw:    replaceLine(2, lines[2]+",extra"),
			line:   3,
			column: -1,
		},
		{
			name:   "bad offset",
			raw:    feedWithLine(lines, 3, 7, "abc"),
			line:   4,
			column: 7,
		},
		{
			name:   "bad gain",
			raw:    feedWithLine(lines, 4, 0, ""),
			line:   5,
			column: 0,
		},
		{
			name:   "bad raw value",
			raw:    feedWithLine(lines, 5, 41, "1.2.3"),
			line:   6,
			column: 41,
		},
		{
			name:   "blank line after sysinfo",
			raw:    strings.Join(append([]string{lines[0], ""}, lines[1:]...), "\n"),
			line:   2,
			column: -1,
		},
		{
			name:   "blank lines before raw values",
			raw:    strings.Join(append(append(append([]string(nil), lines[:5]...), "", "   "), lines[5:]...), "\n"),
			line:   6,
			column: -1,
		},
		{
			name:   "NaN raw value",
			raw:    feedWithLine(lines, 5, 2, "NaN"),
			line:   6,
			column: 2,
		},
		{
			name:   "infinite gain",
			raw:    feedWithLine(lines, 4, 3, "+Inf"),
			line:   5,
			column: 3,
		},
		{
			name:   "infinite offset",
			raw:    feedWithLine(lines, 3, 0, "-infinity"),
			line:   4,
			column: 0,
		},
		{
			name:   "NaN time column",
			raw:    feedWithLine(lines, 5, 0, "nan"),
			line:   6,
			column: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(tt.raw)
			if s != nil {
				t.Error("Expected no snapshot on error")
			}
			if !errors.Is(err, ErrMalformedFeed) {
				t.Fatalf("Expected ErrMalformedFeed, got %v", err)
			}
			var mf *MalformedFeedError
			if !errors.As(err, &mf) {
				t.Fatalf("Expected *MalformedFeedError, got %T", err)
			}
			if mf.Line != tt.line {
				t.Errorf("Expected line %d, got %d", tt.line, mf.Line)
			}
			if mf.Column != tt.column {
				t.Errorf("Expected column %d, got %d", tt.column, mf.Column)
			}
		})
	}
}

func TestDecode_ToleratesCRLFAndTrailingBlankLines(t *testing.T) {
	raw := "\r\n\r\n" + strings.ReplaceAll(strings.TrimLeft(loadFeed(t), "\n"), "\n", "\r\n") + "\r\n\r\n"

	s, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if s.Time() != "02:17" {
		t.Errorf("Expected time 02:17, got %s", s.Time())
	}
	if s.Measurements()[41].Unit != "ml" {
		t.Errorf("Expected last unit ml, got %q", s.Measurements()[41].Unit)
	}
}

func feedWithLine(lines []string, line, column int, value string) string {
	out := append([]string(nil), lines...)
	fields := strings.Split(out[line], ",")
	fields[column] = value
	out[line] = strings.Join(fields, ",")
	return strings.Join(out, "\n")
}
