package procon

import (
	"math"
	"strconv"
	"strings"
)

const (
	lineSysInfo = iota + 1
	lineNames
	lineUnits
	lineOffsets
	lineGains
	lineValues

	feedLines = lineValues
)

// sysInfoFields is the minimum field count of the SYSINFO line, tag included.
const sysInfoFields = 10

// Decode parses a GetState.csv feed into a Snapshot.
//
// The layout is fixed: a SYSINFO line followed by the name, unit, offset,
// gain and raw value lines, each with exactly ColumnCount fields. Any
// deviation is reported as a *MalformedFeedError and no Snapshot is returned.
func Decode(raw string) (*Snapshot, error) {
	lines := feedBody(raw)
	if len(lines) < feedLines {
		return nil, &MalformedFeedError{
			Line:   len(lines),
			Column: -1,
			Reason: "expected " + strconv.Itoa(feedLines) + " lines, got " + strconv.Itoa(len(lines)),
		}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			return nil, &MalformedFeedError{Line: i + 1, Column: -1, Reason: "unexpected blank line"}
		}
	}

	info, err := decodeSysInfo(lines[0])
	if err != nil {
		return nil, err
	}

	rows := make([][]string, feedLines)
	for i := lineNames; i <= lineValues; i++ {
		rows[i-1] = strings.Split(lines[i-1], ",")
	}

	names := rows[lineNames-1]
	if len(names) != ColumnCount {
		return nil, &MalformedFeedError{
			Line:   lineNames,
			Column: -1,
			Reason: "expected " + strconv.Itoa(ColumnCount) + " columns, got " + strconv.Itoa(len(names)),
		}
	}
	for i := lineUnits; i <= lineValues; i++ {
		if len(rows[i-1]) != len(names) {
			return nil, &MalformedFeedError{
				Line:   i,
				Column: -1,
				Reason: "field count " + strconv.Itoa(len(rows[i-1])) + " does not match name line (" + strconv.Itoa(len(names)) + ")",
			}
		}
	}

	offsets, err := parseFloats(rows[lineOffsets-1], lineOffsets)
	if err != nil {
		return nil, err
	}
	gains, err := parseFloats(rows[lineGains-1], lineGains)
	if err != nil {
		return nil, err
	}
	values, err := parseFloats(rows[lineValues-1], lineValues)
	if err != nil {
		return nil, err
	}

	units := rows[lineUnits-1]
	measurements := make([]Measurement, ColumnCount)
	for col := 0; col < ColumnCount; col++ {
		measurements[col] = newMeasurement(col, names[col], units[col], offsets[col], gains[col], values[col])
	}

	return newSnapshot(info, measurements), nil
}

// feedBody drops leading and trailing blank lines and returns up to
// feedLines lines by position. Interior blank lines are kept so Decode can
// reject them.
func feedBody(raw string) []string {
	all := strings.Split(raw, "\n")
	start, end := 0, len(all)
	for start < end && strings.TrimSpace(all[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(all[end-1]) == "" {
		end--
	}
	end = min(end, start+feedLines)

	out := make([]string, 0, end-start)
	for _, line := range all[start:end] {
		out = append(out, strings.TrimRight(line, "\r"))
	}
	return out
}

func decodeSysInfo(line string) (SystemInfo, error) {
	fields := strings.Split(line, ",")
	if len(fields) < sysInfoFields {
		return SystemInfo{}, &MalformedFeedError{
			Line:   lineSysInfo,
			Column: -1,
			Reason: "system info needs " + strconv.Itoa(sysInfoFields) + " fields, got " + strconv.Itoa(len(fields)),
		}
	}

	ints := make([]int64, sysInfoFields)
	for i := 2; i < sysInfoFields; i++ {
		v, err := strconv.ParseInt(strings.TrimSpace(fields[i]), 10, 64)
		if err != nil {
			return SystemInfo{}, &MalformedFeedError{
				Line:   lineSysInfo,
				Column: i,
				Field:  fields[i],
				Reason: "not an integer",
				Err:    err,
			}
		}
		ints[i] = v
	}

	return SystemInfo{
		Version:               strings.TrimSpace(fields[1]),
		CPUTime:               ints[2],
		ResetRootCause:        int(ints[3]),
		NTPFaultState:         int(ints[4]),
		ConfigOtherEnable:     int(ints[5]),
		DosageControl:         int(ints[6]),
		PhPlusDosageRelayID:   int(ints[7]),
		PhMinusDosageRelayID:  int(ints[8]),
		ChlorineDosageRelayID: int(ints[9]),
	}, nil
}

func parseFloats(fields []string, line int) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, &MalformedFeedError{
				Line:   line,
				Column: i,
				Field:  f,
				Reason: "not a number",
				Err:    err,
			}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &MalformedFeedError{
				Line:   line,
				Column: i,
				Field:  f,
				Reason: "not a finite number",
			}
		}
		out[i] = v
	}
	return out, nil
}
