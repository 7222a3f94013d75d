package procon

import (
	"strconv"
	"strings"
)

// DMXChannels is the number of channels exposed by GetDmx.csv.
const DMXChannels = 16

// DMXState holds the 16 DMX channel levels of a controller.
type DMXState struct {
	Channels [DMXChannels]int `json:"channels"`
}

// DecodeDMX parses the first non-blank line of a GetDmx.csv feed.
func DecodeDMX(raw string) (*DMXState, error) {
	lines := feedBody(raw)
	if len(lines) == 0 {
		return nil, &MalformedFeedError{Line: 0, Column: -1, Reason: "empty DMX feed"}
	}

	fields := strings.Split(lines[0], ",")
	if len(fields) != DMXChannels {
		return nil, &MalformedFeedError{
			Line:   1,
			Column: -1,
			Reason: "expected " + strconv.Itoa(DMXChannels) + " channels, got " + strconv.Itoa(len(fields)),
		}
	}

	state := &DMXState{}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, &MalformedFeedError{Line: 1, Column: i, Field: f, Reason: "not an integer", Err: err}
		}
		if v < 0 || v > 255 {
			return nil, &MalformedFeedError{Line: 1, Column: i, Field: f, Reason: "level out of range 0..255"}
		}
		state.Channels[i] = v
	}
	return state, nil
}

// WithChannel returns a copy with channel (0-based) set to value.
func (d DMXState) WithChannel(channel, value int) (*DMXState, error) {
	if channel < 0 || channel >= DMXChannels {
		return nil, &InvalidOperandError{Operand: "dmx channel", Value: channel, Reason: "must be within 0..15"}
	}
	if value < 0 || value > 255 {
		return nil, &InvalidOperandError{Operand: "dmx level", Value: value, Reason: "must be within 0..255"}
	}
	d.Channels[channel] = value
	return &d, nil
}

// Payload renders the /usrcfg.cgi form body that applies all channel levels.
func (d DMXState) Payload() string {
	var b strings.Builder
	b.WriteString("TYPE=0&LEN=16&CH1_8=")
	writeLevels(&b, d.Channels[:8])
	b.WriteString("&CH9_16=")
	writeLevels(&b, d.Channels[8:])
	b.WriteString("&DMX512=1")
	return b.String()
}

func writeLevels(b *strings.Builder, levels []int) {
	for i, v := range levels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
}
