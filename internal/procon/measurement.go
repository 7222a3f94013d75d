package procon

import (
	"fmt"
	"strings"
)

// Measurement is a single decoded column of the status feed, combining the
// name, unit, offset, gain and raw value lines.
type Measurement struct {
	Column       int      `json:"column"`
	Category     Category `json:"category"`
	CategoryID   int      `json:"category_id"`
	Name         string   `json:"name"`
	Unit         string   `json:"unit"`
	Offset       float64  `json:"offset"`
	Gain         float64  `json:"gain"`
	RawValue     float64  `json:"raw_value"`
	Value        float64  `json:"value"`
	DisplayValue string   `json:"display_value"`
}

func newMeasurement(column int, name, unit string, offset, gain, raw float64) Measurement {
	category, categoryID, _ := CategoryOf(column)

	m := Measurement{
		Column:     column,
		Category:   category,
		CategoryID: categoryID,
		Name:       strings.TrimSpace(name),
		Unit:       strings.TrimSpace(unit),
		Offset:     offset,
		Gain:       gain,
		RawValue:   raw,
		Value:      offset + gain*raw,
	}
	m.DisplayValue = m.render()
	return m
}

func (m Measurement) render() string {
	switch m.Category {
	case CategoryTime:
		v := int(m.Value)
		return fmt.Sprintf("%02d:%02d", v/256, v%256)
	case CategoryRelay, CategoryExternalRelay:
		return RelayStateOf(m.Value).String()
	case CategoryTemperature:
		return fmt.Sprintf("%.2f °%s", m.Value, m.Unit)
	default:
		return fmt.Sprintf("%.2f %s", m.Value, m.Unit)
	}
}

// IsRelay reports whether the measurement describes a relay or an external relay.
func (m Measurement) IsRelay() bool {
	return m.Category.IsRelay()
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s (%s): %g", m.Name, m.Unit, m.Value)
}
