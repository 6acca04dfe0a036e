package profile

import (
	"fmt"

	"github.com/muurk/tuyatap/internal/protocol"
)

// Profile is user-authored metadata about one device's data points: names,
// units, scales, enum labels. It is strictly advisory. The decoder never
// consults a profile, so a wrong or missing entry can mislabel a display but
// can never change what gets decoded.
type Profile struct {
	Version    int                    `yaml:"version"`
	Name       string                 `yaml:"name,omitempty"`    // device nickname
	Product    string                 `yaml:"product,omitempty"` // product id reported by Query Product Info
	Notes      string                 `yaml:"notes,omitempty"`
	DataPoints map[int]*DataPointMeta `yaml:"data_points,omitempty"` // keyed by DP id
}

// DataPointMeta is the working hypothesis for a single data point.
type DataPointMeta struct {
	Label string         `yaml:"label"`           // short name (e.g. "target_temp")
	Unit  string         `yaml:"unit,omitempty"`  // display unit (e.g. "°C")
	Scale float64        `yaml:"scale,omitempty"` // multiplier applied to numeric readings for display
	Enum  map[int]string `yaml:"enum,omitempty"`  // names for enum values
	Notes string         `yaml:"notes,omitempty"`
}

// New returns an empty profile at the current format version.
func New() *Profile {
	return &Profile{
		Version:    1,
		DataPoints: make(map[int]*DataPointMeta),
	}
}

// Meta returns the metadata for a DP id, or nil when the profile has none.
func (p *Profile) Meta(id byte) *DataPointMeta {
	if p == nil {
		return nil
	}
	return p.DataPoints[int(id)]
}

// Label returns the user's name for a DP id, or "DP <id>" when the profile
// has none.
func (p *Profile) Label(id byte) string {
	if meta := p.Meta(id); meta != nil && meta.Label != "" {
		return meta.Label
	}
	return fmt.Sprintf("DP %d", id)
}

// Describe renders a decoded value with the profile's display hints applied:
// scale and unit for numeric values, enum labels for enums. Without a
// matching hint it falls back to the value's own rendering.
func (p *Profile) Describe(id byte, v protocol.Value) string {
	if v == nil {
		return "(none)"
	}
	meta := p.Meta(id)
	if meta == nil {
		return v.String()
	}

	switch val := v.(type) {
	case protocol.Integer:
		if meta.Scale != 0 && meta.Scale != 1 {
			scaled := float64(val.Signed) * meta.Scale
			return trimUnit(fmt.Sprintf("%g", scaled), meta.Unit) + fmt.Sprintf(" (raw %d)", val.Signed)
		}
		return trimUnit(val.String(), meta.Unit)
	case protocol.Enum:
		if name, ok := meta.Enum[int(val)]; ok {
			return fmt.Sprintf("%s (%d)", name, uint64(val))
		}
		return val.String()
	default:
		return v.String()
	}
}

func trimUnit(s, unit string) string {
	if unit == "" {
		return s
	}
	return s + " " + unit
}
