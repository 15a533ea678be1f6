// Package columns maps a header row onto the semantic fields a sensor file
// carries. Device firmware revisions name their columns differently, so
// roles are resolved by pattern rather than by position.
package columns

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSlots is the number of CHR channel columns a device may report.
const DefaultSlots = 32

// Role is the semantic meaning of a column.
type Role int

const (
	Timestamp Role = iota
	Temperature
	Humidity
	Battery
	GasResistance

	channelBase
)

// Channel returns the role for channel column i (CHR{i}).
func Channel(i int) Role {
	return channelBase + Role(i)
}

// ChannelIndex reports the channel number of r, if r is a channel role.
func (r Role) ChannelIndex() (int, bool) {
	if r < channelBase {
		return 0, false
	}
	return int(r - channelBase), true
}

func (r Role) String() string {
	switch r {
	case Timestamp:
		return "timestamp"
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Battery:
		return "battery"
	case GasResistance:
		return "gas_resistance"
	}
	if i, ok := r.ChannelIndex(); ok {
		return ChannelLabel(i)
	}
	return "unknown"
}

// ChannelLabel is the literal header token of channel i.
func ChannelLabel(i int) string {
	return fmt.Sprintf("CHR%d", i)
}

// patterns lists the case-insensitive substrings for each scalar role. The
// slice order is the precedence used when a header cell matches several roles.
var patterns = []struct {
	role    Role
	needles []string
}{
	{Timestamp, []string{"timestamp", "time", "date", "created"}},
	{Temperature, []string{"temperature", "temp"}},
	{Humidity, []string{"humidity", "hum"}},
	{Battery, []string{"bat(%)", "bat%", "battery", "batt", "charge", "voltage"}},
	{GasResistance, []string{"gasr0", "gas(res)"}},
}

// RoleMap holds the resolved column index of each role. The zero value
// resolves nothing.
type RoleMap struct {
	index map[Role]int
	slots int
}

// Index returns the column of role r, or false when no header matched.
func (m RoleMap) Index(r Role) (int, bool) {
	i, ok := m.index[r]
	return i, ok
}

// Len is the number of resolved roles.
func (m RoleMap) Len() int {
	return len(m.index)
}

// ChannelColumn is a resolved channel role.
type ChannelColumn struct {
	Channel int
	Label   string
	Column  int
}

// Channels returns the resolved channel columns in ascending channel order.
func (m RoleMap) Channels() []ChannelColumn {
	var out []ChannelColumn
	for i := 0; i < m.slots; i++ {
		if col, ok := m.index[Channel(i)]; ok {
			out = append(out, ChannelColumn{Channel: i, Label: ChannelLabel(i), Column: col})
		}
	}
	return out
}

// Resolve scans the header once per role and assigns each role the leftmost
// cell matching its patterns. Roles are resolved independently, so a cell
// such as "Battery Temp" can serve both Temperature and Battery. slots
// bounds the channel roles; a non-positive value selects DefaultSlots.
func Resolve(header []string, slots int) RoleMap {
	if slots <= 0 {
		slots = DefaultSlots
	}
	m := RoleMap{index: make(map[Role]int), slots: slots}
	for _, p := range patterns {
		for col, name := range header {
			if matches(name, p.needles) {
				m.index[p.role] = col
				break
			}
		}
	}
	for col, name := range header {
		i, ok := channelToken(name)
		if !ok || i >= slots {
			continue
		}
		if _, taken := m.index[Channel(i)]; !taken {
			m.index[Channel(i)] = col
		}
	}
	return m
}

func matches(name string, needles []string) bool {
	lower := strings.ToLower(name)
	for _, needle := range needles {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// channelToken matches the exact token CHR{i}; "chr0" and "CHR01" do not match.
func channelToken(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "CHR")
	if !ok || digits == "" {
		return 0, false
	}
	i, err := strconv.Atoi(digits)
	if err != nil || i < 0 || strconv.Itoa(i) != digits {
		return 0, false
	}
	return i, true
}
