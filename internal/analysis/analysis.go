// Package analysis derives the health snapshot, offline intervals and
// environmental history of a device from its tabular source.
package analysis

import (
	"time"

	"github.com/kalambet/deepskin/internal/columns"
)

// Config holds the windows and thresholds used by the analyses.
type Config struct {
	// OfflineWindow bounds how far before "now" offline detection looks.
	OfflineWindow time.Duration
	// EnvWindow is the history span kept, anchored at the latest sample.
	EnvWindow time.Duration
	// GapThreshold is the smallest gap between samples reported as offline.
	// Gaps equal to it are not offline.
	GapThreshold time.Duration
	// ChannelSlots is the number of CHR{i} channel roles considered.
	ChannelSlots int
	// Location interprets timestamps that carry no zone.
	Location *time.Location
}

// DefaultConfig returns the 12h offline window, 3h environmental window,
// 1 minute gap threshold and 32 channel slots.
func DefaultConfig() Config {
	return Config{
		OfflineWindow: 12 * time.Hour,
		EnvWindow:     3 * time.Hour,
		GapThreshold:  time.Minute,
		ChannelSlots:  columns.DefaultSlots,
		Location:      time.Local,
	}
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
