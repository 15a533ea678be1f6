package analysis

import (
	"sort"
	"time"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/columns"
	"github.com/kalambet/deepskin/internal/tabular"
)

// EnvHistory holds aligned sequences: index i of every slice describes the
// same sample.
type EnvHistory struct {
	Timestamps  []time.Time `json:"timestamps"`
	Temperature []Number    `json:"temperature"`
	Humidity    []Number    `json:"humidity"`
	GasR0       []Number    `json:"gasr0"`
	Battery     []Number    `json:"battery"`
}

// ExtractEnvHistory returns the samples within cfg.EnvWindow of the newest
// sample. The window is anchored at the data, not at the current time, so a
// device that stopped reporting still shows its last readings.
func ExtractEnvHistory(ds tabular.Dataset, roles columns.RoleMap, cfg Config) (EnvHistory, error) {
	col, ok := roles.Index(columns.Timestamp)
	if !ok {
		return EnvHistory{}, apperr.ErrUnresolvedTimestamp
	}

	recs := timedRecords(ds, col, cfg.location())
	if len(recs) > 0 {
		floor := recs[len(recs)-1].At.Add(-cfg.EnvWindow)
		first := sort.Search(len(recs), func(i int) bool { return !recs[i].At.Before(floor) })
		recs = recs[first:]
	}

	h := EnvHistory{
		Timestamps:  make([]time.Time, 0, len(recs)),
		Temperature: make([]Number, 0, len(recs)),
		Humidity:    make([]Number, 0, len(recs)),
		GasR0:       make([]Number, 0, len(recs)),
		Battery:     make([]Number, 0, len(recs)),
	}
	for _, r := range recs {
		h.Timestamps = append(h.Timestamps, r.At)
		h.Temperature = append(h.Temperature, number(r.Row, roles, columns.Temperature))
		h.Humidity = append(h.Humidity, number(r.Row, roles, columns.Humidity))
		h.GasR0 = append(h.GasR0, number(r.Row, roles, columns.GasResistance))
		h.Battery = append(h.Battery, number(r.Row, roles, columns.Battery))
	}
	return h, nil
}
