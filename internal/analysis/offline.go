package analysis

import (
	"math"
	"time"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/columns"
	"github.com/kalambet/deepskin/internal/tabular"
)

// OfflineInterval is a span with no samples. An ongoing interval ends at the
// evaluation time rather than at a sample.
type OfflineInterval struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int64     `json:"durationMinutes"`
	IsOngoing       bool      `json:"isOngoing"`
}

// OfflineReport is the result of DetectOffline.
type OfflineReport struct {
	Intervals  []OfflineInterval `json:"intervals"`
	DataPoints int               `json:"dataPoints"`
}

// DetectOffline reports the gaps between consecutive samples in the
// cfg.OfflineWindow before now. Gaps strictly longer than cfg.GapThreshold
// are offline. If the newest sample is older than the threshold, an ongoing
// interval from it to now is appended.
func DetectOffline(ds tabular.Dataset, roles columns.RoleMap, now time.Time, cfg Config) (OfflineReport, error) {
	col, ok := roles.Index(columns.Timestamp)
	if !ok {
		return OfflineReport{}, apperr.ErrUnresolvedTimestamp
	}
	now = now.UTC()
	floor := now.Add(-cfg.OfflineWindow)

	all := timedRecords(ds, col, cfg.location())
	recs := all[:0]
	for _, r := range all {
		if r.At.Before(floor) {
			continue
		}
		recs = append(recs, r)
	}

	report := OfflineReport{Intervals: []OfflineInterval{}, DataPoints: len(recs)}
	for i := 1; i < len(recs); i++ {
		start, end := recs[i-1].At, recs[i].At
		if end.Sub(start) > cfg.GapThreshold {
			report.Intervals = append(report.Intervals, interval(start, end, false))
		}
	}
	if len(recs) > 0 {
		last := recs[len(recs)-1].At
		if now.Sub(last) > cfg.GapThreshold {
			report.Intervals = append(report.Intervals, interval(last, now, true))
		}
	}
	return report, nil
}

func interval(start, end time.Time, ongoing bool) OfflineInterval {
	return OfflineInterval{
		Start:           start,
		End:             end,
		DurationMinutes: int64(math.Round(end.Sub(start).Minutes())),
		IsOngoing:       ongoing,
	}
}
