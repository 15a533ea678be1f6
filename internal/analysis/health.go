package analysis

import (
	"time"

	"github.com/kalambet/deepskin/internal/columns"
	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/tabular"
)

// Unavailable is reported for scalar fields whose role is unresolved or
// whose cell is missing.
const Unavailable = "N/A"

// Time sources of a snapshot.
const (
	TimeSourceData = "data"
	TimeSourceFile = "file"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Channels lists channel readings; Labels[i] names Values[i].
type Channels struct {
	Labels []string `json:"labels"`
	Values []Number `json:"values"`
}

// HealthSnapshot is the latest state of a device.
type HealthSnapshot struct {
	FileName    string   `json:"fileName"`
	LastUpdated string   `json:"lastUpdated"`
	TimeSource  string   `json:"timeSource"`
	Temperature string   `json:"temperature"`
	Humidity    string   `json:"humidity"`
	Battery     string   `json:"battery"`
	Channels    Channels `json:"channels"`
}

// BuildSnapshot reads the last data row of ds. The observation time is the
// row's timestamp cell when the role resolves and the cell is non-empty,
// otherwise the file's last-modified time.
func BuildSnapshot(ds tabular.Dataset, roles columns.RoleMap, file filestore.File) HealthSnapshot {
	last := ds.Last()
	snap := HealthSnapshot{
		FileName:    file.Name,
		Temperature: scalar(last, roles, columns.Temperature),
		Humidity:    scalar(last, roles, columns.Humidity),
		Battery:     scalar(last, roles, columns.Battery),
		Channels:    Channels{Labels: []string{}, Values: []Number{}},
	}

	if v, ok := cellFor(last, roles, columns.Timestamp); ok && v != "" {
		snap.LastUpdated = v
		snap.TimeSource = TimeSourceData
	} else {
		snap.LastUpdated = FileTime(file.LastModified)
		snap.TimeSource = TimeSourceFile
	}

	for _, ch := range roles.Channels() {
		v, _ := tabular.Cell(last, ch.Column)
		snap.Channels.Labels = append(snap.Channels.Labels, ch.Label)
		snap.Channels.Values = append(snap.Channels.Values, ParseNumber(v))
	}
	return snap
}

// FileTime formats a file timestamp the way snapshots report it.
func FileTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func cellFor(row []string, roles columns.RoleMap, r columns.Role) (string, bool) {
	col, ok := roles.Index(r)
	if !ok {
		return "", false
	}
	return tabular.Cell(row, col)
}

func scalar(row []string, roles columns.RoleMap, r columns.Role) string {
	v, ok := cellFor(row, roles, r)
	if !ok {
		return Unavailable
	}
	return v
}

func number(row []string, roles columns.RoleMap, r columns.Role) Number {
	v, ok := cellFor(row, roles, r)
	if !ok {
		return NaN()
	}
	return ParseNumber(v)
}
