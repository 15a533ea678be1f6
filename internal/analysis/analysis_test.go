package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/columns"
	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/tabular"
)

func dataset(t *testing.T, rows ...[]string) (tabular.Dataset, columns.RoleMap) {
	t.Helper()
	ds, err := tabular.New(rows)
	if err != nil {
		t.Fatalf("tabular.New: %v", err)
	}
	return ds, columns.Resolve(ds.Header(), columns.DefaultSlots)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return cfg
}

func TestDetectOffline_SampleScenario(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "Temp", "CHR0"},
		[]string{"2024-01-01T00:00:00Z", "20", "5"},
		[]string{"2024-01-01T00:20:00Z", "21", "6"},
	)
	report, err := DetectOffline(ds, roles, mustTime(t, "2024-01-01T00:21:00Z"), testConfig())
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if report.DataPoints != 2 {
		t.Errorf("DataPoints = %d, want 2", report.DataPoints)
	}
	if len(report.Intervals) != 1 {
		t.Fatalf("got %d intervals, want 1: %+v", len(report.Intervals), report.Intervals)
	}
	got := report.Intervals[0]
	want := OfflineInterval{
		Start:           mustTime(t, "2024-01-01T00:00:00Z"),
		End:             mustTime(t, "2024-01-01T00:20:00Z"),
		DurationMinutes: 20,
	}
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) || got.DurationMinutes != want.DurationMinutes || got.IsOngoing {
		t.Errorf("interval = %+v, want %+v", got, want)
	}
}

func TestDetectOffline_Ongoing(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp"},
		[]string{"2024-01-01T00:00:00Z"},
		[]string{"2024-01-01T00:00:30Z"},
	)
	report, err := DetectOffline(ds, roles, mustTime(t, "2024-01-01T01:00:00Z"), testConfig())
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if len(report.Intervals) != 1 {
		t.Fatalf("got %d intervals, want 1", len(report.Intervals))
	}
	iv := report.Intervals[0]
	if !iv.IsOngoing {
		t.Error("last interval should be ongoing")
	}
	if !iv.End.Equal(mustTime(t, "2024-01-01T01:00:00Z")) {
		t.Errorf("End = %v, want now", iv.End)
	}
	if iv.DurationMinutes != 60 {
		t.Errorf("DurationMinutes = %d, want 60 (59.5 rounds up)", iv.DurationMinutes)
	}
}

func TestDetectOffline_ThresholdIsStrict(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Time"},
		[]string{"2024-01-01T00:00:00Z"},
		[]string{"2024-01-01T00:01:00Z"},
		[]string{"2024-01-01T00:02:01Z"},
	)
	report, err := DetectOffline(ds, roles, mustTime(t, "2024-01-01T00:03:01Z"), testConfig())
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if len(report.Intervals) != 1 {
		t.Fatalf("got %+v, want only the 61s gap", report.Intervals)
	}
	if !report.Intervals[0].Start.Equal(mustTime(t, "2024-01-01T00:01:00Z")) {
		t.Errorf("Start = %v", report.Intervals[0].Start)
	}
	if report.Intervals[0].DurationMinutes != 1 {
		t.Errorf("DurationMinutes = %d, want 1", report.Intervals[0].DurationMinutes)
	}
}

func TestDetectOffline_WindowSortAndInvalidRows(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Date", "Temperature"},
		[]string{"2024-01-01T10:00:00Z", "1"},
		[]string{"not a date", "2"},
		[]string{"2023-12-31T11:00:00Z", "3"},
		[]string{"", "4"},
		[]string{"2024-01-01T09:00:00Z", "5"},
		[]string{"2024-01-01T00:00:00Z", "6"},
	)
	now := mustTime(t, "2024-01-01T10:00:30Z")
	report, err := DetectOffline(ds, roles, now, testConfig())
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if report.DataPoints != 3 {
		t.Errorf("DataPoints = %d, want 3", report.DataPoints)
	}
	if len(report.Intervals) != 2 {
		t.Fatalf("got %d intervals, want 2: %+v", len(report.Intervals), report.Intervals)
	}
	for i, iv := range report.Intervals {
		if !iv.Start.Before(iv.End) {
			t.Errorf("interval %d: start %v not before end %v", i, iv.Start, iv.End)
		}
		if iv.IsOngoing {
			t.Errorf("interval %d unexpectedly ongoing", i)
		}
		if i > 0 && !report.Intervals[i-1].Start.Before(iv.Start) {
			t.Errorf("intervals not in chronological order")
		}
	}
	if report.Intervals[0].DurationMinutes != 540 || report.Intervals[1].DurationMinutes != 60 {
		t.Errorf("durations = %d,%d, want 540,60", report.Intervals[0].DurationMinutes, report.Intervals[1].DurationMinutes)
	}
}

func TestDetectOffline_NoSamplesInWindow(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp"},
		[]string{"2020-01-01T00:00:00Z"},
	)
	report, err := DetectOffline(ds, roles, mustTime(t, "2024-01-01T00:00:00Z"), testConfig())
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if report.DataPoints != 0 || len(report.Intervals) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	b, _ := json.Marshal(report)
	if string(b) != `{"intervals":[],"dataPoints":0}` {
		t.Errorf("json = %s", b)
	}
}

func TestDetectOffline_UnresolvedTimestamp(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Temp", "Hum"},
		[]string{"20", "50"},
	)
	_, err := DetectOffline(ds, roles, time.Now(), testConfig())
	if !errors.Is(err, apperr.ErrUnresolvedTimestamp) {
		t.Errorf("err = %v, want ErrUnresolvedTimestamp", err)
	}
}

func TestDetectOffline_ZonelessTimestampsUseLocation(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp"},
		[]string{"2024-01-01 00:00:00"},
		[]string{"2024-01-01 00:10:00"},
	)
	cfg := testConfig()
	cfg.Location = time.FixedZone("UTC+2", 2*60*60)
	report, err := DetectOffline(ds, roles, mustTime(t, "2023-12-31T22:10:30Z"), cfg)
	if err != nil {
		t.Fatalf("DetectOffline: %v", err)
	}
	if len(report.Intervals) != 1 {
		t.Fatalf("got %+v, want one gap", report.Intervals)
	}
	if !report.Intervals[0].Start.Equal(mustTime(t, "2023-12-31T22:00:00Z")) {
		t.Errorf("Start = %v, want 22:00 UTC", report.Intervals[0].Start)
	}
}

func TestExtractEnvHistory_WindowAnchoredAtLastSample(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "Temperature", "Humidity", "GasR0", "Bat(%)"},
		[]string{"2024-01-01T06:00:00Z", "24", "40", "100", "80"},
		[]string{"2024-01-01T00:00:00Z", "20", "50", "110", "90"},
		[]string{"2024-01-01T03:00:00Z", "22", "oops", "105", "85"},
		[]string{"2024-01-01T02:59:59Z", "21", "45", "107", "87"},
	)
	h, err := ExtractEnvHistory(ds, roles, testConfig())
	if err != nil {
		t.Fatalf("ExtractEnvHistory: %v", err)
	}
	if len(h.Timestamps) != 2 {
		t.Fatalf("got %d samples, want 2 (03:00 inclusive, 06:00)", len(h.Timestamps))
	}
	for _, n := range []int{len(h.Temperature), len(h.Humidity), len(h.GasR0), len(h.Battery)} {
		if n != len(h.Timestamps) {
			t.Fatalf("sequences not aligned: %+v", h)
		}
	}
	if !h.Timestamps[0].Equal(mustTime(t, "2024-01-01T03:00:00Z")) {
		t.Errorf("first = %v, want 03:00", h.Timestamps[0])
	}
	if h.Temperature[0] != 22 || h.Temperature[1] != 24 {
		t.Errorf("Temperature = %v", h.Temperature)
	}
	if !h.Humidity[0].IsNaN() {
		t.Errorf("Humidity[0] = %v, want NaN", h.Humidity[0])
	}
	if h.GasR0[1] != 100 || h.Battery[1] != 80 {
		t.Errorf("GasR0/Battery = %v/%v", h.GasR0, h.Battery)
	}
}

func TestExtractEnvHistory_UnresolvedRolesAreNaN(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "Temp"},
		[]string{"2024-01-01T00:00:00Z", "20"},
	)
	h, err := ExtractEnvHistory(ds, roles, testConfig())
	if err != nil {
		t.Fatalf("ExtractEnvHistory: %v", err)
	}
	if !h.Humidity[0].IsNaN() || !h.GasR0[0].IsNaN() || !h.Battery[0].IsNaN() {
		t.Errorf("unresolved roles should be NaN: %+v", h)
	}
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamps":["2024-01-01T00:00:00Z"],"temperature":[20],"humidity":[null],"gasr0":[null],"battery":[null]}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}

func TestExtractEnvHistory_NoValidTimestamps(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "Temp"},
		[]string{"garbage", "20"},
	)
	h, err := ExtractEnvHistory(ds, roles, testConfig())
	if err != nil {
		t.Fatalf("ExtractEnvHistory: %v", err)
	}
	b, _ := json.Marshal(h)
	if string(b) != `{"timestamps":[],"temperature":[],"humidity":[],"gasr0":[],"battery":[]}` {
		t.Errorf("json = %s", b)
	}
}

func TestExtractEnvHistory_UnresolvedTimestamp(t *testing.T) {
	ds, roles := dataset(t, []string{"Temp"}, []string{"20"})
	if _, err := ExtractEnvHistory(ds, roles, testConfig()); !errors.Is(err, apperr.ErrUnresolvedTimestamp) {
		t.Errorf("err = %v, want ErrUnresolvedTimestamp", err)
	}
}

func TestBuildSnapshot_DataTime(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "Temp", "Humidity", "CHR2", "CHR0"},
		[]string{"2024-01-01T00:00:00Z", "20", "50", "1", "2"},
		[]string{"2024-01-01T00:20:00Z", "21", "51", "x", "6"},
	)
	file := filestore.File{Name: "DEV1", LastModified: mustTime(t, "2024-02-01T00:00:00Z")}
	snap := BuildSnapshot(ds, roles, file)

	if snap.TimeSource != TimeSourceData || snap.LastUpdated != "2024-01-01T00:20:00Z" {
		t.Errorf("time = %q (%s)", snap.LastUpdated, snap.TimeSource)
	}
	if snap.Temperature != "21" || snap.Humidity != "51" {
		t.Errorf("scalars = %q/%q", snap.Temperature, snap.Humidity)
	}
	if snap.Battery != Unavailable {
		t.Errorf("Battery = %q, want %q", snap.Battery, Unavailable)
	}
	if len(snap.Channels.Labels) != 2 || snap.Channels.Labels[0] != "CHR0" || snap.Channels.Labels[1] != "CHR2" {
		t.Fatalf("labels = %v, want [CHR0 CHR2]", snap.Channels.Labels)
	}
	if snap.Channels.Values[0] != 6 || !snap.Channels.Values[1].IsNaN() {
		t.Errorf("values = %v, want [6 NaN]", snap.Channels.Values)
	}
}

func TestBuildSnapshot_FileTimeFallback(t *testing.T) {
	mod := time.Date(2024, 2, 1, 8, 30, 0, 123e6, time.FixedZone("x", 3600))
	for name, rows := range map[string][][]string{
		"no timestamp role": {{"Temp"}, {"20"}},
		"empty cell":        {{"Timestamp", "Temp"}, {"", "20"}},
		"short row":         {{"Temp", "Timestamp"}, {"20"}},
	} {
		t.Run(name, func(t *testing.T) {
			ds, roles := dataset(t, rows...)
			snap := BuildSnapshot(ds, roles, filestore.File{Name: "DEV1", LastModified: mod})
			if snap.TimeSource != TimeSourceFile {
				t.Errorf("TimeSource = %q, want file", snap.TimeSource)
			}
			if snap.LastUpdated != "2024-02-01T07:30:00.123Z" {
				t.Errorf("LastUpdated = %q", snap.LastUpdated)
			}
		})
	}
}

func TestBuildSnapshot_JSON(t *testing.T) {
	ds, roles := dataset(t,
		[]string{"Timestamp", "CHR0"},
		[]string{"2024-01-01T00:00:00Z", ""},
	)
	b, err := json.Marshal(BuildSnapshot(ds, roles, filestore.File{Name: "DEV1"}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"fileName":"DEV1","lastUpdated":"2024-01-01T00:00:00Z","timeSource":"data",` +
		`"temperature":"N/A","humidity":"N/A","battery":"N/A","channels":{"labels":["CHR0"],"values":[null]}}`
	if string(b) != want {
		t.Errorf("json = %s\nwant  %s", b, want)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"20", 20},
		{" 3.5 ", 3.5},
		{"-1e2", -100},
	}
	for _, tt := range tests {
		if got := ParseNumber(tt.in); float64(got) != tt.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"", "abc", "12px"} {
		if got := ParseNumber(in); !math.IsNaN(float64(got)) {
			t.Errorf("ParseNumber(%q) = %v, want NaN", in, got)
		}
	}
}

func TestNumber_JSONRoundTrip(t *testing.T) {
	var n Number
	if err := json.Unmarshal([]byte("null"), &n); err != nil || !n.IsNaN() {
		t.Errorf("null -> %v, %v", n, err)
	}
	if err := json.Unmarshal([]byte("1.5"), &n); err != nil || n != 1.5 {
		t.Errorf("1.5 -> %v, %v", n, err)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01T00:20:00Z", "2024-01-01T00:20:00Z"},
		{"2024-01-01T00:20:00.500+01:00", "2023-12-31T23:20:00.5Z"},
		{"2024-01-01 00:20:00", "2024-01-01T00:20:00Z"},
		{"1/2/2024 03:04:05 PM", "2024-01-02T15:04:05Z"},
	}
	for _, tt := range tests {
		got, ok := ParseTime(tt.in, time.UTC)
		if !ok {
			t.Errorf("ParseTime(%q) failed", tt.in)
			continue
		}
		if s := got.UTC().Format(time.RFC3339Nano); s != tt.want {
			t.Errorf("ParseTime(%q) = %s, want %s", tt.in, s, tt.want)
		}
	}
	for _, in := range []string{"", "   ", "not a date"} {
		if _, ok := ParseTime(in, time.UTC); ok {
			t.Errorf("ParseTime(%q) should fail", in)
		}
	}
}
