// Package service answers device queries and records annotations on top of
// a file store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/deepskin/internal/analysis"
	"github.com/kalambet/deepskin/internal/annotation"
	"github.com/kalambet/deepskin/internal/columns"
	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/locator"
	"github.com/kalambet/deepskin/internal/tabular"
)

// Config names the folders and tunes the analyses.
type Config struct {
	SensorFolder     string
	AnnotationFolder string
	Analysis         analysis.Config
	// TimeLayout renders annotation timestamps.
	TimeLayout string
}

// DefaultConfig returns the folder names and analysis defaults used in
// production.
func DefaultConfig() Config {
	return Config{
		SensorFolder:     "Wearable sensor data",
		AnnotationFolder: "Wearable_deepskin_context",
		Analysis:         analysis.DefaultConfig(),
		TimeLayout:       annotation.DefaultLayout,
	}
}

// Service holds no per-request state; it is safe for concurrent use as long
// as the store is.
type Service struct {
	store    filestore.Store
	cfg      Config
	now      func() time.Time
	appender *annotation.Appender
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service over store.
func New(store filestore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{store: store, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.appender = &annotation.Appender{
		Store:    store,
		Folder:   cfg.AnnotationFolder,
		Layout:   cfg.TimeLayout,
		Location: cfg.Analysis.Location,
		Now:      s.now,
	}
	return s
}

// Store returns the underlying file store.
func (s *Service) Store() filestore.Store { return s.store }

// source is a device's located file, parsed and with resolved columns.
type source struct {
	file  filestore.File
	ds    tabular.Dataset
	roles columns.RoleMap
}

func (s *Service) load(ctx context.Context, deviceID string) (source, error) {
	folder, err := s.store.FindFolder(ctx, s.cfg.SensorFolder)
	if err != nil {
		return source{}, fmt.Errorf("opening sensor folder %q: %w", s.cfg.SensorFolder, err)
	}
	file, err := locator.Locate(ctx, s.store, folder, deviceID)
	if err != nil {
		return source{}, err
	}
	content, err := s.store.ReadFile(ctx, file)
	if err != nil {
		return source{}, fmt.Errorf("reading %s: %w", file.Name, err)
	}
	src, err := tabular.Open(file, content)
	if err != nil {
		return source{}, err
	}
	ds, err := src.ReadAll()
	if err != nil {
		return source{}, fmt.Errorf("%s: %w", file.Name, err)
	}
	roles := columns.Resolve(ds.Header(), s.cfg.Analysis.ChannelSlots)
	slog.Debug("device source loaded",
		"device", deviceID,
		"file", file.Name,
		"rows", ds.Len(),
		"roles", roles.Len(),
	)
	return source{file: file, ds: ds, roles: roles}, nil
}

// DeviceHealth returns the latest snapshot of deviceID.
func (s *Service) DeviceHealth(ctx context.Context, deviceID string) (analysis.HealthSnapshot, error) {
	src, err := s.load(ctx, deviceID)
	if err != nil {
		return analysis.HealthSnapshot{}, err
	}
	return analysis.BuildSnapshot(src.ds, src.roles, src.file), nil
}

// OfflineData returns the offline intervals of deviceID within the offline
// window ending now.
func (s *Service) OfflineData(ctx context.Context, deviceID string) (analysis.OfflineReport, error) {
	src, err := s.load(ctx, deviceID)
	if err != nil {
		return analysis.OfflineReport{}, err
	}
	return analysis.DetectOffline(src.ds, src.roles, s.now(), s.cfg.Analysis)
}

// EnvHistory returns the recent environmental readings of deviceID.
func (s *Service) EnvHistory(ctx context.Context, deviceID string) (analysis.EnvHistory, error) {
	src, err := s.load(ctx, deviceID)
	if err != nil {
		return analysis.EnvHistory{}, err
	}
	return analysis.ExtractEnvHistory(src.ds, src.roles, s.cfg.Analysis)
}

// Submission is an annotation as received from a client. Timestamp is
// optional and parsed leniently; empty means now.
type Submission struct {
	UserName  string
	DeviceID  string
	EventID   string
	Context   string
	Timestamp string
}

func (sub Submission) record() annotation.Record {
	return annotation.Record{
		UserName: sub.UserName,
		DeviceID: sub.DeviceID,
		EventID:  sub.EventID,
		Context:  sub.Context,
	}
}

// Validate reports missing required fields.
func (sub Submission) Validate() error {
	return sub.record().Validate()
}

// SubmitAnnotation appends sub to its log and returns the log's file name.
func (s *Service) SubmitAnnotation(ctx context.Context, sub Submission) (string, error) {
	rec := sub.record()
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if sub.Timestamp != "" {
		ts, ok := analysis.ParseTime(sub.Timestamp, s.cfg.Analysis.Location)
		if !ok {
			return "", fmt.Errorf("invalid timestamp %q", sub.Timestamp)
		}
		rec.Timestamp = ts
	}
	return s.appender.Append(ctx, rec)
}
