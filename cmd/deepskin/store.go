package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/deepskin/internal/analysis"
	"github.com/kalambet/deepskin/internal/config"
	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/service"
	"github.com/kalambet/deepskin/internal/storage"
)

// openStore builds the file store selected by store.driver. The returned
// close function is never nil.
func openStore(ctx context.Context, cfg config.Config) (filestore.Store, func() error, error) {
	noop := func() error { return nil }

	switch filestore.Driver(cfg.Store.Driver) {
	case filestore.DriverFS:
		s, err := filestore.NewFilesystem(cfg.Store.FSRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("opening filesystem store: %w", err)
		}
		return s, noop, nil
	case filestore.DriverMemory:
		return filestore.NewMemory(), noop, nil
	case filestore.DriverS3:
		s, err := filestore.NewS3(ctx, filestore.S3Config{
			Bucket:          cfg.Store.S3Bucket,
			Region:          cfg.Store.S3Region,
			Endpoint:        cfg.Store.S3Endpoint,
			AccessKeyID:     cfg.Store.S3AccessKeyID,
			SecretAccessKey: cfg.Store.S3SecretAccessKey,
			PathStyle:       cfg.Store.S3PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening s3 store: %w", err)
		}
		return s, noop, nil
	case filestore.DriverSQLite:
		s, err := storage.Open(cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, s.Close, nil
	case filestore.DriverPostgres:
		s, err := storage.OpenPostgres(cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// serviceConfig maps loaded configuration onto the service.
func serviceConfig(cfg config.Config) (service.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return service.Config{}, err
	}
	return service.Config{
		SensorFolder:     cfg.Folders.SensorData,
		AnnotationFolder: cfg.Folders.Annotations,
		Analysis: analysis.Config{
			OfflineWindow: cfg.Analysis.OfflineWindow,
			EnvWindow:     cfg.Analysis.EnvWindow,
			GapThreshold:  cfg.Analysis.GapThreshold,
			ChannelSlots:  cfg.Analysis.ChannelSlots,
			Location:      loc,
		},
		TimeLayout: cfg.Annotations.TimeLayout,
	}, nil
}

// openService opens the configured store and wraps it in a Service.
func openService(ctx context.Context, cfg config.Config) (*service.Service, func() error, error) {
	scfg, err := serviceConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("file store opened", "driver", store.Driver())
	return service.New(store, scfg), closeStore, nil
}
