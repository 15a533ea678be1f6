package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DEEPSKIN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.h2c", typ: kBool, env: "DEEPSKIN_SERVER_H2C",
		apply:   func(cfg *Config, v any) { cfg.Server.H2C = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.H2C },
	},
	{
		key: "server.token", typ: kString, env: "DEEPSKIN_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "log.level", typ: kString, env: "DEEPSKIN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "store.driver", typ: kString, env: "DEEPSKIN_STORE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Store.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.Driver },
	},
	{
		key: "store.fs_root", typ: kString, env: "DEEPSKIN_STORE_FS_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Store.FSRoot = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.FSRoot },
	},
	{
		key: "store.dsn", typ: kString, env: "DEEPSKIN_STORE_DSN",
		apply:   func(cfg *Config, v any) { cfg.Store.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.DSN },
	},
	{
		key: "store.s3_bucket", typ: kString, env: "DEEPSKIN_STORE_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Store.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.S3Bucket },
	},
	{
		key: "store.s3_region", typ: kString, env: "DEEPSKIN_STORE_S3_REGION",
		apply:   func(cfg *Config, v any) { cfg.Store.S3Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.S3Region },
	},
	{
		key: "store.s3_endpoint", typ: kString, env: "DEEPSKIN_STORE_S3_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Store.S3Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.S3Endpoint },
	},
	{
		key: "store.s3_path_style", typ: kBool, env: "DEEPSKIN_STORE_S3_PATH_STYLE",
		apply:   func(cfg *Config, v any) { cfg.Store.S3PathStyle = v.(bool) },
		extract: func(cfg Config) any { return cfg.Store.S3PathStyle },
	},
	{
		key: "store.s3_access_key_id", typ: kString, env: "DEEPSKIN_STORE_S3_ACCESS_KEY_ID",
		apply:   func(cfg *Config, v any) { cfg.Store.S3AccessKeyID = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.S3AccessKeyID },
	},
	{
		key: "store.s3_secret_access_key", typ: kString, env: "DEEPSKIN_STORE_S3_SECRET_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Store.S3SecretAccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.S3SecretAccessKey },
	},
	{
		key: "folders.sensor_data", typ: kString, env: "DEEPSKIN_FOLDERS_SENSOR_DATA",
		apply:   func(cfg *Config, v any) { cfg.Folders.SensorData = v.(string) },
		extract: func(cfg Config) any { return cfg.Folders.SensorData },
	},
	{
		key: "folders.annotations", typ: kString, env: "DEEPSKIN_FOLDERS_ANNOTATIONS",
		apply:   func(cfg *Config, v any) { cfg.Folders.Annotations = v.(string) },
		extract: func(cfg Config) any { return cfg.Folders.Annotations },
	},
	{
		key: "analysis.offline_window", typ: kDuration, env: "DEEPSKIN_ANALYSIS_OFFLINE_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Analysis.OfflineWindow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Analysis.OfflineWindow },
	},
	{
		key: "analysis.env_window", typ: kDuration, env: "DEEPSKIN_ANALYSIS_ENV_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Analysis.EnvWindow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Analysis.EnvWindow },
	},
	{
		key: "analysis.gap_threshold", typ: kDuration, env: "DEEPSKIN_ANALYSIS_GAP_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Analysis.GapThreshold = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Analysis.GapThreshold },
	},
	{
		key: "analysis.channel_slots", typ: kInt, env: "DEEPSKIN_ANALYSIS_CHANNEL_SLOTS",
		apply:   func(cfg *Config, v any) { cfg.Analysis.ChannelSlots = v.(int) },
		extract: func(cfg Config) any { return cfg.Analysis.ChannelSlots },
	},
	{
		key: "analysis.timezone", typ: kString, env: "DEEPSKIN_ANALYSIS_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Analysis.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Analysis.Timezone },
	},
	{
		key: "annotations.time_layout", typ: kString, env: "DEEPSKIN_ANNOTATIONS_TIME_LAYOUT",
		apply:   func(cfg *Config, v any) { cfg.Annotations.TimeLayout = v.(string) },
		extract: func(cfg Config) any { return cfg.Annotations.TimeLayout },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
