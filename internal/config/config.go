package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Store       StoreConfig
	Folders     FoldersConfig
	Analysis    AnalysisConfig
	Annotations AnnotationsConfig
}

type ServerConfig struct {
	Port int
	// H2C enables cleartext HTTP/2 alongside HTTP/1.1.
	H2C bool
	// Token enables the bearer-authenticated /files routes when set.
	Token string
}

type LogConfig struct {
	Level string
}

type StoreConfig struct {
	Driver string
	FSRoot string
	// DSN is the SQLite data directory or the PostgreSQL connection string.
	DSN               string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string
}

type FoldersConfig struct {
	SensorData  string
	Annotations string
}

type AnalysisConfig struct {
	OfflineWindow time.Duration
	EnvWindow     time.Duration
	GapThreshold  time.Duration
	ChannelSlots  int
	Timezone      string
}

type AnnotationsConfig struct {
	TimeLayout string
}

var storeDrivers = []string{"fs", "memory", "s3", "sqlite", "postgres"}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver:   "fs",
			FSRoot:   filepath.Join(dataDir, "files"),
			DSN:      dataDir,
			S3Region: "us-east-1",
		},
		Folders: FoldersConfig{
			SensorData:  "Wearable sensor data",
			Annotations: "Wearable_deepskin_context",
		},
		Analysis: AnalysisConfig{
			OfflineWindow: 12 * time.Hour,
			EnvWindow:     3 * time.Hour,
			GapThreshold:  time.Minute,
			ChannelSlots:  32,
			Timezone:      "Local",
		},
		Annotations: AnnotationsConfig{
			TimeLayout: "1/2/2006, 3:04:05 PM",
		},
	}
}

// DataDir is the platform data directory holding the PID file and, by
// default, the local stores.
func DataDir() string {
	return defaultDataDir()
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.kalambet.deepskin) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/deepskin/config.json
// and secrets fall back to $XDG_DATA_HOME/deepskin/secrets.json.
//
// Environment variables (DEEPSKIN_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), platformSecrets{})
}

// Backend persists non-secret keys. Values are stored as strings or ints
// under the dotted key names of the key-spec table.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// secretService is the Keychain service (or secrets.json section) holding
// deepskin secrets.
const secretService = "deepskin"

// secretStore looks up secrets by account name under secretService.
type secretStore interface {
	Secret(account string) (string, error)
}

func loadWith(b Backend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The S3 secret is only looked up when a key id is configured.
	if cfg.Store.S3AccessKeyID != "" && cfg.Store.S3SecretAccessKey == "" {
		cfg.Store.S3SecretAccessKey = lookupSecret(secrets, "s3_secret_access_key")
	}
	if cfg.Server.Token == "" {
		cfg.Server.Token = lookupSecret(secrets, "server_token")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store.driver %q: want one of %s", c.Store.Driver, strings.Join(storeDrivers, ", "))
	}
	if c.Store.Driver == "s3" && c.Store.S3Bucket == "" {
		return fmt.Errorf("missing required config: store.s3_bucket. Set it via environment variable DEEPSKIN_STORE_S3_BUCKET")
	}
	if c.Store.S3AccessKeyID != "" && c.Store.S3SecretAccessKey == "" {
		return fmt.Errorf("%s", "missing required config: S3 secret access key. "+
			"Set it via environment variable DEEPSKIN_STORE_S3_SECRET_ACCESS_KEY"+secretHint())
	}
	if c.Folders.SensorData == "" || c.Folders.Annotations == "" {
		return fmt.Errorf("folder names must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"analysis.offline_window": c.Analysis.OfflineWindow,
		"analysis.env_window":     c.Analysis.EnvWindow,
		"analysis.gap_threshold":  c.Analysis.GapThreshold,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Analysis.ChannelSlots <= 0 {
		return fmt.Errorf("analysis.channel_slots must be positive, got %d", c.Analysis.ChannelSlots)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves analysis.timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Analysis.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis.timezone %q: %w", c.Analysis.Timezone, err)
	}
	return loc, nil
}

func lookupSecret(secrets secretStore, account string) string {
	v, err := secrets.Secret(account)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}
