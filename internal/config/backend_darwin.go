//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

const defaultsDomain = "com.kalambet.deepskin"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "deepskin")
	}
	return "deepskin-data"
}

func secretHint() string {
	return " or macOS Keychain (service: " + secretService + ", account: s3_secret_access_key)"
}

func newPlatformBackend() Backend {
	return newDefaultsBackend(defaultsDomain)
}
