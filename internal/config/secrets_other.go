//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("deepskin-data", "secrets.json")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "deepskin", "secrets.json")
}

// platformSecrets reads secrets.json, a {"deepskin": {"account": "value"}}
// document kept outside the config file.
type platformSecrets struct{}

func (platformSecrets) Secret(account string) (string, error) {
	data, err := os.ReadFile(secretsFilePath())
	if err != nil {
		return "", err
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing %s: %w", secretsFilePath(), err)
	}
	v, ok := doc[secretService][account]
	if !ok {
		return "", fmt.Errorf("no %s.%s entry in %s", secretService, account, secretsFilePath())
	}
	return v, nil
}
