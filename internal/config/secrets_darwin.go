//go:build darwin

package config

import (
	"context"
	"os/exec"
	"time"
)

// platformSecrets reads generic passwords from the login Keychain.
type platformSecrets struct{}

func (platformSecrets) Secret(account string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "security", "find-generic-password",
		"-s", secretService, "-a", account, "-w").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
