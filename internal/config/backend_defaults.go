package config

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// defaultsBackend keeps keys in a macOS UserDefaults domain through the
// defaults(1) tool. run is swapped out in tests.
type defaultsBackend struct {
	domain string
	run    func(ctx context.Context, args ...string) ([]byte, error)
}

func newDefaultsBackend(domain string) *defaultsBackend {
	return &defaultsBackend{domain: domain, run: runDefaults}
}

func runDefaults(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "defaults", args...).CombinedOutput()
}

func (b *defaultsBackend) exec(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := b.run(ctx, append([]string{args[0], b.domain}, args[1:]...)...)
	return strings.TrimSpace(string(out)), err
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	out, err := b.exec("read", key)
	if err != nil {
		// defaults exits 1 with "... does not exist" for unset keys and
		// for a domain that was never written.
		if strings.Contains(out, "does not exist") {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s from %s: %w: %s", key, b.domain, err, out)
	}
	return out, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b *defaultsBackend) write(key, typ, val string) error {
	if out, err := b.exec("write", key, typ, val); err != nil {
		return fmt.Errorf("writing %s to %s: %w: %s", key, b.domain, err, out)
	}
	return nil
}

func (b *defaultsBackend) Delete(key string) error {
	out, err := b.exec("delete", key)
	if err != nil && !strings.Contains(out, "does not exist") {
		return fmt.Errorf("deleting %s from %s: %w: %s", key, b.domain, err, out)
	}
	return nil
}
