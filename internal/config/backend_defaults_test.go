package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeDefaults mimics defaults(1) for a single domain.
type fakeDefaults struct {
	domain string
	values map[string]string
	calls  []string
}

func (f *fakeDefaults) run(_ context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	verb, domain, key := args[0], args[1], args[2]
	if domain != f.domain {
		return []byte("Domain " + domain + " does not exist"), errors.New("exit status 1")
	}
	switch verb {
	case "read":
		v, ok := f.values[key]
		if !ok {
			return []byte(fmt.Sprintf("The domain/default pair of (%s, %s) does not exist", domain, key)), errors.New("exit status 1")
		}
		return []byte(v + "\n"), nil
	case "write":
		f.values[key] = args[4]
		return nil, nil
	case "delete":
		if _, ok := f.values[key]; !ok {
			return []byte("Domain (" + domain + ") not found.\nDefaults have not been changed.\nThe key does not exist"), errors.New("exit status 1")
		}
		delete(f.values, key)
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected verb %q", verb)
}

func newFakeDefaultsBackend() (*defaultsBackend, *fakeDefaults) {
	fake := &fakeDefaults{domain: "com.kalambet.deepskin", values: map[string]string{}}
	b := newDefaultsBackend(fake.domain)
	b.run = fake.run
	return b, fake
}

func TestDefaultsBackend_SetAndLoad(t *testing.T) {
	clearEnv(t)
	b, fake := newFakeDefaultsBackend()

	for key, value := range map[string]string{
		"server.port":             "4200",
		"folders.sensor_data":     "Sensors",
		"analysis.offline_window": "6h",
	} {
		if err := setKey(b, key, value); err != nil {
			t.Fatalf("setKey(%s): %v", key, err)
		}
	}
	if fake.values["server.port"] != "4200" {
		t.Errorf("stored port = %q", fake.values["server.port"])
	}
	if want := "write com.kalambet.deepskin server.port -int 4200"; !containsCall(fake.calls, want) {
		t.Errorf("calls = %q, want %q", fake.calls, want)
	}

	cfg, err := loadWith(b, fakeSecrets{err: errors.New("none")})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.Folders.SensorData != "Sensors" || cfg.Analysis.OfflineWindow.Hours() != 6 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Folders.Annotations != defaults().Folders.Annotations {
		t.Errorf("unset key should keep its default, got %q", cfg.Folders.Annotations)
	}
}

func TestDefaultsBackend_MissingAndDelete(t *testing.T) {
	b, _ := newFakeDefaultsBackend()

	if _, ok, err := b.GetString("log.level"); ok || err != nil {
		t.Errorf("GetString(unset) = ok %v, err %v", ok, err)
	}
	if err := b.Delete("log.level"); err != nil {
		t.Errorf("Delete(unset) = %v", err)
	}
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete("log.level"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.GetString("log.level"); ok {
		t.Error("key still present after Delete")
	}
}

func TestDefaultsBackend_Errors(t *testing.T) {
	b, fake := newFakeDefaultsBackend()
	fake.values["server.port"] = "not-a-number"
	if _, _, err := b.GetInt("server.port"); err == nil {
		t.Error("GetInt accepted a non-integer")
	}

	b.run = func(context.Context, ...string) ([]byte, error) {
		return []byte("defaults: permission denied"), errors.New("exit status 2")
	}
	if _, _, err := b.GetString("server.port"); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("GetString error = %v", err)
	}
	if err := b.SetString("log.level", "debug"); err == nil {
		t.Error("SetString swallowed the tool failure")
	}
}

func containsCall(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}
