// Package annotation appends human-entered context records to per-user,
// per-device CSV logs in the file store.
//
// Appends are a read-modify-write of the whole log with no locking, so two
// concurrent appends to the same log can lose one row.
package annotation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/filestore"
)

// Header is the first line of every annotation log.
const Header = `"Timestamp","User Name","Device ID","Event ID","Context"` + "\n"

// DefaultLayout renders timestamps as a US-locale date and time.
const DefaultLayout = "1/2/2006, 3:04:05 PM"

// Record is one annotation. A zero Timestamp means "now".
type Record struct {
	UserName  string
	DeviceID  string
	EventID   string
	Context   string
	Timestamp time.Time
}

// Validate reports the required fields that are empty.
func (r Record) Validate() error {
	var missing []string
	if r.UserName == "" {
		missing = append(missing, "userName")
	}
	if r.DeviceID == "" {
		missing = append(missing, "deviceId")
	}
	if r.EventID == "" {
		missing = append(missing, "eventId")
	}
	if len(missing) > 0 {
		return &apperr.MissingFieldError{Fields: missing}
	}
	return nil
}

// Appender writes records into logs under Folder, creating it on first use.
type Appender struct {
	Store    filestore.Store
	Folder   string
	Layout   string
	Location *time.Location
	Now      func() time.Time
}

// Append writes rec to its log and returns the log's file name.
func (a *Appender) Append(ctx context.Context, rec Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	folder, err := filestore.GetOrCreateFolder(ctx, a.Store, a.Folder)
	if err != nil {
		return "", fmt.Errorf("opening annotation folder %q: %w", a.Folder, err)
	}

	name := LogName(rec.UserName, rec.DeviceID)
	row := a.row(rec)

	existing, err := a.Store.FindFile(ctx, folder, name)
	switch {
	case err == nil:
		content, err := a.Store.ReadFile(ctx, existing)
		if err != nil {
			return "", fmt.Errorf("reading log %s: %w", name, err)
		}
		if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
			content = append(content, '\n')
		}
		if _, err := a.Store.WriteFile(ctx, existing, append(content, row...)); err != nil {
			return "", fmt.Errorf("writing log %s: %w", name, err)
		}
		slog.Debug("annotation appended", "log", name, "event", rec.EventID)
	case errors.Is(err, filestore.ErrNotFound):
		content := Header + row
		if _, err := a.Store.CreateFile(ctx, folder, name, []byte(content), filestore.ContentTypeCSV); err != nil {
			return "", fmt.Errorf("creating log %s: %w", name, err)
		}
		slog.Debug("annotation log created", "log", name, "event", rec.EventID)
	default:
		return "", fmt.Errorf("looking up log %s: %w", name, err)
	}
	return name, nil
}

func (a *Appender) row(rec Record) string {
	ts := rec.Timestamp
	if ts.IsZero() {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		ts = now()
	}
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	layout := a.Layout
	if layout == "" {
		layout = DefaultLayout
	}

	fields := []string{ts.In(loc).Format(layout), rec.UserName, rec.DeviceID, rec.EventID, rec.Context}
	for i, f := range fields {
		fields[i] = EscapeField(f)
	}
	return strings.Join(fields, ",") + "\n"
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize replaces every character outside [A-Za-z0-9_-] with '_'.
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// LogName is the file name of the log for a user and device.
func LogName(userName, deviceID string) string {
	return Sanitize(userName) + "_" + Sanitize(deviceID) + ".csv"
}

// EscapeField quotes f when it holds a quote, comma or line break, doubling
// inner quotes. Other fields, including the empty string, are returned as is.
func EscapeField(f string) string {
	if !strings.ContainsAny(f, "\",\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
