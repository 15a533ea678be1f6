// Package apperr defines the error kinds surfaced at the request boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrDeviceNotFound is returned when no source file matches a device id.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrEmptySource is returned when a source file has a header only or no rows.
	ErrEmptySource = errors.New("file is empty or has no data")

	// ErrUnresolvedTimestamp is returned by time-windowed queries when no
	// column could be identified as the timestamp.
	ErrUnresolvedTimestamp = errors.New("no timestamp column found")
)

// MissingFieldError reports required input fields that were absent.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	if len(e.Fields) == 0 {
		return "missing required fields"
	}
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// DeviceNotFoundError names the device no source file matched. It matches
// ErrDeviceNotFound under errors.Is.
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no files found matching Device ID %q", e.DeviceID)
}

func (e *DeviceNotFoundError) Is(target error) bool {
	return target == ErrDeviceNotFound
}

// Kind classifies an error for the response layer.
type Kind string

const (
	KindMissingField        Kind = "missing_field"
	KindDeviceNotFound      Kind = "device_not_found"
	KindEmptySource         Kind = "empty_source"
	KindUnresolvedTimestamp Kind = "unresolved_timestamp"
	KindUnexpected          Kind = "unexpected"
)

// KindOf returns the kind of err. Anything not recognised, including store
// and decoding failures, is KindUnexpected.
func KindOf(err error) Kind {
	var mf *MissingFieldError
	switch {
	case errors.As(err, &mf):
		return KindMissingField
	case errors.Is(err, ErrDeviceNotFound):
		return KindDeviceNotFound
	case errors.Is(err, ErrEmptySource):
		return KindEmptySource
	case errors.Is(err, ErrUnresolvedTimestamp):
		return KindUnresolvedTimestamp
	default:
		return KindUnexpected
	}
}

// Message renders err for a client. Known kinds use the message of the
// underlying kind without wrapping context; anything else is prefixed with
// "Error: ".
func Message(err error) string {
	var (
		mf *MissingFieldError
		nf *DeviceNotFoundError
	)
	switch {
	case errors.As(err, &mf):
		return upperFirst(mf.Error())
	case errors.As(err, &nf):
		return upperFirst(nf.Error())
	case errors.Is(err, ErrDeviceNotFound):
		return upperFirst(ErrDeviceNotFound.Error())
	case errors.Is(err, ErrEmptySource):
		return upperFirst(ErrEmptySource.Error())
	case errors.Is(err, ErrUnresolvedTimestamp):
		return upperFirst(ErrUnresolvedTimestamp.Error())
	default:
		return "Error: " + err.Error()
	}
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
