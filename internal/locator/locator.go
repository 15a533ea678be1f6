// Package locator picks the authoritative source file for a device.
package locator

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/filestore"
)

// Locate returns the source file for deviceID in folder.
//
// Candidates are live spreadsheet files whose name contains deviceID.
// Delimited-text files are never candidates, even though the reader can
// still parse them. A candidate named exactly deviceID (ignoring any
// extension) wins; otherwise the first candidate in store order is used, so
// "DEV1" only falls through to "DEV10" when no canonical "DEV1" exists.
func Locate(ctx context.Context, store filestore.Store, folder filestore.Folder, deviceID string) (filestore.File, error) {
	found, err := store.SearchFiles(ctx, folder, deviceID)
	if err != nil {
		return filestore.File{}, fmt.Errorf("searching %q for device %q: %w", folder.Name, deviceID, err)
	}

	candidates := found[:0:0]
	for _, f := range found {
		if f.Trashed || f.Kind() != filestore.KindSpreadsheet {
			continue
		}
		if !strings.Contains(f.Name, deviceID) {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return filestore.File{}, &apperr.DeviceNotFoundError{DeviceID: deviceID}
	}

	for _, f := range candidates {
		if canonical(f.Name, deviceID) {
			return f, nil
		}
	}
	return candidates[0], nil
}

func canonical(name, deviceID string) bool {
	return name == deviceID || strings.TrimSuffix(name, path.Ext(name)) == deviceID
}
