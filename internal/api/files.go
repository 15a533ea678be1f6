package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/deepskin/internal/filestore"
)

// maxUploadSize bounds a single uploaded device file.
const maxUploadSize = 32 << 20

type listFilesResponse struct {
	Success bool             `json:"success"`
	Folder  string           `json:"folder"`
	Files   []filestore.File `json:"files"`
}

type uploadResponse struct {
	Success bool           `json:"success"`
	Created bool           `json:"created"`
	File    filestore.File `json:"file"`
}

func handleListFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "folder")
		store := deps.Service.Store()

		folder, err := store.FindFolder(r.Context(), name)
		if errors.Is(err, filestore.ErrNotFound) {
			writeFailure(w, http.StatusNotFound, fmt.Sprintf("Folder %q not found", name))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		files, err := store.SearchFiles(r.Context(), folder, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if files == nil {
			files = []filestore.File{}
		}
		writeJSON(w, http.StatusOK, listFilesResponse{Success: true, Folder: folder.Name, Files: files})
	}
}

// handleUploadFile stores the request body as folder/name, creating the
// folder and the file as needed and overwriting an existing live file.
func handleUploadFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folderName := chi.URLParam(r, "folder")
		name := chi.URLParam(r, "name")
		if !filestore.ValidName(folderName) || !filestore.ValidName(name) {
			writeFailure(w, http.StatusBadRequest, "Invalid folder or file name")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()
		content, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeFailure(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = filestore.ContentTypeFor(name)
		}

		ctx := r.Context()
		store := deps.Service.Store()
		folder, err := filestore.GetOrCreateFolder(ctx, store, folderName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		var (
			file    filestore.File
			created bool
		)
		existing, err := store.FindFile(ctx, folder, name)
		switch {
		case err == nil:
			file, err = store.WriteFile(ctx, existing, content)
		case errors.Is(err, filestore.ErrNotFound):
			file, err = store.CreateFile(ctx, folder, name, content, contentType)
			created = true
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		slog.Info("file uploaded",
			"folder", folder.Name,
			"file", file.Name,
			"size", file.Size,
			"created", created,
		)
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(w, code, uploadResponse{Success: true, Created: created, File: file})
	}
}
