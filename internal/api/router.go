package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/deepskin/internal/analysis"
	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the HTTP handler needs.
type Deps struct {
	Service *service.Service
	// Metrics is optional; when nil no /metrics route is served.
	Metrics *Metrics
	// Token enables the /files routes, guarded by bearer auth.
	Token string
}

// NewHandler returns the deepskin HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Metrics))
	r.Use(recoverer)

	r.Get("/", handleInfo)
	r.Post("/", handleAction(deps))
	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.Token != "" {
		r.Route("/files", func(r chi.Router) {
			r.Use(BearerAuth(deps.Token))
			r.Get("/{folder}", handleListFiles(deps))
			r.Put("/{folder}/{name}", handleUploadFile(deps))
		})
	}

	return r
}

type infoResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Status:  "Annotation App API is running",
		Message: `Send POST requests with an "action" field; requests without one are annotation submissions`,
		Actions: []Action{ActionSubmitAnnotation, ActionDeviceHealth, ActionOfflineData, ActionEnvHistory},
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleAction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, decodeStatus(err), fmt.Errorf("reading request body: %w", err))
			return
		}

		req, err := DecodeRequest(body)
		if err != nil {
			writeError(w, decodeStatus(err), err)
			return
		}

		resp, err := Dispatch(r.Context(), deps.Service, req)
		deps.Metrics.observeAction(req.Action(), outcome(err))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnexpected {
				slog.Error("action failed",
					"action", req.Action(),
					"error", err,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type healthResponse struct {
	Success bool `json:"success"`
	analysis.HealthSnapshot
}

type offlineResponse struct {
	Success bool `json:"success"`
	analysis.OfflineReport
}

type envResponse struct {
	Success bool `json:"success"`
	analysis.EnvHistory
}

type submitResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileName string `json:"fileName"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Dispatch runs req against svc and returns the success payload.
func Dispatch(ctx context.Context, svc *service.Service, req Request) (any, error) {
	switch v := req.(type) {
	case DeviceQuery:
		switch v.Kind {
		case ActionDeviceHealth:
			snap, err := svc.DeviceHealth(ctx, v.DeviceID)
			if err != nil {
				return nil, err
			}
			return healthResponse{Success: true, HealthSnapshot: snap}, nil
		case ActionOfflineData:
			report, err := svc.OfflineData(ctx, v.DeviceID)
			if err != nil {
				return nil, err
			}
			return offlineResponse{Success: true, OfflineReport: report}, nil
		case ActionEnvHistory:
			h, err := svc.EnvHistory(ctx, v.DeviceID)
			if err != nil {
				return nil, err
			}
			return envResponse{Success: true, EnvHistory: h}, nil
		}
		return nil, fmt.Errorf("unsupported query %q", v.Kind)
	case AnnotationSubmission:
		name, err := svc.SubmitAnnotation(ctx, v.toService())
		if err != nil {
			return nil, err
		}
		return submitResponse{Success: true, Message: "Data saved successfully", FileName: name}, nil
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindMissingField:
		return http.StatusBadRequest
	case apperr.KindDeviceNotFound:
		return http.StatusNotFound
	case apperr.KindEmptySource, apperr.KindUnresolvedTimestamp:
		return http.StatusUnprocessableEntity
	default:
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

// decodeStatus maps failures before dispatch; unclassified ones are the
// client's fault.
func decodeStatus(err error) int {
	if code := statusFor(err); code != http.StatusInternalServerError {
		return code
	}
	return http.StatusBadRequest
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeFailure(w, code, apperr.Message(err))
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, failureResponse{Success: false, Message: msg})
}
