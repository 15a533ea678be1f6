package api

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/service"
)

// Action selects the operation of a POST request.
type Action string

const (
	ActionDeviceHealth     Action = "get_device_health"
	ActionOfflineData      Action = "get_offline_data"
	ActionEnvHistory       Action = "get_env_history"
	ActionSubmitAnnotation Action = "submit_annotation"
)

// Request is one decoded POST body. Every variant validates its own
// required fields before dispatch.
type Request interface {
	Action() Action
	Validate() error
}

// DeviceQuery is a read-only query about one device.
type DeviceQuery struct {
	Kind     Action `json:"-"`
	DeviceID string `json:"deviceId"`
}

func (q DeviceQuery) Action() Action { return q.Kind }

// MarshalJSON includes the action so the encoded query round-trips
// through DecodeRequest.
func (q DeviceQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action   Action `json:"action"`
		DeviceID string `json:"deviceId"`
	}{q.Kind, q.DeviceID})
}

func (q DeviceQuery) Validate() error {
	if q.DeviceID == "" {
		return &apperr.MissingFieldError{Fields: []string{"deviceId"}}
	}
	return nil
}

// AnnotationSubmission records a context annotation.
type AnnotationSubmission struct {
	UserName  string `json:"userName"`
	DeviceID  string `json:"deviceId"`
	EventID   string `json:"eventId"`
	Context   string `json:"context"`
	Timestamp string `json:"timestamp"`
}

func (AnnotationSubmission) Action() Action { return ActionSubmitAnnotation }

func (a AnnotationSubmission) Validate() error {
	return a.toService().Validate()
}

func (a AnnotationSubmission) toService() service.Submission {
	return service.Submission{
		UserName:  a.UserName,
		DeviceID:  a.DeviceID,
		EventID:   a.EventID,
		Context:   a.Context,
		Timestamp: a.Timestamp,
	}
}

// DecodeRequest parses a POST body. The "action" field picks the variant;
// an absent, non-string or unrecognised action is an annotation submission.
func DecodeRequest(body []byte) (Request, error) {
	var envelope struct {
		Action json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	var action Action
	// Only a JSON string can name a query.
	_ = json.Unmarshal(envelope.Action, &action)

	var req Request
	switch action {
	case ActionDeviceHealth, ActionOfflineData, ActionEnvHistory:
		q := DeviceQuery{Kind: action}
		if err := json.Unmarshal(body, &q); err != nil {
			return nil, fmt.Errorf("invalid %s request: %w", action, err)
		}
		req = q
	default:
		var a AnnotationSubmission
		if err := json.Unmarshal(body, &a); err != nil {
			return nil, fmt.Errorf("invalid annotation: %w", err)
		}
		req = a
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
