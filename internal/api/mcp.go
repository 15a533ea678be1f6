package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/deepskin/internal/apperr"
	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/service"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *service.Service
	// SensorFolder is listed by the sensor-files resource.
	SensorFolder string
	Metrics      *Metrics
}

// NewMCPServer creates an MCP server exposing the device queries and the
// annotation submission as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"deepskin",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("deepskin: wearable sensor status, offline periods, environment history and context annotations."),
		server.WithRecovery(),
	)

	deviceID := mcp.WithString("deviceId", mcp.Description("Device identifier; matched as a substring of sensor file names"), mcp.Required())

	s.AddTool(
		mcp.NewTool(string(ActionDeviceHealth),
			mcp.WithDescription("Latest readings of a device: temperature, humidity, battery and channel values."),
			deviceID,
		),
		mcpDeviceQuery(deps, ActionDeviceHealth),
	)
	s.AddTool(
		mcp.NewTool(string(ActionOfflineData),
			mcp.WithDescription("Periods within the recent window when a device stopped reporting."),
			deviceID,
		),
		mcpDeviceQuery(deps, ActionOfflineData),
	)
	s.AddTool(
		mcp.NewTool(string(ActionEnvHistory),
			mcp.WithDescription("Recent temperature, humidity, gas resistance and battery series of a device."),
			deviceID,
		),
		mcpDeviceQuery(deps, ActionEnvHistory),
	)
	s.AddTool(
		mcp.NewTool(string(ActionSubmitAnnotation),
			mcp.WithDescription("Append a context annotation to the user's log for a device."),
			mcp.WithString("userName", mcp.Description("Name of the annotating user"), mcp.Required()),
			mcp.WithString("deviceId", mcp.Description("Device identifier"), mcp.Required()),
			mcp.WithString("eventId", mcp.Description("Event identifier"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Free-text context")),
			mcp.WithString("timestamp", mcp.Description("When the event happened; defaults to now")),
		),
		mcpSubmitAnnotation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"deepskin://sensor-files",
			"Sensor Files",
			mcp.WithResourceDescription("Files in the sensor data folder as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSensorFiles(deps),
	)

	return s
}

func mcpDeviceQuery(deps MCPDeps, action Action) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("deviceId")
		if err != nil || id == "" {
			return mcpError(apperr.Message(&apperr.MissingFieldError{Fields: []string{"deviceId"}})), nil
		}
		return mcpDispatch(ctx, deps, DeviceQuery{Kind: action, DeviceID: id}), nil
	}
}

func mcpSubmitAnnotation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sub := AnnotationSubmission{
			UserName:  req.GetString("userName", ""),
			DeviceID:  req.GetString("deviceId", ""),
			EventID:   req.GetString("eventId", ""),
			Context:   req.GetString("context", ""),
			Timestamp: req.GetString("timestamp", ""),
		}
		if err := sub.Validate(); err != nil {
			return mcpError(apperr.Message(err)), nil
		}
		return mcpDispatch(ctx, deps, sub), nil
	}
}

func mcpDispatch(ctx context.Context, deps MCPDeps, req Request) *mcp.CallToolResult {
	resp, err := Dispatch(ctx, deps.Service, req)
	deps.Metrics.observeAction(req.Action(), outcome(err))
	if err != nil {
		return mcpError(apperr.Message(err))
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpResourceSensorFiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		store := deps.Service.Store()
		files := []filestore.File{}
		folder, err := store.FindFolder(ctx, deps.SensorFolder)
		switch {
		case err == nil:
			found, err := store.SearchFiles(ctx, folder, "")
			if err != nil {
				return nil, fmt.Errorf("listing sensor files: %w", err)
			}
			files = append(files, found...)
		case !errors.Is(err, filestore.ErrNotFound):
			return nil, fmt.Errorf("finding sensor folder: %w", err)
		}

		b, err := json.Marshal(files)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal files: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
