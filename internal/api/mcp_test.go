package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/deepskin/internal/filestore"
	"github.com/kalambet/deepskin/internal/service"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *filestore.Memory) {
	t.Helper()
	svc, store := newTestService(t, map[string][]byte{"DEV1": workbook(t, sampleRows)})
	return MCPDeps{
		Service:      svc,
		SensorFolder: service.DefaultConfig().SensorFolder,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_DeviceHealth(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDeviceQuery(deps, ActionDeviceHealth)

	result, err := handler(context.Background(), makeCallToolRequest("get_device_health", map[string]interface{}{
		"deviceId": "DEV1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if out["success"] != true || out["fileName"] != "DEV1" || out["temperature"] != "21" {
		t.Errorf("result = %v", out)
	}
}

func TestMCPTool_OfflineData(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDeviceQuery(deps, ActionOfflineData)

	result, err := handler(context.Background(), makeCallToolRequest("get_offline_data", map[string]interface{}{
		"deviceId": "DEV1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := toolText(t, result)
	if result.IsError {
		t.Fatalf("tool returned error: %s", text)
	}
	if !strings.Contains(text, `"durationMinutes":20`) || !strings.Contains(text, `"dataPoints":2`) {
		t.Errorf("result = %s", text)
	}
}

func TestMCPTool_EnvHistory(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDeviceQuery(deps, ActionEnvHistory)

	result, err := handler(context.Background(), makeCallToolRequest("get_env_history", map[string]interface{}{
		"deviceId": "DEV1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := toolText(t, result)
	if result.IsError {
		t.Fatalf("tool returned error: %s", text)
	}
	if !strings.Contains(text, `"gasr0":[null,null]`) {
		t.Errorf("result = %s", text)
	}
}

func TestMCPTool_DeviceQueryMissingID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpDeviceQuery(deps, ActionDeviceHealth)

	result, err := handler(context.Background(), makeCallToolRequest("get_device_health", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if got := toolText(t, result); got != "Missing required fields: deviceId" {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_DeviceNotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Metrics = newRegistryMetrics()
	handler := mcpDeviceQuery(deps, ActionDeviceHealth)

	result, err := handler(context.Background(), makeCallToolRequest("get_device_health", map[string]interface{}{
		"deviceId": "NOPE",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "NOPE") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_SubmitAnnotation(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpSubmitAnnotation(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_annotation", map[string]interface{}{
		"userName":  "Ann Lee",
		"deviceId":  "DEV1",
		"eventId":   "E1",
		"context":   "running",
		"timestamp": "2024-01-01T10:00:00Z",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "Ann_Lee_DEV1.csv") {
		t.Errorf("result = %s", toolText(t, result))
	}

	ctx := context.Background()
	folder, err := store.FindFolder(ctx, service.DefaultConfig().AnnotationFolder)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.FindFile(ctx, folder, "Ann_Lee_DEV1.csv"); err != nil {
		t.Errorf("annotation log not created: %v", err)
	}
}

func TestMCPTool_SubmitAnnotationMissingFields(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSubmitAnnotation(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_annotation", map[string]interface{}{
		"deviceId": "DEV1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if got := toolText(t, result); got != "Missing required fields: userName, eventId" {
		t.Errorf("text = %q", got)
	}
}

func TestMCPResource_SensorFiles(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceSensorFiles(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("deepskin://sensor-files"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var files []filestore.File
	if err := json.Unmarshal([]byte(tc.Text), &files); err != nil {
		t.Fatalf("resource is not JSON: %v", err)
	}
	if len(files) != 1 || files[0].Name != "DEV1" {
		t.Errorf("files = %+v", files)
	}
}

func TestMCPResource_SensorFilesMissingFolder(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.SensorFolder = "elsewhere"
	handler := mcpResourceSensorFiles(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("deepskin://sensor-files"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc := contents[0].(mcp.TextResourceContents); tc.Text != "[]" {
		t.Errorf("text = %q, want []", tc.Text)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	healthHandler := mcpDeviceQuery(deps, ActionDeviceHealth)
	submitHandler := mcpSubmitAnnotation(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("get_device_health", map[string]interface{}{
				"deviceId": "DEV1",
			})
			if _, err := healthHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("submit_annotation", map[string]interface{}{
				"userName": "u",
				"deviceId": "DEV1",
				"eventId":  "e",
			})
			if _, err := submitHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
