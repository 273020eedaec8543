package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"testing"

	"github.com/ironsheep/meter-reader/internal/capture"
	"github.com/ironsheep/meter-reader/internal/config"
	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
	"github.com/ironsheep/meter-reader/internal/readings"
)

// callTool runs a tools/call request and returns the decoded text payload.
func callTool(t *testing.T, s *Server, name string, args interface{}) (json.RawMessage, *MCPError) {
	t.Helper()

	params := map[string]interface{}{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("unexpected content: %v", result["content"])
	}
	return json.RawMessage(content[0]["text"].(string)), nil
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	_, mcpErr := callTool(t, New(newFakeService(), "dev"), "meter_explode", nil)
	if mcpErr == nil || mcpErr.Code != -32000 {
		t.Errorf("got %+v, want -32000", mcpErr)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(newFakeService(), "dev")
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resp.Error)
	}
}

func TestHandleLatest(t *testing.T) {
	svc := newFakeService()
	s := New(svc, "dev")

	text, mcpErr := callTool(t, s, "meter_latest", nil)
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got readingResult
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got.Available {
		t.Error("empty history should not report a reading")
	}

	svc.history = []readings.Reading{{Timestamp: "2024-01-01 00:00:00", Value: "ERR_NO_KEY"}}
	text, _ = callTool(t, s, "meter_latest", nil)
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Available || !got.Sentinel || got.Reading.Value != "ERR_NO_KEY" {
		t.Errorf("got %+v", got)
	}
}

func TestHandleHistory_Limits(t *testing.T) {
	tests := []struct {
		name string
		args interface{}
		want int
	}{
		{"default", nil, DefaultHistoryLimit},
		{"explicit", map[string]interface{}{"limit": 3}, 3},
		{"zero", map[string]interface{}{"limit": 0}, DefaultHistoryLimit},
		{"too large", map[string]interface{}{"limit": 5000}, MaxHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			if _, mcpErr := callTool(t, New(svc, "dev"), "meter_history", tt.args); mcpErr != nil {
				t.Fatal(mcpErr)
			}
			if svc.lastLim != tt.want {
				t.Errorf("limit: got %d, want %d", svc.lastLim, tt.want)
			}
		})
	}
}

func TestHandleHistory_BadArgs(t *testing.T) {
	_, mcpErr := callTool(t, New(newFakeService(), "dev"), "meter_history", map[string]interface{}{"limit": "ten"})
	if mcpErr == nil {
		t.Error("non-numeric limit should fail")
	}
}

func TestHandleSetConfig_ReplacesWholeRecord(t *testing.T) {
	svc := newFakeService()
	s := New(svc, "dev")

	first := map[string]interface{}{
		"rotate":     5,
		"crop":       map[string]interface{}{"x": 10, "y": 10, "w": 100, "h": 50},
		"num_digits": 6,
	}
	if _, mcpErr := callTool(t, s, "meter_set_config", first); mcpErr != nil {
		t.Fatal(mcpErr)
	}
	if svc.settings.Crop == nil || *svc.settings.Crop != (config.Rect{X: 10, Y: 10, W: 100, H: 50}) {
		t.Fatalf("crop not stored: %+v", svc.settings.Crop)
	}

	// Omitting crop clears it.
	if _, mcpErr := callTool(t, s, "meter_set_config", map[string]interface{}{"rotate": 0, "num_digits": 5}); mcpErr != nil {
		t.Fatal(mcpErr)
	}
	if svc.settings.Crop != nil || svc.settings.Rotate != 0 || svc.settings.NumDigits != 5 {
		t.Errorf("settings: got %+v", svc.settings)
	}

	text, _ := callTool(t, s, "meter_get_config", nil)
	var got config.Settings
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got.Crop != nil || got.NumDigits != 5 {
		t.Errorf("meter_get_config: got %+v", got)
	}
}

func TestHandleSetConfig_PartialCropRejected(t *testing.T) {
	svc := newFakeService()
	svc.settings = config.Settings{Crop: &config.Rect{X: 10, Y: 10, W: 100, H: 50}, NumDigits: 6}
	s := New(svc, "dev")

	args := map[string]interface{}{"crop": map[string]interface{}{"x": 3}, "num_digits": 6}
	if _, mcpErr := callTool(t, s, "meter_set_config", args); mcpErr == nil {
		t.Fatal("a crop without size should be rejected")
	}
	if *svc.settings.Crop != (config.Rect{X: 10, Y: 10, W: 100, H: 50}) {
		t.Errorf("crop changed after rejection: %+v", svc.settings.Crop)
	}
}

func TestHandleSetConfig_EmptyRejected(t *testing.T) {
	svc := newFakeService()
	if _, mcpErr := callTool(t, New(svc, "dev"), "meter_set_config", map[string]interface{}{}); mcpErr == nil {
		t.Error("a record without num_digits should be rejected")
	}
}

func TestHandleSetConfig_Invalid(t *testing.T) {
	svc := newFakeService()
	_, mcpErr := callTool(t, New(svc, "dev"), "meter_set_config", map[string]interface{}{"num_digits": 0})
	if mcpErr == nil {
		t.Error("zero digits should be rejected")
	}
	if svc.settings.NumDigits != config.DefaultNumDigits {
		t.Errorf("settings changed after rejection: %+v", svc.settings)
	}
}

func TestHandleCapture(t *testing.T) {
	s := New(newFakeService(), "dev")

	text, mcpErr := callTool(t, s, "meter_capture", map[string]interface{}{"scale": 0.5})
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got captureResult
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got.Method != "fake" || got.Distance != 3 || got.Taken != "2024-01-02 03:04:05" {
		t.Errorf("got %+v", got)
	}
	if got.Image == nil || got.Image.Width != 50 || got.Image.Height != 20 {
		t.Fatalf("preview: got %+v", got.Image)
	}
	if _, err := base64.StdEncoding.DecodeString(got.Image.ImageBase64); err != nil {
		t.Errorf("preview not base64: %v", err)
	}
}

func TestHandleCapture_Failure(t *testing.T) {
	svc := newFakeService()
	svc.err = capture.ErrCaptureFailure
	_, mcpErr := callTool(t, New(svc, "dev"), "meter_capture", nil)
	if mcpErr == nil || mcpErr.Code != -32000 {
		t.Errorf("got %+v, want tool failure", mcpErr)
	}
}

func TestHandleRead(t *testing.T) {
	svc := newFakeService()
	svc.nextRead = "N/A"
	text, mcpErr := callTool(t, New(svc, "dev"), "meter_read", nil)
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got readResult
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got.Value != "N/A" || !got.Sentinel || got.Method != "fake" {
		t.Errorf("got %+v", got)
	}
	if len(svc.history) != 1 {
		t.Errorf("history: %d readings, want 1", len(svc.history))
	}
}

func TestHandleClearReadings(t *testing.T) {
	svc := newFakeService()
	svc.history = []readings.Reading{{Value: "1"}, {Value: "2"}}
	text, mcpErr := callTool(t, New(svc, "dev"), "meter_clear_readings", nil)
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got map[string]int
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got["cleared"] != 2 {
		t.Errorf("cleared: got %d, want 2", got["cleared"])
	}
}

func TestHandleBuildTemplates(t *testing.T) {
	svc := newFakeService()
	svc.slices = []image.Image{
		mimaging.CropTo(svc.frame.Normalized, mimaging.Crop{X: 0, Y: 0, W: 50, H: 40}),
		mimaging.CropTo(svc.frame.Normalized, mimaging.Crop{X: 50, Y: 0, W: 50, H: 40}),
	}
	s := New(svc, "dev")

	text, mcpErr := callTool(t, s, "meter_build_templates", nil)
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got buildTemplatesResult
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != 2 || len(got.Images) != 0 {
		t.Errorf("got count=%d images=%d", got.Count, len(got.Images))
	}

	text, _ = callTool(t, s, "meter_build_templates", map[string]interface{}{"include_images": true})
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Images) != 2 || got.Images[0].Width != 50 {
		t.Errorf("images: got %d", len(got.Images))
	}
}

func TestHandleSaveValueTemplate(t *testing.T) {
	svc := newFakeService()
	s := New(svc, "dev")

	if _, mcpErr := callTool(t, s, "meter_save_value_template", map[string]interface{}{"digit": "7", "slot": 0}); mcpErr != nil {
		t.Fatal(mcpErr)
	}
	if slot, ok := svc.saved["7"]; !ok || slot != 0 {
		t.Errorf("saved: %v", svc.saved)
	}

	if _, mcpErr := callTool(t, s, "meter_save_value_template", map[string]interface{}{"digit": "7"}); mcpErr == nil {
		t.Error("missing slot should fail")
	}
	if _, mcpErr := callTool(t, s, "meter_save_value_template", map[string]interface{}{"digit": "7", "slot": -1}); mcpErr == nil {
		t.Error("negative slot should fail")
	}

	svc.err = errors.New("no such slot")
	if _, mcpErr := callTool(t, s, "meter_save_value_template", map[string]interface{}{"digit": "1", "slot": 9}); mcpErr == nil {
		t.Error("service error should surface")
	}
}

func TestHandleStatus(t *testing.T) {
	text, mcpErr := callTool(t, New(newFakeService(), "dev"), "meter_status", nil)
	if mcpErr != nil {
		t.Fatal(mcpErr)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(text, &got); err != nil {
		t.Fatal(err)
	}
	if got["recognizer"] != "ocr" {
		t.Errorf("recognizer: got %v", got["recognizer"])
	}
}
