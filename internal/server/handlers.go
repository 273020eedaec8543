package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/meter-reader/internal/config"
	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
	"github.com/ironsheep/meter-reader/internal/readings"
	"github.com/ironsheep/meter-reader/internal/recognize"
	"github.com/ironsheep/meter-reader/internal/templates"
)

// History limits for meter_history.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = readings.MaxHistory
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "meter_read").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Readings
	case "meter_latest":
		return s.handleLatest()
	case "meter_history":
		return s.handleHistory(args)
	case "meter_clear_readings":
		return s.handleClearReadings()

	// Configuration
	case "meter_get_config":
		return s.svc.Settings(), nil
	case "meter_set_config":
		return s.handleSetConfig(args)

	// Capture and recognition
	case "meter_capture":
		return s.handleCapture(ctx, args)
	case "meter_read":
		return s.handleRead(ctx)

	// Templates
	case "meter_build_templates":
		return s.handleBuildTemplates(args)
	case "meter_save_value_template":
		return s.handleSaveValueTemplate(args)

	case "meter_status":
		return s.svc.Status(), nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals optional tool arguments; absent arguments leave v
// untouched.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Reading Handlers ===

type readingResult struct {
	Available bool              `json:"available"`
	Reading   *readings.Reading `json:"reading,omitempty"`
	Sentinel  bool              `json:"sentinel,omitempty"`
}

func (s *Server) handleLatest() (interface{}, error) {
	r, ok := s.svc.Latest()
	if !ok {
		return readingResult{Available: false}, nil
	}
	return readingResult{Available: true, Reading: &r, Sentinel: recognize.IsSentinel(r.Value)}, nil
}

type historyArgs struct {
	Limit int `json:"limit"`
}

type historyResult struct {
	Count    int                `json:"count"`
	Readings []readings.Reading `json:"readings"`
}

func (s *Server) handleHistory(args json.RawMessage) (interface{}, error) {
	var a historyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Limit <= 0 {
		a.Limit = DefaultHistoryLimit
	}
	if a.Limit > MaxHistoryLimit {
		a.Limit = MaxHistoryLimit
	}
	h := s.svc.History(a.Limit)
	return historyResult{Count: len(h), Readings: h}, nil
}

func (s *Server) handleClearReadings() (interface{}, error) {
	n, err := s.svc.ClearReadings()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"cleared": n}, nil
}

// === Configuration Handlers ===

func (s *Server) handleSetConfig(args json.RawMessage) (interface{}, error) {
	// The record replaces the settings whole; an omitted crop means no crop.
	var cfg config.Settings
	if err := decodeArgs(args, &cfg); err != nil {
		return nil, err
	}
	if err := s.svc.SetSettings(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// === Capture Handlers ===

type captureArgs struct {
	Scale float64 `json:"scale"`
}

type captureResult struct {
	Method   string                 `json:"method,omitempty"`
	Stale    bool                   `json:"stale"`
	Taken    string                 `json:"taken"`
	Distance int                    `json:"drift_distance"`
	Image    *mimaging.EncodedImage `json:"image"`
}

func (s *Server) handleCapture(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a captureArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	frame, err := s.svc.CaptureNormalized(ctx)
	if err != nil {
		return nil, err
	}
	preview, err := mimaging.Preview(frame.Normalized, a.Scale)
	if err != nil {
		return nil, err
	}
	return captureResult{
		Method:   frame.Capture.Method,
		Stale:    frame.Capture.Stale,
		Taken:    frame.Capture.Taken.Format(readings.TimestampFormat),
		Distance: frame.Capture.Distance,
		Image:    preview,
	}, nil
}

type readResult struct {
	Timestamp string `json:"timestamp"`
	Value     string `json:"value"`
	Sentinel  bool   `json:"sentinel"`
	Stale     bool   `json:"stale"`
	Method    string `json:"method,omitempty"`
}

func (s *Server) handleRead(ctx context.Context) (interface{}, error) {
	res, err := s.svc.ReadOnce(ctx)
	if err != nil {
		return nil, err
	}
	return readResult{
		Timestamp: res.Reading.Timestamp,
		Value:     res.Reading.Value,
		Sentinel:  recognize.IsSentinel(res.Reading.Value),
		Stale:     res.Frame.Capture.Stale,
		Method:    res.Frame.Capture.Method,
	}, nil
}

// === Template Handlers ===

type buildTemplatesArgs struct {
	IncludeImages bool `json:"include_images"`
}

type buildTemplatesResult struct {
	Count  int                      `json:"count"`
	Images []*mimaging.EncodedImage `json:"images,omitempty"`
}

func (s *Server) handleBuildTemplates(args json.RawMessage) (interface{}, error) {
	var a buildTemplatesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	slices, err := s.svc.BuildPositionTemplates()
	if err != nil {
		return nil, err
	}
	out := buildTemplatesResult{Count: len(slices)}
	if a.IncludeImages {
		for _, img := range slices {
			enc, err := mimaging.Preview(img, 1.0)
			if err != nil {
				return nil, err
			}
			out.Images = append(out.Images, enc)
		}
	}
	return out, nil
}

type saveValueTemplateArgs struct {
	Digit string `json:"digit"`
	Slot  *int   `json:"slot"`
}

func (s *Server) handleSaveValueTemplate(args json.RawMessage) (interface{}, error) {
	var a saveValueTemplateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Slot == nil {
		return nil, errors.New("slot is required")
	}
	if *a.Slot < 0 {
		return nil, fmt.Errorf("%w: slot %d", templates.ErrInvalidSlotCount, *a.Slot)
	}
	if err := s.svc.SaveValueTemplate(a.Digit, *a.Slot); err != nil {
		return nil, err
	}
	return map[string]interface{}{"digit": a.Digit, "slot": *a.Slot}, nil
}
