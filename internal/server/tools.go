package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Readings
		{
			Name:        "meter_latest",
			Description: "Return the most recent meter reading. Values are digit strings, partial strings with '?' for unreadable wheels, or a failure marker (N/A, ERR_NO_KEY, ERR_EMPTY_IMG, ERROR).",
			InputSchema: noArgs(),
		},
		{
			Name:        "meter_history",
			Description: "Return recent meter readings, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of readings (1-100). Default 10",
						"default":     DefaultHistoryLimit,
						"minimum":     1,
						"maximum":     MaxHistoryLimit,
					},
				},
			},
		},
		{
			Name:        "meter_clear_readings",
			Description: "Delete every stored reading.",
			InputSchema: noArgs(),
		},

		// Configuration
		{
			Name:        "meter_get_config",
			Description: "Return the current rotation, crop rectangle and digit count.",
			InputSchema: noArgs(),
		},
		{
			Name:        "meter_set_config",
			Description: "Replace the rotation, crop rectangle and digit count. An omitted or null crop means the whole canvas. Takes effect on the next cycle.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"rotate": map[string]interface{}{
						"type":        "number",
						"description": "Rotation in degrees, clockwise-positive",
					},
					"crop": map[string]interface{}{
						"type":        []string{"object", "null"},
						"description": "Region of interest on the rotated canvas, in pixels",
						"properties": map[string]interface{}{
							"x": map[string]interface{}{"type": "integer"},
							"y": map[string]interface{}{"type": "integer"},
							"w": map[string]interface{}{"type": "integer"},
							"h": map[string]interface{}{"type": "integer"},
						},
						"required": []string{"x", "y", "w", "h"},
					},
					"num_digits": map[string]interface{}{
						"type":        "integer",
						"description": "Number of counter wheels",
						"minimum":     1,
					},
				},
				"required": []string{"num_digits"},
			},
		},

		// Capture and recognition
		{
			Name:        "meter_capture",
			Description: "Take a photo, apply rotation and crop, and return the normalized image as base64 JPEG. Does not recognize or store a reading.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional preview scale factor. Default 1.0",
						"default":     1.0,
					},
				},
			},
		},
		{
			Name:        "meter_read",
			Description: "Run one full cycle now: capture, normalize, recognize and store a reading.",
			InputSchema: noArgs(),
		},

		// Templates
		{
			Name:        "meter_build_templates",
			Description: "Slice the current normalized image into one positional template per digit (pos_0.png ...).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"include_images": map[string]interface{}{
						"type":        "boolean",
						"description": "Return each slice as base64 JPEG. Default false",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "meter_save_value_template",
			Description: "Use the positional template of a slot as the reference image for a digit.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"digit": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
						"description": "Digit shown in the slot",
					},
					"slot": map[string]interface{}{
						"type":        "integer",
						"description": "Slot index, 0 is the leftmost wheel",
						"minimum":     0,
					},
				},
				"required": []string{"digit", "slot"},
			},
		},

		// Status
		{
			Name:        "meter_status",
			Description: "Report the recognizer in use, canvas size, settings, template inventory and reading count.",
			InputSchema: noArgs(),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
