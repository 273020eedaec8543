// Package server implements the MCP (Model Context Protocol) server for the
// meter reader.
//
// This package exposes the on-demand meter operations as MCP tools, so an
// operator or an assistant can inspect readings, adjust the region of
// interest and curate templates while the polling loop runs in another
// process.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Logs go to stderr; stdout carries protocol messages only.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Readings:
//   - meter_latest: Most recent reading
//   - meter_history: Recent readings, newest first (limit 1-100, default 10)
//   - meter_clear_readings: Empty the readings log
//
// Configuration:
//   - meter_get_config: Current rotation, crop and digit count
//   - meter_set_config: Update them for the next cycle
//
// Capture and recognition:
//   - meter_capture: Capture and normalize, return a preview
//   - meter_read: Full cycle, stores a reading
//
// Templates:
//   - meter_build_templates: Positional slices from the last normalized image
//   - meter_save_value_template: Promote a slot to a digit reference
//
// Status:
//   - meter_status: Recognizer, canvas, templates and reading count
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A reading whose value is a failure marker (N/A, ERR_NO_KEY, ...) is not a
// tool error; meter_read and meter_latest flag it with "sentinel": true.
package server
