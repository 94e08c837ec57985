// Package tools maps tool names requested by the remote assistant to local handlers.
//
// Includes:
//   - Tool: name, description, JSON parameter schema, typed handler.
//   - Dispatcher: registry plus the sentinel-on-miss dispatch policy.
//   - fill_forms: the form-filling tool offered to the form assistant.
package tools
