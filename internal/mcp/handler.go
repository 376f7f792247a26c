package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tapfile/tapfile/internal/apperr"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required string argument from the tool request.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// getObjectArg extracts a map[string]interface{} argument from the tool request.
// Returns nil if the key is not present or not a map.
func getObjectArg(request mcp.CallToolRequest, key string) map[string]interface{} {
	args := request.GetArguments()
	if args == nil {
		return nil
	}
	m, _ := args[key].(map[string]interface{})
	return m
}

// paramsToValues converts a JSON object of query parameters into the form
// the HTTP query route receives. Arrays contribute their first element, the
// same way a repeated query parameter does.
func paramsToValues(params map[string]interface{}) (url.Values, error) {
	values := make(url.Values, len(params))
	for k, raw := range params {
		if arr, ok := raw.([]interface{}); ok {
			if len(arr) == 0 {
				continue
			}
			raw = arr[0]
		}
		s, err := scalarString(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		values.Set(k, s)
	}
	return values, nil
}

func scalarString(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// appError reports err to the model. Typed errors carry a message meant for
// callers; anything else is logged and replaced with a generic message.
func appError(logger *slog.Logger, err error, action string) (*mcp.CallToolResult, error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return toolError("%s", ae.Error())
	}
	logger.Error(action+" failed", "error", err)
	return toolError("%s failed", action)
}
