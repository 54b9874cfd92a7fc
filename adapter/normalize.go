package adapter

import (
	"fmt"

	"github.com/zhubert/acp-core/session"
)

// Agents disagree on session/update field names: Gemini nests the payload
// under "update" with camelCase keys, others send a flat snake_case shape.
// normalizeUpdate flattens both into one canonical payload.
//
// Alias resolution is first-writer-wins: once a canonical field is set,
// later probes never overwrite it. The bare "name" and "id" aliases are
// honored only for tool_call and tool_call_update kinds, since other kinds
// use those keys for unrelated data.
var toolFieldAliases = []struct {
	canonical string
	aliases   []string
}{
	{"toolName", []string{"toolName", "tool_name", "name", "tool"}},
	{"toolCallId", []string{"toolCallId", "tool_call_id", "id"}},
	{"arguments", []string{"arguments", "args", "parameters", "params", "input"}},
	{"status", []string{"status"}},
	{"result", []string{"result"}},
	{"error", []string{"error"}},
}

// normalizeUpdate converts raw session/update params into a canonical payload.
func normalizeUpdate(params map[string]any) session.UpdatePayload {
	update, nested := params["update"].(map[string]any)
	if !nested {
		return payloadFromFlat(params)
	}

	kind, _ := update["sessionUpdate"].(string)
	flat := map[string]any{"kind": kind}
	allowNameID := kind == session.KindToolCall || kind == session.KindToolCallUpdate

	contentObj := update["content"]
	switch c := contentObj.(type) {
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			flat["content"] = text
		}
	case []any:
		for _, raw := range c {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			mergeToolFields(flat, entry, allowNameID)
			mergeNestedTools(flat, entry, allowNameID)
		}
	case nil:
		// no content
	default:
		if s := fmt.Sprintf("%v", c); s != "" {
			flat["content"] = s
		}
	}

	mergeToolFields(flat, update, allowNameID)
	if c, ok := contentObj.(map[string]any); ok {
		mergeToolFields(flat, c, allowNameID)
		mergeNestedTools(flat, c, allowNameID)
	}
	mergeNestedTools(flat, update, allowNameID)

	return payloadFromFlat(flat)
}

// mergeNestedTools merges from the toolCall/tool_call and tool objects nested
// inside source, if present.
func mergeNestedTools(flat, source map[string]any, allowNameID bool) {
	nested, ok := source["toolCall"].(map[string]any)
	if !ok {
		nested, ok = source["tool_call"].(map[string]any)
	}
	if ok {
		mergeToolFields(flat, nested, allowNameID)
	}
	if tool, ok := source["tool"].(map[string]any); ok {
		mergeToolFields(flat, tool, allowNameID)
	}
}

// mergeToolFields copies tool call fields from source into target, resolving
// aliases in order and never overwriting a field already set.
func mergeToolFields(target, source map[string]any, allowNameID bool) {
	for _, field := range toolFieldAliases {
		if existing, ok := target[field.canonical]; ok && !emptyValue(existing) {
			continue
		}
		for _, key := range field.aliases {
			if !allowNameID && (key == "name" || key == "id") {
				continue
			}
			value, ok := source[key]
			if !ok {
				continue
			}
			// "tool" can be an object carrying the name rather than the name itself.
			if key == "tool" && field.canonical == "toolName" {
				switch v := value.(type) {
				case map[string]any:
					value = firstString(v, "name", "toolName", "tool_name")
				case string:
					// keep as-is
				default:
					value = nil
				}
			}
			if emptyValue(value) {
				continue
			}
			target[field.canonical] = value
			break
		}
	}
}

// payloadFromFlat builds the canonical payload from a flat update map,
// applying the snake_case fallbacks for tool kinds.
func payloadFromFlat(data map[string]any) session.UpdatePayload {
	kind, _ := data["kind"].(string)
	p := session.UpdatePayload{Kind: kind}

	if c, ok := data["content"].(string); ok {
		p.Content = c
	}

	name, _ := data["toolName"].(string)
	id, _ := data["toolCallId"].(string)
	args, _ := data["arguments"].(map[string]any)

	if kind == session.KindToolCall || kind == session.KindToolCallUpdate {
		if name == "" {
			name = firstString(data, "tool_name", "name")
			if name == "" {
				if t, ok := data["tool"].(string); ok {
					name = t
				}
			}
		}
		if id == "" {
			id = firstString(data, "tool_call_id", "id")
		}
	}
	if kind == session.KindToolCall && args == nil {
		for _, key := range []string{"args", "parameters", "params"} {
			if m, ok := data[key].(map[string]any); ok {
				args = m
				break
			}
		}
	}

	p.ToolName = name
	p.ToolCallID = id
	p.Arguments = args
	p.Status, _ = data["status"].(string)
	p.Result = data["result"]
	if e, ok := data["error"].(string); ok {
		p.Error = e
	} else if e, ok := data["error"].(map[string]any); ok {
		p.Error = firstString(e, "message", "error", "detail")
	}
	return p
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// emptyValue reports whether an alias value should be skipped.
func emptyValue(v any) bool {
	return v == nil || v == ""
}
