package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Context is the rolling JSON value flowing between stages. It wraps a
// raw JSON document behind a small get/set/merge surface so stage
// handlers never traverse the bytes themselves.
type Context struct {
	raw json.RawMessage
}

// NewContext returns an empty object context, the initial value of
// every job.
func NewContext() *Context {
	return &Context{raw: json.RawMessage(`{}`)}
}

// Raw returns the current JSON document.
func (c *Context) Raw() json.RawMessage {
	return c.raw
}

// Replace swaps in a new JSON document. Invalid JSON is rejected so the
// context can never hold an undecodable value.
func (c *Context) Replace(raw json.RawMessage) error {
	if !json.Valid(raw) {
		return fmt.Errorf("rolling context must be valid JSON")
	}
	c.raw = append(json.RawMessage(nil), raw...)
	return nil
}

// ReplaceValue marshals value and swaps it in.
func (c *Context) ReplaceValue(value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal rolling context: %w", err)
	}
	c.raw = data
	return nil
}

// IsObject reports whether the current value is a JSON object.
func (c *Context) IsObject() bool {
	return gjson.ParseBytes(c.raw).IsObject()
}

// Get resolves a path against the current value. See ResolvePath for
// the accepted path forms.
func (c *Context) Get(path string) (gjson.Result, bool) {
	return ResolvePath(c.raw, path)
}

// Set writes value at the dot path, creating intermediate objects.
func (c *Context) Set(path string, value interface{}) error {
	raw, err := sjson.SetBytes(c.raw, path, value)
	if err != nil {
		return fmt.Errorf("failed to set %s in rolling context: %w", path, err)
	}
	c.raw = raw
	return nil
}

// MergeInto shallow-merges fields over the current value and returns
// the merged document without mutating the context. When the current
// value is not an object it is wrapped under wrapKey first.
func (c *Context) MergeInto(fields map[string]interface{}, wrapKey string) (json.RawMessage, error) {
	base := c.raw
	if !c.IsObject() {
		wrapped, err := sjson.SetBytes(json.RawMessage(`{}`), wrapKey, json.RawMessage(base))
		if err != nil {
			return nil, fmt.Errorf("failed to wrap rolling context: %w", err)
		}
		base = wrapped
	}
	for key, value := range fields {
		merged, err := sjson.SetBytes(base, key, value)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s into rolling context: %w", key, err)
		}
		base = merged
	}
	return base, nil
}

// ResolvePath evaluates a template path against a JSON document. Plain
// dot paths are accepted up to three segments; deeper paths must use
// the JSON-path form "$.a.b.c.d". The second return reports whether the
// path resolved to an existing node.
func ResolvePath(doc json.RawMessage, path string) (gjson.Result, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return gjson.Result{}, false
	}
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	} else if strings.Count(path, ".") >= 3 {
		// Deep paths require the explicit $. form
		return gjson.Result{}, false
	}
	result := gjson.GetBytes(doc, path)
	return result, result.Exists()
}

// LeafKey returns the last segment of a dot or JSON-path expression,
// used as the field name in report summaries.
func LeafKey(path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$.")
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
