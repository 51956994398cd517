package mcp

import (
	"context"
	"fmt"

	"codewarden/internal/apperr"
)

// Handler executes one tool call with decoded arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool is one registry entry.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

// Registry maps tool names to handlers. It is populated once at startup and
// read lock-free afterwards.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Duplicate names are a programming error.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("mcp: duplicate tool %q", t.Name))
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get returns a tool or a ToolNotFound error.
func (r *Registry) Get(name string) (*Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, apperr.New(apperr.KindToolNotFound, "unknown tool %q", name)
	}
	return t, nil
}

// List returns tool metadata in registration order.
func (r *Registry) List() []ToolInfo {
	out := make([]ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// validateArgs checks required keys and per-property JSON types against the
// tool's declared schema.
func validateArgs(schema Schema, args map[string]interface{}) error {
	for _, field := range schema.Required {
		v, ok := args[field]
		if !ok || v == nil {
			return apperr.InvalidArgs(field, "missing required argument %q", field)
		}
		if s, isString := v.(string); isString && s == "" {
			return apperr.InvalidArgs(field, "argument %q must not be empty", field)
		}
	}
	for field, v := range args {
		prop, declared := schema.Properties[field]
		if !declared || v == nil {
			continue
		}
		if err := checkType(field, prop.Type, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(field, want string, v interface{}) error {
	ok := true
	switch want {
	case "string":
		_, ok = v.(string)
	case "integer", "number":
		_, ok = v.(float64)
	case "boolean":
		_, ok = v.(bool)
	case "object":
		_, ok = v.(map[string]interface{})
	case "array":
		_, ok = v.([]interface{})
	}
	if !ok {
		return apperr.InvalidArgs(field, "argument %q must be a %s", field, want)
	}
	return nil
}

// Argument decoding helpers. JSON numbers arrive as float64, arrays as
// []interface{}.

func argString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func argStringDefault(args map[string]interface{}, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	if f, ok := args[key].(float64); ok {
		return int(f)
	}
	return def
}

func argFloat(args map[string]interface{}, key string, def float64) float64 {
	if f, ok := args[key].(float64); ok {
		return f
	}
	return def
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argMap(args map[string]interface{}, key string) map[string]interface{} {
	m, _ := args[key].(map[string]interface{})
	return m
}

func argStringMap(args map[string]interface{}, key string) map[string]string {
	raw := argMap(args, key)
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
