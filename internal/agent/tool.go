// Package agent runs the bounded tool-calling assistant over session
// fragments. Destructive operations proposed by the model execute only
// after a human has approved them in the session's approval ledger.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docloom/docloom/internal/errs"
	"github.com/docloom/docloom/internal/llm"
)

// Tool is one callable exposed to the model. InputSchema is a JSON
// schema object; the dispatcher validates arguments against it before
// Execute runs.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

// Registry holds the tools available to the loop, in registration order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(tool *Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Specs renders the registry for the provider's tool parameter.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	return specs
}

// Dispatch parses and validates raw arguments, then executes the named
// tool. Unknown tools and malformed arguments are validation failures.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", errs.Validation("unknown tool %q", name)
	}
	input := map[string]interface{}{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &input); err != nil {
			return "", errs.Validation("tool %s arguments are not valid JSON: %v", name, err)
		}
	}
	if err := checkRequired(tool.InputSchema, input); err != nil {
		return "", err
	}
	return tool.Execute(ctx, input)
}

func checkRequired(schema, input map[string]interface{}) error {
	required, _ := schema["required"].([]string)
	for _, field := range required {
		value, present := input[field]
		if !present || value == nil {
			return errs.Validation("missing required argument %q", field)
		}
	}
	return nil
}

// objectSchema is a small helper for building tool input schemas.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
