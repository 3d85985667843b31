package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flitsinc/go-golem/internal/gameworld"
	llmtools "github.com/flitsinc/go-llms/tools"
)

// Param is one declared tool parameter. Tools list their parameters
// explicitly and in order; nothing is derived by reflection.
type Param struct {
	Name        string
	Type        string // string | number | boolean
	Description string
	Required    bool
}

// Tool is a registered action the planner and brain can dispatch by name.
// ReadOnly tools never touch the cancellation token and may run while a
// physical action is in flight.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	ReadOnly    bool
	Execute     func(ctx context.Context, params map[string]any) (gameworld.SkillResult, error)
}

// Validate checks params against the declared parameter list: required
// parameters present, types correct, no unknown keys.
func (t Tool) Validate(params map[string]any) error {
	known := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		known[p.Name] = true
		value, ok := params[p.Name]
		if !ok {
			if p.Required {
				return fmt.Errorf("%s: missing required parameter %q", t.Name, p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, value) {
			return fmt.Errorf("%s: parameter %q must be a %s", t.Name, p.Name, p.Type)
		}
	}
	for name := range params {
		if !known[name] {
			return fmt.Errorf("%s: unknown parameter %q", t.Name, name)
		}
	}
	return nil
}

func typeMatches(paramType string, value any) bool {
	switch paramType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	}
	return true
}

// Schema returns the function schema advertised to the LLM layer. The
// declared parameter list rides in the description; the wire schema stays a
// free-form object the transport accepts.
func (t Tool) Schema() llmtools.FunctionSchema {
	desc := t.Description
	if sig := t.signature(); sig != "" {
		desc += ". Parameters: " + sig
	}
	return llmtools.FunctionSchema{
		Name:        t.Name,
		Description: desc,
		Parameters:  llmtools.ValueSchema{Type: "object"},
	}
}

func (t Tool) signature() string {
	var sig []string
	for _, p := range t.Params {
		part := p.Name + " " + p.Type
		if !p.Required {
			part += "?"
		}
		sig = append(sig, part)
	}
	return strings.Join(sig, ", ")
}

// Doc renders the signature line used in the system prompt.
func (t Tool) Doc() string {
	line := fmt.Sprintf("%s(%s) - %s", t.Name, t.signature(), t.Description)
	if t.ReadOnly {
		line += " [read-only]"
	}
	return line
}

// Registry maps tool names to their definitions, preserving registration
// order for prompt rendering.
type Registry struct {
	mu     sync.Mutex
	order  []string
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Tool{}}
}

func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s has no execute func", tool.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.byName[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, ok := r.byName[name]
	return tool, ok
}

func (r *Registry) List() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// QuerySchemas returns the schemas of the no-argument read-only tools. Only
// those are safe to answer natively mid-completion; everything else goes
// through the instruction protocol so budget, guard, and cancellation see it.
func (r *Registry) QuerySchemas() []llmtools.FunctionSchema {
	var out []llmtools.FunctionSchema
	for _, tool := range r.List() {
		if tool.ReadOnly && len(tool.Params) == 0 {
			out = append(out, tool.Schema())
		}
	}
	return out
}

// PromptDocs renders the tool catalog block for the system prompt.
func (r *Registry) PromptDocs() string {
	var b strings.Builder
	for _, tool := range r.List() {
		b.WriteString("- ")
		b.WriteString(tool.Doc())
		b.WriteString("\n")
	}
	return b.String()
}
