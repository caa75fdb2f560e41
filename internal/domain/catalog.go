package domain

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// OutputShape declares the form of a tool's output payload.
type OutputShape string

const (
	OutputText     OutputShape = "text"     // free-form prose
	OutputJSON     OutputShape = "json"     // structured object
	OutputDocument OutputShape = "document" // a rendered document (e.g. a feature file)
)

// Tool is one concrete operation within a role. A tool belongs to exactly
// one role; its identifier is unique within that role.
type Tool struct {
	ID          string          `json:"id"          yaml:"id"`
	Description string          `json:"description" yaml:"description"`
	// Params is a JSON Schema describing the tool's named parameters.
	Params json.RawMessage `json:"params,omitempty" yaml:"params,omitempty"`
	Output OutputShape     `json:"output" yaml:"output"`
	// Tags are the capability keywords/phrases matched against query text.
	Tags []string `json:"tags" yaml:"tags"`
	// Providers is the ordered fallback chain for this tool. When empty,
	// the owning role's default provider is the whole chain.
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty"`
}

// UnmarshalYAML decodes a tool, converting a params mapping written as
// native YAML into its JSON Schema bytes.
func (t *Tool) UnmarshalYAML(value *yaml.Node) error {
	type rawTool struct {
		ID          string         `yaml:"id"`
		Description string         `yaml:"description"`
		Params      map[string]any `yaml:"params"`
		Output      OutputShape    `yaml:"output"`
		Tags        []string       `yaml:"tags"`
		Providers   []string       `yaml:"providers"`
	}
	var rt rawTool
	if err := value.Decode(&rt); err != nil {
		return err
	}
	t.ID = rt.ID
	t.Description = rt.Description
	t.Output = rt.Output
	t.Tags = rt.Tags
	t.Providers = rt.Providers
	if rt.Params != nil {
		b, err := json.Marshal(rt.Params)
		if err != nil {
			return err
		}
		t.Params = b
	}
	return nil
}

// Role is a capability bundle exposed to callers: an ordered set of tools
// plus a preferred provider. Roles are immutable after catalog load.
type Role struct {
	ID          string `json:"id"   yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Priority breaks detection-score ties; lower wins. Declared explicitly
	// in configuration, never derived from registration order.
	Priority        int    `json:"priority" yaml:"priority"`
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	Tools           []Tool `json:"tools" yaml:"tools"`
}

// Chain returns the tool's provider fallback chain, falling back to the
// role's default provider when the tool declares none.
func (r *Role) Chain(t *Tool) []string {
	if len(t.Providers) > 0 {
		return t.Providers
	}
	if r.DefaultProvider != "" {
		return []string{r.DefaultProvider}
	}
	return nil
}
