package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	nodeTypeQuestion = "question"
	nodeTypeTerminal = "terminal"
)

// rawDefinition is the authored shape of a definition, shared by JSON and YAML.
type rawDefinition struct {
	Version    string             `json:"version,omitempty" yaml:"version,omitempty"`
	RootNodeID string             `json:"root_node_id" yaml:"root_node_id" validate:"required"`
	Nodes      map[string]rawNode `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
}

type rawNode struct {
	Type              string      `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=question terminal"`
	Prompt            string      `json:"prompt,omitempty" yaml:"prompt,omitempty" validate:"required_unless=Type terminal"`
	InputType         InputType   `json:"input_type,omitempty" yaml:"input_type,omitempty"`
	Options           []rawOption `json:"options,omitempty" yaml:"options,omitempty" validate:"dive"`
	Fields            []rawField  `json:"fields,omitempty" yaml:"fields,omitempty" validate:"dive"`
	NextNodeRules     []rawRule   `json:"next_node_rules,omitempty" yaml:"next_node_rules,omitempty" validate:"dive"`
	DefaultNextNodeID string      `json:"default_next_node_id,omitempty" yaml:"default_next_node_id,omitempty"`
	NextNodeID        string      `json:"next_node_id,omitempty" yaml:"next_node_id,omitempty"`
	FindingType       FindingType `json:"finding_type,omitempty" yaml:"finding_type,omitempty"`
	Title             string      `json:"title,omitempty" yaml:"title,omitempty" validate:"required_if=Type terminal"`
	Recommendation    string      `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
}

type rawOption struct {
	Value      scalar `json:"value" yaml:"value" validate:"required"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	NextNodeID string `json:"next_node_id,omitempty" yaml:"next_node_id,omitempty"`
}

type rawField struct {
	Name      string      `json:"name" yaml:"name" validate:"required"`
	Label     string      `json:"label,omitempty" yaml:"label,omitempty"`
	InputType InputType   `json:"input_type,omitempty" yaml:"input_type,omitempty"`
	Options   []rawOption `json:"options,omitempty" yaml:"options,omitempty" validate:"dive"`
}

type rawRule struct {
	Condition  rawCondition `json:"condition" yaml:"condition"`
	NextNodeID string       `json:"next_node_id" yaml:"next_node_id" validate:"required"`
}

type rawCondition struct {
	Field string   `json:"field" yaml:"field" validate:"required"`
	Op    Operator `json:"op" yaml:"op"`
	Value scalar   `json:"value" yaml:"value"`
}

// scalar accepts any JSON or YAML scalar and keeps its textual form.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	text, err := scalarText(data)
	if err != nil {
		return err
	}
	*s = scalar(text)
	return nil
}

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", n.Line)
	}
	*s = scalar(n.Value)
	return nil
}

func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return "", nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case data[0] == '{' || data[0] == '[':
		return "", fmt.Errorf("expected a scalar value, got %s", data)
	default:
		return string(data), nil
	}
}

// ParseJSON decodes a definition from its JSON form.
func ParseJSON(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding workflow definition: %w", err)
	}
	return raw.build()
}

// ParseYAML decodes a definition from its YAML form.
func ParseYAML(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding workflow definition: %w", err)
	}
	return raw.build()
}

// LoadFile reads a definition from disk. Files ending in .json are decoded as
// JSON, everything else as YAML.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var def *Definition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		def, err = ParseJSON(data)
	} else {
		def, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every .json, .yaml and .yml file in dir, keyed by file name
// without extension.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}
	defs := make(map[string]*Definition)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = def
	}
	return defs, nil
}

// MarshalJSON encodes the definition in its authored wire format.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.raw())
}

// UnmarshalJSON decodes the authored wire format.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	def, err := raw.build()
	if err != nil {
		return err
	}
	*d = *def
	return nil
}

func (r *rawDefinition) build() (*Definition, error) {
	def := &Definition{
		Version:    r.Version,
		RootNodeID: r.RootNodeID,
		Nodes:      make(map[string]Node, len(r.Nodes)),
	}
	ids := make([]string, 0, len(r.Nodes))
	for id := range r.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n, err := r.Nodes[id].build(id)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
		def.Nodes[id] = n
	}
	return def, nil
}

func (r rawNode) build(id string) (Node, error) {
	switch r.Type {
	case nodeTypeTerminal:
		ft := r.FindingType
		if ft == "" {
			ft = FindingObservation
		}
		if !validFindingType(ft) {
			return nil, fmt.Errorf("unknown finding_type %q", ft)
		}
		return NewTerminalNode(id, Finding{Type: ft, Title: r.Title, Recommendation: r.Recommendation}), nil
	case "", nodeTypeQuestion:
	default:
		return nil, fmt.Errorf("unknown node type %q", r.Type)
	}

	it := r.InputType
	if it == "" {
		it = InputText
	}
	switch it {
	case InputSelect:
		return NewSelectNode(id, r.Prompt, buildOptions(r.Options)...), nil
	case InputGroup:
		fields := make([]Field, 0, len(r.Fields))
		for _, f := range r.Fields {
			fit := f.InputType
			if fit == "" {
				fit = InputText
			}
			if !validInputType(fit) || fit == InputGroup {
				return nil, fmt.Errorf("field %q: unsupported input_type %q", f.Name, fit)
			}
			fields = append(fields, Field{Name: f.Name, Label: f.Label, InputType: fit, Options: buildOptions(f.Options)})
		}
		rules := make([]Rule, 0, len(r.NextNodeRules))
		for i, rr := range r.NextNodeRules {
			if rr.Condition.Op != OpEq && rr.Condition.Op != OpNeq {
				return nil, fmt.Errorf("rule %d: unknown op %q", i, rr.Condition.Op)
			}
			rules = append(rules, Rule{
				Condition:  Condition{Field: rr.Condition.Field, Op: rr.Condition.Op, Value: string(rr.Condition.Value)},
				NextNodeID: rr.NextNodeID,
			})
		}
		return NewGroupNode(id, r.Prompt, fields, rules, r.DefaultNextNodeID), nil
	case InputText, InputTextarea, InputDate, InputNumber:
		return NewInputNode(id, r.Prompt, it, r.NextNodeID), nil
	default:
		return nil, fmt.Errorf("unknown input_type %q", it)
	}
}

func buildOptions(raw []rawOption) []Option {
	out := make([]Option, 0, len(raw))
	for _, o := range raw {
		out = append(out, Option{Value: string(o.Value), Label: o.Label, NextNodeID: o.NextNodeID})
	}
	return out
}

func rawOptions(opts []Option) []rawOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]rawOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, rawOption{Value: scalar(o.Value), Label: o.Label, NextNodeID: o.NextNodeID})
	}
	return out
}

func (d *Definition) raw() rawDefinition {
	r := rawDefinition{Version: d.Version, RootNodeID: d.RootNodeID, Nodes: make(map[string]rawNode, len(d.Nodes))}
	for id, n := range d.Nodes {
		r.Nodes[id] = rawFromNode(n)
	}
	return r
}

func rawFromNode(n Node) rawNode {
	switch n := n.(type) {
	case *TerminalNode:
		return rawNode{
			Type:           nodeTypeTerminal,
			FindingType:    n.Finding.Type,
			Title:          n.Finding.Title,
			Recommendation: n.Finding.Recommendation,
		}
	case *SelectNode:
		return rawNode{Type: nodeTypeQuestion, Prompt: n.Prompt(), InputType: InputSelect, Options: rawOptions(n.Options)}
	case *GroupNode:
		r := rawNode{Type: nodeTypeQuestion, Prompt: n.Prompt(), InputType: InputGroup, DefaultNextNodeID: n.DefaultNextNodeID}
		for _, f := range n.Fields {
			r.Fields = append(r.Fields, rawField{Name: f.Name, Label: f.Label, InputType: f.InputType, Options: rawOptions(f.Options)})
		}
		for _, rule := range n.Rules {
			r.NextNodeRules = append(r.NextNodeRules, rawRule{
				Condition:  rawCondition{Field: rule.Condition.Field, Op: rule.Condition.Op, Value: scalar(rule.Condition.Value)},
				NextNodeID: rule.NextNodeID,
			})
		}
		return r
	case *InputNode:
		return rawNode{Type: nodeTypeQuestion, Prompt: n.Prompt(), InputType: n.Kind, NextNodeID: n.NextNodeID}
	default:
		return rawNode{}
	}
}

func validInputType(t InputType) bool {
	switch t {
	case InputText, InputTextarea, InputDate, InputNumber, InputSelect, InputGroup:
		return true
	}
	return false
}

func validFindingType(t FindingType) bool {
	switch t {
	case FindingPass, FindingFail, FindingObservation:
		return true
	}
	return false
}
