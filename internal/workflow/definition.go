// Package workflow holds the guided-assessment decision graphs and the pure
// functions that walk them.
package workflow

// InputType is the kind of input a question node collects.
type InputType string

const (
	InputText     InputType = "text"
	InputTextarea InputType = "textarea"
	InputDate     InputType = "date"
	InputNumber   InputType = "number"
	InputSelect   InputType = "select"
	InputGroup    InputType = "group"
)

// FindingType classifies the conclusion recorded by a terminal node.
type FindingType string

const (
	FindingPass        FindingType = "pass"
	FindingFail        FindingType = "fail"
	FindingObservation FindingType = "observation"
)

// Operator compares a group field against a rule value.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
)

// Definition is an immutable decision graph. Nodes refer to each other by id only.
type Definition struct {
	Version    string
	RootNodeID string
	Nodes      map[string]Node
}

// Node is one step of a definition. The concrete type is one of *SelectNode,
// *GroupNode, *InputNode or *TerminalNode.
type Node interface {
	ID() string
	sealed()
}

// Question is implemented by every node that collects an answer.
type Question interface {
	Node
	Prompt() string
	InputType() InputType
}

type question struct {
	id     string
	prompt string
}

func (q *question) ID() string     { return q.id }
func (q *question) Prompt() string { return q.prompt }
func (q *question) sealed()        {}

// Option is one choice of a select input.
type Option struct {
	Value      string
	Label      string
	NextNodeID string
}

// SelectNode branches on the chosen option value.
type SelectNode struct {
	question
	Options []Option
}

func (*SelectNode) InputType() InputType { return InputSelect }

// NewSelectNode builds a select question.
func NewSelectNode(id, prompt string, options ...Option) *SelectNode {
	return &SelectNode{question: question{id: id, prompt: prompt}, Options: options}
}

// Field is one input inside a group node.
type Field struct {
	Name      string
	Label     string
	InputType InputType
	Options   []Option
}

// Condition tests a single group field.
type Condition struct {
	Field string
	Op    Operator
	Value string
}

// Rule routes to NextNodeID when its condition holds.
type Rule struct {
	Condition  Condition
	NextNodeID string
}

// GroupNode collects several fields at once and routes on ordered rules.
type GroupNode struct {
	question
	Fields            []Field
	Rules             []Rule
	DefaultNextNodeID string
}

func (*GroupNode) InputType() InputType { return InputGroup }

// NewGroupNode builds a group question.
func NewGroupNode(id, prompt string, fields []Field, rules []Rule, defaultNext string) *GroupNode {
	return &GroupNode{
		question:          question{id: id, prompt: prompt},
		Fields:            fields,
		Rules:             rules,
		DefaultNextNodeID: defaultNext,
	}
}

// InputNode is a free-form question (text, textarea, date or number) with a
// single outgoing edge. The answer never affects branching.
type InputNode struct {
	question
	Kind       InputType
	NextNodeID string
}

func (n *InputNode) InputType() InputType { return n.Kind }

// NewInputNode builds a free-form question.
func NewInputNode(id, prompt string, kind InputType, next string) *InputNode {
	return &InputNode{question: question{id: id, prompt: prompt}, Kind: kind, NextNodeID: next}
}

// Finding is the structured conclusion attached to a terminal node.
type Finding struct {
	Type           FindingType `json:"finding_type"`
	Title          string      `json:"title"`
	Recommendation string      `json:"recommendation"`
}

// TerminalNode ends a walk. It has no outgoing edges.
type TerminalNode struct {
	id      string
	Finding Finding
}

func (n *TerminalNode) ID() string { return n.id }
func (*TerminalNode) sealed()      {}

// NewTerminalNode builds a terminal node.
func NewTerminalNode(id string, finding Finding) *TerminalNode {
	return &TerminalNode{id: id, Finding: finding}
}

// NewDefinition indexes nodes by their id.
func NewDefinition(version, root string, nodes ...Node) *Definition {
	def := &Definition{Version: version, RootNodeID: root, Nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		def.Nodes[n.ID()] = n
	}
	return def
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (Node, bool) {
	if d == nil {
		return nil, false
	}
	n, ok := d.Nodes[id]
	return n, ok
}

// edges lists every node id referenced from n, in authored order.
func edges(n Node) []string {
	switch n := n.(type) {
	case *SelectNode:
		out := make([]string, 0, len(n.Options))
		for _, o := range n.Options {
			out = append(out, o.NextNodeID)
		}
		return out
	case *GroupNode:
		out := make([]string, 0, len(n.Rules)+1)
		for _, r := range n.Rules {
			out = append(out, r.NextNodeID)
		}
		if n.DefaultNextNodeID != "" {
			out = append(out, n.DefaultNextNodeID)
		}
		return out
	case *InputNode:
		return []string{n.NextNodeID}
	default:
		return nil
	}
}
