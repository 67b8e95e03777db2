package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAnswer is returned when an answer's shape does not fit the node it
// is recorded against.
var ErrInvalidAnswer = errors.New("invalid answer for node")

// Breadcrumb is one answered step of the path taken so far.
type Breadcrumb struct {
	NodeID        string `json:"node_id"`
	Prompt        string `json:"prompt"`
	AnswerDisplay string `json:"answer_display"`
}

// GetNode looks a node up by id.
func GetNode(def *Definition, id string) (Node, bool) {
	return def.Node(id)
}

// IsTerminal reports whether n ends the walk.
func IsTerminal(n Node) bool {
	_, ok := n.(*TerminalNode)
	return ok
}

// ResolveNextNode returns the node that follows nodeID given answer. The second
// result is false when there is no next node: the node is missing or terminal,
// a select value matches no option, or a group matches no rule and has no
// default.
func ResolveNextNode(def *Definition, nodeID string, answer Answer) (string, bool) {
	n, ok := def.Node(nodeID)
	if !ok {
		return "", false
	}
	var next string
	switch n := n.(type) {
	case *TerminalNode:
		return "", false
	case *SelectNode:
		opt, ok := n.option(answer.Value)
		if !ok {
			return "", false
		}
		next = opt.NextNodeID
	case *GroupNode:
		next = n.DefaultNextNodeID
		if !answer.IsGroup() {
			break
		}
		for _, r := range n.Rules {
			if r.Condition.Field != "" && r.Condition.holds(answer) {
				next = r.NextNodeID
				break
			}
		}
	case *InputNode:
		next = n.NextNodeID
	}
	return next, next != ""
}

func (n *SelectNode) option(value string) (Option, bool) {
	for _, o := range n.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// holds evaluates the condition against a group answer. A missing field never
// equals a value and always differs from one.
func (c Condition) holds(answer Answer) bool {
	actual, present := answer.Field(c.Field)
	switch c.Op {
	case OpEq:
		return present && actual == c.Value
	case OpNeq:
		return !present || actual != c.Value
	}
	return false
}

// GetCurrentNodeID walks from the root using the recorded answers and returns
// the first node that is terminal, missing, unanswered, or whose answer does
// not resolve. The same answers always yield the same node.
func GetCurrentNodeID(def *Definition, answers Answers) string {
	if def == nil {
		return ""
	}
	current := def.RootNodeID
	// An acyclic walk visits each node at most once.
	for steps := 0; current != "" && steps <= len(def.Nodes); steps++ {
		n, ok := def.Node(current)
		if !ok || IsTerminal(n) {
			return current
		}
		answer, answered := answers[current]
		if !answered {
			return current
		}
		next, ok := ResolveNextNode(def, current, answer)
		if !ok {
			return current
		}
		current = next
	}
	return current
}

// BuildBreadcrumbTrail reconstructs the answered path from the root. It stops
// at the first unanswered node and after the first answer that does not
// resolve; terminal nodes are never part of the trail.
func BuildBreadcrumbTrail(def *Definition, answers Answers) []Breadcrumb {
	trail := []Breadcrumb{}
	if def == nil {
		return trail
	}
	current := def.RootNodeID
	for current != "" && len(trail) <= len(def.Nodes) {
		n, ok := def.Node(current)
		if !ok || IsTerminal(n) {
			break
		}
		answer, answered := answers[current]
		if !answered {
			break
		}
		q := n.(Question)
		trail = append(trail, Breadcrumb{
			NodeID:        current,
			Prompt:        q.Prompt(),
			AnswerDisplay: FormatAnswer(q, answer),
		})
		next, ok := ResolveNextNode(def, current, answer)
		if !ok {
			break
		}
		current = next
	}
	return trail
}

// FormatAnswer renders an answer for display next to its question.
func FormatAnswer(q Question, answer Answer) string {
	switch q := q.(type) {
	case *SelectNode:
		if opt, ok := q.option(answer.Value); ok && opt.Label != "" {
			return opt.Label
		}
		return answer.String()
	case *GroupNode:
		if !answer.IsGroup() {
			return answer.String()
		}
		parts := make([]string, 0, len(q.Fields))
		for _, f := range q.Fields {
			v := answer.Fields[f.Name]
			if v == "" {
				continue
			}
			if f.InputType == InputSelect {
				for _, o := range f.Options {
					if o.Value == v && o.Label != "" {
						v = o.Label
						break
					}
				}
			}
			label := f.Label
			if label == "" {
				label = f.Name
			}
			parts = append(parts, label+": "+v)
		}
		if len(parts) == 0 {
			return answer.String()
		}
		return strings.Join(parts, "; ")
	default:
		return answer.String()
	}
}

// GetTerminalFinding returns the finding of a terminal node.
func GetTerminalFinding(n Node) (Finding, bool) {
	t, ok := n.(*TerminalNode)
	if !ok {
		return Finding{}, false
	}
	return t.Finding, true
}

// FormatFinding renders a finding as "[TYPE] title\n\nrecommendation".
func FormatFinding(f Finding) string {
	return fmt.Sprintf("[%s] %s\n\n%s", strings.ToUpper(string(f.Type)), f.Title, f.Recommendation)
}

// CheckAnswer verifies that answer has the shape n expects. Select values are
// not checked against the options: an unmatched value is recorded and simply
// does not advance the walk.
func CheckAnswer(n Node, answer Answer) error {
	switch n := n.(type) {
	case *TerminalNode:
		return fmt.Errorf("%w: %q is a terminal node", ErrInvalidAnswer, n.ID())
	case *GroupNode:
		if !answer.IsGroup() {
			return fmt.Errorf("%w: %q expects a field mapping", ErrInvalidAnswer, n.ID())
		}
		known := make(map[string]struct{}, len(n.Fields))
		for _, f := range n.Fields {
			known[f.Name] = struct{}{}
		}
		for name := range answer.Fields {
			if _, ok := known[name]; !ok {
				return fmt.Errorf("%w: %q has no field %q", ErrInvalidAnswer, n.ID(), name)
			}
		}
	case Question:
		if answer.IsGroup() {
			return fmt.Errorf("%w: %q expects a single value", ErrInvalidAnswer, n.ID())
		}
	}
	return nil
}
