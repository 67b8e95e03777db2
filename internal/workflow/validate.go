package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a definition for authoring defects: missing fields, a
// missing root, dangling edges, duplicate group fields, group nodes without a
// default route, and cycles. All problems are returned joined.
func Validate(def *Definition) error {
	if def == nil {
		return errors.New("workflow definition is nil")
	}
	var errs []error
	raw := def.raw()
	if err := validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if def.RootNodeID != "" {
		if _, ok := def.Nodes[def.RootNodeID]; !ok {
			errs = append(errs, fmt.Errorf("root node %q does not exist", def.RootNodeID))
		}
	}

	for _, id := range sortedIDs(def) {
		n := def.Nodes[id]
		for _, next := range edges(n) {
			if next == "" {
				errs = append(errs, fmt.Errorf("node %q: empty next_node_id", id))
				continue
			}
			if _, ok := def.Nodes[next]; !ok {
				errs = append(errs, fmt.Errorf("node %q: next_node_id %q does not exist", id, next))
			}
		}
		switch n := n.(type) {
		case *SelectNode:
			if len(n.Options) == 0 {
				errs = append(errs, fmt.Errorf("node %q: select without options", id))
			}
		case *GroupNode:
			if len(n.Fields) == 0 {
				errs = append(errs, fmt.Errorf("node %q: group without fields", id))
			}
			seen := make(map[string]struct{}, len(n.Fields))
			for _, f := range n.Fields {
				if _, dup := seen[f.Name]; dup {
					errs = append(errs, fmt.Errorf("node %q: duplicate field %q", id, f.Name))
				}
				seen[f.Name] = struct{}{}
			}
			for i, r := range n.Rules {
				if _, ok := seen[r.Condition.Field]; !ok {
					errs = append(errs, fmt.Errorf("node %q: rule %d references unknown field %q", id, i, r.Condition.Field))
				}
			}
			if n.DefaultNextNodeID == "" {
				errs = append(errs, fmt.Errorf("node %q: group without default_next_node_id", id))
			}
		}
	}

	if cycle := findCycle(def); cycle != nil {
		errs = append(errs, fmt.Errorf("cycle detected: %v", cycle))
	}
	return errors.Join(errs...)
}

func sortedIDs(def *Definition) []string {
	ids := make([]string, 0, len(def.Nodes))
	for id := range def.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// findCycle returns the node ids of the first cycle found, or nil.
func findCycle(def *Definition) []string {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(def.Nodes))
	var stack []string
	var visit func(id string) []string
	visit = func(id string) []string {
		colour[id] = grey
		stack = append(stack, id)
		for _, next := range edges(def.Nodes[id]) {
			if _, ok := def.Nodes[next]; !ok {
				continue
			}
			switch colour[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						return append(append([]string{}, stack[i:]...), next)
					}
				}
			case white:
				if c := visit(next); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		return nil
	}
	for _, id := range sortedIDs(def) {
		if colour[id] == white {
			if c := visit(id); c != nil {
				return c
			}
		}
	}
	return nil
}
