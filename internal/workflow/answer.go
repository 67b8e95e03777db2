package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Answer is the value recorded for one question: a scalar for select and
// free-form inputs, or a field mapping for group inputs.
type Answer struct {
	Value  string
	Fields map[string]string
}

// Answers maps node ids to their recorded answer.
type Answers map[string]Answer

// Scalar builds a scalar answer.
func Scalar(v string) Answer { return Answer{Value: v} }

// Group builds a field-mapping answer.
func Group(fields map[string]string) Answer {
	if fields == nil {
		fields = map[string]string{}
	}
	return Answer{Fields: fields}
}

// IsGroup reports whether the answer is a field mapping.
func (a Answer) IsGroup() bool { return a.Fields != nil }

// Field returns a group field value and whether it was supplied.
func (a Answer) Field(name string) (string, bool) {
	v, ok := a.Fields[name]
	return v, ok
}

// String returns the textual form of the answer. Field mappings are rendered
// as "name: value" pairs sorted by name.
func (a Answer) String() string {
	if !a.IsGroup() {
		return a.Value
	}
	names := make([]string, 0, len(a.Fields))
	for name := range a.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+a.Fields[name])
	}
	return strings.Join(parts, "; ")
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsGroup() {
		return json.Marshal(a.Fields)
	}
	return json.Marshal(a.Value)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		fields := make(map[string]string, len(raw))
		for name, v := range raw {
			text, err := scalarText(v)
			if err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
			fields[name] = text
		}
		*a = Answer{Fields: fields}
		return nil
	}
	text, err := scalarText(data)
	if err != nil {
		return err
	}
	*a = Answer{Value: text}
	return nil
}

// Clone returns a deep copy of the answers.
func (as Answers) Clone() Answers {
	out := make(Answers, len(as))
	for id, a := range as {
		if a.IsGroup() {
			fields := make(map[string]string, len(a.Fields))
			for k, v := range a.Fields {
				fields[k] = v
			}
			a = Answer{Fields: fields}
		}
		out[id] = a
	}
	return out
}
