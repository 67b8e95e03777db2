package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_YAML(t *testing.T) {
	def, err := LoadFile("testdata/access_review.yaml")
	require.NoError(t, err)

	assert.Equal(t, "1", def.Version)
	assert.Equal(t, "root", def.RootNodeID)
	require.Len(t, def.Nodes, 6)

	root, ok := def.Node("root")
	require.True(t, ok)
	sel, ok := root.(*SelectNode)
	require.True(t, ok)
	assert.Equal(t, "Are user access reviews performed?", sel.Prompt())
	assert.Equal(t, []Option{
		{Value: "yes", Label: "Yes, periodically", NextNodeID: "last_review"},
		{Value: "no", Label: "No", NextNodeID: "t_fail"},
	}, sel.Options)

	n, _ := def.Node("last_review")
	in, ok := n.(*InputNode)
	require.True(t, ok)
	assert.Equal(t, InputDate, in.InputType())

	n, _ = def.Node("outcome")
	group, ok := n.(*GroupNode)
	require.True(t, ok)
	require.Len(t, group.Fields, 2)
	assert.Equal(t, InputNumber, group.Fields[1].InputType)
	assert.Equal(t, "t_observation", group.DefaultNextNodeID)
	assert.Equal(t, Condition{Field: "policy", Op: OpEq, Value: "compliant"}, group.Rules[0].Condition)

	n, _ = def.Node("t_fail")
	term, ok := n.(*TerminalNode)
	require.True(t, ok)
	assert.Equal(t, FindingFail, term.Finding.Type)

	assert.NoError(t, Validate(def))
}

func TestLoadDir(t *testing.T) {
	defs, err := LoadDir("testdata")
	require.NoError(t, err)
	assert.Contains(t, defs, "access_review")
	assert.Contains(t, defs, "mfa")
}

func TestParseJSON_Defaults(t *testing.T) {
	def, err := ParseJSON([]byte(`{
		"root_node_id": "q",
		"nodes": {
			"q": {"prompt": "Describe the control", "next_node_id": "end"},
			"end": {"type": "terminal", "title": "Noted"}
		}
	}`))
	require.NoError(t, err)

	q, _ := def.Node("q")
	assert.Equal(t, InputText, q.(Question).InputType(), "input_type defaults to text")
	end, _ := def.Node("end")
	f, _ := GetTerminalFinding(end)
	assert.Equal(t, FindingObservation, f.Type, "finding_type defaults to observation")
}

func TestParseJSON_ScalarValues(t *testing.T) {
	def, err := ParseJSON([]byte(`{
		"root_node_id": "q",
		"nodes": {
			"q": {"prompt": "Count", "input_type": "select", "options": [
				{"value": 1, "next_node_id": "a"},
				{"value": true, "next_node_id": "b"}
			]},
			"a": {"type": "terminal", "title": "a"},
			"b": {"type": "terminal", "title": "b"}
		}
	}`))
	require.NoError(t, err)
	next, ok := ResolveNextNode(def, "q", Scalar("true"))
	assert.True(t, ok)
	assert.Equal(t, "b", next)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown input type":   `{"root_node_id":"q","nodes":{"q":{"prompt":"?","input_type":"slider"}}}`,
		"unknown node type":    `{"root_node_id":"q","nodes":{"q":{"type":"loop"}}}`,
		"unknown finding type": `{"root_node_id":"q","nodes":{"q":{"type":"terminal","finding_type":"critical"}}}`,
		"unknown operator":     `{"root_node_id":"q","nodes":{"q":{"prompt":"?","input_type":"group","next_node_rules":[{"condition":{"field":"a","op":"gt","value":"1"},"next_node_id":"x"}]}}}`,
		"object as option":     `{"root_node_id":"q","nodes":{"q":{"prompt":"?","input_type":"select","options":[{"value":{"a":1}}]}}}`,
		"malformed":            `{"root_node_id":`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefinition_JSONRoundTrip(t *testing.T) {
	def, err := LoadFile("testdata/access_review.yaml")
	require.NoError(t, err)

	data, err := json.Marshal(def)
	require.NoError(t, err)

	var back Definition
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, def, &back)
}

func TestAnswer_JSON(t *testing.T) {
	var answers Answers
	require.NoError(t, json.Unmarshal([]byte(`{"a":"yes","b":42,"c":{"p":"compliant","n":3}}`), &answers))

	assert.Equal(t, Scalar("yes"), answers["a"])
	assert.Equal(t, Scalar("42"), answers["b"])
	assert.Equal(t, Group(map[string]string{"p": "compliant", "n": "3"}), answers["c"])

	data, err := json.Marshal(Answers{"a": Scalar("yes"), "c": Group(map[string]string{"p": "x"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"yes","c":{"p":"x"}}`, string(data))

	var a Answer
	assert.Error(t, json.Unmarshal([]byte(`["x"]`), &a))
}
