package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passFailDefinition() *Definition {
	return NewDefinition("1", "root",
		NewSelectNode("root", "Is MFA enforced for all administrators?",
			Option{Value: "yes", Label: "Yes", NextNodeID: "T_pass"},
			Option{Value: "no", Label: "No", NextNodeID: "T_fail"},
		),
		NewTerminalNode("T_pass", Finding{Type: FindingPass, Title: "MFA enforced", Recommendation: "Keep reviewing quarterly."}),
		NewTerminalNode("T_fail", Finding{Type: FindingFail, Title: "MFA missing", Recommendation: "Enforce MFA for admins."}),
	)
}

// accessReviewDefinition: root (select) -> evidence (date) -> review (group) -> terminals.
func accessReviewDefinition() *Definition {
	return NewDefinition("1", "root",
		NewSelectNode("root", "Are access reviews performed?",
			Option{Value: "yes", Label: "Yes, periodically", NextNodeID: "last_review"},
			Option{Value: "no", Label: "No", NextNodeID: "T_fail"},
		),
		NewInputNode("last_review", "When was the last review?", InputDate, "review"),
		NewGroupNode("review", "Review outcome",
			[]Field{
				{Name: "p", Label: "Policy", InputType: InputSelect, Options: []Option{
					{Value: "compliant", Label: "Compliant"},
					{Value: "non_compliant", Label: "Non-compliant"},
				}},
				{Name: "notes", Label: "Notes", InputType: InputTextarea},
			},
			[]Rule{{Condition: Condition{Field: "p", Op: OpEq, Value: "compliant"}, NextNodeID: "T1"}},
			"T2",
		),
		NewTerminalNode("T1", Finding{Type: FindingPass, Title: "Reviews effective"}),
		NewTerminalNode("T2", Finding{Type: FindingObservation, Title: "Reviews need work"}),
		NewTerminalNode("T_fail", Finding{Type: FindingFail, Title: "No reviews"}),
	)
}

func TestResolveNextNode_Select(t *testing.T) {
	def := NewDefinition("1", "q",
		NewSelectNode("q", "?",
			Option{Value: "yes", NextNodeID: "A"},
			Option{Value: "no", NextNodeID: "B"},
		),
		NewTerminalNode("A", Finding{Type: FindingPass}),
		NewTerminalNode("B", Finding{Type: FindingFail}),
	)

	next, ok := ResolveNextNode(def, "q", Scalar("yes"))
	assert.True(t, ok)
	assert.Equal(t, "A", next)

	next, ok = ResolveNextNode(def, "q", Scalar("no"))
	assert.True(t, ok)
	assert.Equal(t, "B", next)

	_, ok = ResolveNextNode(def, "q", Scalar("maybe"))
	assert.False(t, ok)
}

func TestResolveNextNode_Group(t *testing.T) {
	def := NewDefinition("1", "g",
		NewGroupNode("g", "?",
			[]Field{{Name: "p", InputType: InputText}},
			[]Rule{{Condition: Condition{Field: "p", Op: OpEq, Value: "compliant"}, NextNodeID: "T1"}},
			"T2",
		),
		NewTerminalNode("T1", Finding{Type: FindingPass}),
		NewTerminalNode("T2", Finding{Type: FindingFail}),
	)

	tests := []struct {
		name   string
		answer Answer
		want   string
	}{
		{"matching rule", Group(map[string]string{"p": "compliant"}), "T1"},
		{"falls back to default", Group(map[string]string{"p": "non_compliant"}), "T2"},
		{"empty answer uses default", Group(nil), "T2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := ResolveNextNode(def, "g", tt.answer)
			assert.True(t, ok)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestResolveNextNode_GroupRuleOrderAndNeq(t *testing.T) {
	def := NewDefinition("1", "g",
		NewGroupNode("g", "?",
			[]Field{{Name: "a"}, {Name: "b"}},
			[]Rule{
				{Condition: Condition{Field: "a", Op: OpNeq, Value: "ok"}, NextNodeID: "first"},
				{Condition: Condition{Field: "b", Op: OpEq, Value: "x"}, NextNodeID: "second"},
			},
			"",
		),
	)

	next, ok := ResolveNextNode(def, "g", Group(map[string]string{"a": "bad", "b": "x"}))
	assert.True(t, ok)
	assert.Equal(t, "first", next, "first matching rule wins")

	next, ok = ResolveNextNode(def, "g", Group(map[string]string{"a": "ok", "b": "x"}))
	assert.True(t, ok)
	assert.Equal(t, "second", next)

	next, ok = ResolveNextNode(def, "g", Group(map[string]string{"b": "x"}))
	assert.True(t, ok)
	assert.Equal(t, "first", next, "absent field differs from any value")

	_, ok = ResolveNextNode(def, "g", Group(map[string]string{"a": "ok", "b": "y"}))
	assert.False(t, ok, "no rule and no default is a dead end")
}

func TestResolveNextNode_GroupScalarAnswerTakesDefault(t *testing.T) {
	def := NewDefinition("1", "g",
		NewGroupNode("g", "?",
			[]Field{{Name: "p"}},
			[]Rule{
				{Condition: Condition{Op: OpNeq, Value: "x"}, NextNodeID: "unnamed"},
				{Condition: Condition{Field: "p", Op: OpNeq, Value: "x"}, NextNodeID: "N"},
			},
			"D",
		),
	)

	next, ok := ResolveNextNode(def, "g", Scalar("x"))
	assert.True(t, ok)
	assert.Equal(t, "D", next, "rules only apply to field answers")

	next, ok = ResolveNextNode(def, "g", Group(map[string]string{"p": "y"}))
	assert.True(t, ok)
	assert.Equal(t, "N", next, "rules without a field are skipped")

	assert.Equal(t, "D", GetCurrentNodeID(def, Answers{"g": Scalar("x")}))
}

func TestResolveNextNode_InputIgnoresAnswer(t *testing.T) {
	def := accessReviewDefinition()
	for _, v := range []string{"2024-01-31", "", "not a date"} {
		next, ok := ResolveNextNode(def, "last_review", Scalar(v))
		assert.True(t, ok)
		assert.Equal(t, "review", next)
	}
}

func TestResolveNextNode_MissingOrTerminal(t *testing.T) {
	def := passFailDefinition()
	_, ok := ResolveNextNode(def, "nope", Scalar("yes"))
	assert.False(t, ok)
	_, ok = ResolveNextNode(def, "T_pass", Scalar("yes"))
	assert.False(t, ok)
}

func TestGetCurrentNodeID(t *testing.T) {
	def := accessReviewDefinition()

	tests := []struct {
		name    string
		answers Answers
		want    string
	}{
		{"no answers is the root", Answers{}, "root"},
		{"advances on select", Answers{"root": Scalar("yes")}, "last_review"},
		{"unresolved select stays", Answers{"root": Scalar("maybe")}, "root"},
		{"reaches group", Answers{"root": Scalar("yes"), "last_review": Scalar("2024-05-01")}, "review"},
		{
			"reaches terminal",
			Answers{"root": Scalar("yes"), "last_review": Scalar("2024-05-01"), "review": Group(map[string]string{"p": "compliant"})},
			"T1",
		},
		{"stale answers are ignored off-path", Answers{"root": Scalar("no"), "last_review": Scalar("2024-05-01")}, "T_fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetCurrentNodeID(def, tt.answers)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, GetCurrentNodeID(def, tt.answers), "idempotent")
			_, exists := def.Node(got)
			assert.True(t, exists)
		})
	}
}

func TestGetCurrentNodeID_DanglingEdgeReportsMissingID(t *testing.T) {
	def := NewDefinition("1", "q", NewInputNode("q", "?", InputText, "missing"))
	// the walk moves onto the missing id and reports it, never beyond
	assert.Equal(t, "missing", GetCurrentNodeID(def, Answers{"q": Scalar("x")}))
}

func TestGetCurrentNodeID_CycleTerminates(t *testing.T) {
	def := NewDefinition("1", "a",
		NewInputNode("a", "?", InputText, "b"),
		NewInputNode("b", "?", InputText, "a"),
	)
	got := GetCurrentNodeID(def, Answers{"a": Scalar("1"), "b": Scalar("2")})
	assert.Contains(t, []string{"a", "b"}, got)
}

func TestBuildBreadcrumbTrail(t *testing.T) {
	def := accessReviewDefinition()

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, BuildBreadcrumbTrail(def, Answers{}))
	})

	t.Run("full path excludes the terminal", func(t *testing.T) {
		trail := BuildBreadcrumbTrail(def, Answers{
			"root":        Scalar("yes"),
			"last_review": Scalar("2024-05-01"),
			"review":      Group(map[string]string{"p": "non_compliant", "notes": "two stale accounts"}),
		})
		require.Len(t, trail, 3)
		assert.Equal(t, Breadcrumb{NodeID: "root", Prompt: "Are access reviews performed?", AnswerDisplay: "Yes, periodically"}, trail[0])
		assert.Equal(t, "2024-05-01", trail[1].AnswerDisplay)
		assert.Equal(t, "Policy: Non-compliant; Notes: two stale accounts", trail[2].AnswerDisplay)
		for _, b := range trail {
			n, _ := def.Node(b.NodeID)
			assert.False(t, IsTerminal(n))
		}
	})

	t.Run("stops at first unanswered node", func(t *testing.T) {
		trail := BuildBreadcrumbTrail(def, Answers{"root": Scalar("yes"), "review": Group(map[string]string{"p": "compliant"})})
		require.Len(t, trail, 1)
		assert.Equal(t, "root", trail[0].NodeID)
	})

	t.Run("includes the unresolved answer then stops", func(t *testing.T) {
		trail := BuildBreadcrumbTrail(def, Answers{"root": Scalar("maybe"), "last_review": Scalar("2024-05-01")})
		require.Len(t, trail, 1)
		assert.Equal(t, "maybe", trail[0].AnswerDisplay)
	})

	t.Run("group with only empty values falls back to raw form", func(t *testing.T) {
		trail := BuildBreadcrumbTrail(def, Answers{
			"root":        Scalar("yes"),
			"last_review": Scalar("2024-05-01"),
			"review":      Group(map[string]string{"p": ""}),
		})
		require.Len(t, trail, 3)
		assert.Equal(t, "p: ", trail[2].AnswerDisplay)
	})
}

func TestTerminalFinding(t *testing.T) {
	def := passFailDefinition()
	n, ok := GetNode(def, "T_pass")
	require.True(t, ok)
	require.True(t, IsTerminal(n))

	f, ok := GetTerminalFinding(n)
	require.True(t, ok)
	assert.Equal(t, "[PASS] MFA enforced\n\nKeep reviewing quarterly.", FormatFinding(f))

	root, _ := GetNode(def, "root")
	_, ok = GetTerminalFinding(root)
	assert.False(t, ok)
}

func TestCheckAnswer(t *testing.T) {
	def := accessReviewDefinition()
	root, _ := def.Node("root")
	review, _ := def.Node("review")
	term, _ := def.Node("T1")

	assert.NoError(t, CheckAnswer(root, Scalar("maybe")))
	assert.ErrorIs(t, CheckAnswer(root, Group(map[string]string{"x": "y"})), ErrInvalidAnswer)
	assert.NoError(t, CheckAnswer(review, Group(map[string]string{"p": "compliant"})))
	assert.ErrorIs(t, CheckAnswer(review, Scalar("compliant")), ErrInvalidAnswer)
	assert.ErrorIs(t, CheckAnswer(review, Group(map[string]string{"unknown": "x"})), ErrInvalidAnswer)
	assert.ErrorIs(t, CheckAnswer(term, Scalar("x")), ErrInvalidAnswer)
}
