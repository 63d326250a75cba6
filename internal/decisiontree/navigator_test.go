package decisiontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTree is A? -> (yes: B? -> Diag1 | Diag2) | (no: Diag3).
func sampleTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := ParseJSON([]byte(`{
		"text": "A?",
		"yes": {
			"text": "B?",
			"yes": {"text": "Diag1", "yes": null, "no": null},
			"no": {"text": "Diag2"}
		},
		"no": {"text": "Diag3"}
	}`))
	require.NoError(t, err)
	return tree
}

func TestQuestionAt(t *testing.T) {
	tree := sampleTree(t)

	tests := []struct {
		name string
		path Path
		want QuestionView
		ok   bool
	}{
		{"root", Path{}, QuestionView{Text: "A?", HasYesBranch: true, HasNoBranch: true}, true},
		{"nil path is root", nil, QuestionView{Text: "A?", HasYesBranch: true, HasNoBranch: true}, true},
		{"inner question", Path{Yes}, QuestionView{Text: "B?", HasYesBranch: true, HasNoBranch: true}, true},
		{"leaf", Path{Yes, No}, QuestionView{Text: "Diag2", IsTerminal: true}, true},
		{"past a leaf", Path{No, Yes}, QuestionView{}, false},
		{"unknown step", Path{"maybe"}, QuestionView{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tree.QuestionAt(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdvance_MatchesQuestionAt(t *testing.T) {
	tree := sampleTree(t)

	var walk func(p Path)
	walk = func(p Path) {
		for _, a := range []Answer{Yes, No} {
			pos, ok := tree.Advance(p, a)
			if !ok {
				continue
			}
			assert.Equal(t, p.Append(a), pos.Path)
			view, found := tree.QuestionAt(pos.Path)
			require.True(t, found, "advanced path %s must resolve", pos.Path)
			assert.Equal(t, view, pos.Question)
			walk(pos.Path)
		}
	}
	walk(Path{})
}

func TestAdvance_MissingBranch(t *testing.T) {
	tree := sampleTree(t)

	_, ok := tree.Advance(Path{No}, Yes)
	assert.False(t, ok, "leaf has no children")

	_, ok = tree.Advance(Path{No, No}, Yes)
	assert.False(t, ok, "path does not resolve")

	_, ok = tree.Advance(Path{}, Answer("maybe"))
	assert.False(t, ok)
}

func TestAdvance_DoesNotAliasInput(t *testing.T) {
	tree := sampleTree(t)
	base := make(Path, 1, 4)
	base[0] = Yes

	first, ok := tree.Advance(base, Yes)
	require.True(t, ok)
	second, ok := tree.Advance(base, No)
	require.True(t, ok)

	assert.Equal(t, Path{Yes, Yes}, first.Path)
	assert.Equal(t, Path{Yes, No}, second.Path)
}

func TestAdvance_OneSidedQuestion(t *testing.T) {
	tree, err := New(&Question{Prompt: "Only yes?", Yes: &Diagnosis{Label: "D"}})
	require.NoError(t, err)

	view, ok := tree.QuestionAt(Path{})
	require.True(t, ok)
	assert.False(t, view.IsTerminal)
	assert.True(t, view.HasYesBranch)
	assert.False(t, view.HasNoBranch)

	_, ok = tree.Advance(Path{}, No)
	assert.False(t, ok)
}

func TestDiagnosisAt(t *testing.T) {
	tree := sampleTree(t)

	d, ok := tree.DiagnosisAt(Path{Yes, Yes})
	assert.True(t, ok)
	assert.Equal(t, "Diag1", d)

	d, ok = tree.DiagnosisAt(Path{Yes})
	assert.True(t, ok, "non-terminal nodes still have text")
	assert.Equal(t, "B?", d)

	_, ok = tree.DiagnosisAt(Path{No, No})
	assert.False(t, ok)
}

func TestRemainingDepth(t *testing.T) {
	tree := sampleTree(t)

	d, ok := tree.RemainingDepth(Path{})
	require.True(t, ok)
	assert.Equal(t, 2, d)

	d, _ = tree.RemainingDepth(Path{No})
	assert.Equal(t, 0, d)

	d, _ = tree.RemainingDepth(Path{Yes})
	assert.Equal(t, 1, d)

	_, ok = tree.RemainingDepth(Path{No, Yes})
	assert.False(t, ok)
}

func TestDiagnoses(t *testing.T) {
	tree := sampleTree(t)

	assert.Equal(t, []DiagnosisPath{
		{Diagnosis: "Diag1", Path: Path{Yes, Yes}},
		{Diagnosis: "Diag2", Path: Path{Yes, No}},
		{Diagnosis: "Diag3", Path: Path{No}},
	}, tree.Diagnoses())
}

func TestParseAnswer(t *testing.T) {
	a, err := ParseAnswer("yes")
	assert.NoError(t, err)
	assert.Equal(t, Yes, a)

	_, err = ParseAnswer("Yes")
	assert.Error(t, err)
	_, err = ParseAnswer("")
	assert.Error(t, err)
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "/", Path{}.String())
	assert.Equal(t, "/yes/no", Path{Yes, No}.String())
}
