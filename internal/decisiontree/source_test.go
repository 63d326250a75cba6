package decisiontree

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSource_JSON(t *testing.T) {
	path := writeFile(t, "data.json", `{"text":"Q?","yes":{"text":"D1"},"no":{"text":"D2"}}`)

	tree, err := FileSource{Path: path}.Load()
	require.NoError(t, err)

	view, ok := tree.QuestionAt(Path{})
	require.True(t, ok)
	assert.Equal(t, "Q?", view.Text)
	assert.Len(t, tree.Diagnoses(), 2)
}

func TestFileSource_YAML(t *testing.T) {
	path := writeFile(t, "data.yaml", `
text: "Q?"
yes:
  text: "Inner?"
  yes:
    text: "D1"
  no:
    text: "D2"
no:
  text: "D3"
`)

	tree, err := FileSource{Path: path}.Load()
	require.NoError(t, err)

	d, ok := tree.DiagnosisAt(Path{Yes, No})
	require.True(t, ok)
	assert.Equal(t, "D2", d)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := FileSource{}.Load()
	assert.Error(t, err)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.Load()
	assert.ErrorContains(t, err, "missing.json")

	_, err = FileSource{Path: writeFile(t, "bad.json", `{"text":`)}.Load()
	assert.ErrorContains(t, err, "parse knowledge base json")

	_, err = FileSource{Path: writeFile(t, "blank.json", `{"text":"Q?","no":{"text":"  "}}`)}.Load()
	assert.ErrorContains(t, err, "/no")
}

type failingSource struct{}

func (failingSource) Load() (*Tree, error) { return nil, os.ErrNotExist }

func TestLoadWithFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	tree, fallback := LoadWithFallback(failingSource{}, logger)
	assert.True(t, fallback)
	assert.Equal(t, "Нарушены ли зрительные функции?", tree.Root().Text())
	assert.Contains(t, buf.String(), `"level":"error"`)

	buf.Reset()
	path := writeFile(t, "ok.json", `{"text":"Only"}`)
	tree, fallback = LoadWithFallback(FileSource{Path: path}, logger)
	assert.False(t, fallback)
	assert.Equal(t, "Only", tree.Root().Text())
	assert.Contains(t, buf.String(), "knowledge base loaded")
}

func TestFallbackShape(t *testing.T) {
	tree := Fallback()
	assert.Len(t, tree.Diagnoses(), 4)
	for _, d := range tree.Diagnoses() {
		view, ok := tree.QuestionAt(d.Path)
		require.True(t, ok)
		assert.True(t, view.IsTerminal)
	}
}

func TestShippedKnowledgeBase(t *testing.T) {
	tree, err := FileSource{Path: filepath.Join("..", "..", "knowledge_base", "decision_graph.json")}.Load()
	require.NoError(t, err)

	diagnoses := tree.Diagnoses()
	assert.Len(t, diagnoses, 7)
	assert.Equal(t, "Ирит", diagnoses[0].Diagnosis)
	assert.Equal(t, Path{No, No}, diagnoses[len(diagnoses)-1].Path)
}
