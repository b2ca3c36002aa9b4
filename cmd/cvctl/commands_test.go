package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/section"
)

const sampleCV = "JANE DOE\njane@example.com\n\nSKILLS\nPython\nJavaScript\n\nEXPERIENCE\nEngineer at Acme\n"

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeCV(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestLocate(t *testing.T) {
	out, err := run(t, sampleCV, "locate", "-", "skill")
	require.NoError(t, err)
	var m section.Match
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.True(t, m.Found)
	assert.Equal(t, "SKILLS", m.Header)
	assert.Equal(t, 3, m.StartLine)
	assert.True(t, strings.HasPrefix(sampleCV[m.StartOffset:m.EndOffset], m.Content))

	_, err = run(t, sampleCV, "locate", "-", "astrology")
	assert.ErrorIs(t, err, section.ErrUnknownCategory)
}

func TestOutline(t *testing.T) {
	out, err := run(t, "", "outline", writeCV(t, "cv.txt", sampleCV))
	require.NoError(t, err)
	var headings []section.Heading
	require.NoError(t, json.Unmarshal([]byte(out), &headings))
	require.Len(t, headings, 2)
	assert.Equal(t, section.Experience, headings[1].Category)

	out, err = run(t, "", "outline", writeCV(t, "empty.txt", ""))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestInsert(t *testing.T) {
	out, err := run(t, sampleCV, "insert", "-", "skills", "Go", "--mode", "prepend")
	require.NoError(t, err)
	assert.Contains(t, out, "SKILLS\nGo\nPython\n")

	path := writeCV(t, "cv.txt", sampleCV)
	_, err = run(t, "", "insert", "-w", path, "languages", "Spanish")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), section.HeaderFor(section.Languages)+"\nSpanish")

	_, err = run(t, sampleCV, "insert", "-w", "-", "skills", "Go")
	assert.Error(t, err)
	_, err = run(t, sampleCV, "insert", "-", "skills", "Go", "--mode", "sideways")
	assert.ErrorIs(t, err, section.ErrUnknownMode)
}

func TestClassifyAndExtract(t *testing.T) {
	out, err := run(t, "", "classify", "I", "learned", "Docker", "and", "Kubernetes")
	require.NoError(t, err)
	var res intent.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, section.Skills, res.Category)
	assert.Equal(t, intent.Create, res.Operation)
	assert.Equal(t, "Docker and Kubernetes", res.ExtractedInfo)

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = run(t, "", "classify", "--llm", "show my skills")
	assert.Error(t, err)

	out, err = run(t, "", "extract", "remove JavaScript skill")
	require.NoError(t, err)
	var ext intent.Extraction
	require.NoError(t, json.Unmarshal([]byte(out), &ext))
	assert.Equal(t, "JavaScript", ext.Fact)
}

func TestParse(t *testing.T) {
	good := writeCV(t, "jane.md", "# Jane Doe\n\n## Skills\n\n- Go\n")
	bad := writeCV(t, "notes.csv", "a,b")

	out, err := run(t, "", "parse", "--text", good, bad, filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	var results []parseResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)

	assert.Equal(t, good, results[0].File)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "jane", results[0].Title)
	assert.Equal(t, "Jane Doe\n\nSkills\n- Go\n", results[0].Text)
	require.Len(t, results[0].Sections, 1)
	assert.Equal(t, section.Skills, results[0].Sections[0].Category)

	assert.Contains(t, results[1].Error, "unsupported")
	assert.NotEmpty(t, results[2].Error)
}
