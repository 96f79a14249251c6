package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopDoc = `{
  "id": "wf-1",
  "connections": [
    {"id": "c1", "from_node_id": "draft", "to_node_id": "review"},
    {"id": "c2", "from_node_id": "review", "to_node_id": "draft", "is_loop_edge": true,
     "loop_config": {"max_iterations": 4}}
  ]
}`

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestDetectCommand(t *testing.T) {
	out, err := execute(t, "detect", writeDoc(t, loopDoc))
	require.NoError(t, err)
	assert.Contains(t, out, `"draft"`)
	assert.Contains(t, out, `"entry_points"`)
}

func TestDetectCommandNoLoops(t *testing.T) {
	out, err := execute(t, "detect", writeDoc(t, `{"connections":[{"id":"c1","from_node_id":"a","to_node_id":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestDetectCommandYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`id: wf-yaml
connections:
  - {id: c1, from_node_id: poll, to_node_id: poll, is_loop_edge: true}
  - {id: c2, from_node_id: poll, to_node_id: done}
`), 0o644))

	out, err := execute(t, "detect", "--include-self", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"poll"`)

	out, err = execute(t, "detect", path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestDetectCommandBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yml")
	require.NoError(t, os.WriteFile(path, []byte("connections: [unclosed"), 0o644))

	_, err := execute(t, "detect", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeDoc(t, loopDoc))
	require.NoError(t, err)
	assert.NotContains(t, out, `"errors"`)

	out, err = execute(t, "validate", writeDoc(t, `{"connections":"nope"}`))
	assert.ErrorIs(t, err, errInvalidDocument)
	assert.Contains(t, out, `"errors"`)
}

func TestDiagramCommand(t *testing.T) {
	out, err := execute(t, "diagram", writeDoc(t, loopDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "↻ max 4")

	_, err = execute(t, "diagram", "--format", "png", writeDoc(t, loopDoc))
	assert.Error(t, err)

	_, err = execute(t, "diagram", "--format", "svg", writeDoc(t, loopDoc))
	assert.Error(t, err)
}

func TestDiagramCommandPNG(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "loop.png")
	_, err := execute(t, "diagram", "--format", "png", "--out", dst, writeDoc(t, loopDoc))
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.True(t, len(data) > 4)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}

func TestInitAndPurgeCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--max-iterations", "12", "--retention", "24h"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Config written to")

	cfg := loadConfig()
	assert.Equal(t, 12, cfg.MaxIterations)

	out.Reset()
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"purge", "--db-path", filepath.Join(home, "db", "loops.db")})
	require.NoError(t, root.Execute())
	assert.Equal(t, "purged 0 loop runs\n", out.String())
}

func TestExampleWorkflowsValidate(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*", "workflow.json"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(filepath.Dir(path)), func(t *testing.T) {
			abs, err := filepath.Abs(path)
			require.NoError(t, err)

			out, err := execute(t, "validate", abs)
			require.NoError(t, err)
			assert.Contains(t, out, "valid: 0 errors, 0 warnings")

			out, err = execute(t, "detect", "--include-self", abs)
			require.NoError(t, err)
			assert.Contains(t, out, `"nodes"`)
		})
	}
}
