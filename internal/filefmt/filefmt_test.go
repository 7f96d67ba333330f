package filefmt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string   `yaml:"name" json:"name"`
	Items []string `yaml:"items" json:"items"`
}

func TestDetect(t *testing.T) {
	assert.Equal(t, JSON, Detect("a/b.json"))
	assert.Equal(t, JSON, Detect("a/b.JSONC"))
	assert.Equal(t, YAML, Detect("a/b.yaml"))
	assert.Equal(t, YAML, Detect("noext"))
}

func TestReadFileFormats(t *testing.T) {
	dir := t.TempDir()
	y := filepath.Join(dir, "d.yaml")
	j := filepath.Join(dir, "d.jsonc")
	require.NoError(t, os.WriteFile(y, []byte("name: x\nitems: [a, b]\n"), 0o644))
	require.NoError(t, os.WriteFile(j, []byte("{\n  // comment\n  \"name\": \"x\",\n  \"items\": [\"a\", \"b\",],\n}\n"), 0o644))

	for _, p := range []string{y, j} {
		var d doc
		require.NoError(t, ReadFile(p, &d), p)
		assert.Equal(t, doc{Name: "x", Items: []string{"a", "b"}}, d)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	var d doc
	assert.Error(t, Decode(YAML, []byte("name: x\nbogus: 1\n"), &d))
	assert.Error(t, Decode(JSON, []byte(`{"name":"x","bogus":1}`), &d))
}

func TestEmptyYAML(t *testing.T) {
	var d doc
	assert.NoError(t, Decode(YAML, nil, &d))
	assert.Empty(t, d.Name)
}
