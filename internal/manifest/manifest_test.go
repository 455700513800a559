package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repotutor/internal/repo"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func open(t *testing.T, root string) *repo.Repository {
	t.Helper()
	rp, err := repo.NewResolver(repo.GitHubConfig{}, repo.Limits{}, nil).Resolve(context.Background(), root, "")
	require.NoError(t, err)
	return rp
}

func TestBuildClassifiesFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.ts", "export function foo() {}")
	write(t, root, "notes.bin.xyz", "???")
	write(t, root, "big.go", strings.Repeat("x", 2048))
	write(t, root, "edge.go", strings.Repeat("x", 1024))
	write(t, root, "under.go", strings.Repeat("x", 1023))
	write(t, root, "node_modules/dep/index.js", "x")
	write(t, root, "docs/readme.md", "# hi")

	m, err := NewBuilder(Options{MaxFileBytes: 1024}, nil).Build(context.Background(), open(t, root))
	require.NoError(t, err)
	assert.False(t, m.Truncated)

	byPath := map[string]File{}
	for _, f := range m.Files {
		byPath[f.Path] = f
	}
	require.Len(t, byPath, 6)
	assert.True(t, byPath["a.ts"].Indexable)
	assert.Equal(t, "typescript", byPath["a.ts"].Language)
	assert.False(t, byPath["notes.bin.xyz"].Indexable)
	assert.False(t, byPath["big.go"].Indexable, "over the byte cap")
	assert.False(t, byPath["edge.go"].Indexable, "at the byte cap")
	assert.True(t, byPath["under.go"].Indexable)
	assert.True(t, byPath["docs/readme.md"].Indexable)
	assert.NotEmpty(t, byPath["a.ts"].Hash)
	assert.Equal(t, 3, m.IndexableCount())
}

func TestBuildTruncatesAtFileCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 12; i++ {
		write(t, root, fmt.Sprintf("pkg%d/f.go", i), "package x")
	}
	m, err := NewBuilder(Options{MaxFiles: 5}, nil).Build(context.Background(), open(t, root))
	require.NoError(t, err)
	assert.True(t, m.Truncated)
	assert.Len(t, m.Files, 5)
}
