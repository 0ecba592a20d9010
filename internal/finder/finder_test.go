package finder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func scanPaths(t *testing.T, root string, opts Options) []string {
	t.Helper()
	f, err := New()
	require.NoError(t, err)
	opts.RootDir = root
	files, err := f.Scan(context.Background(), opts)
	require.NoError(t, err)
	paths := make([]string, len(files))
	for i, fi := range files {
		paths[i] = fi.Path
	}
	return paths
}

func TestScan_ReturnsSortedRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zebra.go", "package z\n")
	writeFile(t, root, "alpha.go", "package a\n")
	writeFile(t, root, "src/mid.go", "package mid\n")

	paths := scanPaths(t, root, Options{})
	assert.Equal(t, []string{"alpha.go", "src/mid.go", "zebra.go"}, paths)
}

func TestScan_IsDeterministicAcrossRuns(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"c.go", "a.go", "b.go", "d/e.go"} {
		writeFile(t, root, name, "package x\n")
	}

	first := scanPaths(t, root, Options{})
	second := scanPaths(t, root, Options{})
	assert.Equal(t, first, second)
}

func TestScan_SkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "code.go", "package main\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0x01, 0x02, 'a'}, 0o644))

	paths := scanPaths(t, root, Options{})
	assert.Equal(t, []string{"code.go"}, paths)
}

func TestScan_SkipsFilesAboveSizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package s\n")
	writeFile(t, root, "big.go", "package b\n"+strings.Repeat("// padding\n", 100))

	paths := scanPaths(t, root, Options{MaxFileSize: 64})
	assert.Equal(t, []string{"small.go"}, paths)
}

func TestScan_SkipsDefaultExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
	writeFile(t, root, ".git/config", "[core]\n")

	paths := scanPaths(t, root, Options{})
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestScan_SkipsSensitiveFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".env", "SECRET=hunter2\n")
	writeFile(t, root, "id_rsa", "not really a key\n")

	paths := scanPaths(t, root, Options{})
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestScan_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.log\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/out.go", "package out\n")
	writeFile(t, root, "debug.log", "noise\n")

	paths := scanPaths(t, root, Options{RespectGitignore: true})
	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "generated/out.go")
	assert.NotContains(t, paths, "debug.log")
}

func TestScan_OverridePatternBeatsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "keep.log", "important\n")
	writeFile(t, root, "drop.log", "noise\n")

	paths := scanPaths(t, root, Options{
		RespectGitignore: true,
		OverridePatterns: []string{"!keep.log"},
	})
	assert.Contains(t, paths, "keep.log")
	assert.NotContains(t, paths, "drop.log")
}

func TestScan_IncludeGlobsRestrictTheWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.py", "pass\n")

	paths := scanPaths(t, root, Options{IncludeGlobs: []string{"*.go"}})
	assert.Equal(t, []string{"a.go"}, paths)
}

func TestScan_UnreadableRootIsFatal(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	_, err = f.Scan(context.Background(), Options{RootDir: filepath.Join(t.TempDir(), "does-not-exist")})
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"main.go":       "go",
		"app.tsx":       "typescript",
		"script.py":     "python",
		"Dockerfile":    "dockerfile",
		"notes.md":      "markdown",
		"mystery.xyz":   "",
		"deep/dir/x.rs": "rust",
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectLanguage(path), "path=%q", path)
	}
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "code", DetectContentType("go"))
	assert.Equal(t, "config", DetectContentType("yaml"))
	assert.Equal(t, "markdown", DetectContentType("markdown"))
	assert.Equal(t, "text", DetectContentType("unknown-language"))
}
