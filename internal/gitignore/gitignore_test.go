package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matcherWith(patterns ...string) *Matcher {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m
}

func TestMatch_PatternTable(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"literal file", []string{"secret.txt"}, "secret.txt", false, true},
		{"literal file at depth", []string{"secret.txt"}, "a/b/secret.txt", false, true},
		{"literal no match", []string{"secret.txt"}, "public.txt", false, false},

		{"star suffix", []string{"*.log"}, "debug.log", false, true},
		{"star suffix at depth", []string{"*.log"}, "logs/old/debug.log", false, true},
		{"star does not cross slash", []string{"a*.txt"}, "a/b.txt", false, false},
		{"question mark", []string{"file?.go"}, "file1.go", false, true},
		{"question mark not slash", []string{"a?c"}, "a/c", false, false},
		{"char class", []string{"file[0-9].go"}, "file7.go", false, true},
		{"char class miss", []string{"file[0-9].go"}, "filex.go", false, false},

		{"doublestar prefix", []string{"**/build"}, "x/y/build", false, true},
		{"doublestar prefix root", []string{"**/build"}, "build", false, true},
		{"doublestar middle", []string{"a/**/z.go"}, "a/b/c/z.go", false, true},
		{"doublestar middle direct", []string{"a/**/z.go"}, "a/z.go", false, true},
		{"doublestar tail", []string{"dist/**"}, "dist/js/app.js", false, true},

		{"rooted matches root only", []string{"/build"}, "build", true, true},
		{"rooted misses nested", []string{"/build"}, "src/build", true, false},
		{"interior slash roots", []string{"doc/frotz"}, "doc/frotz", true, true},
		{"interior slash not floating", []string{"doc/frotz"}, "a/doc/frotz", true, false},

		{"dir-only matches dir", []string{"build/"}, "build", true, true},
		{"dir-only skips file", []string{"build/"}, "build", false, false},
		{"dir-only matches contents", []string{"build/"}, "build/out/a.o", false, true},
		{"dir rule ignores contents", []string{"node_modules"}, "node_modules/p/i.js", false, true},

		{"escaped hash literal", []string{`\#important`}, "#important", false, true},
		{"escaped bang literal", []string{`\!keep`}, "!keep", false, true},
		{"comment ignored", []string{"# just a comment"}, "# just a comment", false, false},
		{"blank ignored", []string{"   "}, "anything", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matcherWith(tt.patterns...)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatch_LastRuleWins(t *testing.T) {
	m := matcherWith("*.log", "!important.log")
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))

	// Re-excluding after re-including flips it back.
	m.AddPattern("important.log")
	assert.True(t, m.Match("important.log", false))
}

func TestMatch_NegationRescuesSpecificChild(t *testing.T) {
	m := matcherWith("build/", "!build/keep.txt")
	// The directory itself stays ignored, but the later, more specific
	// negation wins for the named child.
	assert.True(t, m.Match("build", true))
	assert.True(t, m.Match("build/other.txt", false))
	assert.False(t, m.Match("build/keep.txt", false))
}

func TestMatch_BaseScopesNestedGitignore(t *testing.T) {
	m := New()
	m.AddPatternWithBase("*.tmp", "sub")

	assert.True(t, m.Match("sub/cache.tmp", false))
	assert.True(t, m.Match("sub/deep/cache.tmp", false))
	assert.False(t, m.Match("cache.tmp", false), "rule must not apply outside its base")
	assert.False(t, m.Match("other/cache.tmp", false))
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	content := "# build output\n*.o\n\ndist/\n!dist/README\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("main.o", false))
	assert.True(t, m.Match("dist", true))
	assert.False(t, m.Match("README", false))
}

func TestAddFromFile_Missing(t *testing.T) {
	m := New()
	assert.Error(t, m.AddFromFile(filepath.Join(t.TempDir(), "nope"), ""))
}

func TestMatch_ConcurrentUse(t *testing.T) {
	m := matcherWith("*.log")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Match("a/b/c.log", false)
				m.AddPattern("*.tmp")
			}
		}()
	}
	wg.Wait()
	assert.True(t, m.Match("x.tmp", false))
}

func TestParsePatterns(t *testing.T) {
	got := ParsePatterns("# comment\n\n*.log\n  \nbuild/\n\\#literal\n")
	assert.Equal(t, []string{"*.log", "build/", `\#literal`}, got)
}

func TestDiffPatterns(t *testing.T) {
	added, removed := DiffPatterns("*.log\nbuild/\n", "*.log\ndist/\n")
	assert.Equal(t, []string{"dist/"}, added)
	assert.Equal(t, []string{"build/"}, removed)

	added, removed = DiffPatterns("*.log\n", "# reworded comment\n*.log\n")
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
