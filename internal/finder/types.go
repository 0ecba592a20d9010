// Package finder discovers indexable files in a project tree.
//
// It is the L0 layer of the engine: it enumerates candidate files, applies
// gitignore-compatible ignore rules plus an override ruleset, skips binaries
// and oversized files, and emits a deterministic (sorted) work list for the
// chunker to consume.
package finder

import "time"

// FileInfo describes a single discovered file.
type FileInfo struct {
	Path        string    // relative to project root, forward-slash normalised
	AbsPath     string    // absolute path on disk
	Size        int64     // file size in bytes
	ModTime     time.Time // last modification time
	Language    string    // detected from extension, "" if unknown
	ContentType string    // code, markdown, text, config
}

// Options configures a Scan.
type Options struct {
	// RootDir is the project root to scan.
	RootDir string

	// IncludeGlobs restricts the walk to matching paths (empty = all).
	IncludeGlobs []string

	// ExcludeGlobs are always skipped, evaluated after gitignore.
	ExcludeGlobs []string

	// OverridePatterns take precedence over both .gitignore and ExcludeGlobs:
	// a leading '!' re-includes a path gitignore would otherwise drop.
	OverridePatterns []string

	// RespectGitignore enables .gitignore-compatible filtering.
	RespectGitignore bool

	// MaxFileSize caps individual file size; 0 uses DefaultMaxFileSize.
	MaxFileSize int64

	// Workers is not read by Scan; the walk runs on a single goroutine.
	Workers int
}

// Result pairs a discovered file with a per-file error. Scan returns a
// sorted []*FileInfo and does not produce Results.
type Result struct {
	File *FileInfo
	Err  error // non-nil for a skipped-but-reported file
}

// DefaultMaxFileSize is the default per-file size cap (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

var languageByExt = map[string]string{
	".go": "go", ".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".py": "python", ".pyw": "python", ".pyi": "python",
	".html": "html", ".htm": "html", ".css": "css", ".scss": "scss", ".sass": "sass", ".less": "less",
	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".xml": "xml",
	".ini": "ini", ".conf": "config", ".properties": "properties",
	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst", ".txt": "text",
	".sh": "shell", ".bash": "shell", ".zsh": "shell", ".fish": "fish",
	".rb": "ruby", ".rake": "ruby", ".erb": "erb", ".rs": "rust",
	".java": "java", ".kt": "kotlin", ".kts": "kotlin",
	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cc": "cpp", ".cxx": "cpp",
	".cs": "csharp", ".swift": "swift", ".php": "php", ".scala": "scala",
	".ex": "elixir", ".exs": "elixir", ".erl": "erlang", ".hs": "haskell", ".lua": "lua",
	".r": "r", ".sql": "sql", ".vue": "vue", ".svelte": "svelte",
	".graphql": "graphql", ".gql": "graphql", ".proto": "protobuf",
	"Dockerfile": "dockerfile", "Makefile": "makefile", "makefile": "makefile", "GNUmakefile": "makefile",
}

var contentTypeByLanguage = map[string]string{
	"go": "code", "javascript": "code", "typescript": "code", "python": "code",
	"ruby": "code", "rust": "code", "java": "code", "kotlin": "code",
	"c": "code", "cpp": "code", "csharp": "code", "swift": "code", "php": "code",
	"scala": "code", "elixir": "code", "erlang": "code", "haskell": "code", "lua": "code",
	"r": "code", "sql": "code", "shell": "code", "fish": "code", "erb": "code",
	"vue": "code", "svelte": "code", "graphql": "code", "protobuf": "code",
	"html": "code", "css": "code", "scss": "code", "sass": "code", "less": "code",
	"markdown": "markdown", "rst": "markdown", "text": "text",
	"json": "config", "yaml": "config", "toml": "config", "xml": "config",
	"ini": "config", "config": "config", "properties": "config",
	"dockerfile": "config", "makefile": "config",
}

// DetectLanguage infers the language tag from a path's base name or extension.
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[baseName(path)]; ok {
		return lang
	}
	if lang, ok := languageByExt[extension(path)]; ok {
		return lang
	}
	return ""
}

// DetectContentType maps a language tag to a coarse content type.
func DetectContentType(language string) string {
	if ct, ok := contentTypeByLanguage[language]; ok {
		return ct
	}
	return "text"
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
