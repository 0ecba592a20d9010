package finder

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/semcore/engine/internal/gitignore"
)

// gitignoreCacheSize bounds the per-directory matcher cache.
const gitignoreCacheSize = 1000

// Finder discovers indexable files beneath a project root.
type Finder struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Finder.
func New() (*Finder, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}
	return &Finder{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and returns a deterministic, sorted slice of
// FileInfo for every file that passes the ignore rules, size cap, and
// binary-content check. An unreadable root is a fatal error; unreadable
// individual files are skipped.
func (f *Finder) Scan(ctx context.Context, opts Options) ([]*FileInfo, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var found []*FileInfo
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if f.excludedDir(relPath, opts) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if f.excludedFile(relPath, absRoot, opts) {
			return nil
		}
		if len(opts.IncludeGlobs) > 0 && !matchesAny(relPath, opts.IncludeGlobs) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if fi.Size() > maxSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		language := DetectLanguage(relPath)
		found = append(found, &FileInfo{
			Path:        relPath,
			AbsPath:     path,
			Size:        fi.Size(),
			ModTime:     fi.ModTime(),
			Language:    language,
			ContentType: DetectContentType(language),
		})
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		return found, walkErr
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

func matchesAny(relPath string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, relPath); ok {
			return true
		}
	}
	return false
}

func (f *Finder) excludedDir(relPath string, opts Options) bool {
	for _, p := range defaultExcludeDirs {
		if matchDirPattern(relPath, p) {
			return !hasOverride(relPath, opts.OverridePatterns)
		}
	}
	for _, p := range opts.ExcludeGlobs {
		if matchDirPattern(relPath, p) {
			return !hasOverride(relPath, opts.OverridePatterns)
		}
	}
	return false
}

func (f *Finder) excludedFile(relPath, absRoot string, opts Options) bool {
	if hasOverride(relPath, opts.OverridePatterns) {
		return false
	}
	base := filepath.Base(relPath)
	for _, p := range sensitiveFilePatterns {
		if matchFilePattern(base, relPath, p) {
			return true
		}
	}
	for _, p := range defaultExcludeFiles {
		if matchFilePattern(base, relPath, p) {
			return true
		}
	}
	for _, p := range opts.ExcludeGlobs {
		if matchFilePattern(base, relPath, p) {
			return true
		}
	}
	if opts.RespectGitignore && f.isGitignored(relPath, absRoot) {
		return true
	}
	return false
}

// hasOverride returns true if relPath matches a "!pattern" override, which
// takes precedence over every other exclusion source.
func hasOverride(relPath string, overrides []string) bool {
	for _, p := range overrides {
		p = strings.TrimPrefix(p, "!")
		if matchFilePattern(filepath.Base(relPath), relPath, p) || matchDirPattern(relPath, p) {
			return true
		}
	}
	return false
}

func (f *Finder) isGitignored(relPath, absRoot string) bool {
	if m := f.matcher(absRoot, ""); m != nil && m.Match(relPath, false) {
		return true
	}
	parts := strings.Split(filepath.Dir(relPath), "/")
	currentDir := absRoot
	currentBase := ""
	for _, part := range parts {
		if part == "." || part == "" {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = currentBase + "/" + part
		}
		if m := f.matcher(currentDir, currentBase); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

func (f *Finder) matcher(dir, base string) *gitignore.Matcher {
	f.cacheMu.RLock()
	m, ok := f.gitignoreCache.Get(dir)
	f.cacheMu.RUnlock()
	if ok {
		return m
	}
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		return nil
	}
	m = gitignore.New()
	if err := m.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}
	f.cacheMu.Lock()
	f.gitignoreCache.Add(dir, m)
	f.cacheMu.Unlock()
	return m
}

// InvalidateGitignoreCache drops all cached matchers, forcing them to be
// re-parsed on next use. Call after .gitignore files change.
func (f *Finder) InvalidateGitignoreCache() {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	f.gitignoreCache.Purge()
}

func isBinary(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = fh.Close() }()
	buf := make([]byte, 512)
	n, err := fh.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}

func matchDirPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == suffix {
				return true
			}
		}
		return false
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}
	return relPath == pattern || strings.HasPrefix(relPath, pattern+"/")
}

func matchFilePattern(base, relPath, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+"/")
	}
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, base); ok {
			return true
		}
		return strings.HasSuffix(relPath, "/"+suffix)
	}
	if ok, _ := filepath.Match(pattern, base); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, relPath)
	return ok
}

var defaultExcludeDirs = []string{
	"**/node_modules/**", "**/.git/**", "**/vendor/**", "**/__pycache__/**",
	"**/dist/**", "**/build/**", "**/.aws/**", "**/.ssh/**", "**/.index/**",
}

var defaultExcludeFiles = []string{
	"**/*.min.js", "**/*.min.css", "**/package-lock.json", "**/yarn.lock",
	"**/pnpm-lock.yaml", "**/go.sum",
}

var sensitiveFilePatterns = []string{
	".env", ".env.*", "*.pem", "*.key", "*.p12", "*.pfx",
	"*credentials*", "*secrets*", "*password*", ".netrc", ".npmrc", ".pypirc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
}

// Runtime-sized worker count helper kept for callers that want to size
// their own downstream pools off the finder's natural concurrency.
func defaultWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
