// Package temporal walks a project's git history, turning commits into
// commit_message and commit_diff chunks for the temporal collection, and
// resolves blob content by hash for the vector store's clean-file
// three-tier content lookup.
package temporal

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DiffType classifies a per-file change within a commit.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffModified DiffType = "modified"
	DiffDeleted  DiffType = "deleted"
	DiffRenamed  DiffType = "renamed"
	DiffBinary   DiffType = "binary"
)

// FileDiff is one file's change within a commit.
type FileDiff struct {
	Path     string
	OldPath  string // set only for DiffRenamed
	Type     DiffType
	DiffText string // empty for DiffBinary and rename-only changes
}

// Commit is a single walked commit plus its per-file diffs.
type Commit struct {
	Hash      string
	Author    string
	Email     string
	Timestamp time.Time
	Message   string
	Parents   []string
	Files     []FileDiff
}

// BranchMode selects which branches Walk covers.
type BranchMode string

const (
	// BranchCurrent walks only the repository's current HEAD.
	BranchCurrent BranchMode = "current"
	// BranchAll walks every local branch.
	BranchAll BranchMode = "all"
	// BranchList walks exactly the branches named in Selector.Branches.
	BranchList BranchMode = "list"
)

// Selector picks which branch(es) Walk covers.
type Selector struct {
	Mode     BranchMode
	Branches []string // used when Mode == BranchList
}

// Repository wraps a go-git repository for history walking and blob
// resolution. It implements vectorstore.BlobSource.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the git repository rooted at root (or one of its parents).
func Open(root string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("temporal: open git repository at %s: %w", root, err)
	}
	return &Repository{repo: repo, root: root}, nil
}

// ReadBlob resolves hash to its blob content, the second tier of the
// vector store's clean-file content lookup.
func (r *Repository) ReadBlob(hash string) ([]byte, error) {
	h := plumbing.NewHash(hash)
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, fmt.Errorf("temporal: resolve blob %s: %w", hash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("temporal: open blob %s: %w", hash, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// HeadFiles lists every regular file tracked in HEAD's tree, mapping its
// forward-slash relative path to its current blob hash. Used by the
// orchestrator to classify files as git-clean vs dirty/untracked.
func (r *Repository) HeadFiles() (map[string]string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("temporal: resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("temporal: load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("temporal: load HEAD tree: %w", err)
	}

	files := map[string]string{}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("temporal: walk HEAD tree: %w", err)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		files[name] = entry.Hash.String()
	}
	return files, nil
}

// HashObject reproduces `git hash-object` for content: the blob object
// hash git would assign it. Used to decide whether an on-disk file is
// "clean" relative to its tracked blob.
func HashObject(content []byte) string {
	hash := plumbing.ComputeHash(plumbing.BlobObject, content)
	return hash.String()
}

// Walk streams commits matching sel, newest branches fanned out but
// results returned oldest-first per branch, deduplicated by hash across
// branches. afterHash, if non-empty, excludes that commit and everything
// it can reach — the incremental "walk from the last indexed commit
// forward" contract. since and maxCommits further bound the walk.
func (r *Repository) Walk(sel Selector, afterHash string, since *time.Time, maxCommits int) ([]Commit, error) {
	heads, err := r.resolveHeads(sel)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var excludeSet map[string]bool
	if afterHash != "" {
		excludeSet, err = r.ancestorSet(afterHash)
		if err != nil {
			return nil, err
		}
	}

	var commits []Commit
	for _, head := range heads {
		iter, err := r.repo.Log(&git.LogOptions{From: head})
		if err != nil {
			return nil, fmt.Errorf("temporal: log from %s: %w", head, err)
		}

		err = iter.ForEach(func(c *object.Commit) error {
			hash := c.Hash.String()
			if seen[hash] || excludeSet[hash] || hash == afterHash {
				return nil
			}
			if since != nil && c.Author.When.Before(*since) {
				return nil
			}
			seen[hash] = true

			diffs, err := r.commitDiffs(c)
			if err != nil {
				return fmt.Errorf("temporal: diff commit %s: %w", hash, err)
			}

			var parents []string
			for _, p := range c.ParentHashes {
				parents = append(parents, p.String())
			}

			commits = append(commits, Commit{
				Hash:      hash,
				Author:    c.Author.Name,
				Email:     c.Author.Email,
				Timestamp: c.Author.When,
				Message:   c.Message,
				Parents:   parents,
				Files:     diffs,
			})
			if maxCommits > 0 && len(commits) >= maxCommits {
				return storerErrStop
			}
			return nil
		})
		iter.Close()
		if err != nil && err != storerErrStop {
			return nil, err
		}
		if maxCommits > 0 && len(commits) >= maxCommits {
			break
		}
	}

	// Log yields newest-first; reversing before the stable sort keeps a
	// parent ahead of its child when both carry the same timestamp.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	sort.SliceStable(commits, func(i, j int) bool { return commits[i].Timestamp.Before(commits[j].Timestamp) })
	return commits, nil
}

// storerErrStop is a sentinel used only to break out of CommitIter.ForEach
// early once maxCommits is reached; it is never returned to the caller.
var storerErrStop = fmt.Errorf("temporal: stop")

func (r *Repository) resolveHeads(sel Selector) ([]plumbing.Hash, error) {
	switch sel.Mode {
	case BranchAll:
		refs, err := r.repo.Branches()
		if err != nil {
			return nil, fmt.Errorf("temporal: list branches: %w", err)
		}
		var heads []plumbing.Hash
		err = refs.ForEach(func(ref *plumbing.Reference) error {
			heads = append(heads, ref.Hash())
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("temporal: iterate branches: %w", err)
		}
		return heads, nil

	case BranchList:
		var heads []plumbing.Hash
		for _, name := range sel.Branches {
			ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
			if err != nil {
				return nil, fmt.Errorf("temporal: resolve branch %s: %w", name, err)
			}
			heads = append(heads, ref.Hash())
		}
		return heads, nil

	default: // BranchCurrent or unset
		head, err := r.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("temporal: resolve HEAD: %w", err)
		}
		return []plumbing.Hash{head.Hash()}, nil
	}
}

// IsAncestor reports whether commitHash is ofHash itself or reachable from
// it by following parent links — used by the query executor's at_commit
// filter to restrict temporal results to a commit's own history.
func (r *Repository) IsAncestor(commitHash, ofHash string) (bool, error) {
	set, err := r.ancestorSet(ofHash)
	if err != nil {
		return false, err
	}
	return set[commitHash], nil
}

// ancestorSet returns the set of commit hashes reachable from (and
// including) afterHash, so Walk can exclude already-indexed history.
func (r *Repository) ancestorSet(afterHash string) (map[string]bool, error) {
	h := plumbing.NewHash(afterHash)
	commit, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("temporal: resolve last-indexed commit %s: %w", afterHash, err)
	}

	set := map[string]bool{}
	iter, err := r.repo.Log(&git.LogOptions{From: commit.Hash})
	if err != nil {
		return nil, fmt.Errorf("temporal: log from last-indexed commit: %w", err)
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		set[c.Hash.String()] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("temporal: build ancestor set: %w", err)
	}
	return set, nil
}

// commitDiffs computes c's per-file changes relative to its first parent.
// Root commits (no parent) are reported as a flat set of additions against
// an empty tree.
func (r *Repository) commitDiffs(c *object.Commit) ([]FileDiff, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}

	if c.NumParents() == 0 {
		return rootCommitDiffs(tree)
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("load parent: %w", err)
	}
	patch, err := parent.Patch(c)
	if err != nil {
		return nil, fmt.Errorf("compute patch: %w", err)
	}

	diffs := make([]FileDiff, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		d := classifyFilePatch(from, to)
		if !fp.IsBinary() && d.Type != DiffRenamed {
			d.DiffText = renderFilePatch(fp)
		}
		if fp.IsBinary() {
			d.Type = DiffBinary
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}

func classifyFilePatch(from, to fdiff.File) FileDiff {
	switch {
	case from == nil && to != nil:
		return FileDiff{Path: to.Path(), Type: DiffAdded}
	case from != nil && to == nil:
		return FileDiff{Path: from.Path(), Type: DiffDeleted}
	case from != nil && to != nil && from.Path() != to.Path():
		return FileDiff{Path: to.Path(), OldPath: from.Path(), Type: DiffRenamed}
	default:
		path := ""
		if to != nil {
			path = to.Path()
		}
		return FileDiff{Path: path, Type: DiffModified}
	}
}

// renderFilePatch renders a unified-diff-flavored text from a file
// patch's chunks: context lines unprefixed, additions prefixed '+',
// deletions prefixed '-'.
func renderFilePatch(fp fdiff.FilePatch) string {
	var b strings.Builder
	for _, chunk := range fp.Chunks() {
		prefix := "  "
		switch chunk.Type() {
		case fdiff.Add:
			prefix = "+ "
		case fdiff.Delete:
			prefix = "- "
		}
		for _, line := range strings.Split(chunk.Content(), "\n") {
			if line == "" {
				continue
			}
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// rootCommitDiffs reports every file in a parentless commit's tree as an
// addition. There is no parent to diff against, so the "diff text" is the
// file's own content, which is the closest faithful analogue.
func rootCommitDiffs(tree *object.Tree) ([]FileDiff, error) {
	var diffs []FileDiff
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk root commit tree: %w", err)
		}
		if !entry.Mode.IsFile() {
			continue
		}
		diffText := ""
		if file, ferr := tree.TreeEntryFile(&entry); ferr == nil {
			if content, cerr := file.Contents(); cerr == nil {
				diffText = content
			}
		}
		diffs = append(diffs, FileDiff{Path: name, Type: DiffAdded, DiffText: diffText})
	}
	return diffs, nil
}
