// Package gitignore compiles .gitignore rules into anchored path
// expressions and evaluates them with git's last-match-wins semantics.
//
// The file finder uses one Matcher per directory holding a .gitignore
// (rules scoped via the base argument to AddFromFile); the filesystem
// watcher folds the project's ignore files plus its own index-directory
// exclusions into a single Matcher it rebuilds when a .gitignore changes.
package gitignore
