// Package gitrepo batch-loads source repositories into the ingestion
// pipeline. Cloning and updating go through the git binary at the process
// boundary; everything after checkout reuses the local hierarchy loader.
package gitrepo

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/hierarchy"
)

// CodeExtensions is the default allowlist for repository ingestion:
// source, docs, and build files worth retrieving over.
var CodeExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx",
	".md", ".txt", ".rst",
	".yaml", ".yml", ".json", ".toml",
	".sh", ".bash", ".zsh",
	".go", ".rs", ".java", ".cpp", ".c", ".h",
	".html", ".css", ".scss",
	".sql", ".graphql",
}

const defaultMaxFileBytes = 10 * 1024 * 1024

type Loader struct {
	reposDir     string
	extensions   []string
	maxFileBytes int64
	logger       *log.Logger
}

func NewLoader(reposDir string, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		reposDir:     reposDir,
		extensions:   CodeExtensions,
		maxFileBytes: defaultMaxFileBytes,
		logger:       logger,
	}
}

// ParseRepoName splits an "owner/repo" identifier.
func ParseRepoName(identifier string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(identifier), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository identifier must be in format 'owner/repo', got: %s", identifier)
	}
	return parts[0], parts[1], nil
}

// LocalPath returns where the repository lives (or will live) on disk.
func (l *Loader) LocalPath(identifier string) (string, error) {
	_, name, err := ParseRepoName(identifier)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.reposDir, name), nil
}

// ensureRepo clones the repository when missing and fast-forwards it when
// already present.
func (l *Loader) ensureRepo(ctx context.Context, identifier string) (string, error) {
	owner, name, err := ParseRepoName(identifier)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.reposDir, name)

	if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
		l.logger.Printf("updating existing repository %s", identifier)
		cmd := exec.CommandContext(ctx, "git", "-C", path, "pull", "--ff-only")
		if out, runErr := cmd.CombinedOutput(); runErr != nil {
			// A stale checkout is still usable; log and carry on.
			l.logger.Printf("git pull failed for %s (continuing with local copy): %v: %s",
				identifier, runErr, strings.TrimSpace(string(out)))
		}
		return path, nil
	}

	if err := os.MkdirAll(l.reposDir, 0o755); err != nil {
		return "", fmt.Errorf("create repos directory: %w", err)
	}

	url := fmt.Sprintf("https://github.com/%s/%s.git", owner, name)
	l.logger.Printf("cloning %s into %s", url, path)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, path)
	if out, runErr := cmd.CombinedOutput(); runErr != nil {
		return "", fmt.Errorf("git clone %s: %w: %s", identifier, runErr, strings.TrimSpace(string(out)))
	}

	return path, nil
}

// LoadRepository clones or updates one repository and loads its files
// with hierarchy metadata relative to the repository root.
func (l *Loader) LoadRepository(ctx context.Context, identifier string) ([]document.Document, error) {
	path, err := l.ensureRepo(ctx, identifier)
	if err != nil {
		return nil, err
	}

	docs, err := hierarchy.LoadDirectory(path, hierarchy.LoadOptions{
		Extensions:   l.extensions,
		MaxFileBytes: l.maxFileBytes,
		Source:       "github",
		Extra:        map[string]string{"repository": identifier},
	}, l.logger)
	if err != nil {
		return nil, fmt.Errorf("load repository %s: %w", identifier, err)
	}

	return docs, nil
}

// LoadRepositories runs LoadRepository over a batch. A failing repository
// is logged and skipped; the batch continues.
func (l *Loader) LoadRepositories(ctx context.Context, identifiers []string) ([]document.Document, error) {
	all := make([]document.Document, 0)
	for _, identifier := range identifiers {
		docs, err := l.LoadRepository(ctx, identifier)
		if err != nil {
			l.logger.Printf("skipping repository %s: %v", identifier, err)
			continue
		}
		l.logger.Printf("loaded %d documents from %s", len(docs), identifier)
		all = append(all, docs...)
	}
	return all, nil
}
