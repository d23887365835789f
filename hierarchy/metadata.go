// Package hierarchy derives category and path metadata from a document's
// position in a folder tree, for local filesystem trees and for cloud
// folder graphs resolved from parent pointers.
package hierarchy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlefebvre/ragtree/document"
)

// ExtractFileMetadata computes the hierarchy attributes of a file beneath
// root: category is the first folder below root ("root" when the file
// sits directly under it), subcategory the second when present, and
// hierarchy_path/level describe the full folder chain.
func ExtractFileMetadata(root, path string) (document.Metadata, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return document.Metadata{}, fmt.Errorf("relativize %s against %s: %w", path, root, err)
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	dirs := segments[:len(segments)-1]

	meta := document.Metadata{
		Source:         "local",
		FileName:       filepath.Base(path),
		FilePath:       path,
		FileType:       strings.ToLower(filepath.Ext(path)),
		Category:       "root",
		HierarchyPath:  "root",
		HierarchyLevel: len(dirs),
	}
	if len(dirs) > 0 {
		meta.Category = dirs[0]
		meta.HierarchyPath = strings.Join(dirs, "/")
	}
	if len(dirs) > 1 {
		meta.Subcategory = dirs[1]
	}

	info, err := os.Stat(path)
	if err != nil {
		return document.Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	meta.FileSizeBytes = info.Size()
	meta.ModifiedAt = info.ModTime()
	// Birth time is not portable; mtime stands in for both.
	meta.CreatedAt = info.ModTime()

	return meta, nil
}

// Walk enumerates every regular file under root using an explicit
// work list instead of recursion. A missing or non-directory root is an
// error, and so is any directory that cannot be read: a denied directory
// cannot be partially enumerated, so traversal aborts rather than
// skipping it.
func Walk(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory does not exist: %s", root)
		}
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	files := make([]string, 0)
	pending := []string{root}

	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				pending = append(pending, full)
				continue
			}
			if entry.Type().IsRegular() {
				files = append(files, full)
			}
		}
	}

	return files, nil
}
