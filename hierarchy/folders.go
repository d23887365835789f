package hierarchy

import (
	"strings"

	"github.com/mlefebvre/ragtree/document"
)

// Folder is one record of a cloud folder graph: the folder's id, display
// name, and the ids of its parents (only the first is followed).
type Folder struct {
	ID      string
	Name    string
	Parents []string
}

// FolderInfo is the resolved view of a folder: its name and the
// slash-joined chain of ancestor names from (but excluding) the root down
// to the folder itself.
type FolderInfo struct {
	Name string
	Path string
}

// ResolveFolderPaths builds the id → {name, path} map for a flat folder
// list. The root is seeded as "root". Paths are best effort: the parent
// walk stops at unresolvable parent ids, and a visited set bounds the walk
// when the parent graph contains a cycle.
func ResolveFolderPaths(folders []Folder, rootID string) map[string]FolderInfo {
	byID := make(map[string]Folder, len(folders)+1)
	byID[rootID] = Folder{ID: rootID, Name: "root"}
	for _, folder := range folders {
		if folder.ID == "" || folder.ID == rootID {
			continue
		}
		byID[folder.ID] = folder
	}

	resolved := make(map[string]FolderInfo, len(byID))
	resolved[rootID] = FolderInfo{Name: "root", Path: "root"}

	for id, folder := range byID {
		if id == rootID {
			continue
		}

		parts := []string{folder.Name}
		visited := map[string]bool{id: true}
		parents := folder.Parents

		for len(parents) > 0 {
			parentID := parents[0]
			if visited[parentID] {
				break
			}
			visited[parentID] = true

			parent, ok := byID[parentID]
			if !ok {
				break
			}
			if parent.Name != "root" {
				parts = append([]string{parent.Name}, parts...)
			}
			parents = parent.Parents
		}

		resolved[id] = FolderInfo{Name: folder.Name, Path: strings.Join(parts, "/")}
	}

	return resolved
}

// FolderMetadata derives category attributes for a file from the resolved
// folder map and the file's immediate parent folder ids. A file with no
// parents categorizes as "root"; an unresolvable parent degrades to
// "unknown" rather than failing.
func FolderMetadata(parentIDs []string, folderMap map[string]FolderInfo) document.Metadata {
	if len(parentIDs) == 0 || len(folderMap) == 0 {
		return document.Metadata{
			Category:       "root",
			HierarchyPath:  "root",
			HierarchyLevel: 0,
		}
	}

	info, ok := folderMap[parentIDs[0]]
	if !ok {
		return document.Metadata{
			Category:       "unknown",
			HierarchyPath:  "unknown",
			HierarchyLevel: 0,
		}
	}

	parts := []string{}
	if info.Path != "" {
		parts = strings.Split(info.Path, "/")
	}

	meta := document.Metadata{
		Category:       "root",
		HierarchyPath:  info.Path,
		HierarchyLevel: len(parts),
		FolderID:       parentIDs[0],
	}
	if len(parts) > 0 {
		meta.Category = parts[0]
	}
	if len(parts) > 1 {
		meta.Subcategory = parts[1]
	}
	return meta
}
