package hierarchy

import "testing"

func TestResolveFolderPathsChain(t *testing.T) {
	folders := []Folder{
		{ID: "A", Name: "A", Parents: []string{"R"}},
		{ID: "B", Name: "B", Parents: []string{"A"}},
	}

	resolved := ResolveFolderPaths(folders, "R")

	if got := resolved["R"]; got.Name != "root" || got.Path != "root" {
		t.Fatalf("root entry: %+v", got)
	}
	if got := resolved["A"].Path; got != "A" {
		t.Fatalf("path of A: %q, want %q", got, "A")
	}
	if got := resolved["B"].Path; got != "A/B" {
		t.Fatalf("path of B: %q, want %q", got, "A/B")
	}
}

func TestResolveFolderPathsUnresolvableParent(t *testing.T) {
	folders := []Folder{
		{ID: "orphan", Name: "Orphan", Parents: []string{"missing"}},
	}

	resolved := ResolveFolderPaths(folders, "R")
	if got := resolved["orphan"].Path; got != "Orphan" {
		t.Fatalf("partial path: %q, want just the folder name", got)
	}
}

func TestResolveFolderPathsCycleTerminates(t *testing.T) {
	folders := []Folder{
		{ID: "X", Name: "X", Parents: []string{"Y"}},
		{ID: "Y", Name: "Y", Parents: []string{"X"}},
	}

	resolved := ResolveFolderPaths(folders, "R")
	if got := resolved["X"].Path; got != "Y/X" {
		t.Fatalf("cycle walk for X stopped at %q, want %q", got, "Y/X")
	}
	if got := resolved["Y"].Path; got != "X/Y" {
		t.Fatalf("cycle walk for Y stopped at %q, want %q", got, "X/Y")
	}
}

func TestFolderMetadataCategories(t *testing.T) {
	folders := []Folder{
		{ID: "A", Name: "A", Parents: []string{"R"}},
		{ID: "B", Name: "B", Parents: []string{"A"}},
	}
	folderMap := ResolveFolderPaths(folders, "R")

	meta := FolderMetadata([]string{"B"}, folderMap)
	if meta.Category != "A" || meta.Subcategory != "B" {
		t.Fatalf("file under B: category %q/%q, want A/B", meta.Category, meta.Subcategory)
	}
	if meta.HierarchyPath != "A/B" || meta.HierarchyLevel != 2 {
		t.Fatalf("file under B: path %q level %d", meta.HierarchyPath, meta.HierarchyLevel)
	}

	meta = FolderMetadata(nil, folderMap)
	if meta.Category != "root" || meta.HierarchyPath != "root" || meta.HierarchyLevel != 0 {
		t.Fatalf("file with no parents: %+v", meta)
	}

	meta = FolderMetadata([]string{"missing"}, folderMap)
	if meta.Category != "unknown" || meta.HierarchyPath != "unknown" {
		t.Fatalf("unresolved parent: %+v", meta)
	}
}
