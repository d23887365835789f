package gitrepo

import (
	"path/filepath"
	"testing"
)

func TestParseRepoName(t *testing.T) {
	owner, name, err := ParseRepoName(" acme/widgets ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if owner != "acme" || name != "widgets" {
		t.Fatalf("got %s/%s", owner, name)
	}

	for _, bad := range []string{"", "acme", "acme/widgets/extra", "/widgets", "acme/"} {
		if _, _, err := ParseRepoName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLocalPath(t *testing.T) {
	l := NewLoader("/tmp/repos", nil)
	path, err := l.LocalPath("acme/widgets")
	if err != nil {
		t.Fatalf("local path: %v", err)
	}
	if path != filepath.Join("/tmp/repos", "widgets") {
		t.Fatalf("path %q", path)
	}
}
