package object

import (
	"strings"
	"testing"
)

func TestArtifactKey(t *testing.T) {
	key, err := ArtifactKey("5511999990000", "int-1", "transcript.md")
	if err != nil {
		t.Fatalf("ArtifactKey: %v", err)
	}
	if !strings.HasPrefix(key, "interviews/") || !strings.HasSuffix(key, "/int-1/transcript.md") {
		t.Fatalf("unexpected key %q", key)
	}
	if strings.Contains(key, "5511999990000") {
		t.Fatalf("key leaks owner ref: %q", key)
	}

	if _, err := ArtifactKey("", "int-1", "a"); err == nil {
		t.Fatalf("expected error for empty owner")
	}
	if _, err := ArtifactKey("o", "../x", "a"); err == nil {
		t.Fatalf("expected error for traversal id")
	}
}
