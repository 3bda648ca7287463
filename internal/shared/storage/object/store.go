package object

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"interview-backend/internal/shared/util"
)

// Store saves and retrieves interview artifacts such as transcripts and reports.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ArtifactKey builds the storage key for an interview artifact. Owners are
// hashed so keys carry no contact details.
func ArtifactKey(ownerRef, interviewID, name string) (string, error) {
	if strings.TrimSpace(ownerRef) == "" || strings.TrimSpace(interviewID) == "" {
		return "", fmt.Errorf("owner and interview id are required")
	}
	cleanID, err := util.SanitizeFileName(interviewID)
	if err != nil {
		return "", fmt.Errorf("interview id: %w", err)
	}
	cleanName, err := util.SanitizeFileName(name)
	if err != nil {
		return "", fmt.Errorf("artifact name: %w", err)
	}
	return path.Join("interviews", util.HashOwnerRef(ownerRef), cleanID, cleanName), nil
}
