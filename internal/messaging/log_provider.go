package messaging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"interview-backend/internal/shared/telemetry"
)

// LogProvider writes notifications to the log and serves media from a local
// directory. It is meant for development.
type LogProvider struct {
	MediaDir string
}

func (p *LogProvider) Name() string { return "log" }

// Notify logs the message and always succeeds.
func (p *LogProvider) Notify(_ context.Context, to, text string) bool {
	telemetry.Info("messaging.notify", map[string]any{"provider": p.Name(), "to": to, "text": text})
	return true
}

// DownloadMedia reads MediaDir/mediaID.
func (p *LogProvider) DownloadMedia(_ context.Context, mediaID string) ([]byte, error) {
	if p.MediaDir == "" || strings.TrimSpace(mediaID) == "" {
		return nil, ErrMediaNotFound
	}
	name := filepath.Base(filepath.Clean("/" + mediaID))
	f, err := os.Open(filepath.Join(p.MediaDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local media %s: %w", name, ErrMediaNotFound)
		}
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

var _ Provider = (*LogProvider)(nil)
