// Package directory provides the application catalog collaborators: an HTTP
// client for a remote directory service and a file-backed static catalog.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/config"
	"github.com/hay-kot/deskbus/internal/core/protocol"
)

var (
	// ErrNotFound is returned when a manifest or catalog does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned while the remote directory is failing.
	ErrUnavailable = errors.New("directory unavailable")
)

// Directory lists applications and fetches their manifests.
type Directory interface {
	ListApplications(ctx context.Context) ([]protocol.DirectoryEntry, error)
	FetchManifest(ctx context.Context, url string) (protocol.Manifest, error)
}

// Open builds the directory selected by cfg. It returns nil when no
// directory is configured.
func Open(cfg config.DirectoryConfig, log zerolog.Logger) (Directory, error) {
	switch {
	case cfg.File != "" && cfg.URL != "":
		return nil, fmt.Errorf("directory: set either url or file, not both")
	case cfg.File != "":
		f, err := LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		return f, nil
	case cfg.URL != "":
		c, err := NewHTTPClient(cfg.URL, log, HTTPOptions{
			Timeout:          cfg.Timeout,
			CacheSize:        cfg.CacheSize,
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.CooldownPeriod,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}
