package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// catalog is the on-disk layout of a static directory.
type catalog struct {
	Applications []protocol.DirectoryEntry `json:"applications" yaml:"applications" toml:"applications"`
}

// FileDirectory serves a catalog loaded from a local file. Manifests are
// either inline on the entry or separate files referenced by path.
type FileDirectory struct {
	path string
	apps []protocol.DirectoryEntry
}

// LoadFile reads a .yaml, .yml, .json or .toml catalog.
func LoadFile(path string) (*FileDirectory, error) {
	var c catalog
	if err := decodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	seen := make(map[string]bool, len(c.Applications))
	for i, app := range c.Applications {
		if app.Name == "" {
			return nil, fmt.Errorf("load directory: applications[%d] has no name", i)
		}
		if seen[app.Name] {
			return nil, fmt.Errorf("load directory: duplicate application %q", app.Name)
		}
		seen[app.Name] = true
	}

	return &FileDirectory{path: path, apps: c.Applications}, nil
}

// NewStatic serves apps from memory.
func NewStatic(apps []protocol.DirectoryEntry) *FileDirectory {
	return &FileDirectory{apps: apps}
}

// ListApplications returns the catalog in file order.
func (d *FileDirectory) ListApplications(context.Context) ([]protocol.DirectoryEntry, error) {
	return slices.Clone(d.apps), nil
}

// FetchManifest returns the inline manifest of the entry whose manifest URL
// is ref, or reads ref as a file relative to the catalog.
func (d *FileDirectory) FetchManifest(_ context.Context, ref string) (protocol.Manifest, error) {
	for _, app := range d.apps {
		if app.ManifestURL == ref && app.ManifestContent != nil {
			return *app.ManifestContent, nil
		}
	}

	path := strings.TrimPrefix(ref, "file://")
	if !filepath.IsAbs(path) && d.path != "" {
		path = filepath.Join(filepath.Dir(d.path), path)
	}

	var m protocol.Manifest
	if err := decodeFile(path, &m); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, fmt.Errorf("manifest %s: %w", ref, ErrNotFound)
		}
		return m, fmt.Errorf("manifest %s: %w", ref, err)
	}
	return m, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	case ".toml":
		_, err = toml.Decode(string(data), v)
	default:
		return fmt.Errorf("%s: unsupported format %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
