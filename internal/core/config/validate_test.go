package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Directory.URL = "http://localhost:5556/directory.json"
	return &cfg
}

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	names := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		names[i] = fe.Field
	}
	return names
}

func TestValidateDeep_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Host.Focus = []string{"wmctrl -a {{ .App | shq }} # {{ .Identity }}"}
	cfg.Bindings = []Binding{{Pattern: "http://localhost:3000/**", App: "Chart"}}

	assert.NoError(t, cfg.ValidateDeep(""))
}

func TestValidateDeep_InvalidHostTemplates(t *testing.T) {
	cfg := validConfig(t)
	cfg.Host.Open = []string{"open {{ .URL }", "open {{ .Missing }}"}
	cfg.Host.Focus = []string{"focus {{ .URL }}"}

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 3)
	assert.Equal(t, "host.open[0]", fieldErrs[0].Field)
	assert.Contains(t, fieldErrs[0].Err.Error(), "template error")
	assert.Equal(t, "host.focus[0]", fieldErrs[2].Field)
}

func TestValidateDeep_Directory(t *testing.T) {
	tests := []struct {
		name  string
		dir   DirectoryConfig
		field string
	}{
		{name: "both sources", dir: DirectoryConfig{URL: "http://x", File: "/etc/hosts", CacheSize: 1}, field: "directory"},
		{name: "bad scheme", dir: DirectoryConfig{URL: "ftp://x", CacheSize: 1}, field: "directory.url"},
		{name: "missing file", dir: DirectoryConfig{File: "/nonexistent/apps.yaml", CacheSize: 1}, field: "directory.file"},
		{name: "zero cache", dir: DirectoryConfig{URL: "http://x"}, field: "directory.cache_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Directory = tt.dir
			assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), tt.field)
		})
	}
}

func TestValidateDeep_Channels(t *testing.T) {
	cfg := validConfig(t)
	cfg.Channels = []protocol.ChannelInfo{{ID: "red"}, {ID: "red"}, {ID: ""}, {ID: DefaultChannel}}

	names := fieldNames(t, cfg.ValidateDeep(""))
	assert.Equal(t, []string{"channels[1].id", "channels[2].id", "channels[3].id"}, names)
}

func TestValidateDeep_Bindings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Bindings = []Binding{{Pattern: "http://[", App: ""}}

	names := fieldNames(t, cfg.ValidateDeep(""))
	assert.Equal(t, []string{"bindings[0].pattern", "bindings[0].app"}, names)
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

	cfg := validConfig(t)
	cfg.DataDir = tmpFile

	assert.Contains(t, fieldNames(t, cfg.ValidateDeep("")), "data_dir")
}

func TestValidateDeep_ConfigFileIsDirectory(t *testing.T) {
	cfg := validConfig(t)
	assert.Contains(t, fieldNames(t, cfg.ValidateDeep(t.TempDir())), "config_file")
}

func TestWarnings(t *testing.T) {
	cfg := validConfig(t)
	assert.Empty(t, cfg.Warnings())

	cfg.Directory.URL = ""
	cfg.Host.Open = nil
	cfg.Broker.SweepInterval = 5 * time.Minute

	categories := []string{}
	for _, w := range cfg.Warnings() {
		categories = append(categories, w.Category)
	}
	assert.Equal(t, []string{"Directory", "Host", "Broker"}, categories)
}
