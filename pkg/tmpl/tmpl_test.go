package tmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openData struct {
	URL  string
	Name string
}

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		data    any
		want    string
		wantErr bool
	}{
		{
			name: "open url",
			tmpl: "xdg-open {{ .URL | shq }}",
			data: openData{URL: "https://charts.example/?q=IBM"},
			want: "xdg-open 'https://charts.example/?q=IBM'",
		},
		{
			name: "quote injection",
			tmpl: "xdg-open {{ .URL | shq }}",
			data: openData{URL: "x'; rm -rf /; echo '"},
			want: `xdg-open 'x'\''; rm -rf /; echo '\'''`,
		},
		{
			name: "empty quoted",
			tmpl: "focus {{ .Name | shq }}",
			data: openData{},
			want: "focus ''",
		},
		{
			name: "query escape",
			tmpl: "browser https://search.example/?q={{ .Name | urlq }}",
			data: openData{Name: "a b&c"},
			want: "browser https://search.example/?q=a+b%26c",
		},
		{
			name: "map data",
			tmpl: "wmctrl -a {{ .App }}",
			data: map[string]string{"App": "charts"},
			want: "wmctrl -a charts",
		},
		{
			name:    "missing key",
			tmpl:    "{{ .Missing }}",
			data:    map[string]string{"App": "charts"},
			wantErr: true,
		},
		{
			name:    "unknown field",
			tmpl:    "{{ .Title }}",
			data:    openData{},
			wantErr: true,
		},
		{
			name:    "parse error",
			tmpl:    "{{ .URL ",
			data:    openData{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("open {{ .URL | shq }} {{ .Name | urlq }}", openData{}))
	require.Error(t, Validate("open {{ .Nope }}", openData{}))
	require.Error(t, Validate("open {{ .URL | nofunc }}", openData{}))
}
