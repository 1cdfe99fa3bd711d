package protocol

// IntentDecl is an intent an application declares in the directory.
type IntentDecl struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name" toml:"display_name"`
	Contexts    []string `json:"contexts,omitempty" yaml:"contexts" toml:"contexts"`
}

// DirectoryEntry is one application in the catalog.
type DirectoryEntry struct {
	Name        string       `json:"name" yaml:"name" toml:"name"`
	Title       string       `json:"title,omitempty" yaml:"title" toml:"title"`
	StartURL    string       `json:"start_url,omitempty" yaml:"start_url" toml:"start_url"`
	ManifestURL string       `json:"manifest,omitempty" yaml:"manifest" toml:"manifest"`
	Intents     []IntentDecl `json:"intents,omitempty" yaml:"intents" toml:"intents"`

	// Inline manifests are used by file-backed directories.
	ManifestContent *Manifest `json:"manifest_content,omitempty" yaml:"manifest_content" toml:"manifest_content"`
}

// DisplayTitle falls back to the name when no title is set.
func (d DirectoryEntry) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// Declares returns the entry's declaration for intent.
func (d DirectoryEntry) Declares(intent string) (IntentDecl, bool) {
	for _, i := range d.Intents {
		if i.Name == intent {
			return i, true
		}
	}
	return IntentDecl{}, false
}

// StartupApp describes what the host materializes for an application.
type StartupApp struct {
	URL  string `json:"url" yaml:"url" toml:"url"`
	Type string `json:"type,omitempty" yaml:"type" toml:"type"`
	Name string `json:"name,omitempty" yaml:"name" toml:"name"`
}

// ManifestIntent binds a handled intent to a URL template.
type ManifestIntent struct {
	Intent   string `json:"intent" yaml:"intent" toml:"intent"`
	Type     string `json:"type,omitempty" yaml:"type" toml:"type"`
	Template string `json:"template,omitempty" yaml:"template" toml:"template"`
}

// ManifestContext binds a handled context type to a URL template.
type ManifestContext struct {
	Type     string `json:"type" yaml:"type" toml:"type"`
	Template string `json:"template,omitempty" yaml:"template" toml:"template"`
}

// Param extracts a template parameter from a context of Type, either from a
// top-level Key or from the nested id object.
type Param struct {
	Type string `json:"type" yaml:"type" toml:"type"`
	Key  string `json:"key,omitempty" yaml:"key" toml:"key"`
	ID   string `json:"id,omitempty" yaml:"id" toml:"id"`
}

// Manifest is the per-application descriptor.
type Manifest struct {
	StartupApp StartupApp        `json:"startup_app" yaml:"startup_app" toml:"startup_app"`
	Intents    []ManifestIntent  `json:"intents,omitempty" yaml:"intents" toml:"intents"`
	Contexts   []ManifestContext `json:"contexts,omitempty" yaml:"contexts" toml:"contexts"`
	Params     map[string]Param  `json:"params,omitempty" yaml:"params" toml:"params"`
	Templates  map[string]string `json:"templates,omitempty" yaml:"templates" toml:"templates"`
}

// IntentMetadata names an intent and how it is shown to users.
type IntentMetadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// AppIntent pairs an intent with the applications able to handle it.
type AppIntent struct {
	Intent IntentMetadata   `json:"intent"`
	Apps   []DirectoryEntry `json:"apps"`
}

// CandidateKind tells whether a resolver candidate is a running endpoint or
// an application that must be launched.
type CandidateKind string

const (
	CandidateWindow CandidateKind = "window"
	CandidateApp    CandidateKind = "app"
)

// Candidate is one possible target of a raised intent.
type Candidate struct {
	Kind     CandidateKind `json:"type"`
	Endpoint string        `json:"endpoint,omitempty"`
	App      string        `json:"app,omitempty"`
	Title    string        `json:"title,omitempty"`
}

// Same reports whether two candidates address the same target.
func (c Candidate) Same(o Candidate) bool {
	return c.Kind == o.Kind && c.Endpoint == o.Endpoint && c.App == o.App
}

// ResolverRequest asks an endpoint's resolver UI to choose a candidate.
type ResolverRequest struct {
	Intent      string      `json:"intent"`
	DisplayName string      `json:"displayName,omitempty"`
	Context     Context     `json:"context,omitempty"`
	Candidates  []Candidate `json:"candidates"`
}

// IntentResolution is the result of a successful raiseIntent.
type IntentResolution struct {
	Intent string    `json:"intent"`
	Target Candidate `json:"target"`
}

// ChannelInfo describes a system channel.
type ChannelInfo struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color"`
}

// EnvironmentData is the readiness announcement sent after admission.
type EnvironmentData struct {
	Identity       string          `json:"identity"`
	App            string          `json:"app,omitempty"`
	Directory      *DirectoryEntry `json:"directory,omitempty"`
	Manifest       *Manifest       `json:"manifest,omitempty"`
	CurrentChannel string          `json:"currentChannel,omitempty"`
	SystemChannels []ChannelInfo   `json:"systemChannels,omitempty"`
}
