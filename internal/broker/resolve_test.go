package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

func app(name string, intents ...string) protocol.DirectoryEntry {
	e := protocol.DirectoryEntry{Name: name}
	for _, i := range intents {
		e.Intents = append(e.Intents, protocol.IntentDecl{Name: i, DisplayName: "Do " + i + " in " + name})
	}
	return e
}

func names(apps []protocol.DirectoryEntry) []string {
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = a.Name
	}
	return out
}

func TestGroupIntents_FirstSeenOrder(t *testing.T) {
	got := groupIntents([]protocol.DirectoryEntry{
		app("A", "X"),
		app("B", "X", "Y"),
	})

	assert.Len(t, got, 2)
	assert.Equal(t, "X", got[0].Intent.Name)
	assert.Equal(t, []string{"A", "B"}, names(got[0].Apps))
	assert.Equal(t, "Do X in A", got[0].Intent.DisplayName, "display name from first declaring app")
	assert.Equal(t, "Y", got[1].Intent.Name)
	assert.Equal(t, []string{"B"}, names(got[1].Apps))
}

func TestGroupIntents_Empty(t *testing.T) {
	got := groupIntents(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindIntent(t *testing.T) {
	apps := []protocol.DirectoryEntry{app("Skype", "StartCall", "StartChat"), app("Slack", "StartChat"), app("Chart", "ViewChart")}

	got := findIntent(apps, "StartChat")
	assert.Equal(t, protocol.IntentMetadata{Name: "StartChat", DisplayName: "Do StartChat in Skype"}, got.Intent)
	assert.Equal(t, []string{"Skype", "Slack"}, names(got.Apps))

	none := findIntent(apps, "Nope")
	assert.Empty(t, none.Intent.Name)
	assert.NotNil(t, none.Apps)
	assert.Empty(t, none.Apps)
}

func TestCandidatesFor(t *testing.T) {
	live := testEndpoint("chart-tab", "Chart")
	anonymous := testEndpoint("tab-9", "")
	dead := testEndpoint("gone", "Other")
	dead.live = false

	apps := []protocol.DirectoryEntry{app("Chart", "ViewChart"), app("Grid", "ViewChart"), app("Chat", "StartChat")}
	apps[0].Title = "Charting"

	got := candidatesFor("ViewChart", []*endpoint{live, dead, anonymous}, apps)

	assert.Equal(t, []protocol.Candidate{
		{Kind: protocol.CandidateWindow, Endpoint: "chart-tab", App: "Chart", Title: "Charting"},
		{Kind: protocol.CandidateWindow, Endpoint: "tab-9", Title: "tab-9"},
		{Kind: protocol.CandidateApp, App: "Grid", Title: "Grid"},
	}, got)
}
