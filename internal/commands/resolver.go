package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/endpoint"
	"github.com/hay-kot/deskbus/internal/styles"
)

// promptResolver asks on the terminal which candidate should handle an
// intent. It returns nil when stdin is not a terminal so the adapter falls
// back to the first candidate.
func promptResolver() endpoint.ResolverUI {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return &formResolver{}
}

type formResolver struct{}

func (r *formResolver) Choose(ctx context.Context, req protocol.ResolverRequest) (protocol.Candidate, bool, error) {
	if len(req.Candidates) == 0 {
		return protocol.Candidate{}, false, nil
	}

	options := make([]huh.Option[int], len(req.Candidates))
	for i, c := range req.Candidates {
		options[i] = huh.NewOption(candidateLabel(c), i)
	}

	title := req.DisplayName
	if title == "" {
		title = req.Intent
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(title).
				Description("Choose an application to handle the intent").
				Options(options...).
				Value(&choice),
		),
	).WithTheme(styles.FormTheme())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return protocol.Candidate{}, false, nil
		}
		return protocol.Candidate{}, false, fmt.Errorf("resolver prompt: %w", err)
	}

	return req.Candidates[choice], true, nil
}

func candidateLabel(c protocol.Candidate) string {
	name := c.Title
	if name == "" {
		name = c.App
	}
	switch c.Kind {
	case protocol.CandidateWindow:
		return fmt.Sprintf("%s (running: %s)", name, c.Endpoint)
	default:
		return fmt.Sprintf("%s (launch)", name)
	}
}
