// Package doctor inspects a deskbus installation: its configuration, its
// application directory and the broker listen address.
package doctor

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Status grades a check item. Larger values are worse.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// CheckItem is one line of a check result.
type CheckItem struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result groups the items a single check produced.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

// Worst returns the most severe status among the items.
func (r Result) Worst() Status {
	worst := StatusPass
	for _, item := range r.Items {
		worst = max(worst, item.Status)
	}
	return worst
}

type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// RunAll runs the checks concurrently. Results keep the order of checks.
func RunAll(ctx context.Context, checks []Check) []Result {
	results := make([]Result, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Summary counts items by status across results.
func Summary(results []Result) (passed, warned, failed int) {
	counts := make(map[Status]int, 3)
	for _, r := range results {
		for _, item := range r.Items {
			counts[item.Status]++
		}
	}
	return counts[StatusPass], counts[StatusWarn], counts[StatusFail]
}
