package ingest

import (
	"context"
	"fmt"
	"sync"
)

// Policy decides what happens to a session that is already marked parsed.
type Policy int

const (
	// Skip leaves parsed sessions alone.
	Skip Policy = iota
	// OverwriteAll reloads every parsed session.
	OverwriteAll
	// OverwriteOne reloads the first parsed session of the run and skips
	// the rest.
	OverwriteOne
)

func (p Policy) String() string {
	switch p {
	case Skip:
		return "skip"
	case OverwriteAll:
		return "overwrite_all"
	case OverwriteOne:
		return "overwrite_one"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses the config spelling of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "skip":
		return Skip, nil
	case "overwrite_all", "all":
		return OverwriteAll, nil
	case "overwrite_one", "one":
		return OverwriteOne, nil
	}
	return Skip, fmt.Errorf("unknown policy %q", s)
}

// Decision is the answer for one parsed session.
type Decision int

const (
	DecideSkip Decision = iota
	DecideOverwrite
	// DecideOverwriteAll overwrites this session and every later one
	// without asking again.
	DecideOverwriteAll
)

// Decider is asked about each parsed session, typically by prompting the
// operator.
type Decider interface {
	Decide(ctx context.Context, session string) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, session string) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, session string) (Decision, error) {
	return f(ctx, session)
}

// reparseGate applies the policy across one run. Once the answer is "all"
// it is remembered.
type reparseGate struct {
	mu      sync.Mutex
	policy  Policy
	decider Decider
	all     bool
	usedOne bool
}

func (g *reparseGate) overwrite(ctx context.Context, session string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.all {
		return true, nil
	}
	if g.decider != nil {
		d, err := g.decider.Decide(ctx, session)
		if err != nil {
			return false, fmt.Errorf("reparse decision for %s: %w", session, err)
		}
		if d == DecideOverwriteAll {
			g.all = true
		}
		return d != DecideSkip, nil
	}
	switch g.policy {
	case OverwriteAll:
		return true, nil
	case OverwriteOne:
		if g.usedOne {
			return false, nil
		}
		g.usedOne = true
		return true, nil
	}
	return false, nil
}
