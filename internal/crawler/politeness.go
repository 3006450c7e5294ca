package crawler

import (
	"context"
	"fmt"
	"strings"
)

// Politeness gates every fetch through robots.txt and a per-domain rate
// slot. One instance is meant to outlive individual crawls so decisions
// are amortized across them.
type Politeness struct {
	robots RobotsPolicy
	gate   RateGate
}

// NewPoliteness composes a robots policy and a rate gate. Nil arguments
// fall back to allow-all and no spacing respectively.
func NewPoliteness(robots RobotsPolicy, gate RateGate) *Politeness {
	if robots == nil {
		robots = AllowAllPolicy{}
	}
	if gate == nil {
		gate = noopGate{}
	}
	return &Politeness{robots: robots, gate: gate}
}

// IsAllowed reports whether robots.txt permits fetching rawURL.
func (p *Politeness) IsAllowed(ctx context.Context, rawURL string) bool {
	return p.robots.Allowed(ctx, rawURL)
}

// WaitForSlot blocks until domain may receive another request.
// It must be called immediately before every fetch to that domain.
func (p *Politeness) WaitForSlot(ctx context.Context, domain string) error {
	if err := p.gate.Wait(ctx, strings.ToLower(domain)); err != nil {
		return fmt.Errorf("politeness wait %s: %w", domain, err)
	}
	return nil
}

type noopGate struct{}

func (noopGate) Wait(context.Context, string) error { return nil }
