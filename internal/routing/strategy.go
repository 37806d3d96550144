// Package routing decides which leg answers an inbound call.
//
// The decision layer is deliberately tiny: strategies return a Decision only,
// with no side effects (no DB writes, no provider calls). The telephony
// adapter turns the decision into TwiML.
package routing

import (
	"context"

	"call-assistant/internal/business"
)

// Leg identifies who takes the call.
type Leg string

const (
	LegAI    Leg = "ai"
	LegHuman Leg = "human"
)

// Input is everything a strategy may consider.
type Input struct {
	ProviderCallID string
	CallerNumber   string
	Business       business.Business
}

// Decision is the strategy output.
type Decision struct {
	Leg Leg

	// Reason is for internal logs only.
	Reason string
}

// Strategy picks the leg for one inbound call.
type Strategy interface {
	Decide(ctx context.Context, in Input) (Decision, error)
}

// AlwaysAI routes every call straight to the AI agent. Current production
// behavior.
type AlwaysAI struct{}

func (AlwaysAI) Decide(_ context.Context, _ Input) (Decision, error) {
	return Decision{Leg: LegAI, Reason: "ai_default"}, nil
}

// OwnerProbe checks whether a human at the business can take the call right
// now. Implementations would ring the owner with a short timeout.
type OwnerProbe interface {
	Reachable(ctx context.Context, b business.Business) (bool, error)
}

// HumanFirst tries the business owner before falling back to the AI agent.
// With no probe wired it behaves exactly like AlwaysAI, which keeps it safe
// to deploy ahead of the owner-dialing work.
type HumanFirst struct {
	Probe OwnerProbe
}

func (s HumanFirst) Decide(ctx context.Context, in Input) (Decision, error) {
	if s.Probe == nil {
		return Decision{Leg: LegAI, Reason: "ai_fallback_no_probe"}, nil
	}
	ok, err := s.Probe.Reachable(ctx, in.Business)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return Decision{Leg: LegHuman, Reason: "owner_reachable"}, nil
	}
	return Decision{Leg: LegAI, Reason: "owner_unreachable"}, nil
}
