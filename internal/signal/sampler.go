package signal

import (
	"context"
	"fmt"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Aggregation rules. Values match the config surface.
type Rule string

const (
	RuleSingle       Rule = "single"
	RulePairwise     Rule = "pairwise"
	RuleMajority     Rule = "majority"
	RulePreConfirmed Rule = "preconfirmed"
)

// Sampler combines the per-tick votes of one or more indicator collaborators
// into a single direction. It holds no state; the result is a pure function of
// the current votes.
type Sampler struct {
	rule      Rule
	quorum    int
	providers []ports.SignalProvider
	logger    ports.Logger
}

// SamplerConfig configures vote aggregation.
type SamplerConfig struct {
	Rule   Rule
	Quorum int // Required agreeing votes for RuleMajority
}

// NewSampler creates a vote sampler over the given providers.
func NewSampler(cfg SamplerConfig, providers []ports.SignalProvider, log ports.Logger) (*Sampler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required for signal sampler")
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one signal provider is required")
	}
	switch cfg.Rule {
	case RuleSingle, RulePreConfirmed:
		if len(providers) != 1 {
			return nil, fmt.Errorf("rule %q requires exactly one provider, got %d", cfg.Rule, len(providers))
		}
	case RulePairwise:
		if len(providers) != 2 {
			return nil, fmt.Errorf("rule %q requires exactly two providers, got %d", cfg.Rule, len(providers))
		}
	case RuleMajority:
		if cfg.Quorum <= 0 || cfg.Quorum > len(providers) {
			return nil, fmt.Errorf("rule %q requires 0 < quorum <= %d, got %d", cfg.Rule, len(providers), cfg.Quorum)
		}
	default:
		return nil, fmt.Errorf("unknown aggregation rule %q", cfg.Rule)
	}

	return &Sampler{
		rule:      cfg.Rule,
		quorum:    cfg.Quorum,
		providers: providers,
		logger:    log,
	}, nil
}

// PreConfirmed reports whether the source already applies its own debounce,
// in which case the lock accepts direction changes without the local
// confirmation threshold.
func (s *Sampler) PreConfirmed() bool {
	return s.rule == RulePreConfirmed
}

// Sample collects one vote per provider and applies the aggregation rule.
// A provider error counts as a None vote; ambiguity is never an error.
func (s *Sampler) Sample(ctx context.Context) domain.Direction {
	votes := make([]domain.Direction, len(s.providers))
	for i, p := range s.providers {
		v, err := p.Vote(ctx)
		if err != nil {
			s.logger.Warn(ctx, "Signal provider vote failed, counting as None", map[string]interface{}{"provider": p.Name(), "error": err.Error()})
			v = domain.None
		}
		votes[i] = v
	}

	switch s.rule {
	case RuleSingle, RulePreConfirmed:
		return votes[0]
	case RulePairwise:
		if votes[0] == votes[1] {
			return votes[0]
		}
		return domain.None
	case RuleMajority:
		buys, sells := 0, 0
		for _, v := range votes {
			switch v {
			case domain.Buy:
				buys++
			case domain.Sell:
				sells++
			}
		}
		if buys >= s.quorum && sells < s.quorum {
			return domain.Buy
		}
		if sells >= s.quorum && buys < s.quorum {
			return domain.Sell
		}
		return domain.None
	}
	return domain.None
}
