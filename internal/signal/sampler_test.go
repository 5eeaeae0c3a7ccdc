package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func fixed(name string, d domain.Direction) ports.SignalProvider {
	return NewFuncProvider(name, func(ctx context.Context) (domain.Direction, error) { return d, nil })
}

func failing(name string) ports.SignalProvider {
	return NewFuncProvider(name, func(ctx context.Context) (domain.Direction, error) {
		return domain.None, errors.New("feed disconnected")
	})
}

func TestSamplerValidation(t *testing.T) {
	log := noopLogger{}

	_, err := NewSampler(SamplerConfig{Rule: RuleSingle}, nil, log)
	assert.Error(t, err, "no providers")

	_, err = NewSampler(SamplerConfig{Rule: RuleSingle}, []ports.SignalProvider{fixed("a", domain.Buy), fixed("b", domain.Buy)}, log)
	assert.Error(t, err, "single rule with two providers")

	_, err = NewSampler(SamplerConfig{Rule: RulePairwise}, []ports.SignalProvider{fixed("a", domain.Buy)}, log)
	assert.Error(t, err, "pairwise rule with one provider")

	_, err = NewSampler(SamplerConfig{Rule: RuleMajority, Quorum: 4}, []ports.SignalProvider{fixed("a", domain.Buy), fixed("b", domain.Buy), fixed("c", domain.Buy)}, log)
	assert.Error(t, err, "quorum above provider count")

	_, err = NewSampler(SamplerConfig{Rule: Rule("weird")}, []ports.SignalProvider{fixed("a", domain.Buy)}, log)
	assert.Error(t, err, "unknown rule")
}

func TestSamplerRules(t *testing.T) {
	ctx := context.Background()
	log := noopLogger{}

	tests := []struct {
		name      string
		cfg       SamplerConfig
		providers []ports.SignalProvider
		want      domain.Direction
	}{
		{
			name:      "single passes the vote through",
			cfg:       SamplerConfig{Rule: RuleSingle},
			providers: []ports.SignalProvider{fixed("a", domain.Sell)},
			want:      domain.Sell,
		},
		{
			name:      "single provider error becomes None",
			cfg:       SamplerConfig{Rule: RuleSingle},
			providers: []ports.SignalProvider{failing("a")},
			want:      domain.None,
		},
		{
			name:      "pairwise agreement",
			cfg:       SamplerConfig{Rule: RulePairwise},
			providers: []ports.SignalProvider{fixed("a", domain.Buy), fixed("b", domain.Buy)},
			want:      domain.Buy,
		},
		{
			name:      "pairwise disagreement is None",
			cfg:       SamplerConfig{Rule: RulePairwise},
			providers: []ports.SignalProvider{fixed("a", domain.Buy), fixed("b", domain.Sell)},
			want:      domain.None,
		},
		{
			name:      "pairwise agreement on None stays None",
			cfg:       SamplerConfig{Rule: RulePairwise},
			providers: []ports.SignalProvider{fixed("a", domain.None), fixed("b", domain.None)},
			want:      domain.None,
		},
		{
			name: "majority reaches quorum",
			cfg:  SamplerConfig{Rule: RuleMajority, Quorum: 2},
			providers: []ports.SignalProvider{
				fixed("a", domain.Buy), fixed("b", domain.Buy), fixed("c", domain.None),
			},
			want: domain.Buy,
		},
		{
			name: "majority below quorum is None",
			cfg:  SamplerConfig{Rule: RuleMajority, Quorum: 3},
			providers: []ports.SignalProvider{
				fixed("a", domain.Sell), fixed("b", domain.Sell), fixed("c", domain.None),
			},
			want: domain.None,
		},
		{
			name: "conflicting quorums cancel out",
			cfg:  SamplerConfig{Rule: RuleMajority, Quorum: 2},
			providers: []ports.SignalProvider{
				fixed("a", domain.Buy), fixed("b", domain.Buy),
				fixed("c", domain.Sell), fixed("d", domain.Sell),
			},
			want: domain.None,
		},
		{
			name: "failing provider is excluded from the tally",
			cfg:  SamplerConfig{Rule: RuleMajority, Quorum: 2},
			providers: []ports.SignalProvider{
				fixed("a", domain.Sell), fixed("b", domain.Sell), failing("c"),
			},
			want: domain.Sell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSampler(tt.cfg, tt.providers, log)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Sample(ctx))
		})
	}
}

func TestSamplerPreConfirmed(t *testing.T) {
	log := noopLogger{}
	s, err := NewSampler(SamplerConfig{Rule: RulePreConfirmed}, []ports.SignalProvider{fixed("a", domain.Buy)}, log)
	require.NoError(t, err)
	assert.True(t, s.PreConfirmed())

	s, err = NewSampler(SamplerConfig{Rule: RuleSingle}, []ports.SignalProvider{fixed("a", domain.Buy)}, log)
	require.NoError(t, err)
	assert.False(t, s.PreConfirmed())
}

func TestMomentumProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMomentumProvider("momentum", 2, 4, 0.01)

	// Not enough history yet.
	p.Push(100)
	p.Push(100)
	d, err := p.Vote(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.None, d)

	// Rising tape: short mean pulls above the long mean.
	p.Push(100)
	p.Push(100)
	p.Push(110)
	p.Push(120)
	d, err = p.Vote(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Buy, d)

	// Falling tape flips the vote.
	for _, price := range []float64{120, 110, 95, 90} {
		p.Push(price)
	}
	d, err = p.Vote(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Sell, d)
}
