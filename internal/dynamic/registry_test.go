package dynamic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynexec/internal/spawn"
)

type pickyStrategy struct {
	fakeStrategy
	mnemonic string
}

func (p *pickyStrategy) CanExec(s *spawn.Spawn) bool {
	return s.Mnemonic == p.mnemonic
}

func TestRegistry_FirstWillingStrategyWins(t *testing.T) {
	r := NewRegistry()
	first := &pickyStrategy{mnemonic: "Link"}
	second := &pickyStrategy{mnemonic: "Compile"}
	r.Register(ModeLocal, first, second)

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil, nil, "//pkg:o")
	got, err := r.resolve(ModeLocal, s)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestRegistry_NoWillingStrategy_Errors(t *testing.T) {
	r := NewRegistry()
	r.Register(ModeLocal, &pickyStrategy{mnemonic: "Link"})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil, nil, "//pkg:o")
	_, err := r.resolve(ModeLocal, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Compile")

	_, err = r.resolve(ModeRemote, s)
	require.Error(t, err, "mode with no registrations at all must error too")
}

func TestRegistry_CanExec_ConsidersBothModes(t *testing.T) {
	r := NewRegistry()
	r.Register(ModeRemote, &pickyStrategy{mnemonic: "Compile"})

	compile := spawn.New("Compile", []string{"cc"}, nil, nil, nil, nil, "//pkg:o")
	link := spawn.New("Link", []string{"ld"}, nil, nil, nil, nil, "//pkg:bin")

	assert.True(t, r.CanExec(compile))
	assert.False(t, r.CanExec(link))
}

func TestRegistry_StrategyContextPlumbing(t *testing.T) {
	r := NewRegistry()
	fake := &fakeStrategy{results: testResults()}
	r.Register(ModeLocal, fake)

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil, nil, "//pkg:o")
	strategy, err := r.resolve(ModeLocal, s)
	require.NoError(t, err)

	results, err := strategy.Exec(context.Background(), s, testExecContext(t), nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.EqualValues(t, 1, fake.calls.Load())
}
