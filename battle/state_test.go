package battle

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

type recordingGroup struct {
	name       string
	calls      *[]string
	enabled    bool
	failEnable error
}

func (g *recordingGroup) EnableAll() error {
	*g.calls = append(*g.calls, "enable "+g.name)
	if g.failEnable != nil {
		return g.failEnable
	}
	g.enabled = true
	return nil
}

func (g *recordingGroup) DisableAll() error {
	*g.calls = append(*g.calls, "disable "+g.name)
	g.enabled = false
	return nil
}

func newRecorded() (*StateMachine, *recordingGroup, *recordingGroup, *[]string) {
	calls := &[]string{}
	general := &recordingGroup{name: "general", calls: calls}
	special := &recordingGroup{name: "special", calls: calls}
	return NewStateMachine(general, special), general, special, calls
}

var states = []PatchState{Applied, SpecialOnlyApplied, NotApplied}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to PatchState
		calls    []string
	}{
		{Applied, SpecialOnlyApplied, []string{"disable general"}},
		{Applied, NotApplied, []string{"disable general", "disable special"}},
		{SpecialOnlyApplied, Applied, []string{"enable general"}},
		{SpecialOnlyApplied, NotApplied, []string{"disable special"}},
		{NotApplied, Applied, []string{"enable general", "enable special"}},
		{NotApplied, SpecialOnlyApplied, []string{"enable special"}},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			m, _, _, calls := newRecorded()
			assert.NoError(t, m.ChangeState(tt.from))
			*calls = nil

			assert.NoError(t, m.ChangeState(tt.to))
			assert.Equal(t, tt.calls, *calls)
			assert.Equal(t, tt.to, m.State())
		})
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	for _, s := range states {
		m, _, _, calls := newRecorded()
		assert.NoError(t, m.ChangeState(s))
		*calls = nil

		assert.NoError(t, m.ChangeState(s))
		assert.Empty(t, *calls)
		assert.Equal(t, s, m.State())
	}
}

func TestTransitionRoundTrip(t *testing.T) {
	for _, from := range states {
		for _, to := range states {
			m, general, special, _ := newRecorded()
			assert.NoError(t, m.ChangeState(from))
			g, s := general.enabled, special.enabled

			assert.NoError(t, m.ChangeState(to))
			assert.NoError(t, m.ChangeState(from))
			assert.Equal(t, g, general.enabled)
			assert.Equal(t, s, special.enabled)
		}
	}
}

func TestStateInvariant(t *testing.T) {
	m, general, special, _ := newRecorded()
	assert.Equal(t, NotApplied, m.State())

	assert.NoError(t, m.ChangeState(Applied))
	assert.True(t, general.enabled)
	assert.True(t, special.enabled)

	assert.NoError(t, m.ChangeState(SpecialOnlyApplied))
	assert.False(t, general.enabled)
	assert.True(t, special.enabled)

	assert.NoError(t, m.ChangeState(NotApplied))
	assert.False(t, general.enabled)
	assert.False(t, special.enabled)
}

func TestTransitionFailureKeepsState(t *testing.T) {
	m, general, special, calls := newRecorded()
	failure := errors.New("protect failed")
	special.failEnable = failure

	err := m.ChangeState(Applied)
	assert.True(t, errors.Is(err, failure))
	assert.Equal(t, NotApplied, m.State())
	assert.False(t, general.enabled)
	assert.Equal(t, []string{"enable general", "enable special", "disable general"}, *calls)
}

func TestInvalidState(t *testing.T) {
	m, _, _, calls := newRecorded()
	err := m.ChangeState(PatchState(7))
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Empty(t, *calls)
	assert.Equal(t, "PatchState(7)", PatchState(7).String())
}
