package battle

import (
	"errors"
	"fmt"
)

// PatchState says which patch groups are live.
type PatchState int

const (
	// NotApplied leaves the camera entirely to the foreign code.
	NotApplied PatchState = iota
	// SpecialOnlyApplied keeps the event captures live while the foreign
	// code moves the camera.
	SpecialOnlyApplied
	// Applied takes the camera away from the foreign code.
	Applied
)

func (s PatchState) String() string {
	switch s {
	case NotApplied:
		return "NotApplied"
	case SpecialOnlyApplied:
		return "SpecialOnlyApplied"
	case Applied:
		return "Applied"
	}
	return fmt.Sprintf("PatchState(%d)", int(s))
}

var ErrInvalidState = errors.New("invalid patch state")

// PatchGroup is a set of patches toggled together.
type PatchGroup interface {
	EnableAll() error
	DisableAll() error
}

type action uint8

const (
	enableGeneral action = iota
	enableSpecial
	disableGeneral
	disableSpecial
)

var transitions = map[[2]PatchState][]action{
	{Applied, SpecialOnlyApplied}:    {disableGeneral},
	{Applied, NotApplied}:            {disableGeneral, disableSpecial},
	{SpecialOnlyApplied, Applied}:    {enableGeneral},
	{SpecialOnlyApplied, NotApplied}: {disableSpecial},
	{NotApplied, Applied}:            {enableGeneral, enableSpecial},
	{NotApplied, SpecialOnlyApplied}: {enableSpecial},
}

// StateMachine keeps the two groups consistent with its state:
// Applied has both enabled, SpecialOnlyApplied only special, NotApplied
// neither. The foreign code observes a change whenever it next runs an
// affected instruction; nothing synchronizes with it.
type StateMachine struct {
	general PatchGroup
	special PatchGroup
	state   PatchState
}

// NewStateMachine starts in NotApplied; both groups must be disabled.
func NewStateMachine(general, special PatchGroup) *StateMachine {
	return &StateMachine{general: general, special: special, state: NotApplied}
}

func (m *StateMachine) State() PatchState {
	return m.state
}

// ChangeState runs the transition to state. On failure the steps already
// taken are undone and the state is left unchanged.
func (m *StateMachine) ChangeState(state PatchState) error {
	if state < NotApplied || state > Applied {
		return fmt.Errorf("%w: %v", ErrInvalidState, state)
	}
	actions := transitions[[2]PatchState{m.state, state}]
	for i, a := range actions {
		if err := m.run(a); err != nil {
			err = fmt.Errorf("%v -> %v: %w", m.state, state, err)
			for j := i - 1; j >= 0; j-- {
				err = errors.Join(err, m.run(actions[j].inverse()))
			}
			return err
		}
	}
	m.state = state
	return nil
}

func (m *StateMachine) run(a action) error {
	switch a {
	case enableGeneral:
		return m.general.EnableAll()
	case enableSpecial:
		return m.special.EnableAll()
	case disableGeneral:
		return m.general.DisableAll()
	default:
		return m.special.DisableAll()
	}
}

func (a action) inverse() action {
	switch a {
	case enableGeneral:
		return disableGeneral
	case enableSpecial:
		return disableSpecial
	case disableGeneral:
		return enableGeneral
	default:
		return enableSpecial
	}
}
