package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle_FirstReaction(t *testing.T) {
	s := NewReactionState()

	next := Toggle(s, ReactionLike)

	assert.Equal(t, 1, next.Total)
	assert.Equal(t, 1, next.PerKind[ReactionLike])
	assert.Equal(t, ReactionLike, next.ViewerChoice)
	assert.True(t, next.Consistent())

	// Input untouched
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, ReactionKind(""), s.ViewerChoice)
}

func TestToggle_Idempotence(t *testing.T) {
	// toggle(toggle(s, k), k) == s for every kind and a non-trivial state.
	for _, k := range ReactionKinds {
		s := NewReactionState()
		s.PerKind[ReactionFunny] = 3
		s.PerKind[ReactionLove] = 2
		s.Total = 5

		back := Toggle(Toggle(s, k), k)

		assert.Equal(t, s.Total, back.Total, "kind %s", k)
		assert.Equal(t, s.PerKind, back.PerKind, "kind %s", k)
		assert.Equal(t, s.ViewerChoice, back.ViewerChoice, "kind %s", k)
	}
}

func TestToggle_SwitchConservesTotal(t *testing.T) {
	s := NewReactionState()
	s = Toggle(s, ReactionLike)
	require.Equal(t, 1, s.Total)

	switched := Toggle(s, ReactionLove)

	assert.Equal(t, 1, switched.Total, "a switch is not a new reaction")
	assert.Equal(t, 0, switched.PerKind[ReactionLike])
	assert.Equal(t, 1, switched.PerKind[ReactionLove])
	assert.Equal(t, ReactionLove, switched.ViewerChoice)
	assert.True(t, switched.Consistent())
}

func TestToggle_UnReact(t *testing.T) {
	s := NewReactionState()
	s.PerKind[ReactionHorror] = 4
	s.Total = 4
	s = Toggle(s, ReactionHorror) // viewer joins: 5

	require.Equal(t, 5, s.Total)
	require.Equal(t, ReactionHorror, s.ViewerChoice)

	next := Toggle(s, ReactionHorror) // viewer leaves

	assert.Equal(t, 4, next.Total)
	assert.Equal(t, 4, next.PerKind[ReactionHorror])
	assert.Equal(t, ReactionKind(""), next.ViewerChoice)
}

func TestToggle_FloorsAtZero(t *testing.T) {
	// A corrupt zero-count state with a viewer choice must not go negative.
	s := NewReactionState()
	s.ViewerChoice = ReactionLike

	next := Toggle(s, ReactionLike)

	assert.Equal(t, 0, next.Total)
	assert.Equal(t, 0, next.PerKind[ReactionLike])
	assert.True(t, next.Consistent())
}

func TestToggle_InvariantUnderRandomWalk(t *testing.T) {
	// Every state reachable through Toggle keeps sum(PerKind) == Total.
	s := NewReactionState()
	walk := []ReactionKind{
		ReactionLike, ReactionLove, ReactionLove, ReactionFunny,
		ReactionFunny, ReactionHorror, ReactionLike, ReactionLike,
	}
	for i, k := range walk {
		s = Toggle(s, k)
		assert.True(t, s.Consistent(), "step %d (%s): %+v", i, k, s)
	}
}

func TestToggle_LikeThenLoveScenario(t *testing.T) {
	// react with like, then love: like drops to 0, love is 1, total is 1.
	s := NewReactionState()
	s = Toggle(s, ReactionLike)
	s = Toggle(s, ReactionLove)

	assert.Equal(t, 0, s.PerKind[ReactionLike])
	assert.Equal(t, 1, s.PerKind[ReactionLove])
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, ReactionLove, s.ViewerChoice)
}

func TestReactionState_Consistent(t *testing.T) {
	tests := []struct {
		name  string
		build func() ReactionState
		want  bool
	}{
		{"empty", NewReactionState, true},
		{"total mismatch", func() ReactionState {
			s := NewReactionState()
			s.Total = 2
			return s
		}, false},
		{"choice without count", func() ReactionState {
			s := NewReactionState()
			s.ViewerChoice = ReactionLove
			return s
		}, false},
		{"negative total", func() ReactionState {
			s := NewReactionState()
			s.Total = -1
			return s
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.build().Consistent())
		})
	}
}

func TestReactionKind_Valid(t *testing.T) {
	for _, k := range ReactionKinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, ReactionKind("angry").Valid())
	assert.False(t, ReactionKind("").Valid())
}
