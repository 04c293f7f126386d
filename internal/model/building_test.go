package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAdvance_ForwardOnly(t *testing.T) {
	assert.True(t, StatePending.CanAdvance(StateApproved))
	assert.True(t, StateApproved.CanAdvance(StateContactResolving))
	assert.True(t, StateContactResolving.CanAdvance(StateContactFound))
	assert.True(t, StateContactFound.CanAdvance(StateEmailSent))
	assert.True(t, StateEmailSent.CanAdvance(StateReplyReceived))

	assert.False(t, StateApproved.CanAdvance(StatePending))
	assert.False(t, StateEmailSent.CanAdvance(StateContactFound))
	assert.False(t, StateReplyReceived.CanAdvance(StateEmailSent))
}

func TestCanAdvance_SkippingStagesIsAllowed(t *testing.T) {
	// A retry that already holds a contact goes straight to the send stage.
	assert.True(t, StateApproved.CanAdvance(StateEmailSent))
	assert.True(t, StatePending.CanAdvance(StateReplyReceived))
}

func TestCanAdvance_ErroredIsAlwaysReachable(t *testing.T) {
	for _, s := range []BuildingState{
		StatePending, StateApproved, StateContactResolving,
		StateContactFound, StateEmailSent, StateReplyReceived,
	} {
		assert.True(t, s.CanAdvance(StateErrored), "from %s", s)
	}
	// Leaving errored goes through the manual retry path, not CanAdvance.
	assert.False(t, StateErrored.CanAdvance(StateApproved))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateContactFailed.Terminal())
	assert.True(t, StateReplyReceived.Terminal())
	assert.True(t, StateErrored.Terminal())
	assert.False(t, StateEmailSent.Terminal())
	assert.False(t, StatePending.Terminal())
}

func TestSetState_KeepsBooleansConsistent(t *testing.T) {
	b := &Building{State: StateContactFound}

	b.SetState(StateEmailSent)
	assert.True(t, b.EmailSent)
	assert.False(t, b.ReplyReceived)

	b.SetState(StateReplyReceived)
	assert.True(t, b.EmailSent)
	assert.True(t, b.ReplyReceived)
}

func TestAreaRequestValidate(t *testing.T) {
	valid := AreaRequest{North: 40.78, South: 40.77, East: -73.95, West: -73.97}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		area AreaRequest
	}{
		{"north below south", AreaRequest{North: 40.0, South: 41.0, East: -73.0, West: -74.0}},
		{"east below west", AreaRequest{North: 41.0, South: 40.0, East: -74.0, West: -73.0}},
		{"latitude out of range", AreaRequest{North: 95.0, South: 40.0, East: -73.0, West: -74.0}},
		{"longitude out of range", AreaRequest{North: 41.0, South: 40.0, East: 181.0, West: -74.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.area.Validate()
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}
