package async

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_ActivateOnlyOnce(t *testing.T) {
	ctx := newContext()
	require.NoError(t, ctx.activate())
	require.ErrorIs(t, ctx.activate(), ErrContextReactivate)
}

func TestContext_EscalateFirstFailureWins(t *testing.T) {
	ctx := newContext()
	first := errors.New("first")
	second := errors.New("second")

	ctx.escalate(first)
	ctx.escalate(second)

	require.ErrorIs(t, ctx.takeException(), first)
	require.NotErrorIs(t, ctx.takeException(), second)
}

func TestContext_EscalateNilIsNoop(t *testing.T) {
	ctx := newContext()
	ctx.escalate(nil)
	require.NoError(t, ctx.takeException())
}

func TestContext_MemberCountTracksAddAndTerminate(t *testing.T) {
	ctx := newContext()
	task := &Task{}
	ctx.addMember(task)
	require.Equal(t, 1, ctx.memberCount())
	ctx.memberTerminated(task)
	require.Equal(t, 0, ctx.memberCount())
}
