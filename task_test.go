package async

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsValue(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestRun_ReturnsOwnFailure(t *testing.T) {
	sentinel := errors.New("boom")
	_, err := Run(func(t *Task) (any, error) {
		return nil, sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestRun_EscalatesUnobservedChildFailure(t *testing.T) {
	sentinel := errors.New("child failed")
	_, err := Run(func(t *Task) (any, error) {
		_, gerr := Go(t, func(ct *Task) (any, error) {
			return nil, sentinel
		})
		require.NoError(t, gerr)
		// Deliberately never Await the child: its failure should
		// escalate to Run instead of vanishing.
		return nil, nil
	})
	require.ErrorIs(t, err, sentinel)
}

func TestExtractTaskID_IdentifiesFailingTask(t *testing.T) {
	sentinel := errors.New("child failed")
	var childID uint64
	_, err := Run(func(t *Task) (any, error) {
		child, gerr := Go(t, func(ct *Task) (any, error) {
			return nil, sentinel
		})
		require.NoError(t, gerr)
		childID = child.ID()
		_, awaitErr := Await(t, child, 0)
		return nil, awaitErr
	})
	require.ErrorIs(t, err, sentinel)
	id, ok := ExtractTaskID(err)
	require.True(t, ok)
	require.Equal(t, childID, id)
}

func TestAwait_ObservedFailureDoesNotEscalate(t *testing.T) {
	sentinel := errors.New("observed")
	v, err := Run(func(t *Task) (any, error) {
		child, gerr := Go(t, func(ct *Task) (any, error) {
			return nil, sentinel
		})
		require.NoError(t, gerr)
		_, awaitErr := Await(t, child, 0)
		require.ErrorIs(t, awaitErr, sentinel)
		return "root-ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "root-ok", v)
}

func TestGo_OutsideTaskFails(t *testing.T) {
	_, err := Go(nil, func(ct *Task) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrOutsideTask)
}

func TestAwait_SelfAwaitFails(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		_, awaitErr := Await(t, t, 0)
		require.ErrorIs(t, awaitErr, ErrSelfAwait)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestSleep_ThenResume(t *testing.T) {
	v, err := Run(func(t *Task) (any, error) {
		require.NoError(t, Sleep(t, 0))
		return "slept", nil
	})
	require.NoError(t, err)
	require.Equal(t, "slept", v)
}

func TestYield_ReordersAfterSiblings(t *testing.T) {
	var order []int
	_, err := Run(func(t *Task) (any, error) {
		a, _ := Go(t, func(ct *Task) (any, error) {
			require.NoError(t, Yield(ct))
			order = append(order, 1)
			return nil, nil
		})
		b, _ := Go(t, func(ct *Task) (any, error) {
			order = append(order, 2)
			return nil, nil
		})
		_, _ = Await(t, a, 0)
		_, _ = Await(t, b, 0)
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, order)
}
