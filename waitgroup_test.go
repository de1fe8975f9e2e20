package async

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitGroup_AddDoneAwait(t *testing.T) {
	var finished []int
	_, err := Run(func(t *Task) (any, error) {
		wg := NewWaitGroup()
		require.NoError(t, wg.Add(3))

		for i := 0; i < 3; i++ {
			i := i
			_, _ = Go(t, func(ct *Task) (any, error) {
				require.NoError(t, Sleep(ct, 0))
				finished = append(finished, i)
				return nil, wg.Done()
			})
		}

		require.NoError(t, wg.Await(t, 0))
		return nil, nil
	})
	require.NoError(t, err)
	require.Len(t, finished, 3)
}

func TestWaitGroup_RejectsNegative(t *testing.T) {
	wg := NewWaitGroup()
	err := wg.Add(-1)
	require.ErrorIs(t, err, ErrWaitGroupNegative)
	require.Equal(t, 0, wg.Count())
}

func TestWaitGroup_ReadyAtZero(t *testing.T) {
	wg := NewWaitGroup()
	require.True(t, wg.Ready())
	require.NoError(t, wg.Add(1))
	require.False(t, wg.Ready())
	require.NoError(t, wg.Done())
	require.True(t, wg.Ready())
}
