// Package tests exercises end-to-end scenarios against the public async
// API only. Absolute durations are scaled down from their natural
// wall-clock figures (100ms/200ms/1s) to keep the suite fast; the order
// of events between durations — and so the properties under test — is
// preserved, though not every ratio is.
package tests

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/async"
)

const scale = 20 * time.Millisecond

func TestScenario_TwoTimedTasksSelect(t *testing.T) {
	_, err := async.Run(func(t *async.Task) (any, error) {
		slow, _ := async.Go(t, func(ct *async.Task) (any, error) {
			require.NoError(t, async.Sleep(ct, 2*scale))
			return 1, nil
		})
		fast, _ := async.Go(t, func(ct *async.Task) (any, error) {
			require.NoError(t, async.Sleep(ct, scale))
			return 2, nil
		})

		winner, serr := async.Select(t, []async.Selectable{slow, fast}, 0)
		require.NoError(t, serr)
		require.Same(t, fast, winner)

		v1, aerr := async.Await(t, fast, 0)
		require.NoError(t, aerr)
		require.Equal(t, 2, v1)

		v2, aerr2 := async.Await(t, fast, 0)
		require.NoError(t, aerr2)
		require.Equal(t, 2, v2)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScenario_ChannelProducerConsumer(t *testing.T) {
	var seen []int
	var readerErr error
	_, err := async.Run(func(t *async.Task) (any, error) {
		r, w, cerr := async.NewChannel(t, 0)
		require.NoError(t, cerr)

		producer, _ := async.Go(t, func(ct *async.Task) (any, error) {
			for _, v := range []int{1, 2, 3} {
				require.NoError(t, w.Write(ct, v))
			}
			w.Close()
			return nil, nil
		})
		consumer, _ := async.Go(t, func(ct *async.Task) (any, error) {
			for {
				v, ok, rerr := r.Read(ct)
				if rerr != nil {
					return nil, rerr
				}
				if !ok {
					return nil, nil
				}
				seen = append(seen, v.(int))
			}
		})

		_, perr := async.Await(t, producer, 0)
		require.NoError(t, perr)
		_, readerErr = async.Await(t, consumer, 0)
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, readerErr)
	require.Equal(t, []int{1, 2, 3}, seen)
}

func TestScenario_WaitGroupOfThree(t *testing.T) {
	start := time.Now()
	_, err := async.Run(func(t *async.Task) (any, error) {
		wg := async.NewWaitGroup()
		require.NoError(t, wg.Add(3))
		for i := 1; i <= 3; i++ {
			i := i
			_, _ = async.Go(t, func(ct *async.Task) (any, error) {
				require.NoError(t, async.Sleep(ct, time.Duration(i)*scale))
				return nil, wg.Done()
			})
		}
		require.NoError(t, wg.Await(t, 0))
		require.Equal(t, 0, wg.Count())
		return nil, nil
	})
	require.NoError(t, err)
	require.True(t, time.Since(start) >= 3*scale)
}

func TestScenario_RateLimitTenPerSecondWithBurst(t *testing.T) {
	_, err := async.Run(func(t *async.Task) (any, error) {
		rl, rlErr := async.NewRateLimiter(10, 5)
		require.NoError(t, rlErr)
		start := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(t, 0))
		}
		burstElapsed := time.Since(start)
		require.Less(t, burstElapsed, 200*time.Millisecond)

		for i := 0; i < 5; i++ {
			require.NoError(t, rl.Wait(t, 0))
		}
		require.True(t, time.Since(start) >= 400*time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScenario_CancellationWithCleanup(t *testing.T) {
	var counter int
	_, err := async.Run(func(t *async.Task) (any, error) {
		child, _ := async.Go(t, func(ct *async.Task) (any, error) {
			for i := 0; i < 3; i++ {
				counter++
				if serr := async.Sleep(ct, 10*scale); serr != nil {
					return nil, serr
				}
			}
			return nil, nil
		})
		require.NoError(t, async.Sleep(t, scale/4))
		require.NoError(t, async.Cancel(child, nil))

		_, aerr := async.Await(t, child, 0)
		require.ErrorIs(t, aerr, async.ErrCancelled)
		require.Equal(t, 1, counter)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScenario_CancellationCaughtAndContinued(t *testing.T) {
	var counter int
	_, err := async.Run(func(t *async.Task) (any, error) {
		child, _ := async.Go(t, func(ct *async.Task) (any, error) {
			for i := 0; i < 3; i++ {
				counter++
				if serr := async.Sleep(ct, 10*scale); serr != nil {
					if errors.Is(serr, async.ErrCancelled) {
						counter *= -1
						if serr2 := async.Sleep(ct, scale); serr2 != nil {
							return nil, serr2
						}
						return nil, nil
					}
					return nil, serr
				}
			}
			return nil, nil
		})
		require.NoError(t, async.Sleep(t, scale/4))
		require.NoError(t, async.Cancel(child, nil))

		_, aerr := async.Await(t, child, 0)
		require.NoError(t, aerr)
		require.Equal(t, -1, counter)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScenario_StringBufferFramingWithDeadman(t *testing.T) {
	_, err := async.Run(func(t *async.Task) (any, error) {
		buf := async.NewStringBuffer()

		producer, _ := async.Go(t, func(ct *async.Task) (any, error) {
			ds := buf.GetDeadmanSwitch()
			_ = ds
			require.NoError(t, buf.Write("hello"))
			// Returns without ever calling End — once this task's
			// goroutine (and its hold on ds) is unreachable, the
			// finalizer should fail the buffer.
			return nil, nil
		})
		_, perr := async.Await(t, producer, 0)
		require.NoError(t, perr)

		// Nudge collection along for up to a few hundred milliseconds;
		// the finalizer runs on its own goroutine and posts the failure
		// through a driver microtask, so this task must keep yielding
		// for that microtask to actually get drained.
		gcPump, _ := async.Go(t, func(ct *async.Task) (any, error) {
			for i := 0; i < 15; i++ {
				runtime.GC()
				if serr := async.Sleep(ct, scale); serr != nil {
					return nil, serr
				}
			}
			return nil, nil
		})

		reader, _ := async.Go(t, func(ct *async.Task) (any, error) {
			first, ok, rerr := buf.ReadFixed(ct, 5, 0)
			if rerr != nil {
				return nil, rerr
			}
			if !ok {
				return nil, errors.New("unexpected short read")
			}

			// Bound the wait for the deadman failure instead of calling
			// the blocking ReadFixed directly, so this scenario cannot
			// hang Run() even if collection is slow to happen.
			ready, serr := async.Select(ct, []async.Selectable{buf}, 15*scale)
			if serr != nil {
				return nil, serr
			}
			if ready == nil {
				return nil, errors.New("deadman switch never fired")
			}
			_, _, rerr2 := buf.ReadFixed(ct, 10, 0)
			return first, rerr2
		})

		_, gerr := async.Await(t, gcPump, 0)
		require.NoError(t, gerr)

		v, rerr := async.Await(t, reader, 0)
		require.Equal(t, "hello", v)
		require.ErrorIs(t, rerr, async.ErrDeadman)
		return nil, nil
	})
	require.NoError(t, err)
}
