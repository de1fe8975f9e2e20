package async

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannel_RendezvousProducerConsumer(t *testing.T) {
	var got []int
	_, err := Run(func(t *Task) (any, error) {
		r, w, cerr := NewChannel(t, 0)
		require.NoError(t, cerr)

		producer, _ := Go(t, func(ct *Task) (any, error) {
			for i := 0; i < 3; i++ {
				require.NoError(t, w.Write(ct, i))
			}
			w.Close()
			return nil, nil
		})

		consumer, _ := Go(t, func(ct *Task) (any, error) {
			for {
				v, ok, rerr := r.Read(ct)
				if rerr != nil {
					return nil, rerr
				}
				if !ok {
					return nil, nil
				}
				got = append(got, v.(int))
			}
		})

		_, perr := Await(t, producer, 0)
		require.NoError(t, perr)
		_, cerr2 := Await(t, consumer, 0)
		require.NoError(t, cerr2)
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestChannel_BufferedCapacity(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		r, w, cerr := NewChannel(t, 2)
		require.NoError(t, cerr)

		writer, _ := Go(t, func(ct *Task) (any, error) {
			require.NoError(t, w.Write(ct, "a"))
			require.NoError(t, w.Write(ct, "b"))
			require.NoError(t, w.Write(ct, "c"))
			w.Close()
			return nil, nil
		})

		reader, _ := Go(t, func(ct *Task) (any, error) {
			var out []string
			for {
				v, ok, rerr := r.Read(ct)
				if rerr != nil || !ok {
					return out, rerr
				}
				out = append(out, v.(string))
			}
		})

		_, werr := Await(t, writer, 0)
		require.NoError(t, werr)
		v, rerr := Await(t, reader, 0)
		require.NoError(t, rerr)
		require.Equal(t, []string{"a", "b", "c"}, v)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestChannel_UnactivatedCreatorSoleUse(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		r, w, cerr := NewChannel(t, 1)
		require.NoError(t, cerr)

		werr := w.Write(t, "x")
		require.ErrorIs(t, werr, ErrChannelUnactivated)

		w.Activate()
		require.NoError(t, w.Write(t, "x"))

		r.Activate()
		v, ok, rerr := r.Read(t)
		require.NoError(t, rerr)
		require.True(t, ok)
		require.Equal(t, "x", v)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestChannel_WriteAfterReaderClosedIsUnreachable(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		r, w, _ := NewChannel(t, 1)
		w.Activate()
		r.Activate()
		r.Close()

		werr := w.Write(t, "x")
		require.ErrorIs(t, werr, ErrChannelUnreachable)
		return nil, nil
	})
	require.NoError(t, err)
}

func TestChannel_SelectableReadiness(t *testing.T) {
	_, err := Run(func(t *Task) (any, error) {
		r, w, _ := NewChannel(t, 1)
		w.Activate()
		r.Activate()

		require.False(t, r.Ready())
		require.True(t, w.Ready())

		require.NoError(t, w.Write(t, 1))
		require.True(t, r.Ready())
		return nil, nil
	})
	require.NoError(t, err)
}
