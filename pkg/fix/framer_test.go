package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameFixture(t *testing.T) []byte {
	t.Helper()
	return wire(t, "8=FIX.4.4|35=0|49=A|56=B|34=1|52=20231201-10:00:00")
}

func TestFramerWholeFrame(t *testing.T) {
	fr := NewFramer(0)
	raw := frameFixture(t)

	fr.Feed(raw)
	frame, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, raw, frame)

	// Nothing left.
	frame, err = fr.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestFramerSplitFeeds(t *testing.T) {
	fr := NewFramer(0)
	raw := frameFixture(t)

	// Deliver one byte at a time; the frame must pop out exactly once.
	var got []byte
	for _, b := range raw {
		fr.Feed([]byte{b})
		frame, err := fr.Next()
		require.NoError(t, err)
		if frame != nil {
			require.Nil(t, got, "frame yielded twice")
			got = frame
		}
	}
	assert.Equal(t, raw, got)
}

func TestFramerBackToBackFrames(t *testing.T) {
	fr := NewFramer(0)
	raw := frameFixture(t)

	fr.Feed(append(append([]byte{}, raw...), raw...))

	for i := 0; i < 2; i++ {
		frame, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, raw, frame, "frame %d", i)
	}
	frame, err := fr.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestFramerResync(t *testing.T) {
	fr := NewFramer(0)
	raw := frameFixture(t)

	t.Run("leading junk is skipped", func(t *testing.T) {
		fr.Feed([]byte("garbage bytes"))
		fr.Feed(raw)

		_, err := fr.Next()
		assert.ErrorIs(t, err, ErrBadFramePrefix)

		frame, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, raw, frame)
	})

	t.Run("non-numeric body length resyncs to next frame", func(t *testing.T) {
		fr := NewFramer(0)
		fr.Feed([]byte("8=FIX.4.4\x019=abc\x01"))
		fr.Feed(raw)

		_, err := fr.Next()
		assert.ErrorIs(t, err, ErrBadFramePrefix)

		frame, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, raw, frame)
	})

	t.Run("missing body length tag", func(t *testing.T) {
		fr := NewFramer(0)
		fr.Feed([]byte("8=FIX.4.4\x0135=0\x01"))
		fr.Feed(raw)

		_, err := fr.Next()
		assert.ErrorIs(t, err, ErrBadFramePrefix)

		frame, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, raw, frame)
	})
}

func TestFramerOversizedFrame(t *testing.T) {
	fr := NewFramer(64)
	fr.Feed([]byte("8=FIX.4.4\x019=5000\x01"))

	_, err := fr.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// The framer recovers for the next well-formed frame.
	small := frameFixture(t)
	if len(small) <= 64 {
		fr.Feed(small)
		frame, ferr := fr.Next()
		require.NoError(t, ferr)
		assert.Equal(t, small, frame)
	}
}

func TestFramerIncomplete(t *testing.T) {
	fr := NewFramer(0)
	raw := frameFixture(t)

	fr.Feed(raw[:len(raw)-3])
	frame, err := fr.Next()
	require.NoError(t, err)
	assert.Nil(t, frame)

	fr.Feed(raw[len(raw)-3:])
	frame, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, raw, frame)
}
