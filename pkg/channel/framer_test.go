package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSentinel = "<<<END>>>"

func TestFramerSplitsOnSentinel(t *testing.T) {
	f := NewFramer(testSentinel)

	_, _ = f.Write([]byte(`{"status":"ok"}`))
	_, ok := f.Next()
	assert.False(t, ok, "no sentinel yet")

	_, _ = f.Write([]byte(testSentinel + `{"status":"ne`))
	frame, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, `{"status":"ok"}`, string(frame))
	assert.Equal(t, `{"status":"ne`, string(f.Buffered()), "leftover is kept for the next frame")

	_, ok = f.Next()
	assert.False(t, ok)
}

func TestFramerPartialSentinel(t *testing.T) {
	f := NewFramer(testSentinel)

	_, _ = f.Write([]byte(`{"a":1}<<<EN`))
	_, ok := f.Next()
	assert.False(t, ok, "a split sentinel must not terminate the frame")

	_, _ = f.Write([]byte(`D>>>`))
	frame, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(frame))
	assert.Empty(t, f.Buffered())
}

func TestFramerMultipleFramesInOneChunk(t *testing.T) {
	f := NewFramer(testSentinel)
	_, _ = f.Write([]byte(`{"n":1}` + testSentinel + `{"n":2}` + testSentinel + "tail"))

	var frames []string
	for {
		frame, ok := f.Next()
		if !ok {
			break
		}
		frames = append(frames, string(frame))
	}

	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, frames)
	assert.Equal(t, "tail", string(f.Buffered()))

	f.Reset()
	assert.Empty(t, f.Buffered())
}

func TestFramerFrameIsACopy(t *testing.T) {
	f := NewFramer(testSentinel)
	_, _ = f.Write([]byte(`{"n":1}` + testSentinel))
	frame, ok := f.Next()
	require.True(t, ok)

	_, _ = f.Write([]byte(`XXXXXXX`))
	assert.Equal(t, `{"n":1}`, string(frame))
}
