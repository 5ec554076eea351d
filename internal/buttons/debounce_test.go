package buttons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestShortGlitchProducesNoEdge(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	for step := 0; step < 4; step++ {
		assert.False(t, d.Poll(Select, false, t0.Add(ms(step*10))))
	}
	for step := 4; step < 20; step++ {
		assert.False(t, d.Poll(Select, true, t0.Add(ms(step*10))))
	}
	assert.False(t, d.State(Select).Pressed())
}

func TestStablePressProducesExactlyOneEdge(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	edges := 0
	for step := 0; step <= 30; step++ {
		if d.Poll(Down, false, t0.Add(ms(step*5))) {
			edges++
		}
	}
	require.Equal(t, 1, edges)
	assert.True(t, d.State(Down).Pressed())
}

func TestEdgeAcceptedAtWindowBoundary(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	assert.False(t, d.Poll(Up, false, t0))
	assert.False(t, d.Poll(Up, false, t0.Add(ms(49))))
	assert.True(t, d.Poll(Up, false, t0.Add(ms(50))))
}

func TestJustPressedClearedOnNextPoll(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	d.Poll(Back, false, t0)
	require.True(t, d.Poll(Back, false, t0.Add(ms(60))))
	require.True(t, d.JustPressed(Back))

	d.Poll(Back, false, t0.Add(ms(70)))
	assert.False(t, d.JustPressed(Back))
}

func TestReleaseDoesNotEmitEdge(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	d.Poll(Select, false, t0)
	require.True(t, d.Poll(Select, false, t0.Add(ms(50))))

	assert.False(t, d.Poll(Select, true, t0.Add(ms(100))))
	assert.False(t, d.Poll(Select, true, t0.Add(ms(160))))
	assert.False(t, d.State(Select).Pressed())
	assert.False(t, d.AnyPressed())
}

func TestSecondPressAfterReleaseEmitsAgain(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	d.Poll(Select, false, t0)
	require.True(t, d.Poll(Select, false, t0.Add(ms(50))))
	d.Poll(Select, true, t0.Add(ms(100)))
	d.Poll(Select, true, t0.Add(ms(150)))
	d.Poll(Select, false, t0.Add(ms(200)))
	assert.True(t, d.Poll(Select, false, t0.Add(ms(250))))
}

func TestPollAllReportsPriorityEdge(t *testing.T) {
	d := New(DefaultWindow)
	t0 := time.Unix(1000, 0)

	levels := Released()
	levels[Up] = false
	levels[Back] = false
	d.PollAll(levels, t0)
	edges := d.PollAll(levels, t0.Add(ms(50)))

	id, ok := edges.First()
	require.True(t, ok)
	assert.Equal(t, Back, id)
	assert.True(t, edges[Up])
	assert.True(t, d.AnyPressed())
}

func TestNewFallsBackToDefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, New(0).Window())
	assert.Equal(t, "select", Select.String())
}
