package control

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseResume(t *testing.T) {
	c := New(nil)
	assert.True(t, c.Pause())
	assert.False(t, c.Pause())
	assert.True(t, c.Paused())
	assert.True(t, c.Resume())
	assert.False(t, c.Resume())
}

func TestWaitIfPausedReleasesOnResume(t *testing.T) {
	c := New(nil)
	c.poll = time.Millisecond
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("returned while paused")
	case <-time.After(20 * time.Millisecond):
	}
	c.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("still waiting after resume")
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(cancel)
	c.Stop()
	assert.ErrorIs(t, c.Sleep(ctx, time.Hour), context.Canceled)
}

func TestLoopCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(cancel)

	var out bytes.Buffer
	c.Loop(ctx, strings.NewReader("p\nP\nr\nx\ns\np\n"), &out)

	require.Error(t, ctx.Err())
	assert.False(t, c.Paused())
	assert.Equal(t, "Controls: [p]ause, [r]esume, [s]top\nPAUSED\nRESUMED\nSTOPPING\n", out.String())
}

func TestLoopEndsWithInput(t *testing.T) {
	c := New(nil)
	var out bytes.Buffer
	c.Loop(context.Background(), strings.NewReader("p\n"), &out)
	assert.True(t, c.Paused())
}
