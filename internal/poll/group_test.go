package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_StartStopScopesChannels(t *testing.T) {
	var a, b atomic.Int64
	g := NewGroup()
	chA := NewChannel("a", hour, func(context.Context) (int64, error) { return a.Add(1), nil }, Options{})
	chB := NewChannel("b", hour, func(context.Context) (int64, error) { return b.Add(1), nil }, Options{})
	require.NoError(t, g.Add(chA))
	require.NoError(t, g.Start(context.Background()))
	// added after start: starts immediately
	require.NoError(t, g.Add(chB))

	require.Eventually(t, func() bool {
		return chA.Snapshot().HasValue && chB.Snapshot().HasValue
	}, 2*time.Second, 5*time.Millisecond)

	waitClosed(t, g.RefreshAll())
	assert.EqualValues(t, 2, a.Load())
	assert.EqualValues(t, 2, b.Load())

	statuses := g.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Name)
	assert.Equal(t, "b", statuses[1].Name)

	g.Stop()
	assert.ErrorIs(t, g.Start(context.Background()), ErrStopped)
	assert.ErrorIs(t, g.Add(NewChannel("c", hour, func(context.Context) (int, error) { return 0, nil }, Options{})), ErrStopped)

	// stopped channels answer refreshes immediately and never fetch again
	waitClosed(t, g.RefreshAll())
	assert.EqualValues(t, 2, a.Load())
}
