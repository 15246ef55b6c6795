package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterExit(t *testing.T) {
	g := New()
	require.NoError(t, g.Enter(1, 0))
	status, count := g.Status()
	assert.Equal(t, Open, status)
	assert.Equal(t, uint32(1), count)
	g.Exit(1)
	_, count = g.Status()
	assert.Equal(t, uint32(0), count)
}

// TestLockPromotion: a thread that has entered may
// immediately close (promotion), and a second thread is refused entry
// until the first opens.
func TestLockPromotion(t *testing.T) {
	g := New()
	require.NoError(t, g.Enter(1, 0))
	require.NoError(t, g.Close(1, time.Second))

	err := g.Enter(2, 0)
	assert.Error(t, err)

	require.NoError(t, g.Open(1))
	require.NoError(t, g.Enter(2, time.Second))
}

func TestCloseWaitsForDrain(t *testing.T) {
	g := New()
	require.NoError(t, g.Enter(2, 0))

	done := make(chan error, 1)
	go func() {
		done <- g.Close(1, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	status, _ := g.Status()
	assert.Equal(t, Closing, status)

	g.Exit(2)
	require.NoError(t, <-done)

	status, _ = g.Status()
	assert.Equal(t, Closed, status)
}

func TestCloseTimeoutRollsBack(t *testing.T) {
	g := New()
	require.NoError(t, g.Enter(2, 0))

	err := g.Close(1, 20*time.Millisecond)
	assert.Error(t, err)

	status, _ := g.Status()
	assert.Equal(t, Open, status, "barEntry initiated by the timed-out Close must be rolled back")

	require.NoError(t, g.Enter(3, 0))
}

func TestImmediateTimeoutIsSingleAttempt(t *testing.T) {
	g := New()
	// another token holds the gate closed, so a zero-timeout Enter makes
	// one attempt and fails instead of waiting
	require.NoError(t, g.Close(2, time.Second))
	err := g.Enter(3, 0)
	assert.Error(t, err)
}

func TestDestroyOnlyByCloser(t *testing.T) {
	g := New()
	require.NoError(t, g.Close(1, time.Second))
	assert.Error(t, g.Destroy(2))
	require.NoError(t, g.Destroy(1))
	status, _ := g.Status()
	assert.Equal(t, Destroyed, status)
	assert.Error(t, g.Enter(3, 0))
}

func TestOpenByNonOwnerFails(t *testing.T) {
	g := New()
	require.NoError(t, g.Close(1, time.Second))
	assert.Error(t, g.Open(2))
}

func TestEnterCountNeverNegative(t *testing.T) {
	g := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Enter(Token(i), 0))
	}
	for i := 0; i < 10; i++ {
		g.Exit(Token(i))
		_, count := g.Status()
		assert.True(t, count >= 0)
	}
	_, count := g.Status()
	assert.Equal(t, uint32(0), count)
}
