package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStartAsyncRejectsDuplicate(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), nil)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, m.StartAsync("timeout:a", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	err := m.StartAsync("timeout:a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRunning)
	assert.True(t, m.Running("timeout:a"))
	assert.Equal(t, "Running jobs: timeout:a", m.Status())

	close(release)
	m.Wait()
	assert.False(t, m.Running("timeout:a"))
	assert.Equal(t, "No jobs are running.", m.Status())
}

func TestReporterSeesLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	var msgs []string
	m := NewManager(context.Background(), func(s string) {
		mu.Lock()
		msgs = append(msgs, s)
		mu.Unlock()
	})

	require.NoError(t, m.StartAsync("ok", func(context.Context) error { return nil }))
	m.Wait()
	require.NoError(t, m.StartAsync("bad", func(context.Context) error { return errors.New("nope") }))
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"running:ok", "done:ok", "running:bad", "error:bad:nope"}, msgs)
}

func TestPanicIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	var got string
	m := NewManager(context.Background(), func(s string) { got = s })
	require.NoError(t, m.StartAsync("p", func(context.Context) error { panic("kaboom") }))
	m.Wait()
	assert.Equal(t, "error:p:panic: kaboom", got)
	assert.Empty(t, m.List())
}

func TestStopCancelsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(context.Background(), nil)
	started := make(chan struct{})
	require.NoError(t, m.StartAsync("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started
	require.NoError(t, m.Stop("long"))
	m.Wait()

	assert.ErrorIs(t, m.Stop("long"), ErrNotRunning)
}
