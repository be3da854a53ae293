package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/ringcache/pkg"
)

func TestNewServer(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantID  string
		wantErr error
	}{
		{name: "valid id", id: "server-1", wantID: "server-1"},
		{name: "id is trimmed", id: "  server-1  ", wantID: "server-1"},
		{name: "empty id", id: "", wantErr: pkg.ErrEmptyServerID},
		{name: "blank id", id: "   ", wantErr: pkg.ErrEmptyServerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, srv.ID())
			assert.Equal(t, tt.wantID, srv.RingID())
			assert.True(t, srv.IsActive())
			assert.Equal(t, 0, srv.Size())
		})
	}
}

func TestServerPutGetRemove(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	prev, err := srv.Put("key1", []byte("v1"))
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = srv.Put("key1", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), prev)

	value, err := srv.Get("key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)

	contains, err := srv.Contains("key1")
	require.NoError(t, err)
	assert.True(t, contains)

	removed, err := srv.Remove("key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), removed)

	removed, err = srv.Remove("key1")
	require.NoError(t, err)
	assert.Nil(t, removed)

	_, err = srv.Get("key1")
	assert.ErrorIs(t, err, pkg.ErrKeyNotFound)
}

func TestServerEmptyKey(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	_, err = srv.Get("")
	assert.ErrorIs(t, err, pkg.ErrEmptyKey)
	_, err = srv.Put("", []byte("v"))
	assert.ErrorIs(t, err, pkg.ErrEmptyKey)
	_, err = srv.Remove("")
	assert.ErrorIs(t, err, pkg.ErrEmptyKey)
	_, err = srv.Contains("")
	assert.ErrorIs(t, err, pkg.ErrEmptyKey)
}

func TestServerValueIsolation(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	in := []byte("original")
	_, err = srv.Put("key", in)
	require.NoError(t, err)

	// Mutating the caller's slice must not reach the stored copy.
	in[0] = 'X'

	out, err := srv.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), out)

	// Nor must mutating a returned value.
	out[0] = 'Y'
	again, err := srv.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestServerInactive(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	_, err = srv.Put("key", []byte("v"))
	require.NoError(t, err)

	srv.Deactivate()
	assert.False(t, srv.IsActive())

	_, err = srv.Get("key")
	assert.ErrorIs(t, err, pkg.ErrServerUnavailable)
	_, err = srv.Put("key", []byte("v2"))
	assert.ErrorIs(t, err, pkg.ErrServerUnavailable)
	_, err = srv.Remove("key")
	assert.ErrorIs(t, err, pkg.ErrServerUnavailable)
	_, err = srv.Contains("key")
	assert.ErrorIs(t, err, pkg.ErrServerUnavailable)
	_, err = srv.Keys()
	assert.ErrorIs(t, err, pkg.ErrServerUnavailable)
	assert.ErrorIs(t, srv.Clear(), pkg.ErrServerUnavailable)

	// Size and IsActive keep working while the server is down.
	assert.Equal(t, 1, srv.Size())

	srv.Activate()
	value, err := srv.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value, "data survives a simulated outage")
}

func TestServerKeysSnapshot(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	want := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, err := srv.Put(key, []byte("v"))
		require.NoError(t, err)
		want = append(want, key)
	}

	keys, err := srv.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func TestServerMetrics(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	_, err = srv.Put("key1", []byte("v"))
	require.NoError(t, err)

	_, err = srv.Get("key1") // hit
	require.NoError(t, err)
	_, err = srv.Get("key1") // hit
	require.NoError(t, err)
	_, err = srv.Get("missing") // miss
	assert.ErrorIs(t, err, pkg.ErrKeyNotFound)

	stats := srv.Stats()
	assert.Equal(t, "server-1", stats.ServerID)
	assert.True(t, stats.Active)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Requests)
	assert.Equal(t, 1, stats.Keys)
	assert.InDelta(t, 66.66, stats.HitRate, 0.1)
	assert.GreaterOrEqual(t, stats.Uptime, time.Duration(0))

	srv.ResetMetrics()
	stats = srv.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Zero(t, stats.Requests)
	assert.Zero(t, stats.HitRate)
	assert.Equal(t, 1, stats.Keys, "reset only touches counters, not data")
}

func TestServerClear(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := srv.Put(fmt.Sprintf("key-%d", i), []byte("v"))
		require.NoError(t, err)
	}
	require.Equal(t, 5, srv.Size())

	require.NoError(t, srv.Clear())
	assert.Equal(t, 0, srv.Size())
}

func TestServerConcurrentAccess(t *testing.T) {
	srv, err := NewServer("server-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				_, err := srv.Put(key, []byte("v"))
				assert.NoError(t, err)
				_, err = srv.Get(key)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, srv.Size())
	assert.Equal(t, int64(800), srv.Stats().Hits)
}
