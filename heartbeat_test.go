package pulse

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/pulse/internal/shm"
	pulsetest "github.com/arloliu/pulse/testing"
	"github.com/arloliu/pulse/timesource"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		WindowSize:  4,
		BufferDepth: 16,
		EnabledDir:  t.TempDir(),
		ShmDir:      t.TempDir(),
	}
}

func TestNew(t *testing.T) {
	t.Run("creates shared artifacts", func(t *testing.T) {
		cfg := testConfig(t)

		hb, err := New(cfg, WithLogger(pulsetest.NewTestLogger(t)))
		require.NoError(t, err)
		defer hb.Close()

		pid := os.Getpid()

		_, err = os.Stat(filepath.Join(cfg.EnabledDir, strconv.Itoa(pid)))
		require.NoError(t, err, "marker file must exist")

		_, err = os.Stat(shm.StatePath(cfg.ShmDir, pid))
		require.NoError(t, err, "state region must exist")

		_, err = os.Stat(shm.LogPath(cfg.ShmDir, pid))
		require.NoError(t, err, "log region must exist")

		st := hb.state.State()
		require.Equal(t, int64(pid), st.Pid)
		require.Equal(t, cfg.WindowSize, st.WindowSize)
		require.Equal(t, cfg.BufferDepth, st.BufferDepth)
		require.Zero(t, st.Valid, "state is not valid before the first beat")
	})

	t.Run("rejects invalid configuration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WindowSize = -1

		_, err := New(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)

		cfg = testConfig(t)
		cfg.BufferDepth = -1

		_, err = New(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("fails without enabled directory and leaves nothing behind", func(t *testing.T) {
		t.Setenv(EnvEnabledDir, "")

		cfg := testConfig(t)
		cfg.EnabledDir = ""

		_, err := New(cfg)
		require.ErrorIs(t, err, ErrEnabledDirNotSet)

		// The state region allocated before the failure must be torn down.
		_, err = os.Stat(shm.StatePath(cfg.ShmDir, os.Getpid()))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("fails for missing enabled directory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.EnabledDir = filepath.Join(cfg.EnabledDir, "does-not-exist")

		_, err := New(cfg)
		require.ErrorIs(t, err, ErrEnabledDirMissing)
	})

	t.Run("falls back to environment variable", func(t *testing.T) {
		enabledDir := t.TempDir()
		t.Setenv(EnvEnabledDir, enabledDir)

		cfg := testConfig(t)
		cfg.EnabledDir = ""

		hb, err := New(cfg)
		require.NoError(t, err)
		defer hb.Close()

		_, err = os.Stat(filepath.Join(enabledDir, strconv.Itoa(os.Getpid())))
		require.NoError(t, err)
	})

	t.Run("fails for unwritable log path and tears down", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogPath = filepath.Join(cfg.ShmDir, "missing", "hb.log")

		_, err := New(cfg)
		require.Error(t, err)

		_, err = os.Stat(shm.StatePath(cfg.ShmDir, os.Getpid()))
		require.True(t, os.IsNotExist(err))
	})
}

func TestHeartbeat_Beat(t *testing.T) {
	t.Run("first beat establishes origin with zero rates", func(t *testing.T) {
		cfg := testConfig(t)
		src := pulsetest.NewScriptedSource(5_000_000_000)

		hb, err := New(cfg, WithTimeSource(src))
		require.NoError(t, err)
		defer hb.Close()

		now := hb.Beat(7)
		require.Equal(t, int64(5_000_000_000), now)

		st := hb.state.State()
		require.Equal(t, int64(1), st.Counter)
		require.Equal(t, int64(1), st.BufferIndex)
		require.Equal(t, int64(1), st.Valid)

		rec := hb.log.Records()[0]
		require.Equal(t, int64(0), rec.Beat)
		require.Equal(t, int64(7), rec.Tag)
		require.Equal(t, int64(5_000_000_000), rec.Timestamp)
		require.Zero(t, rec.GlobalRate)
		require.Zero(t, rec.WindowRate)
		require.Zero(t, rec.InstantRate)
	})

	t.Run("beat values are sequential without gaps", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BufferDepth = 64

		times := make([]int64, 0, 50)
		for i := int64(0); i < 50; i++ {
			times = append(times, i*100_000_000)
		}

		hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(times...)))
		require.NoError(t, err)
		defer hb.Close()

		for i := 0; i < 50; i++ {
			hb.Beat(1)
		}

		require.Equal(t, int64(50), hb.state.State().Counter)

		recs := hb.log.Records()
		for i := int64(0); i < 50; i++ {
			require.Equal(t, i, recs[i].Beat, "beat %d", i)
		}
	})

	t.Run("steady interval converges to expected rates", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WindowSize = 4
		cfg.BufferDepth = 64

		// One beat every 250ms => 4 beats/sec.
		times := make([]int64, 0, 20)
		for i := int64(0); i < 20; i++ {
			times = append(times, i*250_000_000)
		}

		hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(times...)))
		require.NoError(t, err)
		defer hb.Close()

		for i := 0; i < 20; i++ {
			hb.Beat(1)
		}

		rec := hb.log.Records()[19]
		require.InDelta(t, 4.0, rec.InstantRate, 1e-6)
		require.InDelta(t, 4.0, rec.WindowRate, 1e-6)
	})

	t.Run("ring wraps every bufferDepth beats", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BufferDepth = 4

		times := make([]int64, 0, 13)
		for i := int64(0); i < 13; i++ {
			times = append(times, i*1_000_000_000)
		}

		hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(times...)))
		require.NoError(t, err)
		defer hb.Close()

		st := hb.state.State()
		for i := 0; i < 13; i++ {
			hb.Beat(1)
			require.Less(t, st.BufferIndex, cfg.BufferDepth)
			require.GreaterOrEqual(t, st.BufferIndex, int64(0))
		}

		// 13 beats with depth 4: index wrapped at beats 4, 8, 12.
		require.Equal(t, int64(1), st.BufferIndex)
		require.Equal(t, int64(13), st.Counter)
	})

	t.Run("identical timestamps yield infinite rates without crashing", func(t *testing.T) {
		cfg := testConfig(t)

		hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(1_000, 1_000)))
		require.NoError(t, err)
		defer hb.Close()

		hb.Beat(1)
		hb.Beat(1)

		rec := hb.log.Records()[1]
		require.True(t, math.IsInf(rec.InstantRate, 1))
		require.True(t, math.IsInf(rec.WindowRate, 1))
	})

	t.Run("malformed time source degrades to zero timestamp", func(t *testing.T) {
		cfg := testConfig(t)

		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

		src, err := timesource.Open(path)
		require.NoError(t, err)

		hb, err := New(cfg, WithTimeSource(src), WithLogger(pulsetest.NewTestLogger(t)))
		require.NoError(t, err)
		defer hb.Close()

		now := hb.Beat(1)
		require.Zero(t, now)
		require.Equal(t, int64(1), hb.state.State().Counter)
	})

	t.Run("beat on closed handle is ignored", func(t *testing.T) {
		cfg := testConfig(t)

		hb, err := New(cfg, WithLogger(pulsetest.NewTestLogger(t)))
		require.NoError(t, err)
		require.NoError(t, hb.Close())

		require.Zero(t, hb.Beat(1))
	})
}

func TestHeartbeat_EndToEnd(t *testing.T) {
	// The canonical scenario: window 4, depth 2, text log, two beats one
	// second apart.
	cfg := testConfig(t)
	cfg.WindowSize = 4
	cfg.BufferDepth = 2
	cfg.LogPath = filepath.Join(t.TempDir(), "x.log")

	hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(0, 1_000_000_000)))
	require.NoError(t, err)
	defer hb.Close()

	now := hb.Beat(1)
	require.Zero(t, now)

	rec := hb.log.Records()[0]
	require.Zero(t, rec.GlobalRate)
	require.Zero(t, rec.WindowRate)
	require.Zero(t, rec.InstantRate)

	now = hb.Beat(2)
	require.Equal(t, int64(1_000_000_000), now)

	st := hb.state.State()
	require.Zero(t, st.BufferIndex, "ring wrapped after depth beats")

	rec = hb.log.Records()[1]
	require.InDelta(t, 1.0, rec.InstantRate, 1e-9)
	require.InDelta(t, 1.0, rec.WindowRate, 1e-9)
	// Two recorded beats over one second of elapsed time.
	require.InDelta(t, 2.0, rec.GlobalRate, 1e-9)

	data, err := os.ReadFile(cfg.LogPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "header plus two flushed records")
	require.True(t, strings.HasPrefix(lines[0], "Beat\tTag\t"))
	require.True(t, strings.HasPrefix(lines[1], "0\t1\t0\t"))
	require.True(t, strings.HasPrefix(lines[2], "1\t2\t1000000000\t"))
}

func TestHeartbeat_ConcurrentBeats(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferDepth = 256

	hb, err := New(cfg)
	require.NoError(t, err)
	defer hb.Close()

	const goroutines = 4
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(tag int64) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				hb.Beat(tag)
			}
		}(int64(g))
	}
	wg.Wait()

	const total = goroutines * perGoroutine
	require.Equal(t, int64(total), hb.state.State().Counter)

	// Every beat value landed exactly once, in slot order.
	recs := hb.log.Records()
	for i := int64(0); i < total; i++ {
		require.Equal(t, i, recs[i].Beat)
	}
}

func TestHeartbeat_Snapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinRate = 0.5
	cfg.MaxRate = 9.5

	hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(0, 500_000_000)))
	require.NoError(t, err)
	defer hb.Close()

	snap := hb.Snapshot()
	require.False(t, snap.Valid)
	require.InDelta(t, 0.5, snap.MinRate, 1e-9)

	hb.Beat(3)
	hb.Beat(4)

	snap = hb.Snapshot()
	require.True(t, snap.Valid)
	require.Equal(t, int64(1), snap.Beat)
	require.Equal(t, int64(4), snap.Tag)
	require.Equal(t, int64(2), snap.Count)
	require.InDelta(t, 2.0, snap.InstantRate, 1e-9)
}

func TestHeartbeat_Close(t *testing.T) {
	t.Run("removes shared artifacts", func(t *testing.T) {
		cfg := testConfig(t)

		hb, err := New(cfg)
		require.NoError(t, err)

		pid := os.Getpid()
		require.NoError(t, hb.Close())

		_, err = os.Stat(filepath.Join(cfg.EnabledDir, strconv.Itoa(pid)))
		require.True(t, os.IsNotExist(err), "marker file removed")

		_, err = os.Stat(shm.StatePath(cfg.ShmDir, pid))
		require.True(t, os.IsNotExist(err), "state region removed")

		_, err = os.Stat(shm.LogPath(cfg.ShmDir, pid))
		require.True(t, os.IsNotExist(err), "log region removed")
	})

	t.Run("is idempotent", func(t *testing.T) {
		hb, err := New(testConfig(t))
		require.NoError(t, err)

		require.NoError(t, hb.Close())
		require.NoError(t, hb.Close())
	})

	t.Run("flushes pending records to the text log", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.BufferDepth = 16
		cfg.LogPath = filepath.Join(t.TempDir(), "hb.log")

		hb, err := New(cfg, WithTimeSource(pulsetest.NewScriptedSource(0, 1_000, 2_000)))
		require.NoError(t, err)

		hb.Beat(1)
		hb.Beat(1)
		hb.Beat(1)

		require.NoError(t, hb.Close())

		data, err := os.ReadFile(cfg.LogPath)
		require.NoError(t, err)
		require.Equal(t, 4, strings.Count(string(data), "\n"), "header plus three records")
	})

	t.Run("closes a closable time source", func(t *testing.T) {
		cfg := testConfig(t)

		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, []byte("123"), 0o644))

		src, err := timesource.Open(path)
		require.NoError(t, err)

		hb, err := New(cfg, WithTimeSource(src))
		require.NoError(t, err)
		require.NoError(t, hb.Close())

		// Second close of the source is a no-op, proving the handle
		// already closed it.
		require.NoError(t, src.Close())
	})
}
