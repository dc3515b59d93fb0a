package timesource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystem(t *testing.T) {
	src := System()

	a, err := src.Now()
	require.NoError(t, err)
	require.Positive(t, a)

	b, err := src.Now()
	require.NoError(t, err)
	require.GreaterOrEqual(t, b, a)
}

func TestFile_Now(t *testing.T) {
	t.Run("parses decimal content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, []byte("1234567890\n"), 0o644))

		src, err := Open(path)
		require.NoError(t, err)
		defer src.Close()

		now, err := src.Now()
		require.NoError(t, err)
		require.Equal(t, int64(1234567890), now)
	})

	t.Run("re-reads updated content each call", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, []byte("100"), 0o644))

		src, err := Open(path)
		require.NoError(t, err)
		defer src.Close()

		now, err := src.Now()
		require.NoError(t, err)
		require.Equal(t, int64(100), now)

		require.NoError(t, os.WriteFile(path, []byte("200"), 0o644))

		now, err = src.Now()
		require.NoError(t, err)
		require.Equal(t, int64(200), now)
	})

	t.Run("malformed content degrades to zero", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o644))

		src, err := Open(path)
		require.NoError(t, err)
		defer src.Close()

		now, err := src.Now()
		require.ErrorIs(t, err, ErrMalformed)
		require.Zero(t, now)
	})

	t.Run("empty file is malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pulse-time-0")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		src, err := Open(path)
		require.NoError(t, err)
		defer src.Close()

		_, err = src.Now()
		require.ErrorIs(t, err, ErrMalformed)
	})
}

func TestFile_Discover(t *testing.T) {
	t.Run("finds file by default pattern", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "pulse-time-42")
		require.NoError(t, os.WriteFile(path, []byte("7"), 0o644))

		src, err := Discover(dir, "")
		require.NoError(t, err)
		defer src.Close()

		require.Equal(t, path, src.Path())

		now, err := src.Now()
		require.NoError(t, err)
		require.Equal(t, int64(7), now)
	})

	t.Run("fails when nothing matches", func(t *testing.T) {
		_, err := Discover(t.TempDir(), "")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFile_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse-time-0")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))

	src, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
