package counterstore_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/healthd/internal/counterstore"
	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "persist", "battery")
	s, err := counterstore.NewFileStore(dir)
	require.NoError(t, err)

	_, ok, err := s.Load("qcom_cycle_counts_bins")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Store("qcom_cycle_counts_bins", []byte("1 2 3 4 5 6 7 8")))
	require.NoError(t, s.Store("qcom_cycle_counts_bins", []byte("2 2 3 4 5 6 7 8")))

	v, ok, err := s.Load("qcom_cycle_counts_bins")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2 2 3 4 5 6 7 8", string(v))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_InvalidKey(t *testing.T) {
	s, err := counterstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "a/b"} {
		err := s.Store(key, []byte("1"))
		require.Error(t, err, key)
		assert.Equal(t, counterstore.ErrInvalidKey, errors.CodeOf(err))
	}
}

func TestFileStore_ReadErrorIsPersistenceUnavailable(t *testing.T) {
	dir := t.TempDir()
	s, err := counterstore.NewFileStore(dir)
	require.NoError(t, err)

	// a directory where a value file should be cannot be read as a file
	require.NoError(t, os.Mkdir(filepath.Join(dir, "capacity"), 0o755))

	_, _, err = s.Load("capacity")
	require.Error(t, err)
	assert.Equal(t, errors.ErrPersistenceUnavailable, errors.CodeOf(err))
}

func TestSQLiteStore_Upsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")
	s, err := counterstore.NewSQLiteStore(path)
	require.NoError(t, err)

	_, ok, err := s.Load("learned_capacity")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Store("learned_capacity", []byte("3000000")))
	require.NoError(t, s.Store("learned_capacity", []byte("3100000")))

	v, ok, err := s.Load("learned_capacity")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3100000", string(v))
	require.NoError(t, s.Close())

	reopened, err := counterstore.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	v, ok, err = reopened.Load("learned_capacity")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3100000", string(v))
}

func TestAsyncStore_FlushOnClose(t *testing.T) {
	mem := counterstore.NewMemoryStore()
	s := counterstore.NewAsyncStore(mem, time.Hour, logger.Nop())

	require.NoError(t, s.Store("bins", []byte("1")))
	require.NoError(t, s.Store("bins", []byte("2")))

	v, ok, err := s.Load("bins")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", string(v))

	require.NoError(t, s.Close())

	v, ok, err = mem.Load("bins")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", string(v))
	assert.Equal(t, 0, s.Pending())

	err = s.Store("bins", []byte("3"))
	assert.Equal(t, counterstore.ErrStoreClosed, errors.CodeOf(err))
}

func TestAsyncStore_ExposesFailure(t *testing.T) {
	mem := counterstore.NewMemoryStore()
	boom := stderrors.New("persist partition read-only")
	mem.FailWith(boom)

	s := counterstore.NewAsyncStore(mem, 10*time.Millisecond, logger.Nop())
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Store("capacity", []byte("3000000")))

	require.Eventually(t, func() bool {
		return s.LastError() != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Pending(), "failed value stays pending for retry")

	mem.FailWith(nil)
	require.Eventually(t, func() bool {
		return s.LastError() == nil && s.Pending() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mem.Writes())
}
