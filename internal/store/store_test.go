package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordScanHead(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordScanHead(100, 1))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM scan_heads WHERE serial = ?`, 100).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecordScanHeadRejectsDuplicateSerial(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordScanHead(100, 1))
	err := s.RecordScanHead(100, 2)
	assert.Error(t, err)
}

func TestRecordConnectAttempt(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordConnectAttempt(1, 3, 3, true))

	var heads, connected int
	var succeeded bool
	row := s.db.QueryRow(`SELECT heads_total, heads_connected, succeeded FROM connect_attempts LIMIT 1`)
	require.NoError(t, row.Scan(&heads, &connected, &succeeded))
	assert.Equal(t, 3, heads)
	assert.Equal(t, 3, connected)
	assert.True(t, succeeded)
}

func TestRecordHeadConfigUpserts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordHeadConfig(100, map[string]int{"laser_on_def_us": 100}))
	require.NoError(t, s.RecordHeadConfig(100, map[string]int{"laser_on_def_us": 200}))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM scan_head_config`).Scan(&count))
	assert.Equal(t, 1, count)

	var blob string
	require.NoError(t, s.db.QueryRow(`SELECT json_blob FROM scan_head_config WHERE serial = ?`, 100).Scan(&blob))
	assert.Contains(t, blob, "200")
}

func TestOpenAppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}
