package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()

	level, err := NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(dir, "ledger.bolt"), nil)
	require.NoError(t, err)
	sql, err := NewSQLDB(BackendSQLite, fmt.Sprintf("file:%s?cache=shared", filepath.Join(dir, "ledger.sqlite")))
	require.NoError(t, err)

	dbs := map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
		"sqlite":  sql,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	})
	return dbs
}

func TestDatabaseGetPutDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			require.NoError(t, db.Put([]byte("k"), []byte("v2")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), got)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabaseBatchIsApplied(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("gone"), []byte("x")))

			batch := NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("gone"))
			require.Equal(t, 3, batch.Len())
			require.NoError(t, db.Write(batch))

			got, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), got)
			got, err = db.Get([]byte("b"))
			require.NoError(t, err)
			require.Equal(t, []byte("2"), got)
			_, err = db.Get([]byte("gone"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabaseIteratePrefix(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("loan/b"), []byte("2")))
			require.NoError(t, db.Put([]byte("loan/a"), []byte("1")))
			require.NoError(t, db.Put([]byte("loam"), []byte("x")))
			require.NoError(t, db.Put([]byte("other/a"), []byte("y")))

			var keys []string
			require.NoError(t, db.Iterate([]byte("loan/"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return true
			}))
			require.Equal(t, []string{"loan/a", "loan/b"}, keys)

			var first []string
			require.NoError(t, db.Iterate([]byte("loan/"), func(key, value []byte) bool {
				first = append(first, string(key))
				return false
			}))
			require.Len(t, first, 1)
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", "somewhere")
	require.Error(t, err)

	db, err := Open(BackendMemory, "")
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
