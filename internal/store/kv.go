package store

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KV is the minimal key-value contract the deposit repository needs, so
// any dbm.DB-compatible backend can be swapped in underneath it.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Iterator(start, end []byte) (dbm.Iterator, error)
}

// dbmKV adapts any cometbft-db dbm.DB backend to KV. goleveldb keeps its
// own write-ahead log, giving each party a single crash-consistent store
// file without requiring an external database server (see DESIGN.md for
// why a Postgres-backed store was not used here).
type dbmKV struct {
	db dbm.DB
}

// Open opens (or creates) a goleveldb-backed store directory for one party.
func Open(dataDir string) (KV, error) {
	db, err := dbm.NewGoLevelDB("deposits", dataDir)
	if err != nil {
		return nil, err
	}
	return &dbmKV{db: db}, nil
}

// OpenMemory returns a process-local, non-persistent KV backend, useful
// for tests and for exercising the repository without a data directory.
func OpenMemory() KV {
	return &dbmKV{db: dbm.NewMemDB()}
}

func (k *dbmKV) Get(key []byte) ([]byte, error) {
	return k.db.Get(key)
}

func (k *dbmKV) Set(key, value []byte) error {
	return k.db.SetSync(key, value)
}

func (k *dbmKV) Delete(key []byte) error {
	return k.db.Delete(key)
}

func (k *dbmKV) Iterator(start, end []byte) (dbm.Iterator, error) {
	return k.db.Iterator(start, end)
}
