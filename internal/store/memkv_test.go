package store

import (
	"bytes"
	"sort"

	dbm "github.com/cometbft/cometbft-db"
)

// memKV is a minimal in-memory KV used only by this package's tests, so
// the repository logic can be exercised without an on-disk goleveldb
// instance.
type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memKV) Set(key, value []byte) error {
	m.data[string(key)] = value
	return nil
}

func (m *memKV) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *memKV) Iterator(start, end []byte) (dbm.Iterator, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		kb := []byte(k)
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memIterator{kv: m, keys: keys, pos: 0}, nil
}

type memIterator struct {
	kv   *memKV
	keys []string
	pos  int
}

func (it *memIterator) Domain() ([]byte, []byte) { return nil, nil }
func (it *memIterator) Valid() bool              { return it.pos < len(it.keys) }
func (it *memIterator) Next()                    { it.pos++ }
func (it *memIterator) Key() []byte              { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte            { return it.kv.data[it.keys[it.pos]] }
func (it *memIterator) Error() error             { return nil }
func (it *memIterator) Close() error             { return nil }
