package tables_test

import (
	"bytes"
	"sync"

	"github.com/luxfi/database"

	"github.com/luxfi/dwallet-consensus/epoch/tables"
)

// fakeDB is a minimal in-memory tables.KVStore, standing in for a real
// github.com/luxfi/database.Database handle in tests.
type fakeDB struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeDB() *fakeDB {
	return &fakeDB{data: make(map[string][]byte)}
}

func (f *fakeDB) key(k []byte) string { return string(k) }

func (f *fakeDB) Has(key []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[f.key(key)]
	return ok, nil
}

func (f *fakeDB) Get(key []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[f.key(key)]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (f *fakeDB) Put(key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	f.data[f.key(key)] = cp
	return nil
}

func (f *fakeDB) Delete(key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, f.key(key))
	return nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) NewBatch() tables.WriteBatch {
	return &fakeBatch{db: f}
}

type fakeOp struct {
	key    []byte
	value  []byte
	delete bool
}

// fakeBatch buffers ops and applies them to db only on Write, matching
// the atomicity contract the real database.Batch provides.
type fakeBatch struct {
	db  *fakeDB
	ops []fakeOp
}

func (b *fakeBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, fakeOp{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (b *fakeBatch) Delete(key []byte) error {
	b.ops = append(b.ops, fakeOp{key: bytes.Clone(key), delete: true})
	return nil
}

func (b *fakeBatch) Size() int { return len(b.ops) }

func (b *fakeBatch) Write() error {
	for _, op := range b.ops {
		if op.delete {
			_ = b.db.Delete(op.key)
		} else {
			_ = b.db.Put(op.key, op.value)
		}
	}
	return nil
}
