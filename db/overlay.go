package db

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// ErrNotIterable is returned by Overlay.IteratePrefix when the base cannot iterate
var ErrNotIterable = errors.New("base provider does not support iteration")

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a base provider. Reads see the buffered writes first.
// Nothing reaches the base until Commit, so discarding an Overlay leaves the base untouched.
// An Overlay may sit on another Overlay; committing the child then only folds its writes
// into the parent. Not safe for concurrent use.
type Overlay struct {
	base   DatabaseProvider
	writes map[string]overlayEntry
}

// NewOverlay returns an empty overlay over base
func NewOverlay(base DatabaseProvider) *Overlay {
	return &Overlay{
		base:   base,
		writes: make(map[string]overlayEntry),
	}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if e, ok := o.writes[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return bytes.Clone(e.value), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, err := o.Get(key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			result[string(key)] = v
		}
	}
	return result, nil
}

func (o *Overlay) Put(key, value []byte) error {
	o.writes[string(key)] = overlayEntry{value: bytes.Clone(value)}
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	o.writes[string(key)] = overlayEntry{deleted: true}
	return nil
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if e, ok := o.writes[string(key)]; ok {
		return !e.deleted, nil
	}
	return o.base.Has(key)
}

// Close discards pending writes; the base stays open
func (o *Overlay) Close() error {
	o.Discard()
	return nil
}

// Batch returns a batch whose Write folds into this overlay
func (o *Overlay) Batch() DatabaseBatch {
	return &overlayBatch{target: o}
}

// IteratePrefix merges base entries with buffered writes, in key order
func (o *Overlay) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	iterable, ok := o.base.(IterableProvider)
	if !ok {
		return ErrNotIterable
	}

	merged := make(map[string][]byte)
	err := iterable.IteratePrefix(prefix, func(key, value []byte) bool {
		merged[string(key)] = bytes.Clone(value)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to iterate base: %w", err)
	}
	for k, e := range o.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if e.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = e.value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !callback([]byte(k), bytes.Clone(merged[k])) {
			break
		}
	}
	return nil
}

// Pending returns the number of buffered writes and deletes
func (o *Overlay) Pending() int {
	return len(o.writes)
}

// Commit flushes buffered writes to the base in one atomic batch
func (o *Overlay) Commit() error {
	if len(o.writes) == 0 {
		return nil
	}

	batch := o.base.Batch()
	defer batch.Close()

	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := o.writes[k]
		if e.deleted {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), e.value)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to commit overlay: %w", err)
	}
	o.Discard()
	return nil
}

// Discard drops every buffered write
func (o *Overlay) Discard() {
	o.writes = make(map[string]overlayEntry)
}

type overlayBatch struct {
	target *Overlay
	ops    []overlayOp
}

type overlayOp struct {
	key   []byte
	entry overlayEntry
}

func (b *overlayBatch) Put(key, value []byte) {
	b.ops = append(b.ops, overlayOp{key: bytes.Clone(key), entry: overlayEntry{value: bytes.Clone(value)}})
}

func (b *overlayBatch) Delete(key []byte) {
	b.ops = append(b.ops, overlayOp{key: bytes.Clone(key), entry: overlayEntry{deleted: true}})
}

func (b *overlayBatch) Write() error {
	for _, op := range b.ops {
		b.target.writes[string(op.key)] = op.entry
	}
	b.ops = nil
	return nil
}

func (b *overlayBatch) Reset() {
	b.ops = nil
}

func (b *overlayBatch) Close() error {
	b.ops = nil
	return nil
}
