// Package core implements the datastore: an append-only, log-structured
// key/value store with an in-memory keydir pointing at the latest value of
// every key.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/internal/datafile"
	"github.com/0xRadioAc7iv/caskdb/internal/keydir"
	"github.com/0xRadioAc7iv/caskdb/internal/lock"
	"github.com/0xRadioAc7iv/caskdb/internal/record"
	"github.com/0xRadioAc7iv/caskdb/internal/recovery"
)

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
	stateClosing
)

type cacheKey struct {
	fileID uint64
	offset int64
}

// Datastore is an open data directory. All methods are safe for concurrent
// use. Writes are serialized; reads run in parallel with each other and with
// writes.
type Datastore struct {
	path     string
	opts     options
	logger   *zap.Logger
	observer Observer

	// writeMu serializes Insert, Delete, Sync, rotation and Close.
	writeMu sync.Mutex

	// mu guards state, files and active. Get holds it shared for the whole
	// read so Close cannot release a file under it.
	mu     sync.RWMutex
	state  state
	files  map[uint64]*datafile.DataFile
	active *datafile.DataFile

	keydir   keydir.Keydir
	shadowed *keydir.Map // keys whose newest record is corrupt
	cache    *lru.Cache
	dirLock  *lock.DirLock
	recovery RecoveryStats
}

// Open validates path, replays every data file in it and creates a fresh
// active file. The directory must already exist.
func Open(path string, opts ...Option) (*Datastore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Datastore{
		path:     path,
		opts:     o,
		logger:   o.logger.With(zap.String("dir", path)),
		observer: o.observer,
		state:    stateOpening,
	}

	if err := d.open(); err != nil {
		d.release()
		d.state = stateClosed
		return nil, err
	}

	d.state = stateOpen
	d.logger.Info("Datastore opened",
		zap.String("active", filepath.Base(d.active.Path())),
		zap.Int("files", len(d.files)),
		zap.Int("keys", d.keydir.Len()),
		zap.Int("corrupt_records", d.recovery.CorruptRecords),
		zap.Int("truncated_files", d.recovery.TruncatedFiles),
		zap.Duration("recovery", d.recovery.Duration))

	return d, nil
}

func (d *Datastore) open() error {
	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNonExistentDatastore, d.path)
		}
		return ioError("stat", d.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNonDirectoryDatastore, d.path)
	}

	kd, err := keydir.New(d.opts.keydirKind)
	if err != nil {
		return err
	}
	d.keydir = kd

	if d.opts.valueCacheEntries > 0 {
		cache, err := lru.New(d.opts.valueCacheEntries)
		if err != nil {
			return fmt.Errorf("value cache: %w", err)
		}
		d.cache = cache
	}

	if d.opts.lockDirectory {
		l, err := lock.Acquire(d.path)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				return fmt.Errorf("%w: %s", ErrDirectoryLocked, d.path)
			}
			return ioError("lock", d.path, err)
		}
		d.dirLock = l
	}

	res, err := recovery.Run(d.path, d.keydir, d.logger)
	if err != nil {
		return ioError("recover", d.path, err)
	}
	d.recovery = res.Stats
	d.shadowed = res.Shadowed
	d.files = make(map[uint64]*datafile.DataFile, len(res.Files)+1)
	for _, df := range res.Files {
		d.files[df.ID()] = df
	}

	for _, c := range res.Stats.Corruptions {
		d.logger.Warn("Skipped corrupt record",
			zap.String("file", filepath.Base(c.File)),
			zap.Int64("offset", c.Offset),
			zap.Int64("size", c.Size))
	}
	for _, t := range res.Stats.Truncations {
		d.logger.Warn("Ignored truncated tail",
			zap.String("file", filepath.Base(t.File)),
			zap.Int64("offset", t.Offset),
			zap.Int64("bytes", t.Remaining))
	}
	d.observer.OnRecovery(res.Stats)

	active, err := d.createActive()
	if err != nil {
		return err
	}
	d.files[active.ID()] = active
	d.active = active

	return nil
}

// release closes whatever a failed Open or a Close left behind.
func (d *Datastore) release() error {
	var err error
	for _, id := range d.ids() {
		df := d.files[id]
		if cerr := df.Close(); cerr != nil {
			err = multierr.Append(err, ioError("close", df.Path(), cerr))
		}
	}
	d.files = nil
	d.active = nil

	if d.cache != nil {
		d.cache.Purge()
	}

	if d.dirLock != nil {
		if lerr := d.dirLock.Release(); lerr != nil {
			err = multierr.Append(err, ioError("unlock", d.dirLock.Path(), lerr))
		}
		d.dirLock = nil
	}
	return err
}

func (d *Datastore) ids() []uint64 {
	return slices.Sorted(maps.Keys(d.files))
}

func (d *Datastore) createActive() (*datafile.DataFile, error) {
	df, err := datafile.CreateNext(d.path, d.opts.clock(), d.ids())
	if err != nil {
		if errors.Is(err, datafile.ErrCollision) {
			return nil, fmt.Errorf("%w: %w", ErrActiveFileCollision, err)
		}
		return nil, ioError("create", d.path, err)
	}
	return df, nil
}

// Get returns the latest value stored for key. A missing key is reported
// with ok false and a nil error. If the stored record no longer matches its
// checksum the error wraps ErrCorruptRecord.
func (d *Datastore) Get(key []byte) (value []byte, ok bool, err error) {
	start := time.Now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateOpen {
		return nil, false, ErrDatastoreClosed
	}

	entry, found := d.keydir.Get(key)
	if !found {
		if e, shadowed := d.shadowed.Get(key); shadowed {
			// The record is rechecked so the error names where it lives.
			_, err = d.read(key, e)
			if err == nil {
				err = fmt.Errorf("%w: newest record for %q", ErrCorruptRecord, key)
			}
			d.observer.OnOperation(OpGet, outcomeOf(err), 0, time.Since(start))
			return nil, false, err
		}
		d.observer.OnOperation(OpGet, OutcomeMiss, 0, time.Since(start))
		return nil, false, nil
	}

	ck := cacheKey{fileID: entry.FileID, offset: entry.ValueOffset}
	if d.cache != nil {
		if v, hit := d.cache.Get(ck); hit {
			value = bytes.Clone(v.([]byte))
			d.observer.OnOperation(OpGet, OutcomeOK, len(value), time.Since(start))
			return value, true, nil
		}
	}

	value, err = d.read(key, entry)
	if err != nil {
		d.observer.OnOperation(OpGet, outcomeOf(err), 0, time.Since(start))
		return nil, false, err
	}

	if d.cache != nil {
		d.cache.Add(ck, bytes.Clone(value))
	}
	d.observer.OnOperation(OpGet, OutcomeOK, len(value), time.Since(start))
	return value, true, nil
}

func outcomeOf(err error) Outcome {
	if errors.Is(err, ErrCorruptRecord) {
		return OutcomeCorrupt
	}
	return OutcomeError
}

// read loads and verifies the whole record behind entry. Callers hold mu.
func (d *Datastore) read(key []byte, entry keydir.Entry) ([]byte, error) {
	df, ok := d.files[entry.FileID]
	if !ok {
		return nil, ioError("read", filepath.Join(d.path, datafile.Name(entry.FileID)), fs.ErrNotExist)
	}

	offset := entry.ValueOffset - record.HeaderSize - int64(len(key))
	size := record.HeaderSize + len(key) + int(entry.ValueSize)

	buf, err := df.ReadAt(offset, size)
	if err != nil {
		return nil, ioError("read", df.Path(), err)
	}

	rec, err := record.Decode(buf)
	if err == nil && !bytes.Equal(rec.Key, key) {
		err = ErrCorruptRecord
	}
	if err != nil {
		d.observer.OnCorruptRead(df.Path(), offset)
		d.logger.Warn("Corrupt record on read",
			zap.String("file", filepath.Base(df.Path())),
			zap.Int64("offset", offset),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s at offset %d", ErrCorruptRecord, filepath.Base(df.Path()), offset)
	}

	return rec.Value, nil
}

// Insert durably appends value as the new value of key. When Insert returns
// nil the record has been fsynced and Get observes it.
func (d *Datastore) Insert(key, value []byte) error {
	start := time.Now()

	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}
	if uint64(len(value)) > record.MaxFieldSize {
		return ErrValueTooLarge
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if !d.isOpen() {
		return ErrDatastoreClosed
	}

	ts := d.opts.clock().UnixNano()
	buf := record.Encode(ts, key, value)

	df, offset, err := d.append(buf)
	if err != nil {
		d.observer.OnOperation(OpInsert, OutcomeError, 0, time.Since(start))
		return err
	}

	d.keydir.Put(key, keydir.Entry{
		FileID:      df.ID(),
		ValueSize:   uint32(len(value)),
		ValueOffset: offset + record.HeaderSize + int64(len(key)),
		Timestamp:   ts,
	})
	d.shadowed.Remove(key)

	d.observer.OnOperation(OpInsert, OutcomeOK, len(buf), time.Since(start))
	return nil
}

// Delete appends a tombstone for key and drops it from the keydir. Deleting
// an absent key writes nothing and returns nil. A key whose newest record is
// corrupt is not absent: the tombstone clears it for good.
func (d *Datastore) Delete(key []byte) error {
	start := time.Now()

	if err := validateKey(key); err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if !d.isOpen() {
		return ErrDatastoreClosed
	}

	_, live := d.keydir.Get(key)
	_, shadowed := d.shadowed.Get(key)
	if !live && !shadowed {
		d.observer.OnOperation(OpDelete, OutcomeMiss, 0, time.Since(start))
		return nil
	}

	buf := record.EncodeTombstone(d.opts.clock().UnixNano(), key)
	if _, _, err := d.append(buf); err != nil {
		d.observer.OnOperation(OpDelete, OutcomeError, 0, time.Since(start))
		return err
	}
	d.keydir.Remove(key)
	d.shadowed.Remove(key)

	d.observer.OnOperation(OpDelete, OutcomeOK, len(buf), time.Since(start))
	return nil
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if uint64(len(key)) > record.MaxFieldSize {
		return ErrKeyTooLarge
	}
	return nil
}

func (d *Datastore) isOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == stateOpen
}

// append writes buf to the active file, rotating first when needed. Callers
// hold writeMu.
func (d *Datastore) append(buf []byte) (*datafile.DataFile, int64, error) {
	if err := d.rotateIfNeeded(int64(len(buf))); err != nil {
		return nil, 0, err
	}

	df := d.active
	offset, err := df.Append(buf)
	if err != nil {
		if df.Broken() {
			d.logger.Error("Append failed, active file will be replaced",
				zap.String("file", filepath.Base(df.Path())),
				zap.Error(err))
		}
		return nil, 0, ioError("append", df.Path(), err)
	}
	return df, offset, nil
}

func (d *Datastore) rotateIfNeeded(n int64) error {
	old := d.active
	if !old.Broken() && !d.full(old, n) {
		return nil
	}

	next, err := d.createActive()
	if err != nil {
		return err
	}

	if err := old.Seal(); err != nil {
		d.logger.Warn("Sync on seal failed",
			zap.String("file", filepath.Base(old.Path())),
			zap.Error(err))
	}

	d.mu.Lock()
	d.files[next.ID()] = next
	d.active = next
	d.mu.Unlock()

	d.logger.Info("Rotated active data file",
		zap.String("from", filepath.Base(old.Path())),
		zap.String("to", filepath.Base(next.Path())),
		zap.Int64("sealed_size", old.Size()))
	d.observer.OnRotate(old.Path(), next.Path())
	return nil
}

// full reports whether appending n bytes would take df past the size limit.
// An empty file always takes the write.
func (d *Datastore) full(df *datafile.DataFile, n int64) bool {
	limit := d.opts.maxDatafileSize
	return limit > 0 && df.Size() > 0 && df.Size()+n > limit
}

// Has reports whether key currently has a value.
func (d *Datastore) Has(key []byte) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateOpen {
		return false, ErrDatastoreClosed
	}
	_, ok := d.keydir.Get(key)
	return ok, nil
}

// Len returns the number of live keys.
func (d *Datastore) Len() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateOpen {
		return 0, ErrDatastoreClosed
	}
	return d.keydir.Len(), nil
}

// Keys returns every live key. The order depends on the keydir
// implementation.
func (d *Datastore) Keys() ([][]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateOpen {
		return nil, ErrDatastoreClosed
	}
	return d.keydir.Keys(), nil
}

// Fold calls fn with every live key and its value. Keys deleted after the
// walk started are skipped. The first error from fn or from a read stops the
// walk and is returned.
func (d *Datastore) Fold(fn func(key, value []byte) error) error {
	keys, err := d.Keys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		value, ok, err := d.Get(key)
		if err != nil {
			return fmt.Errorf("fold %q: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes the active file. Insert and Delete already sync before
// returning, so this only matters after an external writer touched the file.
func (d *Datastore) Sync() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if !d.isOpen() {
		return ErrDatastoreClosed
	}
	if err := d.active.Sync(); err != nil {
		return ioError("sync", d.active.Path(), err)
	}
	return nil
}

// RecoveryStats returns what Open found while replaying the directory.
func (d *Datastore) RecoveryStats() RecoveryStats {
	return d.recovery
}

// Path returns the directory the datastore was opened on.
func (d *Datastore) Path() string {
	return d.path
}

// ActiveFile returns the path of the file currently taking writes, or an
// empty string once closed.
func (d *Datastore) ActiveFile() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.active == nil {
		return ""
	}
	return d.active.Path()
}

// Close flushes the active file and releases every handle and the directory
// lock. Calls after the first return ErrDatastoreClosed.
func (d *Datastore) Close() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateOpen {
		return ErrDatastoreClosed
	}
	d.state = stateClosing

	// Closing a writable data file syncs it first.
	err := d.release()

	d.state = stateClosed
	if err != nil {
		d.logger.Error("Datastore closed with errors", zap.Error(err))
	} else {
		d.logger.Info("Datastore closed")
	}
	return err
}
