// Package datafile implements the append-only segments a datastore writes its
// records into.
//
// A directory holds any number of data files named data<id>.dat, where id is
// the creation time in Unix seconds. Ids only grow, so ordering files by id
// orders them by write recency. Exactly one file per open datastore is
// writable; every other file is sealed and only ever read.
package datafile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	FilePrefix = "data"
	FileExt    = ".dat"
	FilePerm   = 0644

	// maxCreateAttempts bounds how many ids CreateNext tries before giving up.
	maxCreateAttempts = 16
)

var namePattern = regexp.MustCompile(`^data([0-9]+)\.dat$`)

var (
	// ErrCollision is returned when no unused name could be found for a new
	// data file.
	ErrCollision = errors.New("datafile: name already exists")

	// ErrSealed is returned when appending to a file that is not writable.
	ErrSealed = errors.New("datafile: file is sealed")

	// ErrOutOfRange is returned for reads that extend past the written data.
	ErrOutOfRange = errors.New("datafile: read outside written range")
)

// Name returns the file name for id.
func Name(id uint64) string {
	return FilePrefix + strconv.FormatUint(id, 10) + FileExt
}

// ParseName extracts the id from a data file name. Names that do not follow
// the data<id>.dat convention are rejected.
func ParseName(name string) (uint64, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// List returns the ids of the data files in dir, oldest first. Directories and
// files not matching the naming convention are skipped.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	ids := []uint64{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if id, ok := ParseName(entry.Name()); ok {
			ids = append(ids, id)
		}
	}

	// Numeric, not lexical: data99.dat is older than data100.dat.
	slices.Sort(ids)
	return ids, nil
}

// NextID picks the id for a new file: the current epoch second, or one past the
// newest existing id when the clock has not moved past it.
func NextID(now time.Time, existing []uint64) uint64 {
	id := uint64(0)
	if secs := now.Unix(); secs > 0 {
		id = uint64(secs)
	}
	if n := len(existing); n > 0 {
		if newest := slices.Max(existing); newest >= id {
			id = newest + 1
		}
	}
	return id
}

// DataFile is one append-only log segment.
type DataFile struct {
	id       uint64
	path     string
	fd       *os.File
	size     atomic.Int64 // end of the last complete append
	writable bool
	broken   atomic.Bool
}

// Create makes a new, empty, writable data file. It never opens an existing
// file; if the name is taken the error wraps both ErrCollision and
// fs.ErrExist.
func Create(dir string, id uint64) (*DataFile, error) {
	path := filepath.Join(dir, Name(id))

	fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, FilePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %w", ErrCollision, err)
		}
		return nil, err
	}

	return &DataFile{id: id, path: path, fd: fd, writable: true}, nil
}

// CreateNext creates the active file for a datastore whose directory already
// holds the files in existing. On a name collision it moves on to the next id.
func CreateNext(dir string, now time.Time, existing []uint64) (*DataFile, error) {
	id := NextID(now, existing)

	var lastErr error
	for i := 0; i < maxCreateAttempts; i++ {
		df, err := Create(dir, id)
		if err == nil {
			return df, nil
		}
		if !errors.Is(err, ErrCollision) {
			return nil, err
		}
		lastErr = err
		id++
	}

	return nil, lastErr
}

// Open opens an existing data file read-only.
func Open(dir string, id uint64) (*DataFile, error) {
	path := filepath.Join(dir, Name(id))

	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}

	df := &DataFile{id: id, path: path, fd: fd}
	df.size.Store(info.Size())
	return df, nil
}

func (df *DataFile) ID() uint64 { return df.id }

func (df *DataFile) Path() string { return df.path }

// Size is the number of bytes that have been durably appended.
func (df *DataFile) Size() int64 { return df.size.Load() }

// Writable reports whether Append is allowed.
func (df *DataFile) Writable() bool { return df.writable && !df.broken.Load() }

// Broken reports whether an append failed part way. A broken file accepts no
// more appends; its tail may hold a torn record.
func (df *DataFile) Broken() bool { return df.broken.Load() }

// Append writes buf at the end of the file and fsyncs before returning the
// offset buf was written at. Appends must be serialized by the caller.
//
// If the write or the sync fails the file is marked broken and Size does not
// move, so readers never see the partial record.
func (df *DataFile) Append(buf []byte) (int64, error) {
	if !df.Writable() {
		return 0, ErrSealed
	}

	offset := df.size.Load()

	n, err := df.fd.WriteAt(buf, offset)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		df.broken.Store(true)
		return 0, err
	}

	if err := df.fd.Sync(); err != nil {
		df.broken.Store(true)
		return 0, err
	}

	df.size.Add(int64(n))
	return offset, nil
}

// ReadAt reads exactly n bytes starting at offset. It is safe to call
// concurrently with Append: written bytes never change.
func (df *DataFile) ReadAt(offset int64, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+int64(n) > df.Size() {
		return nil, fmt.Errorf("%w: [%d, %d) in %s of size %d",
			ErrOutOfRange, offset, offset+int64(n), filepath.Base(df.path), df.Size())
	}

	buf := make([]byte, n)
	if _, err := df.fd.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// NewReader returns a sequential reader over everything written so far.
func (df *DataFile) NewReader() io.Reader {
	return io.NewSectionReader(df.fd, 0, df.Size())
}

// Sync flushes the file to stable storage.
func (df *DataFile) Sync() error {
	if !df.writable {
		return nil
	}
	return df.fd.Sync()
}

// Seal flushes the file and makes it read-only for the rest of its life.
func (df *DataFile) Seal() error {
	if !df.writable {
		return nil
	}
	err := df.fd.Sync()
	df.writable = false
	return err
}

// Close syncs a writable file and releases the handle.
func (df *DataFile) Close() error {
	var syncErr error
	if df.writable && !df.broken.Load() {
		syncErr = df.fd.Sync()
	}
	df.writable = false

	if err := df.fd.Close(); err != nil {
		return err
	}
	return syncErr
}
