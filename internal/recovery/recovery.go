// Package recovery rebuilds a keydir by replaying the data files of a
// datastore directory in write order.
package recovery

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/internal/datafile"
	"github.com/0xRadioAc7iv/caskdb/internal/keydir"
	"github.com/0xRadioAc7iv/caskdb/internal/record"
)

const readBufferSize = 64 * 1024

// Corruption describes a complete record whose checksum did not verify.
type Corruption struct {
	File   string
	Offset int64
	Size   int64
	Key    string // as stored; may itself be damaged
}

// Truncation describes the torn tail of a data file.
type Truncation struct {
	File      string
	Offset    int64 // where the incomplete record starts
	Remaining int64 // bytes left in the file from Offset
}

// Stats summarizes one recovery pass.
type Stats struct {
	FilesScanned      int
	RecordsReplayed   int // valid records applied, tombstones included
	TombstonesApplied int
	CorruptRecords    int
	TruncatedFiles    int
	BytesScanned      int64
	Duration          time.Duration
	Corruptions       []Corruption
	Truncations       []Truncation
}

// Result is what a recovery pass hands to the datastore.
type Result struct {
	// Files holds every data file in the directory, oldest first, opened
	// read-only. The caller owns them.
	Files []*datafile.DataFile
	// Shadowed maps keys whose newest record failed its checksum to that
	// record. Such keys are absent from the keydir: their older values must
	// not be served, and they must not appear as live keys.
	Shadowed *keydir.Map
	Stats    Stats
}

// IDs returns the ids of the recovered files in order.
func (r *Result) IDs() []uint64 {
	ids := make([]uint64, len(r.Files))
	for i, df := range r.Files {
		ids[i] = df.ID()
	}
	return ids
}

// Close releases every file handle in the result.
func (r *Result) Close() error {
	var err error
	for _, df := range r.Files {
		err = multierr.Append(err, df.Close())
	}
	return err
}

// Run replays every data file in dir into kd.
//
// Within a file, a record that does not fit in the remaining bytes is a torn
// write: scanning of that file stops there and the rest of the file is
// ignored. A complete record with a bad checksum is skipped and counted, and
// scanning continues after it. If its key was live at that point, the key is
// moved to Result.Shadowed until a later valid record or tombstone for it. Neither condition is an error. Errors are only
// returned for I/O failures, in which case no files are left open.
//
// Files are never modified.
func Run(dir string, kd keydir.Keydir, logger *zap.Logger) (*Result, error) {
	start := time.Now()

	ids, err := datafile.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list data files: %w", err)
	}

	res := &Result{
		Files:    make([]*datafile.DataFile, 0, len(ids)),
		Shadowed: keydir.NewMap(),
	}

	for _, id := range ids {
		df, err := datafile.Open(dir, id)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("open data file: %w", err), res.Close())
		}
		res.Files = append(res.Files, df)

		before := res.Stats
		if err := scanFile(df, kd, res.Shadowed, &res.Stats); err != nil {
			return nil, multierr.Append(fmt.Errorf("scan %s: %w", df.Path(), err), res.Close())
		}
		res.Stats.FilesScanned++

		logger.Debug("Replayed data file",
			zap.String("file", filepath.Base(df.Path())),
			zap.Int("records", res.Stats.RecordsReplayed-before.RecordsReplayed),
			zap.Int("corrupt", res.Stats.CorruptRecords-before.CorruptRecords),
			zap.Bool("truncated", res.Stats.TruncatedFiles > before.TruncatedFiles))
	}

	res.Stats.Duration = time.Since(start)
	return res, nil
}

func scanFile(df *datafile.DataFile, kd keydir.Keydir, shadowed *keydir.Map, stats *Stats) error {
	size := df.Size()
	r := bufio.NewReaderSize(df.NewReader(), readBufferSize)
	buf := make([]byte, record.HeaderSize)

	var offset int64
	for offset < size {
		remaining := size - offset

		if remaining < record.HeaderSize {
			stats.truncated(df, offset, remaining)
			break
		}

		if _, err := io.ReadFull(r, buf[:record.HeaderSize]); err != nil {
			return err
		}
		h, err := record.DecodeHeader(buf[:record.HeaderSize])
		if err != nil {
			return err
		}

		recordSize := h.RecordSize()
		if recordSize > remaining {
			stats.truncated(df, offset, remaining)
			break
		}

		if int64(cap(buf)) < recordSize {
			grown := make([]byte, recordSize)
			copy(grown, buf[:record.HeaderSize])
			buf = grown
		}
		buf = buf[:recordSize]
		if _, err := io.ReadFull(r, buf[record.HeaderSize:]); err != nil {
			return err
		}

		rec, err := record.Decode(buf)
		switch {
		case errors.Is(err, record.ErrCorruptRecord):
			key := buf[record.HeaderSize : record.HeaderSize+int64(h.KeySize)]
			stats.corrupt(df, offset, recordSize, key)

			shadow(kd, shadowed, key, entryFor(df, offset, h))
		case err != nil:
			return err
		case rec.IsTombstone():
			kd.Remove(rec.Key)
			shadowed.Remove(rec.Key)
			stats.RecordsReplayed++
			stats.TombstonesApplied++
		default:
			kd.Put(rec.Key, entryFor(df, offset, h))
			shadowed.Remove(rec.Key)
			stats.RecordsReplayed++
		}

		offset += recordSize
		stats.BytesScanned += recordSize
	}

	return nil
}

// shadow records a corrupt record for key. Only a key that is live, or already
// shadowed, is affected: the stored key bytes may themselves be damaged, and a
// flipped key must not bring a key into existence.
func shadow(kd keydir.Keydir, shadowed *keydir.Map, key []byte, e keydir.Entry) {
	if len(key) == 0 {
		return
	}
	if _, ok := kd.Get(key); ok {
		kd.Remove(key)
		shadowed.Put(key, e)
		return
	}
	if _, ok := shadowed.Get(key); ok {
		shadowed.Put(key, e)
	}
}

func entryFor(df *datafile.DataFile, offset int64, h record.Header) keydir.Entry {
	return keydir.Entry{
		FileID:      df.ID(),
		ValueSize:   h.ValueSize,
		ValueOffset: offset + record.HeaderSize + int64(h.KeySize),
		Timestamp:   h.Timestamp,
	}
}

func (s *Stats) truncated(df *datafile.DataFile, offset, remaining int64) {
	s.TruncatedFiles++
	s.Truncations = append(s.Truncations, Truncation{
		File:      df.Path(),
		Offset:    offset,
		Remaining: remaining,
	})
}

func (s *Stats) corrupt(df *datafile.DataFile, offset, size int64, key []byte) {
	s.CorruptRecords++
	s.Corruptions = append(s.Corruptions, Corruption{
		File:   df.Path(),
		Offset: offset,
		Size:   size,
		Key:    string(key),
	})
}
