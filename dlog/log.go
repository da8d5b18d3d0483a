// Package dlog implements the append-only, length-prefixed record log
// with a CRC-32/IEEE sidecar described in spec §4.1. It knows nothing
// about the payloads it stores; block-metadata and latest-message
// semantics live one layer up, in metastore and latestmsg.
package dlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

const lengthPrefixSize = 4

// Log is a framed record file: `u32_length_le ‖ payload` repeated, with
// an optional CRC-32/IEEE sidecar over the concatenation of all
// payloads. A Log opened with OpenMemory has no backing files at all,
// letting metastore and latestmsg share identical code between their
// in-memory and persistent variants (spec §9).
type Log struct {
	logPath string
	crcPath string
	file    *os.File

	crc     uint32
	records [][]byte
	offsets []int64 // offsets[i] = byte offset immediately after record i
}

// OpenMemory returns an empty, non-persistent Log.
func OpenMemory() *Log {
	return &Log{}
}

// Open opens (or creates) the framed log at logPath with CRC sidecar at
// crcPath. Truncated or garbled trailing bytes are tolerated per §4.1:
// the file is truncated to the last known-good record boundary and the
// sidecar is recomputed from the surviving records. A log with no
// recoverable records at all starts empty rather than failing to open.
func Open(logPath, crcPath string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("dlog: create dir for %s: %w", logPath, err)
	}

	raw, err := os.ReadFile(logPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("dlog: read %s: %w", logPath, err)
	}

	records, offsets, goodLen := scanFrames(raw)

	if goodLen != int64(len(raw)) {
		if err := os.Truncate(logPath, goodLen); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("dlog: truncate %s: %w", logPath, err)
		}
	}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dlog: open %s: %w", logPath, err)
	}

	l := &Log{
		logPath: logPath,
		crcPath: crcPath,
		file:    f,
		records: records,
		offsets: offsets,
		crc:     foldCRC(records),
	}
	if err := l.writeSidecar(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// scanFrames parses as many complete frames as possible from raw,
// stopping (without error) at the first length prefix that cannot be
// fully read or whose declared payload does not fit in the remaining
// bytes. goodLen is the byte offset just past the last complete frame.
func scanFrames(raw []byte) (records [][]byte, offsets []int64, goodLen int64) {
	pos := 0
	for {
		if pos+lengthPrefixSize > len(raw) {
			break
		}
		n := binary.LittleEndian.Uint32(raw[pos : pos+lengthPrefixSize])
		start := pos + lengthPrefixSize
		end := start + int(n)
		if end > len(raw) || end < start {
			break
		}
		payload := append([]byte(nil), raw[start:end]...)
		records = append(records, payload)
		pos = end
		offsets = append(offsets, int64(pos))
	}
	return records, offsets, int64(pos)
}

func foldCRC(records [][]byte) uint32 {
	var crc uint32
	for _, r := range records {
		crc = crc32.Update(crc, crc32.IEEETable, r)
	}
	return crc
}

func (l *Log) writeSidecar() error {
	if l.crcPath == "" {
		return nil
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], l.crc)
	tmp := l.crcPath + ".tmp"
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return fmt.Errorf("dlog: write sidecar tmp: %w", err)
	}
	if err := os.Rename(tmp, l.crcPath); err != nil {
		return fmt.Errorf("dlog: rename sidecar: %w", err)
	}
	return nil
}

// Records returns the payloads currently held by the log, in append
// order. The returned slice must not be mutated.
func (l *Log) Records() [][]byte {
	return l.records
}

// CRC32 returns the current CRC-32/IEEE over every payload's bytes, in
// append order.
func (l *Log) CRC32() uint32 {
	return l.crc
}

// Append writes a new framed record and, for persistent logs, fsyncs it
// and rewrites the CRC sidecar before returning. Any filesystem error
// leaves the Log's in-memory state unchanged (the caller must not treat
// the append as having happened).
func (l *Log) Append(payload []byte) error {
	if l.file != nil {
		var prefix [lengthPrefixSize]byte
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
		if _, err := l.file.Write(prefix[:]); err != nil {
			return fmt.Errorf("dlog: write length prefix: %w", err)
		}
		if _, err := l.file.Write(payload); err != nil {
			return fmt.Errorf("dlog: write payload: %w", err)
		}
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("dlog: sync: %w", err)
		}
	}

	prevRecords, prevOffsets, prevCRC := l.records, l.offsets, l.crc

	stored := append([]byte(nil), payload...)
	l.records = append(l.records, stored)
	l.crc = crc32.Update(l.crc, crc32.IEEETable, stored)

	var lastOffset int64
	if n := len(l.offsets); n > 0 {
		lastOffset = l.offsets[n-1]
	}
	l.offsets = append(l.offsets, lastOffset+lengthPrefixSize+int64(len(stored)))

	if err := l.writeSidecar(); err != nil {
		l.records, l.offsets, l.crc = prevRecords, prevOffsets, prevCRC
		return err
	}
	return nil
}

// TruncateToRecord keeps only the first k records, discarding everything
// from record k onward. It is used when a higher layer discovers that
// record k failed to decode (a corrupt-tail condition found above the
// framing layer, spec §4.5).
func (l *Log) TruncateToRecord(k int) error {
	if k < 0 || k > len(l.records) {
		return fmt.Errorf("dlog: truncate index %d out of range [0,%d]", k, len(l.records))
	}
	var newOffset int64
	if k > 0 {
		newOffset = l.offsets[k-1]
	}
	if l.file != nil {
		if err := l.file.Truncate(newOffset); err != nil {
			return fmt.Errorf("dlog: truncate %s: %w", l.logPath, err)
		}
		if _, err := l.file.Seek(newOffset, 0); err != nil {
			return fmt.Errorf("dlog: seek %s: %w", l.logPath, err)
		}
	}
	l.records = l.records[:k]
	l.offsets = l.offsets[:k]
	l.crc = foldCRC(l.records)
	return l.writeSidecar()
}

// Reset empties the log: zero-length file, zero CRC.
func (l *Log) Reset() error {
	return l.Replace(nil)
}

// Replace discards all current records and rewrites the log from
// payloads, used by latestmsg's squash operation (spec §4.3). The
// backing file is truncated and rewritten in place, so the rewrite is
// not atomic: a crash part-way through leaves only the records written
// so far.
func (l *Log) Replace(payloads [][]byte) error {
	if l.file != nil {
		if err := l.file.Truncate(0); err != nil {
			return fmt.Errorf("dlog: truncate %s: %w", l.logPath, err)
		}
		if _, err := l.file.Seek(0, 0); err != nil {
			return fmt.Errorf("dlog: seek %s: %w", l.logPath, err)
		}
		for _, p := range payloads {
			var prefix [lengthPrefixSize]byte
			binary.LittleEndian.PutUint32(prefix[:], uint32(len(p)))
			if _, err := l.file.Write(prefix[:]); err != nil {
				return fmt.Errorf("dlog: write length prefix: %w", err)
			}
			if _, err := l.file.Write(p); err != nil {
				return fmt.Errorf("dlog: write payload: %w", err)
			}
		}
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("dlog: sync: %w", err)
		}
	}

	l.records = nil
	l.offsets = nil
	var offset int64
	for _, p := range payloads {
		stored := append([]byte(nil), p...)
		l.records = append(l.records, stored)
		offset += lengthPrefixSize + int64(len(stored))
		l.offsets = append(l.offsets, offset)
	}
	l.crc = foldCRC(l.records)
	return l.writeSidecar()
}

// Path returns the backing file path, or "" for an in-memory log.
func (l *Log) Path() string {
	return l.logPath
}

// Close releases the backing file handle, if any. Close is idempotent.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return f.Close()
}

// ReadFrames performs a read-only, tolerant scan of an immutable framed
// record file — used to replay rolled-over checkpoint segments, which
// are never appended to again and so are never truncated in place.
func ReadFrames(path string) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dlog: read %s: %w", path, err)
	}
	records, _, _ := scanFrames(raw)
	return records, nil
}
