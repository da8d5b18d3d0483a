// Package latestmsg implements the latest-messages store (spec §4.3):
// an in-memory map<validator, hash> backed by an append-only framed
// log of 64-byte (validator ‖ hash) records, periodically squashed to
// one entry per validator.
package latestmsg

import (
	"log/slog"
	"path/filepath"

	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/dlog"
	"github.com/casperlabs/dagcore/observability/metrics"
)

const (
	activeLogName = "latest-messages-log"
	activeCRCName = "latest-messages-crc"
	recordSize    = 64
)

// Store is the persistent or in-memory latest-messages store.
type Store struct {
	log           *dlog.Log
	m             map[dagtypes.ValidatorID]dagtypes.Hash
	maxSizeFactor int
	logger        *slog.Logger
}

// Option configures an opened Store.
type Option func(*Store)

// WithMaxSizeFactor overrides the squash trigger: the log squashes once
// its record count exceeds factor * len(map).
func WithMaxSizeFactor(factor int) Option {
	return func(s *Store) { s.maxSizeFactor = factor }
}

// WithLogger attaches a component logger used to report corrupt-tail
// recovery (spec §7).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// OpenMemory returns a non-persistent Store with no backing files.
func OpenMemory(opts ...Option) *Store {
	return newStore(dlog.OpenMemory(), opts...)
}

// Open opens (or creates) a persistent Store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	log, err := dlog.Open(filepath.Join(dir, activeLogName), filepath.Join(dir, activeCRCName))
	if err != nil {
		return nil, err
	}
	s := newStore(log, opts...)
	s.replay()
	return s, nil
}

func newStore(log *dlog.Log, opts ...Option) *Store {
	s := &Store{
		log:           log,
		m:             make(map[dagtypes.ValidatorID]dagtypes.Hash),
		maxSizeFactor: 4,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) replay() {
	records := s.log.Records()
	for i, rec := range records {
		if len(rec) != recordSize {
			s.logger.Warn("corrupt tail in latest-messages log, truncating", "record_index", i, "record_len", len(rec))
			if err := s.log.TruncateToRecord(i); err != nil {
				s.logger.Error("failed to truncate corrupt latest-messages log", "err", err)
			}
			return
		}
		var v dagtypes.ValidatorID
		var h dagtypes.Hash
		copy(v[:], rec[:32])
		copy(h[:], rec[32:64])
		s.m[v] = h
	}
}

// Put overwrites validator v's latest message hash, appending a new
// record to the log and squashing it if it has grown too large
// relative to the map (spec §4.3). Monotonicity (never "unsetting" an
// entry outside Clear) is the caller's responsibility: this store
// accepts whatever is given.
func (s *Store) Put(v dagtypes.ValidatorID, h dagtypes.Hash) error {
	var rec [recordSize]byte
	copy(rec[:32], v[:])
	copy(rec[32:], h[:])
	if err := s.log.Append(rec[:]); err != nil {
		return err
	}
	s.m[v] = h

	if len(s.log.Records()) > s.maxSizeFactor*len(s.m) {
		return s.squash()
	}
	return nil
}

func (s *Store) squash() error {
	payloads := make([][]byte, 0, len(s.m))
	for v, h := range s.m {
		var rec [recordSize]byte
		copy(rec[:32], v[:])
		copy(rec[32:], h[:])
		payloads = append(payloads, rec[:])
	}
	if err := s.log.Replace(payloads); err != nil {
		return err
	}
	metrics.LatestMessageSquashes.Inc()
	return nil
}

// Get returns validator v's latest message hash.
func (s *Store) Get(v dagtypes.ValidatorID) (dagtypes.Hash, bool) {
	h, ok := s.m[v]
	return h, ok
}

// Snapshot returns a defensive copy of the validator->hash map.
func (s *Store) Snapshot() map[dagtypes.ValidatorID]dagtypes.Hash {
	out := make(map[dagtypes.ValidatorID]dagtypes.Hash, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// Clear empties the store and truncates the backing log to zero length.
func (s *Store) Clear() error {
	if err := s.log.Reset(); err != nil {
		return err
	}
	s.m = make(map[dagtypes.ValidatorID]dagtypes.Hash)
	return nil
}

// Close releases the log's file handle.
func (s *Store) Close() error {
	return s.log.Close()
}
