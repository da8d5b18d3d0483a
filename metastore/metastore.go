// Package metastore implements the block metadata store (spec §4.2):
// an in-memory map<hash, BlockMetadata> backed by an append-only framed
// log, with periodic checkpoint rollover into numbered segment files.
package metastore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/dlog"
	"github.com/casperlabs/dagcore/observability/metrics"
)

const (
	activeLogName = "block-metadata-log"
	activeCRCName = "block-metadata-crc"
	checkpointsDir = "checkpoints"

	// defaultCheckpointSize is the baseline record count a checkpoint
	// segment targets; rollover fires once the active log holds more
	// than MaxSizeFactor * CheckpointSize records (spec §4.2's
	// "checkpoint_size" is left to the deployment to size).
	defaultCheckpointSize = 256
)

// Store is the persistent or in-memory block metadata store.
type Store struct {
	log  *dlog.Log
	meta map[dagtypes.Hash]dagtypes.BlockMetadata
	// order preserves append order, needed to replay blocks into the
	// DAG index in the same sequence they were originally inserted.
	order []dagtypes.Hash

	dir            string // "" for in-memory stores
	maxSizeFactor  int
	checkpointSize int
	nextStart      int // first record index not yet checkpointed

	logger *slog.Logger
}

// Option configures an opened Store.
type Option func(*Store)

// WithMaxSizeFactor overrides the rollover trigger: the active log
// checkpoints once it exceeds factor * checkpoint size.
func WithMaxSizeFactor(factor int) Option {
	return func(s *Store) { s.maxSizeFactor = factor }
}

// WithCheckpointSize overrides the nominal checkpoint segment size.
func WithCheckpointSize(size int) Option {
	return func(s *Store) { s.checkpointSize = size }
}

// WithLogger attaches a component logger used to report corrupt-tail
// recovery (spec §7).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// OpenMemory returns a non-persistent Store with no backing files.
func OpenMemory(opts ...Option) *Store {
	s := newStore(dlog.OpenMemory(), "", opts...)
	return s
}

// Open opens (or creates) a persistent Store rooted at dir, replaying
// any checkpoints followed by the active log.
func Open(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, checkpointsDir), 0o755); err != nil {
		return nil, fmt.Errorf("metastore: mkdir checkpoints: %w", err)
	}

	s := newStore(nil, dir, opts...)

	if err := s.replayCheckpoints(); err != nil {
		return nil, err
	}

	log, err := dlog.Open(filepath.Join(dir, activeLogName), filepath.Join(dir, activeCRCName))
	if err != nil {
		return nil, fmt.Errorf("metastore: open active log: %w", err)
	}
	s.log = log
	s.replayActiveLog()

	return s, nil
}

func newStore(log *dlog.Log, dir string, opts ...Option) *Store {
	s := &Store{
		log:            log,
		meta:           make(map[dagtypes.Hash]dagtypes.BlockMetadata),
		dir:            dir,
		maxSizeFactor:  4,
		checkpointSize: defaultCheckpointSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) replayCheckpoints() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, checkpointsDir))
	if err != nil {
		return fmt.Errorf("metastore: list checkpoints: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // lexicographic, per spec §4.2

	for _, name := range names {
		records, err := dlog.ReadFrames(filepath.Join(s.dir, checkpointsDir, name))
		if err != nil {
			return fmt.Errorf("metastore: read checkpoint %s: %w", name, err)
		}
		for _, rec := range records {
			m, err := dagtypes.DecodeBlockMetadata(rec)
			if err != nil {
				s.logger.Warn("corrupt record in checkpoint, skipping remainder", "checkpoint", name, "err", err)
				break
			}
			s.applyDecoded(m)
			s.nextStart++
		}
	}
	return nil
}

func (s *Store) replayActiveLog() {
	records := s.log.Records()
	for i, rec := range records {
		m, err := dagtypes.DecodeBlockMetadata(rec)
		if err != nil {
			s.logger.Warn("corrupt tail in active metadata log, truncating", "record_index", i, "err", err)
			if terr := s.log.TruncateToRecord(i); terr != nil {
				s.logger.Error("failed to truncate corrupt metadata log", "err", terr)
			}
			return
		}
		s.applyDecoded(m)
	}
}

func (s *Store) applyDecoded(m dagtypes.BlockMetadata) {
	s.meta[m.Hash] = m
	s.order = append(s.order, m.Hash)
}

// Insert validates, persists, and indexes a new block's metadata. On
// any filesystem error the in-memory map is left exactly as it was
// before the call (the append either fully succeeded or not at all).
func (s *Store) Insert(m dagtypes.BlockMetadata) error {
	if err := dagtypes.ValidateValidatorField(m.Validator); err != nil {
		metrics.BlocksRejected.WithLabelValues("malformed_validator").Inc()
		return err
	}

	enc := dagtypes.EncodeBlockMetadata(m)
	if err := s.log.Append(enc); err != nil {
		metrics.BlocksRejected.WithLabelValues("append_failed").Inc()
		return fmt.Errorf("metastore: append: %w", err)
	}

	s.applyDecoded(m)
	metrics.BlocksInserted.Inc()

	if s.dir != "" && len(s.log.Records()) > s.maxSizeFactor*s.checkpointSize {
		if err := s.rollover(); err != nil {
			return fmt.Errorf("metastore: rollover: %w", err)
		}
	}
	return nil
}

func (s *Store) rollover() error {
	count := len(s.log.Records())
	start := s.nextStart
	end := start + count - 1
	name := fmt.Sprintf("%d-%d", start, end)

	if err := s.log.Close(); err != nil {
		return err
	}

	src := filepath.Join(s.dir, activeLogName)
	dst := filepath.Join(s.dir, checkpointsDir, name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", src, dst, err)
	}
	_ = os.Remove(filepath.Join(s.dir, activeCRCName))

	fresh, err := dlog.Open(filepath.Join(s.dir, activeLogName), filepath.Join(s.dir, activeCRCName))
	if err != nil {
		return err
	}
	s.log = fresh
	s.nextStart = end + 1
	metrics.CheckpointRollovers.Inc()
	return nil
}

// Checkpoint forces a rollover regardless of size, a no-op on
// in-memory stores.
func (s *Store) Checkpoint() error {
	if s.dir == "" || len(s.log.Records()) == 0 {
		return nil
	}
	return s.rollover()
}

// Lookup returns a block's metadata.
func (s *Store) Lookup(h dagtypes.Hash) (dagtypes.BlockMetadata, bool) {
	m, ok := s.meta[h]
	return m, ok
}

// RecordCount returns the number of records held in the active log;
// records already rolled into checkpoint segments are not counted.
func (s *Store) RecordCount() int {
	return len(s.log.Records())
}

// RemoveLast undoes the most recent Insert, truncating the active log
// by one record and dropping h from the in-memory index. It exists
// solely to support the dag façade's insert rollback when a later step
// of the same logical transaction (updating latest messages) fails;
// callers must pass the hash of the record actually being removed.
func (s *Store) RemoveLast(h dagtypes.Hash) error {
	n := len(s.log.Records())
	if n == 0 {
		return nil
	}
	if err := s.log.TruncateToRecord(n - 1); err != nil {
		return fmt.Errorf("metastore: rollback truncate: %w", err)
	}
	delete(s.meta, h)
	if len(s.order) > 0 && s.order[len(s.order)-1] == h {
		s.order = s.order[:len(s.order)-1]
	}
	return nil
}

// All returns every stored block, in original insertion order.
func (s *Store) All() []dagtypes.BlockMetadata {
	out := make([]dagtypes.BlockMetadata, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.meta[h])
	}
	return out
}

// Snapshot returns a defensive copy of the hash->metadata map.
func (s *Store) Snapshot() map[dagtypes.Hash]dagtypes.BlockMetadata {
	out := make(map[dagtypes.Hash]dagtypes.BlockMetadata, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}
	return out
}

// Clear empties the store and, for persistent stores, truncates the
// active log and deletes all checkpoint segments.
func (s *Store) Clear() error {
	if err := s.log.Reset(); err != nil {
		return err
	}
	if s.dir != "" {
		entries, err := os.ReadDir(filepath.Join(s.dir, checkpointsDir))
		if err != nil {
			return fmt.Errorf("metastore: list checkpoints for clear: %w", err)
		}
		for _, e := range entries {
			if err := os.Remove(filepath.Join(s.dir, checkpointsDir, e.Name())); err != nil {
				return fmt.Errorf("metastore: remove checkpoint %s: %w", e.Name(), err)
			}
		}
	}
	s.meta = make(map[dagtypes.Hash]dagtypes.BlockMetadata)
	s.order = nil
	s.nextStart = 0
	return nil
}

// Close releases the active log's file handle.
func (s *Store) Close() error {
	return s.log.Close()
}
