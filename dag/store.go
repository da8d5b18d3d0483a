// Package dag implements the DAG façade (spec §4.5): a single entry
// point coordinating the block metadata store, latest-messages store,
// and in-memory index under one writer permit, and publishing
// immutable snapshots that readers consume without blocking on
// writers.
package dag

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casperlabs/dagcore/dagindex"
	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/latestmsg"
	"github.com/casperlabs/dagcore/metastore"
	"github.com/casperlabs/dagcore/observability/metrics"
)

// Store is the DAG façade. All mutating operations (Insert, Clear,
// Checkpoint) acquire an exclusive writer permit; readers load the
// current immutable Representation and never block.
type Store struct {
	mu     sync.Mutex
	meta   *metastore.Store
	latest *latestmsg.Store
	index  *dagindex.Index
	snap   atomic.Value // *dagtypes.Representation
	logger *slog.Logger
	closed bool
}

type options struct {
	blockMaxSizeFactor  int
	checkpointSize      int
	latestMaxSizeFactor int
	logger              *slog.Logger
}

func defaultOptions() options {
	return options{
		blockMaxSizeFactor:  4,
		checkpointSize:      256,
		latestMaxSizeFactor: 4,
		logger:              slog.Default(),
	}
}

// Option configures a Store at construction time.
type Option func(*options)

// WithBlockMetadataMaxSizeFactor overrides the block metadata store's
// checkpoint-rollover trigger.
func WithBlockMetadataMaxSizeFactor(factor int) Option {
	return func(o *options) { o.blockMaxSizeFactor = factor }
}

// WithCheckpointSize overrides the block metadata store's nominal
// checkpoint segment size.
func WithCheckpointSize(size int) Option {
	return func(o *options) { o.checkpointSize = size }
}

// WithLatestMessageMaxSizeFactor overrides the latest-messages store's
// squash trigger.
func WithLatestMessageMaxSizeFactor(factor int) Option {
	return func(o *options) { o.latestMaxSizeFactor = factor }
}

// WithLogger attaches a component logger, propagated to the underlying
// stores as well.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewInMemory returns a Store with no backing files, suitable for
// tests and ephemeral nodes.
func NewInMemory(opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	meta := metastore.OpenMemory(
		metastore.WithMaxSizeFactor(o.blockMaxSizeFactor),
		metastore.WithCheckpointSize(o.checkpointSize),
		metastore.WithLogger(o.logger),
	)
	latest := latestmsg.OpenMemory(
		latestmsg.WithMaxSizeFactor(o.latestMaxSizeFactor),
		latestmsg.WithLogger(o.logger),
	)
	return build(meta, latest, o.logger)
}

// OpenPersistent opens (or creates) a Store rooted at dir, with the
// block metadata and latest-message stores each in their own
// subdirectory so their checkpoint/log files never collide.
func OpenPersistent(dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	meta, err := metastore.Open(
		filepath.Join(dir, "blocks"),
		metastore.WithMaxSizeFactor(o.blockMaxSizeFactor),
		metastore.WithCheckpointSize(o.checkpointSize),
		metastore.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("dag: open block metadata store: %w", err)
	}

	latest, err := latestmsg.Open(
		filepath.Join(dir, "latest-messages"),
		latestmsg.WithMaxSizeFactor(o.latestMaxSizeFactor),
		latestmsg.WithLogger(o.logger),
	)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("dag: open latest-messages store: %w", err)
	}

	return build(meta, latest, o.logger), nil
}

func build(meta *metastore.Store, latest *latestmsg.Store, logger *slog.Logger) *Store {
	idx := dagindex.New()
	for _, m := range meta.All() {
		idx.Apply(m)
	}
	s := &Store{meta: meta, latest: latest, index: idx, logger: logger}
	s.publish()
	return s
}

// publish snapshots the index via Clone so the published Representation
// never aliases the children/justifiedBy maps or topoSort buckets that
// Insert's subsequent Apply calls mutate in place.
func (s *Store) publish() {
	rep := s.index.Clone().Representation(s.meta.Snapshot(), s.latest.Snapshot())
	s.snap.Store(&rep)
}

// Representation returns the current immutable snapshot. Safe for
// concurrent use with Insert, Clear, and Checkpoint.
func (s *Store) Representation() *dagtypes.Representation {
	return s.snap.Load().(*dagtypes.Representation)
}

// Insert validates, persists, and indexes a new block, then
// republishes the snapshot. Rank is computed here from the block's
// parents (spec's rank invariant), overriding whatever the caller set.
//
// A newly bonded validator (one named in BondedValidators with no
// existing latest message) inherits the inserted block as its latest
// message, satisfying invariant 5 of §3. If recording that inheritance
// fails after the block metadata has already been durably appended,
// the metadata append is rolled back so no half-applied block is ever
// visible to readers.
func (s *Store) Insert(m dagtypes.BlockMetadata) error {
	start := time.Now()
	defer func() { metrics.InsertDuration.Observe(time.Since(start).Seconds()) }()

	if err := dagtypes.ValidateValidatorField(m.Validator); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dagtypes.ErrStoreClosed
	}

	rep := s.Representation()
	m.Rank = dagindex.ComputeRank(s.meta.Lookup, m.Parents)

	if err := s.meta.Insert(m); err != nil {
		return err
	}

	updates := latestMessageUpdates(m, rep)
	for _, u := range updates {
		if err := s.latest.Put(u.validator, u.hash); err != nil {
			if rerr := s.meta.RemoveLast(m.Hash); rerr != nil {
				s.logger.Error("failed to roll back block metadata after latest-message update failure", "hash", m.Hash, "err", rerr)
			}
			return fmt.Errorf("dag: update latest message: %w", err)
		}
	}

	s.index.Apply(m)
	s.publish()
	return nil
}

type latestUpdate struct {
	validator dagtypes.ValidatorID
	hash      dagtypes.Hash
}

// latestMessageUpdates returns the (validator, hash) pairs that must be
// written to the latest-messages store for block m: the author's own
// latest message, plus one entry per newly bonded validator that has
// no prior latest message (invariant 5).
func latestMessageUpdates(m dagtypes.BlockMetadata, rep *dagtypes.Representation) []latestUpdate {
	var updates []latestUpdate
	seen := make(map[dagtypes.ValidatorID]struct{})

	if vid, ok := m.ValidatorIdentity(); ok {
		updates = append(updates, latestUpdate{vid, m.Hash})
		seen[vid] = struct{}{}
	}

	for _, v := range m.BondedValidators {
		if _, already := seen[v]; already {
			continue
		}
		if _, ok := rep.LatestMessageHash(v); ok {
			continue
		}
		updates = append(updates, latestUpdate{v, m.Hash})
		seen[v] = struct{}{}
	}

	return updates
}

// Contains reports whether hash is present in the current snapshot.
func (s *Store) Contains(h dagtypes.Hash) bool {
	return s.Representation().Contains(h)
}

// Lookup returns a block's metadata from the current snapshot.
func (s *Store) Lookup(h dagtypes.Hash) (dagtypes.BlockMetadata, bool) {
	return s.Representation().Lookup(h)
}

// Children returns h's direct children from the current snapshot.
func (s *Store) Children(h dagtypes.Hash) (map[dagtypes.Hash]struct{}, bool) {
	return s.Representation().ChildrenOf(h)
}

// JustificationToBlocks returns the blocks justifying h from the
// current snapshot.
func (s *Store) JustificationToBlocks(h dagtypes.Hash) (map[dagtypes.Hash]struct{}, bool) {
	return s.Representation().JustificationToBlocks(h)
}

// LatestMessageHash returns validator v's latest message hash from the
// current snapshot.
func (s *Store) LatestMessageHash(v dagtypes.ValidatorID) (dagtypes.Hash, bool) {
	return s.Representation().LatestMessageHash(v)
}

// LatestMessage returns validator v's full latest message from the
// current snapshot.
func (s *Store) LatestMessage(v dagtypes.ValidatorID) (dagtypes.LatestMessage, bool) {
	return s.Representation().LatestMessageOf(v)
}

// LatestMessageHashes returns every validator's latest message hash
// from the current snapshot.
func (s *Store) LatestMessageHashes() map[dagtypes.ValidatorID]dagtypes.Hash {
	return s.Representation().LatestMessageHashes()
}

// LatestMessages returns every validator's latest message from the
// current snapshot.
func (s *Store) LatestMessages() map[dagtypes.ValidatorID]dagtypes.LatestMessage {
	return s.Representation().LatestMessages()
}

// Checkpoint forces the block metadata store to roll its active log
// into a checkpoint segment, a no-op for in-memory stores.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dagtypes.ErrStoreClosed
	}
	return s.meta.Checkpoint()
}

// Clear empties every underlying store and republishes an empty
// snapshot.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dagtypes.ErrStoreClosed
	}
	if err := s.meta.Clear(); err != nil {
		return fmt.Errorf("dag: clear block metadata store: %w", err)
	}
	if err := s.latest.Clear(); err != nil {
		return fmt.Errorf("dag: clear latest-messages store: %w", err)
	}
	s.index.Clear()
	s.publish()
	return nil
}

// Close releases both underlying stores' file handles. Further calls
// to any mutating method return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	metaErr := s.meta.Close()
	latestErr := s.latest.Close()
	if metaErr != nil {
		return metaErr
	}
	return latestErr
}
