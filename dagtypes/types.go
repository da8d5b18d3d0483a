// Package dagtypes defines the data model shared by every block-DAG
// storage component: hashes, validator identities, block metadata, and
// the read-only snapshot returned to callers of the DAG façade.
package dagtypes

import "errors"

// Error kinds surfaced across the DAG storage components (spec §7).
var (
	// ErrMalformedValidator is returned by Insert when a block's validator
	// field is neither empty nor exactly 32 bytes.
	ErrMalformedValidator = errors.New("dagtypes: validator must be empty or 32 bytes")
	// ErrStoreClosed is returned by any operation issued after Close.
	ErrStoreClosed = errors.New("dagtypes: store is closed")
	// ErrGenesisUnavailable is returned by readers while a genesis
	// ceremony has not yet produced an approved block.
	ErrGenesisUnavailable = errors.New("dagtypes: genesis block not yet approved")
)

// Hash is an opaque 32-byte block identifier.
type Hash [32]byte

// ValidatorID is a 32-byte validator public key.
type ValidatorID [32]byte

// IsZero reports whether v is the all-zero identifier.
func (v ValidatorID) IsZero() bool {
	return v == ValidatorID{}
}

// Rank is a block's position in the topological order: 0 if it has no
// parents, else one more than the greatest rank among its parents.
type Rank uint64

// Justification records that an author observed a given validator's
// latest message at the time it built its block.
type Justification struct {
	Validator ValidatorID
	Latest    Hash
}

// BlockMetadata is the durable, never-mutated record created by insert.
//
// Validator is nil/empty to denote the genesis block, or exactly 32
// bytes otherwise; any other length is rejected with
// ErrMalformedValidator before anything is persisted.
type BlockMetadata struct {
	Hash             Hash
	Parents          []Hash
	Justifications   []Justification
	Validator        []byte
	Rank             Rank
	BondedValidators []ValidatorID
}

// ValidatorIdentity returns the block's validator as a fixed-size identity and
// true, or the zero value and false when the block has no validator
// (the genesis block).
func (m BlockMetadata) ValidatorIdentity() (ValidatorID, bool) {
	if len(m.Validator) != 32 {
		return ValidatorID{}, false
	}
	var v ValidatorID
	copy(v[:], m.Validator)
	return v, true
}

// ValidateValidatorField checks invariant 6 of §3: the validator field
// must be empty or exactly 32 bytes.
func ValidateValidatorField(validator []byte) error {
	if len(validator) != 0 && len(validator) != 32 {
		return ErrMalformedValidator
	}
	return nil
}

// LatestMessage is the most recent block known to be authored (or
// inherited, per invariant 5) by a validator in the accepted DAG.
type LatestMessage struct {
	Validator ValidatorID
	Hash      Hash
}

// Representation is an immutable snapshot of the DAG's in-memory state,
// satisfying invariants 1-5 of §3 at the instant it was captured.
type Representation struct {
	Metadata    map[Hash]BlockMetadata
	Children    map[Hash]map[Hash]struct{}
	JustifiedBy map[Hash]map[Hash]struct{}
	Latest      map[ValidatorID]Hash
	// TopoSort[i] holds every block of rank i, in insertion order.
	TopoSort [][]Hash
}

// Empty returns a Representation with no blocks.
func Empty() *Representation {
	return &Representation{
		Metadata:    make(map[Hash]BlockMetadata),
		Children:    make(map[Hash]map[Hash]struct{}),
		JustifiedBy: make(map[Hash]map[Hash]struct{}),
		Latest:      make(map[ValidatorID]Hash),
		TopoSort:    nil,
	}
}

// Contains reports whether hash is present in the snapshot.
func (r *Representation) Contains(h Hash) bool {
	_, ok := r.Metadata[h]
	return ok
}

// Lookup returns the metadata for hash, if any.
func (r *Representation) Lookup(h Hash) (BlockMetadata, bool) {
	m, ok := r.Metadata[h]
	return m, ok
}

// ChildrenOf returns the set of direct children of hash. ok is false
// when no inserted block lists hash as a parent, which includes a known
// block that has no children yet.
func (r *Representation) ChildrenOf(h Hash) (map[Hash]struct{}, bool) {
	s, ok := r.Children[h]
	return s, ok
}

// JustificationToBlocks returns the set of blocks that justify (cite as
// a latest message) the given hash.
func (r *Representation) JustificationToBlocks(h Hash) (map[Hash]struct{}, bool) {
	s, ok := r.JustifiedBy[h]
	return s, ok
}

// LatestMessageHash returns the latest known block hash from validator v.
func (r *Representation) LatestMessageHash(v ValidatorID) (Hash, bool) {
	h, ok := r.Latest[v]
	return h, ok
}

// LatestMessageOf returns the full latest message for validator v.
func (r *Representation) LatestMessageOf(v ValidatorID) (LatestMessage, bool) {
	h, ok := r.Latest[v]
	if !ok {
		return LatestMessage{}, false
	}
	return LatestMessage{Validator: v, Hash: h}, true
}

// LatestMessageHashes returns every validator's latest message hash.
func (r *Representation) LatestMessageHashes() map[ValidatorID]Hash {
	out := make(map[ValidatorID]Hash, len(r.Latest))
	for k, v := range r.Latest {
		out[k] = v
	}
	return out
}

// LatestMessages returns every validator's latest message.
func (r *Representation) LatestMessages() map[ValidatorID]LatestMessage {
	out := make(map[ValidatorID]LatestMessage, len(r.Latest))
	for k, v := range r.Latest {
		out[k] = LatestMessage{Validator: k, Hash: v}
	}
	return out
}

// TopoSortFrom returns TopoSort[start:].
func (r *Representation) TopoSortFrom(start int) [][]Hash {
	if start >= len(r.TopoSort) {
		return nil
	}
	return r.TopoSort[start:]
}

// TopoSortRange returns TopoSort[start:end], inclusive of end.
func (r *Representation) TopoSortRange(start, end int) [][]Hash {
	if start >= len(r.TopoSort) {
		return nil
	}
	if end >= len(r.TopoSort) {
		end = len(r.TopoSort) - 1
	}
	if end < start {
		return nil
	}
	return r.TopoSort[start : end+1]
}

// TopoSortTail returns the last k ranks of the topological vector.
func (r *Representation) TopoSortTail(k int) [][]Hash {
	n := len(r.TopoSort)
	if k <= 0 || n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	return r.TopoSort[n-k:]
}

// DeriveOrdering returns a total order over block hashes at rank >=
// start, ordered by (rank, insertion-index-within-rank). Blocks with
// rank < start are not part of this order and must not be queried below
// their own rank.
func (r *Representation) DeriveOrdering(start int) []Hash {
	var out []Hash
	for i := start; i < len(r.TopoSort); i++ {
		out = append(out, r.TopoSort[i]...)
	}
	return out
}
