// Package dagindex maintains the in-memory structures derived purely
// from block metadata (spec §4.4): child and justification adjacency,
// and a rank-bucketed topological ordering. Nothing here touches disk;
// the index is rebuilt from metastore's replayed state on every open.
package dagindex

import (
	"github.com/casperlabs/dagcore/dagtypes"
)

// Index holds the children, justifiedBy, and rank-bucketed topological
// sort derived from a set of inserted blocks.
type Index struct {
	children    map[dagtypes.Hash]map[dagtypes.Hash]struct{}
	justifiedBy map[dagtypes.Hash]map[dagtypes.Hash]struct{}
	topoSort    [][]dagtypes.Hash
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		children:    make(map[dagtypes.Hash]map[dagtypes.Hash]struct{}),
		justifiedBy: make(map[dagtypes.Hash]map[dagtypes.Hash]struct{}),
	}
}

// ComputeRank returns 0 if parents is empty, otherwise one more than
// the maximum rank among parents (spec's block-rank invariant). lookup
// resolves a parent hash to its already-inserted metadata; a missing
// parent is the caller's bug, not this function's to detect.
func ComputeRank(lookup func(dagtypes.Hash) (dagtypes.BlockMetadata, bool), parents []dagtypes.Hash) dagtypes.Rank {
	if len(parents) == 0 {
		return 0
	}
	var maxRank dagtypes.Rank
	for _, p := range parents {
		if pm, ok := lookup(p); ok && pm.Rank > maxRank {
			maxRank = pm.Rank
		}
	}
	return maxRank + 1
}

// Apply folds a newly inserted block's metadata into the index:
// registers it as a child of each parent, as a justifier of each
// justification target, and appends it to its rank's topo-sort bucket.
func (idx *Index) Apply(m dagtypes.BlockMetadata) {
	for _, p := range m.Parents {
		idx.addEdge(idx.children, p, m.Hash)
	}
	for _, j := range m.Justifications {
		idx.addEdge(idx.justifiedBy, j.Latest, m.Hash)
	}

	for len(idx.topoSort) <= int(m.Rank) {
		idx.topoSort = append(idx.topoSort, nil)
	}
	idx.topoSort[m.Rank] = append(idx.topoSort[m.Rank], m.Hash)
}

func (idx *Index) addEdge(set map[dagtypes.Hash]map[dagtypes.Hash]struct{}, from, to dagtypes.Hash) {
	children, ok := set[from]
	if !ok {
		children = make(map[dagtypes.Hash]struct{})
		set[from] = children
	}
	children[to] = struct{}{}
}

// Clone returns a deep copy suitable for handing out as part of an
// immutable snapshot (spec §4.5's copy-on-write reader semantics): the
// returned Index shares no mutable state with idx.
func (idx *Index) Clone() *Index {
	out := New()
	for h, set := range idx.children {
		out.children[h] = cloneSet(set)
	}
	for h, set := range idx.justifiedBy {
		out.justifiedBy[h] = cloneSet(set)
	}
	out.topoSort = make([][]dagtypes.Hash, len(idx.topoSort))
	for i, bucket := range idx.topoSort {
		out.topoSort[i] = append([]dagtypes.Hash(nil), bucket...)
	}
	return out
}

func cloneSet(in map[dagtypes.Hash]struct{}) map[dagtypes.Hash]struct{} {
	out := make(map[dagtypes.Hash]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// Clear empties the index.
func (idx *Index) Clear() {
	idx.children = make(map[dagtypes.Hash]map[dagtypes.Hash]struct{})
	idx.justifiedBy = make(map[dagtypes.Hash]map[dagtypes.Hash]struct{})
	idx.topoSort = nil
}

// Children returns the set of blocks having h as a direct parent.
func (idx *Index) Children(h dagtypes.Hash) map[dagtypes.Hash]struct{} {
	return idx.children[h]
}

// JustifiedBy returns the set of blocks justifying h as their latest
// message for some validator.
func (idx *Index) JustifiedBy(h dagtypes.Hash) map[dagtypes.Hash]struct{} {
	return idx.justifiedBy[h]
}

// TopoSort returns the rank-bucketed topological ordering: bucket i
// holds every block of rank i, in original insertion order.
func (idx *Index) TopoSort() [][]dagtypes.Hash {
	return idx.topoSort
}

// Representation materializes a dagtypes.Representation snapshot from
// the index plus metadata and latest-message maps supplied by the
// caller (the dag façade, which owns those other stores).
func (idx *Index) Representation(
	metadata map[dagtypes.Hash]dagtypes.BlockMetadata,
	latest map[dagtypes.ValidatorID]dagtypes.Hash,
) dagtypes.Representation {
	return dagtypes.Representation{
		Metadata:    metadata,
		Children:    idx.children,
		JustifiedBy: idx.justifiedBy,
		Latest:      latest,
		TopoSort:    idx.topoSort,
	}
}
