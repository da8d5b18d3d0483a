package dagindex

import (
	"testing"

	"github.com/casperlabs/dagcore/dagtypes"
)

func h(b byte) dagtypes.Hash {
	var x dagtypes.Hash
	x[0] = b
	return x
}

func TestComputeRankGenesisIsZero(t *testing.T) {
	lookup := func(dagtypes.Hash) (dagtypes.BlockMetadata, bool) { return dagtypes.BlockMetadata{}, false }
	if r := ComputeRank(lookup, nil); r != 0 {
		t.Fatalf("rank = %d, want 0", r)
	}
}

func TestComputeRankIsOneMoreThanMaxParent(t *testing.T) {
	meta := map[dagtypes.Hash]dagtypes.BlockMetadata{
		h(1): {Hash: h(1), Rank: 2},
		h(2): {Hash: h(2), Rank: 5},
	}
	lookup := func(hash dagtypes.Hash) (dagtypes.BlockMetadata, bool) {
		m, ok := meta[hash]
		return m, ok
	}
	r := ComputeRank(lookup, []dagtypes.Hash{h(1), h(2)})
	if r != 6 {
		t.Fatalf("rank = %d, want 6", r)
	}
}

func TestApplyBuildsChildrenAndJustifiedBy(t *testing.T) {
	idx := New()
	idx.Apply(dagtypes.BlockMetadata{Hash: h(1), Rank: 0})
	idx.Apply(dagtypes.BlockMetadata{
		Hash:           h(2),
		Parents:        []dagtypes.Hash{h(1)},
		Justifications: []dagtypes.Justification{{Latest: h(1)}},
		Rank:           1,
	})

	children := idx.Children(h(1))
	if _, ok := children[h(2)]; !ok {
		t.Fatal("expected block 2 registered as child of block 1")
	}
	justifiers := idx.JustifiedBy(h(1))
	if _, ok := justifiers[h(2)]; !ok {
		t.Fatal("expected block 2 registered as justifier of block 1")
	}
}

func TestApplyPopulatesTopoSortByRank(t *testing.T) {
	idx := New()
	idx.Apply(dagtypes.BlockMetadata{Hash: h(1), Rank: 0})
	idx.Apply(dagtypes.BlockMetadata{Hash: h(2), Rank: 0})
	idx.Apply(dagtypes.BlockMetadata{Hash: h(3), Rank: 1})

	topo := idx.TopoSort()
	if len(topo) != 2 {
		t.Fatalf("got %d rank buckets, want 2", len(topo))
	}
	if len(topo[0]) != 2 || topo[0][0] != h(1) || topo[0][1] != h(2) {
		t.Fatalf("rank 0 bucket = %v, want [h1 h2] in insertion order", topo[0])
	}
	if len(topo[1]) != 1 || topo[1][0] != h(3) {
		t.Fatalf("rank 1 bucket = %v, want [h3]", topo[1])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	idx := New()
	idx.Apply(dagtypes.BlockMetadata{Hash: h(1), Rank: 0})

	clone := idx.Clone()
	idx.Apply(dagtypes.BlockMetadata{Hash: h(2), Parents: []dagtypes.Hash{h(1)}, Rank: 1})

	if len(clone.TopoSort()) != 1 {
		t.Fatalf("clone mutated by later Apply on original: topo = %v", clone.TopoSort())
	}
	if len(clone.Children(h(1))) != 0 {
		t.Fatalf("clone's children set mutated by original: %v", clone.Children(h(1)))
	}
}

func TestClearEmptiesIndex(t *testing.T) {
	idx := New()
	idx.Apply(dagtypes.BlockMetadata{Hash: h(1), Rank: 0})
	idx.Clear()
	if len(idx.TopoSort()) != 0 {
		t.Fatalf("topo sort not empty after Clear")
	}
	if len(idx.Children(h(1))) != 0 {
		t.Fatalf("children not empty after Clear")
	}
}
