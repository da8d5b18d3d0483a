package dag

import (
	"testing"

	"github.com/casperlabs/dagcore/dagtypes"
)

func h(b byte) dagtypes.Hash {
	var x dagtypes.Hash
	x[0] = b
	return x
}

func v(b byte) dagtypes.ValidatorID {
	var x dagtypes.ValidatorID
	x[0] = b
	return x
}

func TestInsertGenesisThenChild(t *testing.T) {
	s := NewInMemory()
	defer s.Close()

	genesis := dagtypes.BlockMetadata{Hash: h(1), BondedValidators: []dagtypes.ValidatorID{v(1), v(2)}}
	if err := s.Insert(genesis); err != nil {
		t.Fatalf("insert genesis: %v", err)
	}

	// Invariant 5: bonded validators with no prior latest message
	// inherit the block that bonded them.
	for _, val := range []dagtypes.ValidatorID{v(1), v(2)} {
		got, ok := s.LatestMessageHash(val)
		if !ok || got != h(1) {
			t.Fatalf("validator %v latest = %v, ok=%v, want genesis hash", val, got, ok)
		}
	}

	child := dagtypes.BlockMetadata{
		Hash:      h(2),
		Parents:   []dagtypes.Hash{h(1)},
		Validator: v(1)[:],
	}
	if err := s.Insert(child); err != nil {
		t.Fatalf("insert child: %v", err)
	}

	got, ok := s.Lookup(h(2))
	if !ok {
		t.Fatal("child not found after insert")
	}
	if got.Rank != 1 {
		t.Fatalf("child rank = %d, want 1", got.Rank)
	}

	latest, ok := s.LatestMessageHash(v(1))
	if !ok || latest != h(2) {
		t.Fatalf("validator 1 latest = %v, ok=%v, want child hash", latest, ok)
	}

	children, ok := s.Children(h(1))
	if !ok {
		t.Fatal("expected children set for genesis")
	}
	if _, present := children[h(2)]; !present {
		t.Fatal("child not registered under genesis's children")
	}
}

func TestInsertRejectsMalformedValidatorBeforeMutating(t *testing.T) {
	s := NewInMemory()
	defer s.Close()

	err := s.Insert(dagtypes.BlockMetadata{Hash: h(1), Validator: make([]byte, 10)})
	if err != dagtypes.ErrMalformedValidator {
		t.Fatalf("err = %v, want ErrMalformedValidator", err)
	}
	if s.Contains(h(1)) {
		t.Fatal("malformed insert should not have mutated the store")
	}
}

func TestRankIsComputedFromParentsRegardlessOfCallerInput(t *testing.T) {
	s := NewInMemory()
	defer s.Close()

	if err := s.Insert(dagtypes.BlockMetadata{Hash: h(1), Rank: 99}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, _ := s.Lookup(h(1))
	if got.Rank != 0 {
		t.Fatalf("rank = %d, want 0 (caller-supplied rank must be ignored)", got.Rank)
	}
}

func TestReopenPersistentSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenPersistent(dir)
	if err != nil {
		t.Fatalf("OpenPersistent: %v", err)
	}
	if err := s.Insert(dagtypes.BlockMetadata{Hash: h(1), BondedValidators: []dagtypes.ValidatorID{v(1)}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenPersistent(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if !s2.Contains(h(1)) {
		t.Fatal("block did not survive reopen")
	}
	if _, ok := s2.LatestMessageHash(v(1)); !ok {
		t.Fatal("latest message did not survive reopen")
	}
}

func TestClearResetsEverything(t *testing.T) {
	s := NewInMemory()
	defer s.Close()

	if err := s.Insert(dagtypes.BlockMetadata{Hash: h(1), BondedValidators: []dagtypes.ValidatorID{v(1)}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Contains(h(1)) {
		t.Fatal("block survived Clear")
	}
	if _, ok := s.LatestMessageHash(v(1)); ok {
		t.Fatal("latest message survived Clear")
	}
	rep := s.Representation()
	if len(rep.TopoSort) != 0 {
		t.Fatal("topo sort not empty after Clear")
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	s := NewInMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Insert(dagtypes.BlockMetadata{Hash: h(1)}); err != dagtypes.ErrStoreClosed {
		t.Fatalf("err = %v, want ErrStoreClosed", err)
	}
	if err := s.Clear(); err != dagtypes.ErrStoreClosed {
		t.Fatalf("err = %v, want ErrStoreClosed", err)
	}
}
