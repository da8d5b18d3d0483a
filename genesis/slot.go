package genesis

import (
	"sync"

	"github.com/casperlabs/dagcore/dagtypes"
)

// ApprovedSlot is the single-assignment "last approved block" cell
// called for in §9's design notes: the first writer to Set wins, and
// every later Set is rejected so the ceremony's output can never be
// silently replaced.
type ApprovedSlot struct {
	mu  sync.Mutex
	val *ApprovedBlock
}

// Set assigns block to the slot if it is not already assigned,
// reporting whether this call was the one that did so.
func (s *ApprovedSlot) Set(block ApprovedBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.val != nil {
		return false
	}
	cp := block
	s.val = &cp
	return true
}

// Get returns the assigned block, if any.
func (s *ApprovedSlot) Get() (ApprovedBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.val == nil {
		return ApprovedBlock{}, false
	}
	return *s.val, true
}

// MustGet returns the assigned block or dagtypes.ErrGenesisUnavailable
// for readers that need to fail fast while the ceremony is ongoing
// (spec §7's GenesisUnavailable error kind).
func (s *ApprovedSlot) MustGet() (ApprovedBlock, error) {
	b, ok := s.Get()
	if !ok {
		return ApprovedBlock{}, dagtypes.ErrGenesisUnavailable
	}
	return b, nil
}
