package genesis

import (
	"context"
	"testing"
	"time"

	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/genesiscrypto"
)

func testCandidate() Candidate {
	return Candidate{
		Block:        dagtypes.BlockMetadata{Hash: dagtypes.Hash{0x01}},
		RequiredSigs: 1,
	}
}

func noopCollaborators() Collaborators {
	return Collaborators{ClockNowMillis: func() int64 { return time.Now().UnixMilli() }}
}

func signApproval(t *testing.T, kp *genesiscrypto.Keypair, candidate Candidate) BlockApproval {
	t.Helper()
	sig := kp.Sign(candidate.CanonicalBytes())
	return BlockApproval{
		Candidate: candidate,
		Signature: Signature{Pubkey: kp.Public, Algorithm: genesiscrypto.AlgorithmEd25519, Sig: sig},
	}
}

func TestZeroThresholdApprovesOnFirstIteration(t *testing.T) {
	candidate := testCandidate()
	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 0, nil, time.Hour, time.Millisecond, noopCollaborators(), slot, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := approver.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := slot.Get(); !ok {
		t.Fatal("expected approved block with threshold 0")
	}
}

func TestExactThresholdApprovesOnceDurationElapses(t *testing.T) {
	kp, err := genesiscrypto.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	candidate := testCandidate()
	var vid dagtypes.ValidatorID
	copy(vid[:], kp.Public)
	trusted := map[dagtypes.ValidatorID]struct{}{vid: {}}

	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 1, trusted, 30*time.Millisecond, time.Millisecond, noopCollaborators(), slot, nil)

	if err := approver.AddApproval(signApproval(t, kp, candidate)); err != nil {
		t.Fatalf("AddApproval: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := approver.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	block, ok := slot.Get()
	if !ok {
		t.Fatal("expected approved block")
	}
	if len(block.Signatures) != 1 {
		t.Fatalf("got %d signatures, want 1", len(block.Signatures))
	}
}

func TestUntrustedApprovalIsRejectedAndNotCounted(t *testing.T) {
	stranger, _ := genesiscrypto.Generate()
	candidate := testCandidate()
	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 1, map[dagtypes.ValidatorID]struct{}{}, time.Hour, time.Millisecond, noopCollaborators(), slot, nil)

	err := approver.AddApproval(signApproval(t, stranger, candidate))
	if err != ErrUntrustedApprover {
		t.Fatalf("err = %v, want ErrUntrustedApprover", err)
	}
	if approver.SignatureCount() != 0 {
		t.Fatalf("signature count = %d, want 0", approver.SignatureCount())
	}
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	kp, _ := genesiscrypto.Generate()
	candidate := testCandidate()
	var vid dagtypes.ValidatorID
	copy(vid[:], kp.Public)
	trusted := map[dagtypes.ValidatorID]struct{}{vid: {}}

	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 1, trusted, time.Hour, time.Millisecond, noopCollaborators(), slot, nil)

	approval := signApproval(t, kp, candidate)
	approval.Signature.Sig[0] ^= 0xFF // corrupt
	err := approver.AddApproval(approval)
	if err != ErrInvalidApprovalSignature {
		t.Fatalf("err = %v, want ErrInvalidApprovalSignature", err)
	}
}

func TestDuplicateApprovalIsIdempotent(t *testing.T) {
	kp, _ := genesiscrypto.Generate()
	candidate := testCandidate()
	var vid dagtypes.ValidatorID
	copy(vid[:], kp.Public)
	trusted := map[dagtypes.ValidatorID]struct{}{vid: {}}

	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 1, trusted, time.Hour, time.Millisecond, noopCollaborators(), slot, nil)

	approval := signApproval(t, kp, candidate)
	if err := approver.AddApproval(approval); err != nil {
		t.Fatalf("first AddApproval: %v", err)
	}
	if err := approver.AddApproval(approval); err != nil {
		t.Fatalf("second AddApproval: %v", err)
	}
	if approver.SignatureCount() != 1 {
		t.Fatalf("signature count = %d, want 1", approver.SignatureCount())
	}
}

func TestApprovedSlotRejectsSecondWrite(t *testing.T) {
	slot := &ApprovedSlot{}
	first := ApprovedBlock{Candidate: testCandidate()}
	second := ApprovedBlock{Candidate: Candidate{RequiredSigs: 99}}

	if !slot.Set(first) {
		t.Fatal("expected first Set to succeed")
	}
	if slot.Set(second) {
		t.Fatal("expected second Set to be rejected")
	}
	got, ok := slot.Get()
	if !ok || got.Candidate.RequiredSigs != first.Candidate.RequiredSigs {
		t.Fatalf("slot holds %v, want first assignment", got)
	}
}

func TestMustGetReturnsGenesisUnavailableBeforeSet(t *testing.T) {
	slot := &ApprovedSlot{}
	_, err := slot.MustGet()
	if err != dagtypes.ErrGenesisUnavailable {
		t.Fatalf("err = %v, want ErrGenesisUnavailable", err)
	}
}

func TestRunIsCancellableBeforeApproval(t *testing.T) {
	candidate := testCandidate()
	slot := &ApprovedSlot{}
	approver := NewApprover(candidate, 1, nil, time.Hour, time.Millisecond, noopCollaborators(), slot, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- approver.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return context error on cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, ok := slot.Get(); ok {
		t.Fatal("slot must not be set after an aborted ceremony")
	}
}
