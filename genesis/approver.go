package genesis

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/genesiscrypto"
	"github.com/casperlabs/dagcore/observability/metrics"
)

// Error kinds surfaced by AddApproval (spec §7).
var (
	ErrUntrustedApprover        = errors.New("genesis: pubkey is not a trusted validator")
	ErrInvalidApprovalSignature = errors.New("genesis: candidate mismatch or signature verification failed")
)

// Approver runs the approval ceremony for a single candidate: it
// accumulates trusted, verified signatures and, once the duration has
// elapsed and the threshold is met (or the threshold is zero),
// materialises the ApprovedBlock into slot and stops.
type Approver struct {
	mu sync.Mutex

	candidate Candidate
	threshold uint32
	trusted   map[dagtypes.ValidatorID]struct{}
	duration  time.Duration
	interval  time.Duration
	startMs   int64

	sigs map[string]Signature

	collab Collaborators
	slot   *ApprovedSlot
	logger *slog.Logger
}

// NewApprover constructs an Approver. trusted is the ceremony's
// validator set V; collab.ClockNowMillis is called once here to fix T0.
func NewApprover(
	candidate Candidate,
	threshold uint32,
	trusted map[dagtypes.ValidatorID]struct{},
	duration time.Duration,
	pollInterval time.Duration,
	collab Collaborators,
	slot *ApprovedSlot,
	logger *slog.Logger,
) *Approver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Approver{
		candidate: candidate,
		threshold: threshold,
		trusted:   trusted,
		duration:  duration,
		interval:  pollInterval,
		startMs:   collab.ClockNowMillis(),
		sigs:      make(map[string]Signature),
		collab:    collab,
		slot:      slot,
		logger:    logger.With("component", "genesis"),
	}
}

// AddApproval validates and, if admissible, records approval. It is
// safe to call concurrently with Run. Returns nil both when the
// approval was newly admitted and when it was an idempotent repeat of
// an already-admitted signature.
func (a *Approver) AddApproval(approval BlockApproval) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !candidatesEqual(approval.Candidate, a.candidate) {
		a.logger.Warn("genesis approval for a foreign candidate discarded")
		metrics.GenesisDiscardedApprovals.WithLabelValues("candidate_mismatch").Inc()
		return ErrInvalidApprovalSignature
	}

	if len(approval.Signature.Pubkey) != 32 {
		a.logger.Warn("genesis approval has malformed pubkey length", "len", len(approval.Signature.Pubkey))
		metrics.GenesisDiscardedApprovals.WithLabelValues("malformed_pubkey").Inc()
		return ErrInvalidApprovalSignature
	}
	var vid dagtypes.ValidatorID
	copy(vid[:], approval.Signature.Pubkey)
	if _, trusted := a.trusted[vid]; !trusted {
		a.logger.Warn("genesis approval from untrusted validator discarded", "validator", vid)
		metrics.GenesisDiscardedApprovals.WithLabelValues("untrusted_validator").Inc()
		return ErrUntrustedApprover
	}

	verifyStart := time.Now()
	ok := genesiscrypto.Verify(a.candidate.CanonicalBytes(), genesiscrypto.Signature{
		Pubkey:    approval.Signature.Pubkey,
		Algorithm: approval.Signature.Algorithm,
		Sig:       approval.Signature.Sig,
	})
	metrics.GenesisSignatureVerificationTime.Observe(time.Since(verifyStart).Seconds())
	if !ok {
		a.logger.Warn("genesis approval signature failed verification", "validator", vid)
		metrics.GenesisDiscardedApprovals.WithLabelValues("invalid_signature").Inc()
		return ErrInvalidApprovalSignature
	}

	key := sigKey(approval.Signature)
	if _, exists := a.sigs[key]; exists {
		return nil
	}
	a.sigs[key] = approval.Signature
	a.collab.incrementCounter("genesis")
	return nil
}

// SignatureCount returns the number of distinct admitted signatures.
func (a *Approver) SignatureCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sigs)
}

// Run executes the control loop of spec §4.6: every interval it
// broadcasts the candidate, then checks the transition condition, and
// stops once the ceremony concludes. Cancelling ctx aborts the
// ceremony before the next broadcast without writing the slot.
func (a *Approver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		a.broadcastUnapproved()

		if done := a.tryTransition(); done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Approver) broadcastUnapproved() {
	payload := EncodeUnapprovedBlock(a.candidate, a.startMs, a.duration.Milliseconds())
	a.collab.broadcast("UnapprovedBlock", payload)
}

// tryTransition evaluates the §4.6 step-2 condition and, if met,
// materialises and publishes the approved block.
func (a *Approver) tryTransition() bool {
	a.mu.Lock()
	now := a.collab.ClockNowMillis()
	durationElapsed := now >= a.startMs+a.duration.Milliseconds()
	k := len(a.sigs)
	n := int(a.threshold)

	if !((durationElapsed && k >= n) || a.threshold == 0) {
		a.mu.Unlock()
		return false
	}

	block := ApprovedBlock{Candidate: a.candidate, Signatures: sortedSignatures(a.sigs)}
	a.mu.Unlock()

	if !a.slot.Set(block) {
		// Already materialised by a prior call; nothing left to do.
		return true
	}

	if a.collab.BlockStorePut != nil {
		if err := a.collab.BlockStorePut(block.Candidate.Block.Hash, block.Candidate.CanonicalBytes()); err != nil {
			a.logger.Error("failed to persist approved genesis block", "err", err)
		}
	}
	a.collab.broadcast("ApprovedBlock", EncodeApprovedBlock(block))
	return true
}

func sortedSignatures(sigs map[string]Signature) []Signature {
	out := make([]Signature, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Pubkey) < string(out[j].Pubkey)
	})
	return out
}
