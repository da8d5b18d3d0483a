package genesis

import "encoding/binary"

// Signature is a single validator's approval over a candidate's
// canonical encoding.
type Signature struct {
	Pubkey    []byte
	Algorithm string
	Sig       []byte
}

// BlockApproval is one validator's vote: a claimed candidate plus the
// signature attesting to it.
type BlockApproval struct {
	Candidate Candidate
	Signature Signature
}

// ApprovedBlock is the ceremony's terminal output: the candidate plus
// every distinct signature admitted before the transition fired.
type ApprovedBlock struct {
	Candidate  Candidate
	Signatures []Signature
}

// sigKey is the full-triple dedup key used by addApproval (spec §4.6:
// "deduplicated by the full signature triple").
func sigKey(sig Signature) string {
	return string(sig.Pubkey) + "|" + sig.Algorithm + "|" + string(sig.Sig)
}

func encodeSignature(buf []byte, sig Signature) []byte {
	buf = appendU32Prefixed(buf, sig.Pubkey)
	buf = appendU32Prefixed(buf, []byte(sig.Algorithm))
	buf = appendU32Prefixed(buf, sig.Sig)
	return buf
}

// EncodeUnapprovedBlock produces the wire-equivalent bytes for the
// UnapprovedBlock broadcast message (spec §6): the candidate, the
// ceremony start time, and its duration, each in milliseconds.
func EncodeUnapprovedBlock(candidate Candidate, startMillis int64, durationMillis int64) []byte {
	buf := appendU32Prefixed(nil, candidate.CanonicalBytes())
	var ts, dur [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(startMillis))
	binary.LittleEndian.PutUint64(dur[:], uint64(durationMillis))
	buf = append(buf, ts[:]...)
	buf = append(buf, dur[:]...)
	return buf
}

// EncodeApprovedBlock produces the wire-equivalent bytes for the
// ApprovedBlock broadcast message (spec §6).
func EncodeApprovedBlock(b ApprovedBlock) []byte {
	buf := appendU32Prefixed(nil, b.Candidate.CanonicalBytes())

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(b.Signatures)))
	buf = append(buf, count[:]...)
	for _, sig := range b.Signatures {
		buf = encodeSignature(buf, sig)
	}
	return buf
}
