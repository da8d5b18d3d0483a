// Package genesis implements the genesis approval state machine (spec
// §4.6): a time-bounded ceremony in which a bootstrap node collects
// Ed25519 signatures from a trusted validator set over a single
// candidate block, producing the first block fed into the DAG façade.
package genesis

import (
	"bytes"
	"encoding/binary"

	"github.com/casperlabs/dagcore/dagtypes"
)

// Candidate is the block proposed for genesis approval, paired with
// the number of signatures required to approve it.
type Candidate struct {
	Block        dagtypes.BlockMetadata
	RequiredSigs uint32
}

// CanonicalBytes returns Candidate's deterministic encoding: the same
// bytes are produced for structurally equal candidates regardless of
// process or platform, and are both the signed digest's preimage and
// the basis for the structural-equality check in addApproval's rule 1.
func (c Candidate) CanonicalBytes() []byte {
	blockBytes := dagtypes.EncodeBlockMetadata(c.Block)

	buf := make([]byte, 0, 4+len(blockBytes)+4)
	buf = appendU32Prefixed(buf, blockBytes)

	var reqBuf [4]byte
	binary.LittleEndian.PutUint32(reqBuf[:], c.RequiredSigs)
	buf = append(buf, reqBuf[:]...)
	return buf
}

func candidatesEqual(a, b Candidate) bool {
	return bytes.Equal(a.CanonicalBytes(), b.CanonicalBytes())
}

func appendU32Prefixed(buf, field []byte) []byte {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(field)))
	buf = append(buf, l[:]...)
	return append(buf, field...)
}
