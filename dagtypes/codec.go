package dagtypes

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptRecord is returned by DecodeBlockMetadata when a record's
// bytes cannot be decoded into a well-formed BlockMetadata. Callers
// treat this the same as a framing failure: truncate the log at this
// record and continue (spec §4.1, §4.5).
var ErrCorruptRecord = errors.New("dagtypes: corrupt block-metadata record")

// EncodeBlockMetadata renders a BlockMetadata to its stable, fixed
// field-order wire encoding. This layout is part of the external
// contract (spec §6) and must never change without a version bump.
//
//	hash              [32]byte
//	rank              u64 LE
//	validatorLen      u8           (0 or 32)
//	validator         validatorLen bytes
//	numParents        u16 LE
//	parents           numParents * [32]byte
//	numJustifications u16 LE
//	justifications    numJustifications * (validator[32] ‖ latest[32])
//	numBonded         u16 LE
//	bonded            numBonded * [32]byte
func EncodeBlockMetadata(m BlockMetadata) []byte {
	size := 32 + 8 + 1 + len(m.Validator) +
		2 + 32*len(m.Parents) +
		2 + 64*len(m.Justifications) +
		2 + 32*len(m.BondedValidators)
	buf := make([]byte, size)
	pos := 0

	copy(buf[pos:], m.Hash[:])
	pos += 32

	binary.LittleEndian.PutUint64(buf[pos:], uint64(m.Rank))
	pos += 8

	buf[pos] = byte(len(m.Validator))
	pos++
	pos += copy(buf[pos:], m.Validator)

	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(m.Parents)))
	pos += 2
	for _, p := range m.Parents {
		pos += copy(buf[pos:], p[:])
	}

	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(m.Justifications)))
	pos += 2
	for _, j := range m.Justifications {
		pos += copy(buf[pos:], j.Validator[:])
		pos += copy(buf[pos:], j.Latest[:])
	}

	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(m.BondedValidators)))
	pos += 2
	for _, b := range m.BondedValidators {
		pos += copy(buf[pos:], b[:])
	}

	return buf
}

// DecodeBlockMetadata parses a record previously produced by
// EncodeBlockMetadata. Any structural inconsistency (truncated buffer,
// lengths that overrun the remaining bytes) is reported as
// ErrCorruptRecord rather than panicking, so callers can treat it as a
// corrupt-tail condition and truncate.
func DecodeBlockMetadata(buf []byte) (BlockMetadata, error) {
	var m BlockMetadata
	pos := 0

	need := func(n int) error {
		if pos+n > len(buf) {
			return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorruptRecord, n, pos, len(buf))
		}
		return nil
	}

	if err := need(32); err != nil {
		return m, err
	}
	copy(m.Hash[:], buf[pos:pos+32])
	pos += 32

	if err := need(8); err != nil {
		return m, err
	}
	m.Rank = Rank(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8

	if err := need(1); err != nil {
		return m, err
	}
	vlen := int(buf[pos])
	pos++
	if vlen != 0 && vlen != 32 {
		return m, fmt.Errorf("%w: validator length %d", ErrCorruptRecord, vlen)
	}
	if err := need(vlen); err != nil {
		return m, err
	}
	if vlen > 0 {
		m.Validator = append([]byte(nil), buf[pos:pos+vlen]...)
	}
	pos += vlen

	if err := need(2); err != nil {
		return m, err
	}
	numParents := int(binary.LittleEndian.Uint16(buf[pos:]))
	pos += 2
	if err := need(32 * numParents); err != nil {
		return m, err
	}
	if numParents > 0 {
		m.Parents = make([]Hash, numParents)
		for i := 0; i < numParents; i++ {
			copy(m.Parents[i][:], buf[pos:pos+32])
			pos += 32
		}
	}

	if err := need(2); err != nil {
		return m, err
	}
	numJust := int(binary.LittleEndian.Uint16(buf[pos:]))
	pos += 2
	if err := need(64 * numJust); err != nil {
		return m, err
	}
	if numJust > 0 {
		m.Justifications = make([]Justification, numJust)
		for i := 0; i < numJust; i++ {
			copy(m.Justifications[i].Validator[:], buf[pos:pos+32])
			pos += 32
			copy(m.Justifications[i].Latest[:], buf[pos:pos+32])
			pos += 32
		}
	}

	if err := need(2); err != nil {
		return m, err
	}
	numBonded := int(binary.LittleEndian.Uint16(buf[pos:]))
	pos += 2
	if err := need(32 * numBonded); err != nil {
		return m, err
	}
	if numBonded > 0 {
		m.BondedValidators = make([]ValidatorID, numBonded)
		for i := 0; i < numBonded; i++ {
			copy(m.BondedValidators[i][:], buf[pos:pos+32])
			pos += 32
		}
	}

	if pos != len(buf) {
		return m, fmt.Errorf("%w: %d trailing bytes", ErrCorruptRecord, len(buf)-pos)
	}

	return m, nil
}
