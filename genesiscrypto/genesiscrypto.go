// Package genesiscrypto provides the Ed25519 / Blake2b-256 signing
// primitives used by the genesis approval ceremony (spec §4.6):
// keypair generation and on-disk storage, and signature verification
// over a block candidate's canonical encoding.
package genesiscrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// AlgorithmEd25519 is the only signature algorithm the ceremony
// accepts; any other value in a received Signature is rejected.
const AlgorithmEd25519 = "ed25519"

// Keypair holds a validator's Ed25519 signing keys.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a new random Ed25519 keypair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("genesiscrypto: generate keypair: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// LoadKeypair reads public and secret keys from disk.
func LoadKeypair(pkPath, skPath string) (*Keypair, error) {
	pkBytes, err := os.ReadFile(pkPath)
	if err != nil {
		return nil, fmt.Errorf("genesiscrypto: read public key from %s: %w", pkPath, err)
	}
	skBytes, err := os.ReadFile(skPath)
	if err != nil {
		return nil, fmt.Errorf("genesiscrypto: read secret key from %s: %w", skPath, err)
	}
	if len(pkBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("genesiscrypto: public key at %s has length %d, want %d", pkPath, len(pkBytes), ed25519.PublicKeySize)
	}
	if len(skBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("genesiscrypto: secret key at %s has length %d, want %d", skPath, len(skBytes), ed25519.PrivateKeySize)
	}
	return &Keypair{Public: ed25519.PublicKey(pkBytes), Private: ed25519.PrivateKey(skBytes)}, nil
}

// SaveKeypair writes kp's public and secret keys to disk. The secret
// key file is created with 0600 permissions.
func SaveKeypair(kp *Keypair, pkPath, skPath string) error {
	if err := os.WriteFile(pkPath, kp.Public, 0o644); err != nil {
		return fmt.Errorf("genesiscrypto: write public key to %s: %w", pkPath, err)
	}
	if err := os.WriteFile(skPath, kp.Private, 0o600); err != nil {
		return fmt.Errorf("genesiscrypto: write secret key to %s: %w", skPath, err)
	}
	return nil
}

// Digest returns the Blake2b-256 digest of a candidate's canonical
// byte encoding, the value actually signed and verified (spec §4.6).
func Digest(candidateBytes []byte) [32]byte {
	return blake2b.Sum256(candidateBytes)
}

// Sign signs candidateBytes with kp's private key, returning the raw
// Ed25519 signature over the candidate's Blake2b-256 digest.
func (kp *Keypair) Sign(candidateBytes []byte) []byte {
	digest := Digest(candidateBytes)
	return ed25519.Sign(kp.Private, digest[:])
}

// Signature is a single validator's approval of a candidate: the
// signing algorithm, the validator's public key, and the raw
// signature bytes.
type Signature struct {
	Pubkey    ed25519.PublicKey
	Algorithm string
	Sig       []byte
}

// Verify checks that sig is a valid AlgorithmEd25519 signature by
// sig.Pubkey over candidateBytes's Blake2b-256 digest (spec §4.6 rule
// 3). Any other algorithm is rejected without attempting verification.
func Verify(candidateBytes []byte, sig Signature) bool {
	if sig.Algorithm != AlgorithmEd25519 {
		return false
	}
	if len(sig.Pubkey) != ed25519.PublicKeySize {
		return false
	}
	digest := Digest(candidateBytes)
	return ed25519.Verify(sig.Pubkey, digest[:], sig.Sig)
}
