package genesiscrypto

import (
	"path/filepath"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	candidate := []byte("a canonical candidate encoding")
	sig := kp.Sign(candidate)

	ok := Verify(candidate, Signature{Pubkey: kp.Public, Algorithm: AlgorithmEd25519, Sig: sig})
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	kp, _ := Generate()
	candidate := []byte("candidate")
	sig := kp.Sign(candidate)

	ok := Verify(candidate, Signature{Pubkey: kp.Public, Algorithm: "xmss", Sig: sig})
	if ok {
		t.Fatal("expected non-ed25519 algorithm to be rejected")
	}
}

func TestVerifyRejectsTamperedCandidate(t *testing.T) {
	kp, _ := Generate()
	sig := kp.Sign([]byte("original"))

	ok := Verify([]byte("tampered"), Signature{Pubkey: kp.Public, Algorithm: AlgorithmEd25519, Sig: sig})
	if ok {
		t.Fatal("expected signature over a different candidate to fail")
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	signer, _ := Generate()
	other, _ := Generate()
	candidate := []byte("candidate")
	sig := signer.Sign(candidate)

	ok := Verify(candidate, Signature{Pubkey: other.Public, Algorithm: AlgorithmEd25519, Sig: sig})
	if ok {
		t.Fatal("expected signature to fail verification under the wrong public key")
	}
}

func TestSaveAndLoadKeypair(t *testing.T) {
	dir := t.TempDir()
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pkPath := filepath.Join(dir, "validator.pub")
	skPath := filepath.Join(dir, "validator.key")
	if err := SaveKeypair(kp, pkPath, skPath); err != nil {
		t.Fatalf("SaveKeypair: %v", err)
	}

	loaded, err := LoadKeypair(pkPath, skPath)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}

	candidate := []byte("candidate")
	sig := loaded.Sign(candidate)
	if !Verify(candidate, Signature{Pubkey: loaded.Public, Algorithm: AlgorithmEd25519, Sig: sig}) {
		t.Fatal("expected signature from reloaded keypair to verify")
	}
}
